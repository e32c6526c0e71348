package hubcore

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogEntry is one served request as shown by /admin/requests.
type RequestLogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Status     int               `json:"status"`
	Bytes      int               `json:"bytes"`
	DurationMS float64           `json:"duration_ms"`
	RequestID  string            `json:"request_id,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// RequestLog keeps the most recent requests in a fixed-size ring.
type RequestLog struct {
	mu    sync.RWMutex
	ring  []RequestLogEntry
	next  int
	count int
}

// NewRequestLog creates a log holding at most size entries.
func NewRequestLog(size int) *RequestLog {
	if size < 1 {
		size = 1
	}
	return &RequestLog{ring: make([]RequestLogEntry, size)}
}

// Add records e, overwriting the oldest entry when full.
func (rl *RequestLog) Add(e RequestLogEntry) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.ring[rl.next] = e
	rl.next = (rl.next + 1) % len(rl.ring)
	if rl.count < len(rl.ring) {
		rl.count++
	}
}

// Entries returns a copy of the log, oldest first.
func (rl *RequestLog) Entries() []RequestLogEntry {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	out := make([]RequestLogEntry, 0, rl.count)
	start := (rl.next - rl.count + len(rl.ring)) % len(rl.ring)
	for i := 0; i < rl.count; i++ {
		out = append(out, rl.ring[(start+i)%len(rl.ring)])
	}
	return out
}

func (rl *RequestLog) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	clear(rl.ring)
	rl.next, rl.count = 0, 0
}

// Middleware holds the request-scoped middleware of a Server.
type Middleware struct {
	cfg    *Config
	logger *slog.Logger
	ReqLog *RequestLog
}

const requestLogSize = 1000

func NewMiddleware(cfg *Config, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{cfg: cfg, logger: logger, ReqLog: NewRequestLog(requestLogSize)}
}

// Credentials never reach the request log.
var redactedHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// CORS allows the configured origins with credentials so the session cookie
// travels. With no origins configured any origin may read responses but
// cookies are not shared.
func (m *Middleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if len(m.cfg.AllowedOrigins) == 0 {
			h.Set("Access-Control-Allow-Origin", "*")
		} else if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(m.cfg.AllowedOrigins, origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-Id")
		h.Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLog records every request in the ring. Server errors are always
// logged; everything else only when verbose.
func (m *Middleware) RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		entry := RequestLogEntry{
			Timestamp:  start,
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     status,
			Bytes:      ww.BytesWritten(),
			DurationMS: float64(elapsed.Microseconds()) / 1000,
			RequestID:  chimw.GetReqID(r.Context()),
		}
		if m.cfg.Verbose {
			entry.Headers = loggableHeaders(r.Header)
		}
		m.ReqLog.Add(entry)

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		m.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", elapsed,
			"request_id", entry.RequestID,
		)
	})
}

func loggableHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if slices.ContainsFunc(redactedHeaders, func(r string) bool { return strings.EqualFold(r, k) }) {
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}
