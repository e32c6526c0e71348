package endpointtest

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jobhub-dev/jobhub/internal/metrics"
	"github.com/jobhub-dev/jobhub/pkg/hubcore"
)

// RateLimiter limits endpoint tests per client.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idle     time.Duration
	keyFunc  func(*http.Request) string
	logger   *slog.Logger
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute tests per client with the given burst.
// keyFunc identifies the client; nil uses the remote address.
func NewRateLimiter(perMinute, burst int, keyFunc func(*http.Request) string, logger *slog.Logger) *RateLimiter {
	if keyFunc == nil {
		keyFunc = func(r *http.Request) string { return r.RemoteAddr }
	}
	if logger == nil {
		logger = slog.Default()
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idle:     10 * time.Minute,
		keyFunc:  keyFunc,
		logger:   logger,
	}
}

func (rl *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Allow reports whether key may run another test now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.get(key, time.Now()).Allow()
}

// Handler rejects requests over the limit with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.keyFunc(r)
		if !rl.Allow(key) {
			rl.logger.Warn("endpoint test rate limited", "key", key, "path", r.URL.Path)
			metrics.RecordEndpointTest("rate_limited", 0)
			w.Header().Set("Retry-After", "60")
			hubcore.JSON(w, http.StatusTooManyRequests, failure{Error: "too many endpoint tests, try again shortly"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sweep drops limiters idle for longer than the idle window and returns
// how many were removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for k, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.idle {
			delete(rl.limiters, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
