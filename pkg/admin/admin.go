// Package admin provides the /admin/* control plane of the hub service:
// state inspection, cache invalidation, session management, and the
// simulated clock.
package admin

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jobhub-dev/jobhub/internal/cache"
	"github.com/jobhub-dev/jobhub/internal/session"
	"github.com/jobhub-dev/jobhub/pkg/hubcore"
	"github.com/jobhub-dev/jobhub/pkg/store"
)

// StateStore is the service state the control plane inspects and resets.
type StateStore interface {
	// Snapshot returns a JSON-serializable summary of the state.
	Snapshot(ctx context.Context) any
	// Reset drops all per-session and cached state.
	Reset(ctx context.Context)
}

// CacheControl is the fetch cache as seen by operators.
type CacheControl interface {
	Snapshot() []cache.EntryInfo
	Invalidate(keys ...string) int
	InvalidateFunc(match func(key string) bool) int
}

// Sessions lists and ends sessions.
type Sessions interface {
	List(ctx context.Context) []session.Info
	End(ctx context.Context, id string) bool
}

// MaintenanceSwitch turns maintenance mode on and off.
type MaintenanceSwitch interface {
	Enabled() bool
	SetEnabled(bool)
}

// Handler provides the admin endpoints.
type Handler struct {
	state       StateStore
	cache       CacheControl
	sessions    Sessions
	maintenance MaintenanceSwitch
	mw          *hubcore.Middleware
	clock       *store.Clock
	token       string
}

// Deps are the parts of the service the control plane reaches into. Any
// nil part disables its endpoints.
type Deps struct {
	State       StateStore
	Cache       CacheControl
	Sessions    Sessions
	Maintenance MaintenanceSwitch
	Middleware  *hubcore.Middleware
	Clock       *store.Clock
	// Token, when set, must be presented as a bearer token.
	Token string
}

// NewHandler creates a new admin handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		state:       d.State,
		cache:       d.Cache,
		sessions:    d.Sessions,
		maintenance: d.Maintenance,
		mw:          d.Middleware,
		clock:       d.Clock,
		token:       d.Token,
	}
}

// Routes mounts the admin endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Group(func(r chi.Router) {
			r.Use(h.requireToken)
			r.Post("/reset", h.handleReset)
			r.Get("/state", h.handleGetState)
			r.Get("/requests", h.handleGetRequests)
			r.Get("/cache", h.handleListCache)
			r.Post("/cache/invalidate", h.handleInvalidate)
			r.Get("/sessions", h.handleListSessions)
			r.Delete("/sessions/{id}", h.handleEndSession)
			r.Get("/maintenance", h.handleGetMaintenance)
			r.Put("/maintenance", h.handleSetMaintenance)
			r.Post("/time/advance", h.handleTimeAdvance)
			r.Get("/time", h.handleGetTime)
		})
	})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				hubcore.Error(w, http.StatusUnauthorized, "admin token required")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if h.state != nil {
		h.state.Reset(r.Context())
	}
	if h.mw != nil {
		h.mw.ReqLog.Clear()
	}
	if h.clock != nil {
		h.clock.Reset()
	}
	hubcore.JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	if h.state == nil {
		hubcore.JSON(w, http.StatusOK, map[string]any{})
		return
	}
	hubcore.JSON(w, http.StatusOK, h.state.Snapshot(r.Context()))
}

func (h *Handler) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	if h.mw == nil {
		hubcore.JSON(w, http.StatusOK, []hubcore.RequestLogEntry{})
		return
	}
	hubcore.JSON(w, http.StatusOK, h.mw.ReqLog.Entries())
}

func (h *Handler) handleListCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		hubcore.Error(w, http.StatusNotFound, "cache not configured")
		return
	}
	hubcore.JSON(w, http.StatusOK, h.cache.Snapshot())
}

// InvalidateRequest names keys to invalidate exactly and key prefixes.
type InvalidateRequest struct {
	Keys     []string `json:"keys,omitempty"`
	Prefixes []string `json:"prefixes,omitempty"`
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		hubcore.Error(w, http.StatusNotFound, "cache not configured")
		return
	}
	var req InvalidateRequest
	if err := hubcore.DecodeJSON(w, r, &req); err != nil {
		hubcore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Keys) == 0 && len(req.Prefixes) == 0 {
		hubcore.Error(w, http.StatusBadRequest, "keys or prefixes required")
		return
	}

	n := h.cache.Invalidate(req.Keys...)
	if len(req.Prefixes) > 0 {
		n += h.cache.InvalidateFunc(func(key string) bool {
			for _, p := range req.Prefixes {
				if strings.HasPrefix(key, p) {
					return true
				}
			}
			return false
		})
	}
	hubcore.JSON(w, http.StatusOK, map[string]any{"status": "invalidated", "count": n})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		hubcore.JSON(w, http.StatusOK, []session.Info{})
		return
	}
	hubcore.JSON(w, http.StatusOK, h.sessions.List(r.Context()))
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.sessions == nil || !h.sessions.End(r.Context(), id) {
		hubcore.Error(w, http.StatusNotFound, "no session "+id)
		return
	}
	hubcore.JSON(w, http.StatusOK, map[string]string{"status": "ended", "id": id})
}

func (h *Handler) handleGetMaintenance(w http.ResponseWriter, r *http.Request) {
	enabled := h.maintenance != nil && h.maintenance.Enabled()
	hubcore.JSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *Handler) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		hubcore.Error(w, http.StatusNotFound, "maintenance gate not configured")
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := hubcore.DecodeJSON(w, r, &req); err != nil {
		hubcore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.maintenance.SetEnabled(req.Enabled)
	hubcore.JSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (h *Handler) handleTimeAdvance(w http.ResponseWriter, r *http.Request) {
	if h.clock == nil {
		hubcore.Error(w, http.StatusBadRequest, "simulated clock not configured")
		return
	}

	var req struct {
		Duration string `json:"duration"` // Go duration string, e.g., "24h", "30m"
	}
	if err := hubcore.DecodeJSON(w, r, &req); err != nil {
		hubcore.Error(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		hubcore.Error(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	h.clock.Advance(d)
	hubcore.JSON(w, http.StatusOK, map[string]any{
		"status":    "advanced",
		"duration":  d.String(),
		"offset":    h.clock.Offset().String(),
		"simulated": h.clock.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleGetTime(w http.ResponseWriter, r *http.Request) {
	if h.clock == nil {
		hubcore.JSON(w, http.StatusOK, map[string]any{
			"real": time.Now().Format(time.RFC3339),
		})
		return
	}
	hubcore.JSON(w, http.StatusOK, map[string]any{
		"real":      time.Now().Format(time.RFC3339),
		"simulated": h.clock.Now().Format(time.RFC3339),
		"offset":    h.clock.Offset().String(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	hubcore.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
