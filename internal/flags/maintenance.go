package flags

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/jobhub-dev/jobhub/pkg/hubcore"
)

// Gate serves 503 while maintenance mode is on, except to sessions that
// entered the unlock code.
//
// The unlock code is an operator convenience, not access control: it is a
// shared string that anyone who learns it can enter, and a session keeps
// the bypass until it expires.
type Gate struct {
	enabled  atomic.Bool
	code     string
	flagsFor func(*http.Request) *Flags
	exempt   []string
}

// NewGate creates a gate. flagsFor returns the requesting session's flags.
// Paths starting with any exempt prefix are always served.
func NewGate(enabled bool, code string, flagsFor func(*http.Request) *Flags, exempt ...string) *Gate {
	g := &Gate{code: code, flagsFor: flagsFor, exempt: exempt}
	g.enabled.Store(enabled)
	return g
}

// Enabled reports whether maintenance mode is on.
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// SetEnabled turns maintenance mode on or off.
func (g *Gate) SetEnabled(v bool) { g.enabled.Store(v) }

// Unlock sets the requesting session's bypass when code matches. An empty configured code
// never matches.
func (g *Gate) Unlock(r *http.Request, code string) bool {
	if g.code == "" || strings.TrimSpace(code) != g.code {
		return false
	}
	g.flagsFor(r).SetMaintenanceBypass(r.Context(), true)
	return true
}

// Middleware blocks requests while maintenance mode is on.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() || g.isExempt(r.URL.Path) || g.flagsFor(r).MaintenanceBypassed(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "300")
		hubcore.Error(w, http.StatusServiceUnavailable, "the marketplace is down for maintenance")
	})
}

func (g *Gate) isExempt(path string) bool {
	for _, p := range g.exempt {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

type unlockRequest struct {
	Code string `json:"code"`
}

// UnlockHandler serves POST /api/maintenance/unlock.
func (g *Gate) UnlockHandler(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := hubcore.DecodeJSON(w, r, &req); err != nil {
		hubcore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if !g.Unlock(r, req.Code) {
		hubcore.Error(w, http.StatusForbidden, "invalid code")
		return
	}
	hubcore.JSON(w, http.StatusOK, map[string]bool{"maintenanceBypass": true})
}
