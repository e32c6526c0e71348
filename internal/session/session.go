// Package session tracks browser sessions of the hub service. Each session
// owns its wizard draft, overlay state and persisted flags.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobhub-dev/jobhub/internal/api"
	"github.com/jobhub-dev/jobhub/internal/draft"
	"github.com/jobhub-dev/jobhub/internal/flags"
	"github.com/jobhub-dev/jobhub/internal/metrics"
	"github.com/jobhub-dev/jobhub/internal/modal"
	"github.com/jobhub-dev/jobhub/internal/wizard"
	"github.com/jobhub-dev/jobhub/pkg/storage"
	"github.com/jobhub-dev/jobhub/pkg/store"
)

// CookieName carries the session id.
const CookieName = "hub_session"

const idPrefix = "sess"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Session is one browser session.
type Session struct {
	ID        string
	CreatedAt time.Time

	Drafts *draft.Store
	Modals *modal.Store
	Flags  *flags.Flags

	mu       sync.Mutex
	lastSeen time.Time
	logger   *slog.Logger
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session last made a request.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Wizard returns the session's registration flow submitting through creator.
func (s *Session) Wizard(creator wizard.ResourceCreator) *wizard.Flow {
	return wizard.New(s.Drafts, s.Modals, creator, s.logger)
}

// Info describes a session for the admin API.
type Info struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeen   time.Time `json:"lastSeen"`
	HasDraft   bool      `json:"hasDraft"`
	OpenModals []string  `json:"openModals"`
}

// Config tunes a Manager.
type Config struct {
	IdleTimeout  time.Duration
	CookieSecure bool
	// MaxSessions caps live sessions; the least recently seen one is ended
	// to make room. Zero means DefaultMaxSessions.
	MaxSessions int
}

// DefaultMaxSessions is the session cap when none is configured.
const DefaultMaxSessions = 10000

// Manager creates, looks up and expires sessions.
type Manager struct {
	cfg      Config
	sessions *store.Store[*Session]
	factory  storage.Factory
	hooks    *api.Hooks
	clock    Clock
	logger   *slog.Logger
}

// NewManager creates a Manager. hooks are the anonymous API hooks that
// requests upgrade with their bearer token.
func NewManager(cfg Config, factory storage.Factory, hooks *api.Hooks, clock Clock, logger *slog.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 24 * time.Hour
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if clock == nil {
		clock = store.NewClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		sessions: store.New[*Session](idPrefix),
		factory:  factory,
		hooks:    hooks,
		clock:    clock,
		logger:   logger,
	}
}

// validID accepts ids this manager could have issued, so a session whose
// state lives in a shared backend survives a restart.
func validID(id string) bool {
	rest, ok := strings.CutPrefix(id, idPrefix+"_")
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// Get returns the session with id, if it is live.
func (m *Manager) Get(id string) (*Session, bool) {
	return m.sessions.Get(id)
}

// Resolve returns the session named by id, creating it when it is unknown
// or id is malformed. created reports whether a new session was made.
func (m *Manager) Resolve(id string) (s *Session, created bool) {
	now := m.clock.Now()
	if !validID(id) {
		id = m.sessions.NextID()
	}
	s, created = m.sessions.LoadOrCreate(id, func() *Session {
		backend := m.factory.For(id)
		logger := m.logger.With("session", id)
		return &Session{
			ID:        id,
			CreatedAt: now,
			Drafts:    draft.New(backend, draft.WithClock(m.clock), draft.WithLogger(logger)),
			Modals:    modal.NewStore(),
			Flags:     flags.New(backend, logger),
			lastSeen:  now,
			logger:    logger,
		}
	})
	if !created {
		s.touch(now)
		return s, false
	}
	m.evictOverCap(s)
	metrics.SetActiveSessions(m.sessions.Count())
	s.logger.Debug("session created")
	return s, true
}

// evictOverCap ends the least recently seen sessions other than keep until
// the manager is within MaxSessions.
func (m *Manager) evictOverCap(keep *Session) {
	for m.sessions.Count() > m.cfg.MaxSessions {
		var oldest *Session
		for _, s := range m.sessions.List() {
			if s == keep {
				continue
			}
			if oldest == nil || s.LastSeen().Before(oldest.LastSeen()) {
				oldest = s
			}
		}
		if oldest == nil || !m.End(context.Background(), oldest.ID) {
			return
		}
		m.logger.Info("evicted session over cap", "session", oldest.ID, "max", m.cfg.MaxSessions)
	}
}

// Sweep ends sessions idle for longer than the idle timeout and returns
// how many were removed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.clock.Now()
	var expired []*Session
	m.sessions.DeleteFunc(func(_ string, s *Session) bool {
		if now.Sub(s.LastSeen()) > m.cfg.IdleTimeout {
			expired = append(expired, s)
			return true
		}
		return false
	})
	for _, s := range expired {
		s.Modals.Reset()
		m.factory.Release(ctx, s.ID)
	}
	if len(expired) > 0 {
		metrics.SetActiveSessions(m.sessions.Count())
		m.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(ctx)
		}
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int { return m.sessions.Count() }

// List describes every live session.
func (m *Manager) List(ctx context.Context) []Info {
	all := m.sessions.List()
	out := make([]Info, 0, len(all))
	for _, s := range all {
		info := Info{ID: s.ID, CreatedAt: s.CreatedAt, LastSeen: s.LastSeen(), OpenModals: []string{}}
		_, info.HasDraft = s.Drafts.Get(ctx)
		state := s.Modals.State()
		for _, k := range modal.Kinds {
			if state.IsOpen(k) {
				info.OpenModals = append(info.OpenModals, string(k))
			}
		}
		out = append(out, info)
	}
	return out
}

// End removes one session and its stored state.
func (m *Manager) End(ctx context.Context, id string) bool {
	s, ok := m.sessions.Get(id)
	if !ok {
		return false
	}
	s.Drafts.Clear(ctx)
	s.Modals.Reset()
	m.sessions.Delete(id)
	m.factory.Release(ctx, id)
	metrics.SetActiveSessions(m.sessions.Count())
	return true
}

// Reset ends every session.
func (m *Manager) Reset(ctx context.Context) {
	for _, id := range m.sessions.Keys() {
		m.End(ctx, id)
	}
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

type ctxKey struct{}

type requestState struct {
	session *Session
	hooks   *api.Hooks
}

// Middleware attaches the caller's session to the request, issuing the
// cookie when the session is new. A bearer token upgrades the request's
// API hooks to that user; an unreadable token leaves them anonymous.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(CookieName); err == nil {
			id = c.Value
		}
		s, created := m.Resolve(id)
		if created || id != s.ID {
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   m.cfg.CookieSecure,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   int(m.cfg.IdleTimeout / time.Second),
			})
		}

		hooks := m.hooks
		if auth := r.Header.Get("Authorization"); hooks != nil && strings.HasPrefix(auth, "Bearer ") {
			if h, err := hooks.WithToken(strings.TrimPrefix(auth, "Bearer ")); err == nil {
				hooks = h
			} else {
				s.logger.Debug("ignoring unreadable bearer token", "err", err)
			}
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, &requestState{session: s, hooks: hooks})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) *Session {
	if st, ok := ctx.Value(ctxKey{}).(*requestState); ok {
		return st.session
	}
	return nil
}

// HooksFromContext returns the request's API hooks, authenticated when the
// request carried a readable bearer token.
func HooksFromContext(ctx context.Context) *api.Hooks {
	if st, ok := ctx.Value(ctxKey{}).(*requestState); ok {
		return st.hooks
	}
	return nil
}

// FlagsFor returns the requesting session's flags. It is meant for
// middleware mounted inside Middleware.
func FlagsFor(r *http.Request) *flags.Flags {
	if s := FromContext(r.Context()); s != nil {
		return s.Flags
	}
	return flags.New(storage.Noop{}, nil)
}
