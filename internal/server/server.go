// Package server assembles the hub service: the HTTP surface, the per-session
// state, the shared fetch cache and the background jobs around them.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/jobhub-dev/jobhub/internal/api"
	"github.com/jobhub-dev/jobhub/internal/cache"
	"github.com/jobhub-dev/jobhub/internal/config"
	"github.com/jobhub-dev/jobhub/internal/endpointtest"
	"github.com/jobhub-dev/jobhub/internal/flags"
	"github.com/jobhub-dev/jobhub/internal/metrics"
	"github.com/jobhub-dev/jobhub/internal/rewards"
	"github.com/jobhub-dev/jobhub/internal/session"
	"github.com/jobhub-dev/jobhub/pkg/admin"
	"github.com/jobhub-dev/jobhub/pkg/hubcore"
	"github.com/jobhub-dev/jobhub/pkg/storage"
	"github.com/jobhub-dev/jobhub/pkg/store"
)

// Background job intervals.
const (
	sessionSweepInterval = 5 * time.Minute
	limiterSweepInterval = time.Minute
)

// Hub is the assembled service.
type Hub struct {
	*hubcore.Server

	Cache     *cache.Cache
	Hooks     *api.Hooks
	Sessions  *session.Manager
	Gate      *flags.Gate
	Tester    *endpointtest.Tester
	Limiter   *endpointtest.RateLimiter
	Scheduler *rewards.Scheduler
	Clock     *store.Clock

	cfg   *config.Config
	redis redis.UniversalClient
	owned bool
}

// Option customizes New.
type Option func(*options)

type options struct {
	logOutput  io.Writer
	redis      redis.UniversalClient
	testClient *http.Client
}

// WithLogOutput sends service logs to w.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithRedis uses c for the redis storage driver instead of dialing
// cfg.Storage.RedisAddr. The caller keeps ownership of c.
func WithRedis(c redis.UniversalClient) Option {
	return func(o *options) { o.redis = c }
}

// WithEndpointTestClient sets the HTTP client endpoint tests go out on.
func WithEndpointTestClient(c *http.Client) Option {
	return func(o *options) { o.testClient = c }
}

// New wires every component from cfg. Nothing runs until Run.
func New(cfg *config.Config, opts ...Option) (*Hub, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	core := hubcore.New(&hubcore.Config{
		Name:            "jobhub",
		Addr:            cfg.Server.Addr,
		Verbose:         cfg.Server.Verbose,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		LogOutput:       o.logOutput,
	}, metrics.InstrumentHandler)
	logger := core.Logger

	h := &Hub{Server: core, cfg: cfg, Clock: store.NewClock()}

	factory, err := h.storageFactory(o.redis)
	if err != nil {
		return nil, err
	}

	h.Cache = cache.New(cache.WithClock(h.Clock), cache.WithLogger(logger.With("component", "cache")))
	client := api.NewClient(api.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout})
	h.Hooks = api.NewHooks(client, h.Cache, logger, api.WithoutRetry())

	h.Sessions = session.NewManager(session.Config{
		IdleTimeout:  cfg.Session.IdleTimeout,
		CookieSecure: cfg.Session.CookieSecure,
		MaxSessions:  cfg.Session.MaxSessions,
	}, factory, h.Hooks, h.Clock, logger.With("component", "session"))

	h.Gate = flags.NewGate(cfg.Maintenance.Enabled, cfg.Maintenance.Code, session.FlagsFor,
		"/api/maintenance", "/api/flags")

	testerOpts := []endpointtest.Option{
		endpointtest.WithTimeout(cfg.EndpointTest.Timeout),
		endpointtest.WithLogger(logger.With("component", "endpointtest")),
	}
	if o.testClient != nil {
		testerOpts = append(testerOpts, endpointtest.WithHTTPClient(o.testClient))
	}
	h.Tester = endpointtest.New(testerOpts...)
	h.Limiter = endpointtest.NewRateLimiter(cfg.EndpointTest.RatePerMinute, cfg.EndpointTest.Burst, limiterKey, logger)

	h.Scheduler, err = rewards.NewScheduler(logger.With("component", "rewards"), func(at time.Time) {
		n := api.InvalidateRewards(h.Cache)
		logger.Info("invalidated reward caches", "at", at, "keys", n)
	})
	if err != nil {
		return nil, fmt.Errorf("creating snapshot scheduler: %w", err)
	}

	h.routes()
	return h, nil
}

func (h *Hub) storageFactory(client redis.UniversalClient) (storage.Factory, error) {
	switch h.cfg.Storage.Driver {
	case config.DriverRedis:
		if client == nil {
			client = redis.NewClient(&redis.Options{Addr: h.cfg.Storage.RedisAddr})
			h.owned = true
		}
		h.redis = client
		return storage.NewRedisFactory(storage.NewRedis(client, "jobhub:", h.cfg.Storage.RedisTTL)), nil
	case config.DriverNoop:
		return storage.NoopFactory{}, nil
	case config.DriverMemory, "":
		return storage.NewMemoryFactory(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", h.cfg.Storage.Driver)
}

// limiterKey identifies an endpoint-test client by its session, falling back
// to the remote address.
func limiterKey(r *http.Request) string {
	if s := session.FromContext(r.Context()); s != nil {
		return s.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Hub) routes() {
	r := h.Router
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hubcore.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	deps := admin.Deps{
		State:       hubState{h},
		Cache:       h.Cache,
		Sessions:    h.Sessions,
		Maintenance: h.Gate,
		Middleware:  h.Middleware(),
		Token:       h.cfg.AdminToken,
	}
	if h.cfg.SimulatedClock {
		deps.Clock = h.Clock
	}
	admin.NewHandler(deps).Routes(r)

	h.apiRoutes(r)
}

// Run starts the background jobs and serves until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.Config.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.Config.Addr, err)
	}
	return h.RunListener(ctx, ln)
}

// RunListener is Run on an existing listener.
func (h *Hub) RunListener(ctx context.Context, ln net.Listener) error {
	defer h.Close()

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			ln.Close()
			return fmt.Errorf("connecting to redis: %w", err)
		}
	}

	h.Scheduler.Start()
	h.Logger.Info("hub ready",
		"api", h.cfg.API.BaseURL,
		"storage", h.cfg.Storage.Driver,
		"maintenance", h.Gate.Enabled(),
		"next_snapshot", h.Scheduler.Next(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Sessions.Run(ctx, sessionSweepInterval)
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(limiterSweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-t.C:
				h.Limiter.Sweep(now)
			}
		}
	})
	g.Go(func() error {
		return h.ServeListener(ctx, ln)
	})
	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := h.Scheduler.Stop(stopCtx); serr != nil {
		h.Logger.Warn("snapshot job still running at shutdown", "err", serr)
	}
	return err
}

// Close releases the cache timers and an owned redis client.
func (h *Hub) Close() {
	h.Cache.Close()
	if h.owned && h.redis != nil {
		if err := h.redis.Close(); err != nil {
			h.Logger.Warn("closing redis", "err", err)
		}
	}
}

// hubState is the service state as seen by the admin control plane.
type hubState struct{ h *Hub }

func (s hubState) Snapshot(ctx context.Context) any {
	return map[string]any{
		"sessions":        s.h.Sessions.List(ctx),
		"cache":           s.h.Cache.Snapshot(),
		"maintenance":     s.h.Gate.Enabled(),
		"rateLimited":     s.h.Limiter.Len(),
		"rewards":         rewards.StatusAt(s.h.Clock.Now()),
		"nextSnapshotJob": s.h.Scheduler.Next(),
	}
}

func (s hubState) Reset(ctx context.Context) {
	s.h.Sessions.Reset(ctx)
	s.h.Cache.Reset()
}

var _ admin.StateStore = hubState{}
