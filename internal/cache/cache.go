// Package cache is a stale-while-revalidate fetch cache keyed by request
// path. Identical keys share one in-flight request and one cached result;
// mutations invalidate keys by name or by predicate, which forces mounted
// subscriptions to refetch.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jobhub-dev/jobhub/internal/metrics"
)

// Fetcher loads the value for one key. It receives the cache's lifetime
// context, not the caller's, because its result is shared.
type Fetcher func(ctx context.Context) (any, error)

// Options tune one read. Zero values disable the corresponding behaviour.
type Options struct {
	// RevalidateOnFocus refetches when Focus is called.
	RevalidateOnFocus bool
	// DedupingInterval is how long a successful result is served without a
	// new request.
	DedupingInterval time.Duration
	// RefreshInterval polls in the background while a subscription is open.
	RefreshInterval time.Duration
	// ShouldRetryOnError retries failed fetches with exponential backoff.
	ShouldRetryOnError bool
	ErrorRetryCount    int
	ErrorRetryInterval time.Duration
}

// DefaultOptions mirrors the defaults the web client uses.
func DefaultOptions() Options {
	return Options{
		RevalidateOnFocus:  true,
		DedupingInterval:   2 * time.Second,
		ShouldRetryOnError: true,
		ErrorRetryCount:    3,
		ErrorRetryInterval: 5 * time.Second,
	}
}

const maxRetryDelay = 30 * time.Second

// State is what a reader of one key observes.
type State struct {
	Data         any       `json:"data,omitempty"`
	Err          error     `json:"-"`
	IsLoading    bool      `json:"isLoading"`
	IsValidating bool      `json:"isValidating"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// Clock supplies the time used for dedupe windows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type entry struct {
	data      any
	hasData   bool
	err       error
	fetchedAt time.Time
	gen       uint64
	stale     bool
	inflight  int
	subs      map[*Subscription]struct{}
}

func (e *entry) fresh(now time.Time, window time.Duration) bool {
	return e.hasData && e.err == nil && !e.stale && now.Sub(e.fetchedAt) < window
}

func (e *entry) state() State {
	return State{
		Data:         e.data,
		Err:          e.err,
		IsLoading:    e.inflight > 0 && !e.hasData,
		IsValidating: e.inflight > 0,
		UpdatedAt:    e.fetchedAt,
	}
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	group   singleflight.Group
	clock   Clock
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for dedupe windows.
func WithClock(c Clock) Option {
	return func(ca *Cache) { ca.clock = c }
}

// WithLogger sets the logger for fetch failures.
func WithLogger(l *slog.Logger) Option {
	return func(ca *Cache) { ca.logger = l }
}

// New creates an empty cache. Close it to stop background work.
func New(opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries: make(map[string]*entry),
		clock:   systemClock{},
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close cancels in-flight fetches and stops every subscription.
func (c *Cache) Close() {
	c.mu.Lock()
	var subs []*Subscription
	for _, e := range c.entries {
		for s := range e.subs {
			subs = append(subs, s)
		}
	}
	c.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	c.cancel()
}

func (c *Cache) entryLocked(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		c.gen++
		e = &entry{gen: c.gen, subs: make(map[*Subscription]struct{})}
		c.entries[key] = e
	}
	return e
}

// Get returns the cached value for key if it is within the dedupe window,
// otherwise fetches it, joining any request already in flight for the key.
func (c *Cache) Get(ctx context.Context, key string, fetch Fetcher, opts Options) (any, error) {
	v, _, err := c.get(ctx, key, fetch, opts)
	return v, err
}

func (c *Cache) get(ctx context.Context, key string, fetch Fetcher, opts Options) (any, bool, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if e.fresh(c.clock.Now(), opts.DedupingInterval) {
		data := e.data
		c.mu.Unlock()
		metrics.RecordCacheEvent("hit")
		return data, true, nil
	}
	c.mu.Unlock()
	v, err := c.revalidate(ctx, key, fetch, opts)
	return v, false, err
}

// Revalidate fetches key regardless of the dedupe window. Concurrent
// callers of the same generation still share one request.
func (c *Cache) Revalidate(ctx context.Context, key string, fetch Fetcher, opts Options) (any, error) {
	return c.revalidate(ctx, key, fetch, opts)
}

func (c *Cache) revalidate(ctx context.Context, key string, fetch Fetcher, opts Options) (any, error) {
	c.mu.Lock()
	gen := c.entryLocked(key).gen
	c.mu.Unlock()

	ch := c.group.DoChan(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		c.begin(key, gen)
		v, err := c.fetchWithRetry(key, fetch, opts)
		c.store(key, gen, v, err)
		return v, err
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCacheEvent("shared")
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) fetchWithRetry(key string, fetch Fetcher, opts Options) (any, error) {
	delay := opts.ErrorRetryInterval
	for attempt := 0; ; attempt++ {
		metrics.RecordCacheEvent("fetch")
		v, err := fetch(c.ctx)
		if err == nil {
			return v, nil
		}
		if !opts.ShouldRetryOnError || attempt >= opts.ErrorRetryCount || c.ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return v, err
		}
		c.logger.Debug("retrying fetch", "key", key, "attempt", attempt+1, "delay", delay, "err", err)
		metrics.RecordCacheEvent("retry")
		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return v, err
		case <-timer.C:
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func (c *Cache) begin(key string, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	e.inflight++
	subs, st := subsOf(e), e.state()
	c.mu.Unlock()
	emit(subs, st)
}

// store records a finished fetch. Results from a superseded generation are
// dropped so an invalidated response never overwrites newer state.
func (c *Cache) store(key string, gen uint64, v any, err error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		metrics.RecordCacheEvent("discarded")
		return
	}
	e.inflight--
	if err == nil {
		e.data, e.hasData, e.err, e.stale = v, true, nil, false
	} else {
		// stale data stays visible next to the error
		e.err = err
		c.logger.Warn("fetch failed", "key", key, "err", err)
	}
	e.fetchedAt = c.clock.Now()
	subs, st := subsOf(e), e.state()
	c.mu.Unlock()
	emit(subs, st)
}

// Peek returns the current state for key without fetching.
func (c *Cache) Peek(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State{}
	}
	return e.state()
}

// Mutate writes data for key locally, superseding any in-flight request.
func (c *Cache) Mutate(key string, data any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.gen++
	e.gen = c.gen
	e.data, e.hasData, e.err, e.stale = data, true, nil, false
	e.inflight = 0
	e.fetchedAt = c.clock.Now()
	subs, st := subsOf(e), e.state()
	c.mu.Unlock()
	emit(subs, st)
}

// Invalidate marks keys stale. The next read refetches, and every open
// subscription on them refetches immediately. It returns how many cached
// keys were affected.
func (c *Cache) Invalidate(keys ...string) int {
	c.mu.Lock()
	var subs []*Subscription
	n := 0
	for _, key := range keys {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		c.gen++
		e.gen = c.gen
		e.stale = true
		e.inflight = 0
		subs = append(subs, subsOf(e)...)
		n++
	}
	c.mu.Unlock()

	for i := 0; i < n; i++ {
		metrics.RecordCacheEvent("invalidated")
	}
	for _, s := range subs {
		s.poke(s.trigger)
	}
	return n
}

// InvalidateFunc invalidates every cached key the predicate matches.
func (c *Cache) InvalidateFunc(match func(key string) bool) int {
	var keys []string
	for _, k := range c.Keys() {
		if match(k) {
			keys = append(keys, k)
		}
	}
	return c.Invalidate(keys...)
}

// Focus signals that the client regained focus. Subscriptions opted into
// RevalidateOnFocus revalidate, subject to their dedupe window.
func (c *Cache) Focus() {
	c.mu.Lock()
	var subs []*Subscription
	for _, e := range c.entries {
		for s := range e.subs {
			if s.opts.RevalidateOnFocus {
				subs = append(subs, s)
			}
		}
	}
	c.mu.Unlock()
	for _, s := range subs {
		s.poke(s.focus)
	}
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EntryInfo describes one key for inspection.
type EntryInfo struct {
	Key         string    `json:"key"`
	HasData     bool      `json:"hasData"`
	Stale       bool      `json:"stale"`
	Validating  bool      `json:"validating"`
	Subscribers int       `json:"subscribers"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Snapshot describes every key, sorted by key.
func (c *Cache) Snapshot() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EntryInfo, 0, len(c.entries))
	for k, e := range c.entries {
		info := EntryInfo{
			Key:         k,
			HasData:     e.hasData,
			Stale:       e.stale,
			Validating:  e.inflight > 0,
			Subscribers: len(e.subs),
			UpdatedAt:   e.fetchedAt,
		}
		if e.err != nil {
			info.Error = e.err.Error()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Reset drops every entry that has no subscribers and invalidates the rest.
func (c *Cache) Reset() {
	c.mu.Lock()
	var keep []string
	for k, e := range c.entries {
		if len(e.subs) == 0 {
			delete(c.entries, k)
		} else {
			keep = append(keep, k)
		}
	}
	c.mu.Unlock()
	c.Invalidate(keep...)
}

// Fetch is the typed form of Get.
func Fetch[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error), opts Options) (T, error) {
	var zero T
	v, err := c.Get(ctx, key, func(ctx context.Context) (any, error) { return fetch(ctx) }, opts)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache key %s holds %T, want %T", key, v, zero)
	}
	return t, nil
}

func subsOf(e *entry) []*Subscription {
	out := make([]*Subscription, 0, len(e.subs))
	for s := range e.subs {
		out = append(out, s)
	}
	return out
}

func emit(subs []*Subscription, st State) {
	for _, s := range subs {
		s.emit(st)
	}
}
