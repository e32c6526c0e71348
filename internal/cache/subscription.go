package cache

import (
	"context"
	"sync"
	"time"
)

// Subscription keeps one key fresh while it is open: it loads on open,
// polls every RefreshInterval, refetches when the key is invalidated and
// revalidates on Focus. Close stops all of it.
type Subscription struct {
	c        *Cache
	key      string
	fetch    Fetcher
	opts     Options
	onChange func(State)

	trigger chan struct{}
	focus   chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	closed bool
	// calls counts onChange calls in progress.
	calls int
	once  sync.Once
}

// Subscribe opens a subscription on key. onChange receives every state
// change of the key until Close; it may be nil. onChange runs without
// locks held and may close its own subscription.
func (c *Cache) Subscribe(key string, fetch Fetcher, opts Options, onChange func(State)) *Subscription {
	ctx, cancel := context.WithCancel(c.ctx)
	s := &Subscription{
		c:        c,
		key:      key,
		fetch:    fetch,
		opts:     opts,
		onChange: onChange,
		trigger:  make(chan struct{}, 1),
		focus:    make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	c.entryLocked(key).subs[s] = struct{}{}
	c.mu.Unlock()

	go s.run(ctx)
	return s
}

// Key returns the subscribed key.
func (s *Subscription) Key() string { return s.key }

// State returns the key's current state.
func (s *Subscription) State() State { return s.c.Peek(s.key) }

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)

	if _, hit, _ := s.c.get(ctx, s.key, s.fetch, s.opts); hit {
		s.emit(s.c.Peek(s.key))
	}

	var tick <-chan time.Time
	if s.opts.RefreshInterval > 0 {
		t := time.NewTicker(s.opts.RefreshInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.c.revalidate(ctx, s.key, s.fetch, s.opts)
		case <-s.trigger:
			s.c.revalidate(ctx, s.key, s.fetch, s.opts)
		case <-s.focus:
			s.c.get(ctx, s.key, s.fetch, s.opts)
		}
	}
}

// poke queues a signal without blocking; one pending signal is enough.
func (s *Subscription) poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Subscription) emit(st State) {
	s.mu.Lock()
	if s.closed || s.onChange == nil {
		s.mu.Unlock()
		return
	}
	s.calls++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.calls--
		s.mu.Unlock()
	}()
	s.onChange(st)
}

// Close stops polling and revalidation. No onChange call starts after
// Close returns. Unless a callback is running, which may be the caller,
// Close also waits for the subscription's goroutine to exit.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		inCallback := s.calls > 0
		s.mu.Unlock()

		s.cancel()
		if !inCallback {
			<-s.done
		}

		s.c.mu.Lock()
		if e, ok := s.c.entries[s.key]; ok {
			delete(e.subs, s)
		}
		s.c.mu.Unlock()
	})
}
