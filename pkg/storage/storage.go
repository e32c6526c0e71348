// Package storage defines the key/value backend that session- and
// preference-scoped state is persisted through. The backend is chosen once at
// startup; components never check for the execution context themselves.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jobhub-dev/jobhub/pkg/store"
)

// ErrUnavailable is returned by backends that cannot serve a request at all.
var ErrUnavailable = errors.New("storage unavailable")

// Backend is a string key/value store. Get reports ok=false for absent keys.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Memory keeps values in process memory.
type Memory struct {
	items *store.Store[string]
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{items: store.New[string]("kv")}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.items.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.items.Set(key, value)
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Keys lists the stored keys in insertion order.
func (m *Memory) Keys() []string {
	return m.items.Keys()
}

// Noop is the backend for contexts without client storage: reads are always
// absent and writes are discarded.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (Noop) Set(context.Context, string, string) error         { return nil }
func (Noop) Remove(context.Context, string) error              { return nil }

// Redis stores values under a key prefix with a sliding TTL, so a namespace
// disappears once its owner stops writing to it.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis wraps a redis client. A zero ttl stores keys without expiry.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Namespace returns a backend sharing the client with an extended prefix.
func (r *Redis) Namespace(name string) *Redis {
	return &Redis{client: r.client, prefix: r.prefix + name + ":", ttl: r.ttl}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Factory hands out one backend per named scope (typically a session id).
type Factory interface {
	For(scope string) Backend
	Release(ctx context.Context, scope string)
}

// MemoryFactory gives every scope its own Memory backend.
type MemoryFactory struct {
	scopes *store.Store[*Memory]
}

// NewMemoryFactory creates a factory of in-memory backends.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{scopes: store.New[*Memory]("scope")}
}

func (f *MemoryFactory) For(scope string) Backend {
	m, _ := f.scopes.LoadOrCreate(scope, NewMemory)
	return m
}

func (f *MemoryFactory) Release(_ context.Context, scope string) {
	f.scopes.Delete(scope)
}

// RedisFactory namespaces one redis client per scope.
type RedisFactory struct {
	root *Redis
}

// NewRedisFactory creates a factory over the given root namespace.
func NewRedisFactory(root *Redis) *RedisFactory {
	return &RedisFactory{root: root}
}

func (f *RedisFactory) For(scope string) Backend {
	return f.root.Namespace(scope)
}

// Release is a no-op: scoped keys expire through their TTL.
func (f *RedisFactory) Release(context.Context, string) {}

// NoopFactory hands out Noop backends.
type NoopFactory struct{}

func (NoopFactory) For(string) Backend               { return Noop{} }
func (NoopFactory) Release(context.Context, string) {}
