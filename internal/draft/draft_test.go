package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobhub-dev/jobhub/pkg/storage"
	"github.com/jobhub-dev/jobhub/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenBackend fails every operation.
type brokenBackend struct{}

var errBroken = errors.New("quota exceeded")

func (brokenBackend) Get(context.Context, string) (string, bool, error) { return "", false, errBroken }
func (brokenBackend) Set(context.Context, string, string) error         { return errBroken }
func (brokenBackend) Remove(context.Context, string) error              { return errBroken }

func newTestStore(t *testing.T) (*Store, *storage.Memory, *store.Clock) {
	t.Helper()
	mem := storage.NewMemory()
	clock := store.NewFixedClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(mem, WithClock(clock)), mem, clock
}

func TestGetWithoutSaveIsAbsent(t *testing.T) {
	s, _, _ := newTestStore(t)
	d, ok := s.Get(context.Background())
	assert.False(t, ok)
	assert.Nil(t, d)
}

func TestSaveMergesInCallOrder(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	s.Save(ctx, Patch{Type: TypeOf(TypeLink)})
	clock.Advance(time.Minute)
	s.Save(ctx, Patch{Name: String("Weather"), Slug: String("weather")})
	clock.Advance(time.Minute)
	s.Save(ctx, Patch{
		Name:       String("Weather API"),
		LinkConfig: map[string]any{"url": "https://api.example.com"},
	})

	d, ok := s.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, TypeLink, d.Type)
	assert.Equal(t, "Weather API", d.Name)
	assert.Equal(t, "weather", d.Slug)
	assert.Equal(t, "https://api.example.com", d.LinkConfig["url"])
	assert.Equal(t, "2025-03-01T12:02:00Z", d.UpdatedAt)
}

func TestSaveExplicitEmptyStringOverwrites(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	s.Save(ctx, Patch{Name: String("first")})
	s.Save(ctx, Patch{Name: String("")})

	d, ok := s.Get(ctx)
	require.True(t, ok)
	assert.Empty(t, d.Name)
}

func TestHasUnsavedChanges(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	assert.False(t, s.HasUnsavedChanges(ctx), "no draft")

	s.Save(ctx, Patch{Type: TypeOf(TypeLink)})
	assert.False(t, s.HasUnsavedChanges(ctx), "type only is discardable")

	s.Save(ctx, Patch{Description: String("forecast data")})
	assert.True(t, s.HasUnsavedChanges(ctx))

	s.Clear(ctx)
	assert.False(t, s.HasUnsavedChanges(ctx), "after clear")
	_, ok := s.Get(ctx)
	assert.False(t, ok)
}

func TestHasUnsavedChangesCountsConfigBlobs(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	s.Save(ctx, Patch{Type: TypeOf(TypeClaude), ClaudeConfig: map[string]any{"model": "sonnet"}})
	assert.True(t, s.HasUnsavedChanges(ctx))
}

func TestHasUnsavedChangesCountsEmptyConfigBlob(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	s.Save(ctx, Patch{Type: TypeOf(TypeLink)})
	require.False(t, s.HasUnsavedChanges(ctx))

	s.Save(ctx, Patch{LinkConfig: map[string]any{}})
	d, ok := s.Get(ctx)
	require.True(t, ok)
	assert.NotNil(t, d.LinkConfig, "empty config survives storage")
	assert.True(t, s.HasUnsavedChanges(ctx))
}

func TestCorruptedDraftIsAbsent(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newTestStore(t)
	require.NoError(t, mem.Set(ctx, StorageKey, "{not json"))

	d, ok := s.Get(ctx)
	assert.False(t, ok)
	assert.Nil(t, d)
	assert.False(t, s.HasUnsavedChanges(ctx))

	// Saving over a corrupted value starts from an empty draft.
	saved := s.Save(ctx, Patch{Name: String("fresh")})
	assert.Equal(t, "fresh", saved.Name)
	d, ok = s.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "fresh", d.Name)
}

func TestBrokenBackendNeverFails(t *testing.T) {
	ctx := context.Background()
	s := New(brokenBackend{})

	assert.NotPanics(t, func() {
		_, ok := s.Get(ctx)
		assert.False(t, ok)
		d := s.Save(ctx, Patch{Name: String("x")})
		assert.Equal(t, "x", d.Name)
		s.Clear(ctx)
		assert.False(t, s.HasUnsavedChanges(ctx))
	})
}

func TestNoopBackendIsAlwaysEmpty(t *testing.T) {
	ctx := context.Background()
	s := New(storage.Noop{})

	s.Save(ctx, Patch{Name: String("ignored")})
	_, ok := s.Get(ctx)
	assert.False(t, ok)
	assert.False(t, s.HasUnsavedChanges(ctx))
}

func TestResourceTypeValid(t *testing.T) {
	for _, rt := range []ResourceType{TypeLink, TypeProxy, TypeClaude, TypeOpenRouter} {
		assert.True(t, rt.Valid(), rt)
	}
	assert.False(t, ResourceType("").Valid())
	assert.False(t, ResourceType("graphql").Valid())
}
