package flags

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jobhub-dev/jobhub/pkg/storage"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("quota exceeded")
}
func (failingBackend) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (failingBackend) Remove(context.Context, string) error      { return errors.New("quota exceeded") }

func TestBanners(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	f := New(mem, quiet())

	assert.False(t, f.BannerDismissed(ctx, "beta"))
	f.DismissBanner(ctx, "beta", true)
	assert.True(t, f.BannerDismissed(ctx, "beta"))
	assert.Equal(t, []string{"banner:beta"}, mem.Keys())

	f.DismissBanner(ctx, "beta", false)
	assert.False(t, f.BannerDismissed(ctx, "beta"))
	assert.Empty(t, mem.Keys())
}

func TestCorruptedAndFailingStorageReadFalse(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	mem.Set(ctx, MaintenanceBypassKey, "yes please")
	assert.False(t, New(mem, quiet()).MaintenanceBypassed(ctx))

	f := New(failingBackend{}, quiet())
	f.SetMaintenanceBypass(ctx, true)
	assert.False(t, f.MaintenanceBypassed(ctx))
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	f := New(storage.NewMemory(), quiet())
	f.DismissBanner(ctx, "rewards", true)
	f.SetMaintenanceBypass(ctx, true)

	v := f.Snapshot(ctx, []string{"rewards", "beta"})
	assert.Equal(t, map[string]bool{"rewards": true, "beta": false}, v.Banners)
	assert.True(t, v.MaintenanceBypass)
}

// ---------------------------------------------------------------------------
// Maintenance gate
// ---------------------------------------------------------------------------

func TestGate(t *testing.T) {
	f := New(storage.NewMemory(), quiet())
	g := NewGate(true, "open-sesame", func(*http.Request) *Flags { return f }, "/health", "/api/maintenance")

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/api/maintenance/unlock", g.UnlockHandler)
	h := g.Middleware(mux)

	do := func(method, path, body string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, do("GET", "/api/jobs", ""))
	assert.Equal(t, http.StatusOK, do("GET", "/health", ""))

	assert.Equal(t, http.StatusForbidden, do("POST", "/api/maintenance/unlock", `{"code":"guess"}`))
	assert.Equal(t, http.StatusServiceUnavailable, do("GET", "/api/jobs", ""))

	assert.Equal(t, http.StatusOK, do("POST", "/api/maintenance/unlock", `{"code":" open-sesame "}`))
	assert.Equal(t, http.StatusOK, do("GET", "/api/jobs", ""))

	g.SetEnabled(false)
	f.SetMaintenanceBypass(context.Background(), false)
	assert.Equal(t, http.StatusOK, do("GET", "/api/jobs", ""))
}

func TestGateWithoutCodeNeverUnlocks(t *testing.T) {
	f := New(storage.NewMemory(), quiet())
	g := NewGate(true, "", func(*http.Request) *Flags { return f })

	assert.False(t, g.Unlock(httptest.NewRequest("POST", "/", nil), ""))
	assert.False(t, f.MaintenanceBypassed(context.Background()))
}
