// Package flags holds per-session persisted booleans: dismissed banners and
// the maintenance-mode bypass.
package flags

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/jobhub-dev/jobhub/pkg/storage"
)

const (
	bannerPrefix = "banner:"
	// MaintenanceBypassKey is set once the session has entered the unlock code.
	MaintenanceBypassKey = "maintenance-bypass"
)

// Flags reads and writes booleans on a storage backend. Storage failures
// are logged and read as false.
type Flags struct {
	backend storage.Backend
	logger  *slog.Logger
}

// New creates Flags over backend.
func New(backend storage.Backend, logger *slog.Logger) *Flags {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flags{backend: backend, logger: logger}
}

// Get returns the flag stored under key.
func (f *Flags) Get(ctx context.Context, key string) bool {
	v, ok, err := f.backend.Get(ctx, key)
	if err != nil {
		f.logger.Warn("reading flag", "key", key, "err", err)
		return false
	}
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		f.logger.Warn("corrupted flag", "key", key, "value", v)
		return false
	}
	return b
}

// Set stores the flag under key. Clearing a flag removes it.
func (f *Flags) Set(ctx context.Context, key string, v bool) {
	var err error
	if v {
		err = f.backend.Set(ctx, key, "true")
	} else {
		err = f.backend.Remove(ctx, key)
	}
	if err != nil {
		f.logger.Warn("writing flag", "key", key, "err", err)
	}
}

// BannerDismissed reports whether the named banner was dismissed.
func (f *Flags) BannerDismissed(ctx context.Context, name string) bool {
	return f.Get(ctx, bannerPrefix+name)
}

// DismissBanner records whether the named banner is dismissed.
func (f *Flags) DismissBanner(ctx context.Context, name string, dismissed bool) {
	f.Set(ctx, bannerPrefix+name, dismissed)
}

// MaintenanceBypassed reports whether the session may skip the maintenance page.
func (f *Flags) MaintenanceBypassed(ctx context.Context) bool {
	return f.Get(ctx, MaintenanceBypassKey)
}

// SetMaintenanceBypass sets or clears the bypass.
func (f *Flags) SetMaintenanceBypass(ctx context.Context, v bool) {
	f.Set(ctx, MaintenanceBypassKey, v)
}

// View is the flag set returned to the UI.
type View struct {
	Banners           map[string]bool `json:"banners"`
	MaintenanceBypass bool            `json:"maintenanceBypass"`
}

// Snapshot reads the given banners and the bypass flag.
func (f *Flags) Snapshot(ctx context.Context, banners []string) View {
	v := View{Banners: make(map[string]bool, len(banners))}
	for _, b := range banners {
		v.Banners[b] = f.BannerDismissed(ctx, b)
	}
	v.MaintenanceBypass = f.MaintenanceBypassed(ctx)
	return v
}
