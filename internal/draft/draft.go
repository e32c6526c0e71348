// Package draft persists the in-progress resource creation wizard for the
// lifetime of one browser session.
package draft

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jobhub-dev/jobhub/pkg/storage"
)

// StorageKey is the single session-storage key holding the serialized draft.
const StorageKey = "resource-wizard-draft"

// ResourceType is the kind of resource being registered.
type ResourceType string

const (
	TypeLink       ResourceType = "link"
	TypeProxy      ResourceType = "proxy"
	TypeClaude     ResourceType = "claude"
	TypeOpenRouter ResourceType = "openrouter"
)

// Valid reports whether t is one of the known resource types.
func (t ResourceType) Valid() bool {
	switch t {
	case TypeLink, TypeProxy, TypeClaude, TypeOpenRouter:
		return true
	}
	return false
}

// WizardDraft is a partially filled resource definition.
type WizardDraft struct {
	Type             ResourceType   `json:"type,omitempty"`
	Name             string         `json:"name,omitempty"`
	Description      string         `json:"description,omitempty"`
	Slug             string         `json:"slug,omitempty"`
	// Config maps survive storage even when empty; an empty map is content.
	LinkConfig       map[string]any `json:"linkConfig,omitzero"`
	ProxyConfig      map[string]any `json:"proxyConfig,omitzero"`
	ClaudeConfig     map[string]any `json:"claudeConfig,omitzero"`
	OpenRouterConfig map[string]any `json:"openrouterConfig,omitzero"`
	ImageURL         string         `json:"imageUrl,omitempty"`
	Category         string         `json:"category,omitempty"`
	Price            string         `json:"price,omitempty"`
	Network          string         `json:"network,omitempty"`
	UpdatedAt        string         `json:"updatedAt,omitempty"`
}

// Patch is a partial update. Nil fields are left untouched by Save; a non-nil
// pointer to "" clears the field.
type Patch struct {
	Type             *ResourceType  `json:"type,omitempty"`
	Name             *string        `json:"name,omitempty"`
	Description      *string        `json:"description,omitempty"`
	Slug             *string        `json:"slug,omitempty"`
	LinkConfig       map[string]any `json:"linkConfig,omitempty"`
	ProxyConfig      map[string]any `json:"proxyConfig,omitempty"`
	ClaudeConfig     map[string]any `json:"claudeConfig,omitempty"`
	OpenRouterConfig map[string]any `json:"openrouterConfig,omitempty"`
	ImageURL         *string        `json:"imageUrl,omitempty"`
	Category         *string        `json:"category,omitempty"`
	Price            *string        `json:"price,omitempty"`
	Network          *string        `json:"network,omitempty"`
}

// apply shallow-merges p onto d.
func (p Patch) apply(d *WizardDraft) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	setString(&d.Name, p.Name)
	setString(&d.Description, p.Description)
	setString(&d.Slug, p.Slug)
	setString(&d.ImageURL, p.ImageURL)
	setString(&d.Category, p.Category)
	setString(&d.Price, p.Price)
	setString(&d.Network, p.Network)
	if p.LinkConfig != nil {
		d.LinkConfig = p.LinkConfig
	}
	if p.ProxyConfig != nil {
		d.ProxyConfig = p.ProxyConfig
	}
	if p.ClaudeConfig != nil {
		d.ClaudeConfig = p.ClaudeConfig
	}
	if p.OpenRouterConfig != nil {
		d.OpenRouterConfig = p.OpenRouterConfig
	}
}

// Clock supplies the time written to UpdatedAt.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store reads and writes the wizard draft. None of its methods return
// storage errors: failures are logged and the draft is treated as absent.
type Store struct {
	backend storage.Backend
	clock   Clock
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger storage failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a draft store over backend. Pass storage.Noop{} where no
// client storage exists.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		clock:   systemClock{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the stored draft, or ok=false if none is stored or it cannot be read.
func (s *Store) Get(ctx context.Context) (*WizardDraft, bool) {
	raw, ok, err := s.backend.Get(ctx, StorageKey)
	if err != nil {
		s.logger.Warn("reading wizard draft", "err", err)
		return nil, false
	}
	if !ok || raw == "" {
		return nil, false
	}
	var d WizardDraft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		s.logger.Warn("decoding wizard draft", "err", err)
		return nil, false
	}
	return &d, true
}

// Save merges p onto the stored draft (or an empty one), stamps UpdatedAt
// and persists the result. The merged draft is returned even when the
// write fails.
func (s *Store) Save(ctx context.Context, p Patch) WizardDraft {
	var d WizardDraft
	if existing, ok := s.Get(ctx); ok {
		d = *existing
	}
	p.apply(&d)
	d.UpdatedAt = s.clock.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(d)
	if err != nil {
		s.logger.Warn("encoding wizard draft", "err", err)
		return d
	}
	if err := s.backend.Set(ctx, StorageKey, string(data)); err != nil {
		s.logger.Warn("writing wizard draft", "err", err)
	}
	return d
}

// Clear removes the stored draft.
func (s *Store) Clear(ctx context.Context) {
	if err := s.backend.Remove(ctx, StorageKey); err != nil {
		s.logger.Warn("clearing wizard draft", "err", err)
	}
}

// HasUnsavedChanges reports whether a draft holds anything beyond its type
// and timestamp. A draft with only a selected type can be discarded silently.
func (s *Store) HasUnsavedChanges(ctx context.Context) bool {
	d, ok := s.Get(ctx)
	if !ok {
		return false
	}
	return d.hasContent()
}

func (d *WizardDraft) hasContent() bool {
	for _, v := range []string{d.Name, d.Description, d.Slug, d.ImageURL, d.Category, d.Price, d.Network} {
		if v != "" {
			return true
		}
	}
	for _, m := range []map[string]any{d.LinkConfig, d.ProxyConfig, d.ClaudeConfig, d.OpenRouterConfig} {
		if m != nil {
			return true
		}
	}
	return false
}

// String returns a pointer to v, for building patches.
func String(v string) *string { return &v }

// TypeOf returns a pointer to t, for building patches.
func TypeOf(t ResourceType) *ResourceType { return &t }
