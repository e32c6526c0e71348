// Package wizard drives the multi-step resource registration flow: it keeps
// the draft between steps, owns the register-resource overlay, and submits
// the finished draft to the marketplace.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jobhub-dev/jobhub/internal/api"
	"github.com/jobhub-dev/jobhub/internal/draft"
	"github.com/jobhub-dev/jobhub/internal/modal"
)

// ErrNoDraft is returned by Submit when there is nothing to submit.
var ErrNoDraft = errors.New("no resource draft in progress")

// ResourceCreator registers resources. *api.Hooks implements it.
type ResourceCreator interface {
	CreateResource(ctx context.Context, in api.ResourceInput) (api.Resource, error)
}

// ValidationError lists the fields a draft is missing or has wrong.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid resource: " + strings.Join(parts, "; ")
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validate checks that d is complete enough to submit.
func Validate(d draft.WizardDraft) error {
	fields := map[string]string{}
	if d.Type == "" {
		fields["type"] = "choose a resource type"
	} else if !d.Type.Valid() {
		fields["type"] = fmt.Sprintf("unknown type %q", d.Type)
	}
	if strings.TrimSpace(d.Name) == "" {
		fields["name"] = "required"
	}
	switch {
	case d.Slug == "":
		fields["slug"] = "required"
	case len(d.Slug) > 64:
		fields["slug"] = "must be at most 64 characters"
	case !slugPattern.MatchString(d.Slug):
		fields["slug"] = "use lowercase letters, digits and single hyphens"
	}
	if d.Price != "" {
		if p, err := strconv.ParseFloat(d.Price, 64); err != nil || p < 0 {
			fields["price"] = "must be a non-negative number"
		}
	}
	if d.ImageURL != "" && !isURL(d.ImageURL, "http", "https") {
		fields["imageUrl"] = "must be an http(s) URL"
	}

	switch d.Type {
	case draft.TypeLink:
		requireURL(fields, "linkConfig.url", d.LinkConfig)
	case draft.TypeProxy:
		requireURL(fields, "proxyConfig.url", d.ProxyConfig)
	case draft.TypeClaude:
		requireString(fields, "claudeConfig.model", d.ClaudeConfig, "model")
	case draft.TypeOpenRouter:
		requireString(fields, "openrouterConfig.model", d.OpenRouterConfig, "model")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func requireString(fields map[string]string, name string, cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	if strings.TrimSpace(s) == "" {
		fields[name] = "required"
	}
	return s
}

func requireURL(fields map[string]string, name string, cfg map[string]any) {
	if s := requireString(fields, name, cfg, "url"); s != "" && !isURL(s, "https") {
		fields[name] = "must be an HTTPS URL"
	}
}

func isURL(s string, schemes ...string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	for _, sc := range schemes {
		if strings.EqualFold(u.Scheme, sc) {
			return true
		}
	}
	return false
}

// Input converts a validated draft into the API request.
func Input(d draft.WizardDraft) api.ResourceInput {
	in := api.ResourceInput{
		Type:        string(d.Type),
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Slug:        d.Slug,
		ImageURL:    d.ImageURL,
		Category:    d.Category,
		Price:       d.Price,
		Network:     d.Network,
	}
	switch d.Type {
	case draft.TypeLink:
		in.Config = d.LinkConfig
	case draft.TypeProxy:
		in.Config = d.ProxyConfig
	case draft.TypeClaude:
		in.Config = d.ClaudeConfig
	case draft.TypeOpenRouter:
		in.Config = d.OpenRouterConfig
	}
	return in
}

// Flow is one session's registration wizard.
type Flow struct {
	drafts  *draft.Store
	modals  *modal.Store
	creator ResourceCreator
	logger  *slog.Logger
}

// New creates a Flow.
func New(drafts *draft.Store, modals *modal.Store, creator ResourceCreator, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{drafts: drafts, modals: modals, creator: creator, logger: logger}
}

// Begin opens the register-resource overlay. onSuccess, if set, runs once
// after a successful Submit. A draft left from an earlier visit is returned
// so the wizard can resume it.
func (f *Flow) Begin(ctx context.Context, onSuccess func()) (*draft.WizardDraft, bool) {
	f.modals.Open(modal.RegisterResource, &modal.Payload{OnSuccess: onSuccess})
	return f.drafts.Get(ctx)
}

// Update merges p into the draft. An invalid type is rejected before
// anything is written.
func (f *Flow) Update(ctx context.Context, p draft.Patch) (draft.WizardDraft, error) {
	if p.Type != nil && !p.Type.Valid() {
		return draft.WizardDraft{}, &ValidationError{Fields: map[string]string{"type": fmt.Sprintf("unknown type %q", *p.Type)}}
	}
	return f.drafts.Save(ctx, p), nil
}

// Submit validates the draft and registers it. On success the draft is
// cleared and the overlay resolves, running its callback. On failure both
// stay so the user can correct and retry.
func (f *Flow) Submit(ctx context.Context) (api.Resource, error) {
	d, ok := f.drafts.Get(ctx)
	if !ok {
		return api.Resource{}, ErrNoDraft
	}
	if err := Validate(*d); err != nil {
		return api.Resource{}, err
	}
	res, err := f.creator.CreateResource(ctx, Input(*d))
	if err != nil {
		f.logger.Info("resource registration failed", "slug", d.Slug, "err", err)
		return api.Resource{}, err
	}
	f.drafts.Clear(ctx)
	f.modals.Resolve(modal.RegisterResource, nil)
	f.logger.Info("resource registered", "id", res.ID, "slug", res.Slug)
	return res, nil
}

// Cancel leaves the wizard. When the draft holds real input, confirm is
// asked first and a false answer keeps everything as is. It reports
// whether the wizard was closed.
func (f *Flow) Cancel(ctx context.Context, confirm func() bool) bool {
	if f.drafts.HasUnsavedChanges(ctx) && (confirm == nil || !confirm()) {
		return false
	}
	f.drafts.Clear(ctx)
	f.modals.Close(modal.RegisterResource)
	return true
}
