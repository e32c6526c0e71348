package wizard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobhub-dev/jobhub/internal/api"
	"github.com/jobhub-dev/jobhub/internal/draft"
	"github.com/jobhub-dev/jobhub/internal/modal"
	"github.com/jobhub-dev/jobhub/pkg/storage"
)

type fakeCreator struct {
	got []api.ResourceInput
	err error
}

func (f *fakeCreator) CreateResource(_ context.Context, in api.ResourceInput) (api.Resource, error) {
	f.got = append(f.got, in)
	if f.err != nil {
		return api.Resource{}, f.err
	}
	return api.Resource{ID: "res_1", Slug: in.Slug, Name: in.Name, Type: in.Type}, nil
}

func newFlow(t *testing.T) (*Flow, *draft.Store, *modal.Store, *fakeCreator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	drafts := draft.New(storage.NewMemory(), draft.WithLogger(logger))
	modals := modal.NewStore()
	creator := &fakeCreator{}
	return New(drafts, modals, creator, logger), drafts, modals, creator
}

func completeLink() draft.Patch {
	return draft.Patch{
		Type:       draft.TypeOf(draft.TypeLink),
		Name:       draft.String("Weather"),
		Slug:       draft.String("weather-api"),
		Price:      draft.String("0.01"),
		LinkConfig: map[string]any{"url": "https://api.example.com/weather"},
	}
}

func TestValidate(t *testing.T) {
	err := Validate(draft.WizardDraft{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "type")
	assert.Contains(t, ve.Fields, "name")
	assert.Contains(t, ve.Fields, "slug")

	d := draft.WizardDraft{
		Type:       draft.TypeLink,
		Name:       "x",
		Slug:       "Bad Slug",
		Price:      "-1",
		ImageURL:   "ftp://img",
		LinkConfig: map[string]any{"url": "http://plain.example.com"},
	}
	require.ErrorAs(t, Validate(d), &ve)
	assert.Equal(t, []string{"imageUrl", "linkConfig.url", "price", "slug"}, sortedKeys(ve.Fields))

	d = draft.WizardDraft{Type: draft.TypeClaude, Name: "Claude", Slug: "claude", ClaudeConfig: map[string]any{"model": "sonnet"}}
	assert.NoError(t, Validate(d))

	d.ClaudeConfig = nil
	require.ErrorAs(t, Validate(d), &ve)
	assert.Contains(t, ve.Fields, "claudeConfig.model")
}

func sortedKeys(m map[string]string) []string {
	var out []string
	for _, k := range []string{"imageUrl", "linkConfig.url", "name", "price", "slug", "type"} {
		if _, ok := m[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func TestInputUsesConfigForType(t *testing.T) {
	in := Input(draft.WizardDraft{
		Type:        draft.TypeProxy,
		Name:        " Proxy ",
		Slug:        "proxy",
		LinkConfig:  map[string]any{"url": "https://stale"},
		ProxyConfig: map[string]any{"url": "https://live"},
	})
	assert.Equal(t, "proxy", in.Type)
	assert.Equal(t, "Proxy", in.Name)
	assert.Equal(t, "https://live", in.Config["url"])
}

func TestSubmitSuccess(t *testing.T) {
	flow, drafts, modals, creator := newFlow(t)
	ctx := context.Background()

	calls := 0
	_, resumed := flow.Begin(ctx, func() { calls++ })
	assert.False(t, resumed)
	assert.True(t, modals.State().IsOpen(modal.RegisterResource))

	_, err := flow.Update(ctx, completeLink())
	require.NoError(t, err)

	res, err := flow.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "weather-api", res.Slug)
	require.Len(t, creator.got, 1)
	assert.Equal(t, "https://api.example.com/weather", creator.got[0].Config["url"])

	_, ok := drafts.Get(ctx)
	assert.False(t, ok, "draft cleared")
	assert.False(t, modals.State().IsOpen(modal.RegisterResource))
	assert.Equal(t, 1, calls)
}

func TestSubmitFailureKeepsDraftAndOverlay(t *testing.T) {
	flow, drafts, modals, creator := newFlow(t)
	ctx := context.Background()
	creator.err = &api.APIError{StatusCode: 409, Message: "slug taken"}

	calls := 0
	flow.Begin(ctx, func() { calls++ })
	flow.Update(ctx, completeLink())

	_, err := flow.Submit(ctx)
	assert.Equal(t, 409, api.StatusCode(err))

	_, ok := drafts.Get(ctx)
	assert.True(t, ok)
	assert.True(t, modals.State().IsOpen(modal.RegisterResource))
	assert.Equal(t, 0, calls)
}

func TestSubmitWithoutDraftOrInvalid(t *testing.T) {
	flow, _, _, creator := newFlow(t)
	ctx := context.Background()

	_, err := flow.Submit(ctx)
	assert.ErrorIs(t, err, ErrNoDraft)

	flow.Update(ctx, draft.Patch{Type: draft.TypeOf(draft.TypeLink)})
	_, err = flow.Submit(ctx)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Empty(t, creator.got, "nothing is sent for an invalid draft")
}

func TestUpdateRejectsUnknownType(t *testing.T) {
	flow, drafts, _, _ := newFlow(t)
	ctx := context.Background()

	_, err := flow.Update(ctx, draft.Patch{Type: draft.TypeOf("graphql")})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	_, ok := drafts.Get(ctx)
	assert.False(t, ok)
}

func TestBeginResumesDraft(t *testing.T) {
	flow, drafts, _, _ := newFlow(t)
	ctx := context.Background()
	drafts.Save(ctx, draft.Patch{Name: draft.String("half done")})

	d, ok := flow.Begin(ctx, nil)
	require.True(t, ok)
	assert.Equal(t, "half done", d.Name)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("type only closes without asking", func(t *testing.T) {
		flow, drafts, modals, _ := newFlow(t)
		flow.Begin(ctx, nil)
		flow.Update(ctx, draft.Patch{Type: draft.TypeOf(draft.TypeClaude)})

		asked := false
		assert.True(t, flow.Cancel(ctx, func() bool { asked = true; return false }))
		assert.False(t, asked)
		_, ok := drafts.Get(ctx)
		assert.False(t, ok)
		assert.False(t, modals.State().IsOpen(modal.RegisterResource))
	})

	t.Run("unsaved input asks and can be kept", func(t *testing.T) {
		flow, drafts, modals, _ := newFlow(t)
		flow.Begin(ctx, nil)
		flow.Update(ctx, draft.Patch{Name: draft.String("mine")})

		assert.False(t, flow.Cancel(ctx, func() bool { return false }))
		_, ok := drafts.Get(ctx)
		assert.True(t, ok)
		assert.True(t, modals.State().IsOpen(modal.RegisterResource))

		assert.True(t, flow.Cancel(ctx, func() bool { return true }))
		_, ok = drafts.Get(ctx)
		assert.False(t, ok)
	})
}
