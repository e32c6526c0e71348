package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jobhub-dev/jobhub/internal/cache"
)

// Cache keys. They mirror the API paths so invalidation can match on prefix.
const (
	KeyJobs         = "/jobs"
	KeyMyJobs       = "/jobs/mine"
	KeyJobPrefix    = "/jobs/view/"
	KeyResources    = "/resources"
	KeyMyResource   = "/resources/mine/"
	KeyServers      = "/servers"
	KeyWallet       = "/wallet"
	KeyStats        = "/stats"
	KeyRewardsStats = "/rewards/stats"
	KeyRewardClaims = "/rewards/claims"
	KeyRewards      = "/rewards"
)

// WalletRefreshInterval is how often an open wallet view polls its balance.
const WalletRefreshInterval = 30 * time.Second

// Hooks are the read and write operations the UI performs against the API.
// Reads go through the shared cache; writes invalidate every key whose data
// they may have changed.
type Hooks struct {
	client *Client
	cache  *cache.Cache
	logger *slog.Logger
	userID string
	// scope tags user-scoped cache keys. It derives from the whole token,
	// not the unverified subject, so a forged token never hits another
	// user's entries.
	scope string
	// noRetry makes failed reads return at once instead of backing off.
	noRetry bool
}

// HooksOption customizes NewHooks.
type HooksOption func(*Hooks)

// WithoutRetry disables retrying failed reads. A server answering on
// behalf of a browser uses it so the browser's own retry policy applies.
func WithoutRetry() HooksOption {
	return func(h *Hooks) { h.noRetry = true }
}

// NewHooks creates anonymous Hooks over client and c.
func NewHooks(client *Client, c *cache.Cache, logger *slog.Logger, opts ...HooksOption) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hooks{client: client, cache: c, logger: logger}
	for _, o := range opts {
		o(h)
	}
	return h
}

// WithToken returns Hooks acting for the holder of token, given bare or
// with its "Bearer " scheme. They share the cache with h; user-scoped keys
// carry a digest of the token so sessions never see each other's data.
func (h *Hooks) WithToken(token string) (*Hooks, error) {
	token = bareToken(token)
	userID, err := UserIDFromToken(token)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(token))
	return &Hooks{
		client:  h.client.WithToken(token),
		cache:   h.cache,
		logger:  h.logger,
		userID:  userID,
		scope:   hex.EncodeToString(sum[:16]),
		noRetry: h.noRetry,
	}, nil
}

// UserID returns the authenticated user's id, or "" when anonymous.
func (h *Hooks) UserID() string { return h.userID }

// Cache returns the cache the hooks read through.
func (h *Hooks) Cache() *cache.Cache { return h.cache }

func fetchJSON[T any](h *Hooks, path string) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var out T
		err := h.client.Get(ctx, path, &out)
		return out, err
	}
}

// userKey is the cache key of a user-scoped read of path.
func (h *Hooks) userKey(path string) string {
	return path + "?scope=" + h.scope
}

// userPath is path with the user id query the backend expects.
func (h *Hooks) userPath(path string) string {
	return path + "?userId=" + url.QueryEscape(h.userID)
}

func (h *Hooks) requireUser() error {
	if h.userID == "" {
		return &APIError{StatusCode: 401, Message: "sign in required"}
	}
	return nil
}

func (h *Hooks) options(o cache.Options) cache.Options {
	if h.noRetry {
		o.ShouldRetryOnError = false
	}
	return o
}

// referenceOptions serve data that rarely changes; focus does not refetch.
func referenceOptions() cache.Options {
	o := cache.DefaultOptions()
	o.RevalidateOnFocus = false
	o.DedupingInterval = time.Minute
	return o
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Jobs lists public jobs.
func (h *Hooks) Jobs(ctx context.Context) ([]Job, error) {
	return cache.Fetch(ctx, h.cache, KeyJobs, fetchJSON[[]Job](h, "/jobs"), h.options(cache.DefaultOptions()))
}

// MyJobs lists the signed-in user's jobs.
func (h *Hooks) MyJobs(ctx context.Context) ([]Job, error) {
	if err := h.requireUser(); err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, h.cache, h.userKey(KeyMyJobs), fetchJSON[[]Job](h, "/jobs/mine"), h.options(cache.DefaultOptions()))
}

// Job returns one job. Signed in, the backend may answer with private
// fields, so the entry is kept apart from the anonymous one.
func (h *Hooks) Job(ctx context.Context, id string) (Job, error) {
	path := KeyJobPrefix + url.PathEscape(id)
	key := path
	if h.scope != "" {
		key = h.userKey(path)
	}
	return cache.Fetch(ctx, h.cache, key, fetchJSON[Job](h, path), h.options(cache.DefaultOptions()))
}

// Resources lists public resources.
func (h *Hooks) Resources(ctx context.Context) ([]Resource, error) {
	return cache.Fetch(ctx, h.cache, KeyResources, fetchJSON[[]Resource](h, "/resources"), h.options(cache.DefaultOptions()))
}

// Resource returns one resource by slug.
func (h *Hooks) Resource(ctx context.Context, slug string) (Resource, error) {
	path := KeyResources + "/" + url.PathEscape(slug)
	return cache.Fetch(ctx, h.cache, path, fetchJSON[Resource](h, path), h.options(cache.DefaultOptions()))
}

// MyResource returns a resource the user owns. A 403 or 404 is final, so
// errors are not retried.
func (h *Hooks) MyResource(ctx context.Context, id string) (Resource, error) {
	if err := h.requireUser(); err != nil {
		return Resource{}, err
	}
	path := KeyMyResource + url.PathEscape(id)
	opts := cache.DefaultOptions()
	opts.ShouldRetryOnError = false
	return cache.Fetch(ctx, h.cache, h.userKey(path), fetchJSON[Resource](h, path), opts)
}

// Servers lists servers.
func (h *Hooks) Servers(ctx context.Context) ([]Server, error) {
	return cache.Fetch(ctx, h.cache, KeyServers, fetchJSON[[]Server](h, "/servers"), h.options(referenceOptions()))
}

// Server returns one server.
func (h *Hooks) Server(ctx context.Context, id string) (Server, error) {
	path := KeyServers + "/" + url.PathEscape(id)
	return cache.Fetch(ctx, h.cache, path, fetchJSON[Server](h, path), h.options(referenceOptions()))
}

func (h *Hooks) walletKey() string { return h.userKey(KeyWallet) }

func (h *Hooks) walletFetcher() cache.Fetcher {
	fetch := fetchJSON[Wallet](h, h.userPath(KeyWallet))
	return func(ctx context.Context) (any, error) { return fetch(ctx) }
}

func walletOptions() cache.Options {
	o := cache.DefaultOptions()
	o.RefreshInterval = WalletRefreshInterval
	return o
}

// Wallet returns the signed-in user's wallet.
func (h *Hooks) Wallet(ctx context.Context) (Wallet, error) {
	if err := h.requireUser(); err != nil {
		return Wallet{}, err
	}
	return cache.Fetch(ctx, h.cache, h.walletKey(), fetchJSON[Wallet](h, h.userPath(KeyWallet)), h.options(walletOptions()))
}

// WatchWallet keeps the wallet fresh, polling every WalletRefreshInterval,
// until the returned subscription is closed.
func (h *Hooks) WatchWallet(onChange func(cache.State)) (*cache.Subscription, error) {
	if err := h.requireUser(); err != nil {
		return nil, err
	}
	return h.cache.Subscribe(h.walletKey(), h.walletFetcher(), h.options(walletOptions()), onChange), nil
}

// Stats returns platform totals.
func (h *Hooks) Stats(ctx context.Context) (Stats, error) {
	return cache.Fetch(ctx, h.cache, KeyStats, fetchJSON[Stats](h, KeyStats), h.options(referenceOptions()))
}

// RewardsStats returns the reward pool summary.
func (h *Hooks) RewardsStats(ctx context.Context) (RewardsStats, error) {
	return cache.Fetch(ctx, h.cache, KeyRewardsStats, fetchJSON[RewardsStats](h, KeyRewardsStats), h.options(cache.DefaultOptions()))
}

// RewardClaims lists the signed-in user's reward claims.
func (h *Hooks) RewardClaims(ctx context.Context) ([]RewardClaim, error) {
	if err := h.requireUser(); err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, h.cache, h.userKey(KeyRewardClaims), fetchJSON[[]RewardClaim](h, h.userPath(KeyRewardClaims)), h.options(cache.DefaultOptions()))
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// hasPrefix matches key and anything below it, including query strings.
func hasPrefix(prefix string) func(string) bool {
	return func(key string) bool {
		return key == prefix || strings.HasPrefix(key, prefix+"/") || strings.HasPrefix(key, prefix+"?")
	}
}

func (h *Hooks) invalidate(match ...func(string) bool) {
	n := h.cache.InvalidateFunc(func(key string) bool {
		for _, m := range match {
			if m(key) {
				return true
			}
		}
		return false
	})
	h.logger.Debug("invalidated cache keys", "count", n)
}

// SaveJob creates or updates a job, then invalidates the job list, the
// user's jobs and the job's detail.
func (h *Hooks) SaveJob(ctx context.Context, in JobInput) (Job, error) {
	if err := h.requireUser(); err != nil {
		return Job{}, err
	}
	var out Job
	var err error
	if in.ID == "" {
		err = h.client.Post(ctx, "/jobs", in, &out)
	} else {
		err = h.client.Put(ctx, "/jobs/"+url.PathEscape(in.ID), in, &out)
	}
	if err != nil {
		return Job{}, fmt.Errorf("saving job: %w", err)
	}
	h.invalidateJob(out.ID)
	return out, nil
}

// DeleteJob removes a job and invalidates the same keys as SaveJob.
func (h *Hooks) DeleteJob(ctx context.Context, id string) error {
	if err := h.requireUser(); err != nil {
		return err
	}
	if err := h.client.Delete(ctx, "/jobs/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	h.invalidateJob(id)
	return nil
}

func (h *Hooks) invalidateJob(id string) {
	detail := KeyJobPrefix + url.PathEscape(id)
	h.invalidate(
		func(k string) bool { return k == KeyJobs },
		hasPrefix(KeyMyJobs),
		func(k string) bool { return id != "" && hasPrefix(detail)(k) },
	)
}

// CreateResource registers a resource, then invalidates resource and
// server listings.
func (h *Hooks) CreateResource(ctx context.Context, in ResourceInput) (Resource, error) {
	if err := h.requireUser(); err != nil {
		return Resource{}, err
	}
	var out Resource
	if err := h.client.Post(ctx, "/resources", in, &out); err != nil {
		return Resource{}, fmt.Errorf("creating resource: %w", err)
	}
	h.invalidate(hasPrefix(KeyResources), hasPrefix(KeyServers), hasPrefix(KeyStats))
	return out, nil
}

// ClaimReward claims one reward, then invalidates reward and wallet keys.
func (h *Hooks) ClaimReward(ctx context.Context, claimID string) (RewardClaim, error) {
	if err := h.requireUser(); err != nil {
		return RewardClaim{}, err
	}
	var out RewardClaim
	if err := h.client.Post(ctx, "/rewards/claims/"+url.PathEscape(claimID)+"/claim", nil, &out); err != nil {
		return RewardClaim{}, fmt.Errorf("claiming reward: %w", err)
	}
	InvalidateRewards(h.cache)
	return out, nil
}

// InvalidateRewards marks every reward and wallet key stale.
func InvalidateRewards(c *cache.Cache) int {
	rewards, wallet := hasPrefix(KeyRewards), hasPrefix(KeyWallet)
	return c.InvalidateFunc(func(k string) bool { return rewards(k) || wallet(k) })
}
