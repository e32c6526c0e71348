// Package client provides an HTTP client for the hub's /admin/* endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jobhub-dev/jobhub/internal/cache"
	"github.com/jobhub-dev/jobhub/internal/session"
)

// AdminClient talks to a running hub's /admin/* endpoints.
type AdminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates an AdminClient with a 5-second timeout.
func New(baseURL, token string) *AdminClient {
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *AdminClient) Health(ctx context.Context) (bool, string) {
	body, err := c.do(ctx, http.MethodGet, "/admin/health", nil)
	if err != nil {
		return false, err.Error()
	}
	return true, strings.TrimSpace(string(body))
}

// State returns the raw GET /admin/state document.
func (c *AdminClient) State(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/admin/state", nil)
}

// Reset calls POST /admin/reset.
func (c *AdminClient) Reset(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/admin/reset", nil)
	return err
}

// Cache lists the service's cache entries.
func (c *AdminClient) Cache(ctx context.Context) ([]cache.EntryInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/admin/cache", nil)
	if err != nil {
		return nil, err
	}
	var out []cache.EntryInfo
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding cache entries: %w", err)
	}
	return out, nil
}

// Invalidate marks every cache key under the given prefixes stale and
// returns how many entries were affected.
func (c *AdminClient) Invalidate(ctx context.Context, prefixes ...string) (int, error) {
	body, err := c.do(ctx, http.MethodPost, "/admin/cache/invalidate", map[string][]string{"prefixes": prefixes})
	if err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(body, "count").Int()), nil
}

// Sessions lists live sessions.
func (c *AdminClient) Sessions(ctx context.Context) ([]session.Info, error) {
	body, err := c.do(ctx, http.MethodGet, "/admin/sessions", nil)
	if err != nil {
		return nil, err
	}
	var out []session.Info
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding sessions: %w", err)
	}
	return out, nil
}

// EndSession ends one session.
func (c *AdminClient) EndSession(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/admin/sessions/"+id, nil)
	return err
}

// SetMaintenance turns the maintenance gate on or off.
func (c *AdminClient) SetMaintenance(ctx context.Context, enabled bool) error {
	_, err := c.do(ctx, http.MethodPut, "/admin/maintenance", map[string]bool{"enabled": enabled})
	return err
}

func (c *AdminClient) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	return data, nil
}
