// Package testutil drives a running hub from tests: a cookie-keeping
// client (one client is one browser session), an /admin client and
// response assertions.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// HubClient sends requests as one browser session: cookies set by the hub
// are replayed on later requests.
type HubClient struct {
	BaseURL    string
	HTTPClient *http.Client
	t          testing.TB
}

// NewHubClient returns a client for an httptest server with a fresh jar.
func NewHubClient(t testing.TB, server *httptest.Server) *HubClient {
	// server.Client() is shared; each HubClient needs its own jar.
	hc := &http.Client{Transport: server.Client().Transport, Jar: newJar(t)}
	return &HubClient{BaseURL: server.URL, HTTPClient: hc, t: t}
}

// NewHubClientURL returns a client for a hub listening at baseURL.
func NewHubClientURL(t testing.TB, baseURL string) *HubClient {
	return &HubClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Jar: newJar(t)},
		t:          t,
	}
}

func newJar(t testing.TB) http.CookieJar {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return jar
}

// Cookie returns the value of the named cookie the hub has set, or "".
func (c *HubClient) Cookie(name string) string {
	u, err := url.Parse(c.BaseURL)
	require.NoError(c.t, err)
	for _, ck := range c.HTTPClient.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *HubClient) Get(path string) *Response {
	c.t.Helper()
	return c.send(http.MethodGet, path, nil, nil)
}

func (c *HubClient) Post(path string, body any) *Response {
	c.t.Helper()
	return c.send(http.MethodPost, path, body, nil)
}

func (c *HubClient) Put(path string, body any) *Response {
	c.t.Helper()
	return c.send(http.MethodPut, path, body, nil)
}

func (c *HubClient) Patch(path string, body any) *Response {
	c.t.Helper()
	return c.send(http.MethodPatch, path, body, nil)
}

func (c *HubClient) Delete(path string) *Response {
	c.t.Helper()
	return c.send(http.MethodDelete, path, nil, nil)
}

// DoWithHeaders sends a request with extra headers. A string or []byte
// body is sent verbatim; anything else is JSON-encoded.
func (c *HubClient) DoWithHeaders(method, path string, body any, headers map[string]string) *Response {
	c.t.Helper()
	return c.send(method, path, body, headers)
}

func (c *HubClient) send(method, path string, body any, headers map[string]string) *Response {
	c.t.Helper()

	var payload io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		payload = strings.NewReader(b)
	case []byte:
		payload = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(c.t, err, "encoding request body")
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, payload)
	require.NoError(c.t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	require.NoError(c.t, err, "%s %s", method, path)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err, "reading response of %s %s", method, path)

	return &Response{StatusCode: resp.StatusCode, Body: data, Headers: resp.Header, t: c.t}
}

// Response is a fully read hub response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	t          testing.TB
}

// JSON decodes the body into v, failing the test on malformed JSON.
func (r *Response) JSON(v any) {
	r.t.Helper()
	require.NoError(r.t, json.Unmarshal(r.Body, v), "body: %s", r.Body)
}

func (r *Response) JSONMap() map[string]any {
	r.t.Helper()
	var m map[string]any
	r.JSON(&m)
	return m
}

// Path looks up a gjson path in the body, e.g. "draft.name" or "jobs.#".
func (r *Response) Path(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// ErrorMessage returns error.message of the hub's error envelope.
func (r *Response) ErrorMessage() string {
	return r.Path("error.message").String()
}

func (r *Response) AssertStatus(expected int) *Response {
	r.t.Helper()
	assert.Equal(r.t, expected, r.StatusCode, "body: %s", r.Body)
	return r
}

func (r *Response) AssertBodyContains(substr string) *Response {
	r.t.Helper()
	assert.Contains(r.t, string(r.Body), substr)
	return r
}

// AdminClient calls the /admin control plane, sending token as a bearer
// token when set.
type AdminClient struct {
	*HubClient
	token string
}

func NewAdminClient(hc *HubClient, token string) *AdminClient {
	return &AdminClient{HubClient: hc, token: token}
}

func (ac *AdminClient) call(method, path string, body any) *Response {
	ac.t.Helper()
	var headers map[string]string
	if ac.token != "" {
		headers = map[string]string{"Authorization": "Bearer " + ac.token}
	}
	return ac.send(method, path, body, headers)
}

func (ac *AdminClient) Reset() *Response {
	ac.t.Helper()
	return ac.call(http.MethodPost, "/admin/reset", nil)
}

func (ac *AdminClient) GetState() *Response {
	ac.t.Helper()
	return ac.call(http.MethodGet, "/admin/state", nil)
}

// Invalidate marks every cache key under the prefixes stale.
func (ac *AdminClient) Invalidate(prefixes ...string) *Response {
	ac.t.Helper()
	return ac.call(http.MethodPost, "/admin/cache/invalidate", map[string][]string{"prefixes": prefixes})
}

func (ac *AdminClient) Sessions() *Response {
	ac.t.Helper()
	return ac.call(http.MethodGet, "/admin/sessions", nil)
}

func (ac *AdminClient) SetMaintenance(enabled bool) *Response {
	ac.t.Helper()
	return ac.call(http.MethodPut, "/admin/maintenance", map[string]bool{"enabled": enabled})
}

// AdvanceTime moves the simulated clock, e.g. AdvanceTime("24h").
func (ac *AdminClient) AdvanceTime(duration string) *Response {
	ac.t.Helper()
	return ac.call(http.MethodPost, "/admin/time/advance", map[string]string{"duration": duration})
}

// Health calls the unauthenticated /admin/health.
func (ac *AdminClient) Health() *Response {
	ac.t.Helper()
	return ac.Get("/admin/health")
}
