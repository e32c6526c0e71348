package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jobhub-dev/jobhub/internal/cache"
	"github.com/jobhub-dev/jobhub/internal/session"
	"github.com/jobhub-dev/jobhub/pkg/hubcore"
	"github.com/jobhub-dev/jobhub/pkg/store"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockState struct {
	resetCalled bool
}

func (m *mockState) Snapshot(context.Context) any {
	return map[string]string{"key": "value"}
}

func (m *mockState) Reset(context.Context) {
	m.resetCalled = true
}

type mockSessions struct {
	ended []string
}

func (m *mockSessions) List(context.Context) []session.Info {
	return []session.Info{{ID: "sess_1"}}
}

func (m *mockSessions) End(_ context.Context, id string) bool {
	if id != "sess_1" {
		return false
	}
	m.ended = append(m.ended, id)
	return true
}

type mockSwitch struct{ on bool }

func (m *mockSwitch) Enabled() bool     { return m.on }
func (m *mockSwitch) SetEnabled(v bool) { m.on = v }

// ---------------------------------------------------------------------------
// Helper to create a test server
// ---------------------------------------------------------------------------

func setupTestServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	if d.Middleware == nil {
		d.Middleware = hubcore.NewMiddleware(&hubcore.Config{Name: "test-admin"}, nil)
	}
	r := chi.NewRouter()
	NewHandler(d).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHandleHealth(t *testing.T) {
	srv := setupTestServer(t, Deps{})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/admin/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %+v", body)
	}
}

func TestHandleReset(t *testing.T) {
	state := &mockState{}
	clk := store.NewClock()
	clk.Advance(time.Hour)

	srv := setupTestServer(t, Deps{State: state, Clock: clk})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/admin/reset", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !state.resetCalled {
		t.Error("expected state Reset to be called")
	}
	if clk.Offset() != 0 {
		t.Errorf("expected clock offset to be reset, got %v", clk.Offset())
	}
}

func TestHandleGetState(t *testing.T) {
	srv := setupTestServer(t, Deps{State: &mockState{}})

	_, body := doJSON(t, http.MethodGet, srv.URL+"/admin/state", "")
	if body["key"] != "value" {
		t.Errorf("expected key=value, got %+v", body)
	}
}

func TestTokenRequired(t *testing.T) {
	srv := setupTestServer(t, Deps{State: &mockState{}, Token: "s3cret"})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/admin/state", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/state", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	ok, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", ok.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/admin/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health must stay open, got %d", resp.StatusCode)
	}
}

func TestCacheEndpoints(t *testing.T) {
	c := cache.New()
	defer c.Close()
	for _, k := range []string{"/jobs", "/jobs/view/job_1", "/wallet?userId=u"} {
		c.Mutate(k, true)
	}
	srv := setupTestServer(t, Deps{Cache: c})

	resp, err := http.Get(srv.URL + "/admin/cache")
	if err != nil {
		t.Fatal(err)
	}
	var entries []cache.EntryInfo
	json.NewDecoder(resp.Body).Decode(&entries)
	resp.Body.Close()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	_, body := doJSON(t, http.MethodPost, srv.URL+"/admin/cache/invalidate", `{"keys":["/wallet?userId=u"],"prefixes":["/jobs"]}`)
	if body["count"] != float64(3) {
		t.Errorf("expected 3 invalidated, got %+v", body)
	}
	for _, e := range c.Snapshot() {
		if !e.Stale {
			t.Errorf("%s should be stale", e.Key)
		}
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/admin/cache/invalidate", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty request, got %d", resp.StatusCode)
	}
}

func TestSessionEndpoints(t *testing.T) {
	s := &mockSessions{}
	srv := setupTestServer(t, Deps{Sessions: s})

	resp, err := http.Get(srv.URL + "/admin/sessions")
	if err != nil {
		t.Fatal(err)
	}
	var list []session.Info
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 1 || list[0].ID != "sess_1" {
		t.Errorf("unexpected list %+v", list)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/admin/sessions/sess_1", "")
	if resp.StatusCode != http.StatusOK || len(s.ended) != 1 {
		t.Errorf("expected session ended, status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/admin/sessions/sess_2", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMaintenanceSwitch(t *testing.T) {
	sw := &mockSwitch{}
	srv := setupTestServer(t, Deps{Maintenance: sw})

	_, body := doJSON(t, http.MethodPut, srv.URL+"/admin/maintenance", `{"enabled":true}`)
	if !sw.on || body["enabled"] != true {
		t.Errorf("expected maintenance on, got %+v", body)
	}
	_, body = doJSON(t, http.MethodGet, srv.URL+"/admin/maintenance", "")
	if body["enabled"] != true {
		t.Errorf("expected enabled=true, got %+v", body)
	}
}

func TestHandleTimeAdvance(t *testing.T) {
	clk := store.NewClock()
	srv := setupTestServer(t, Deps{Clock: clk})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/admin/time/advance", `{"duration":"24h"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["offset"] != "24h0m0s" {
		t.Errorf("expected offset 24h0m0s, got %v", body["offset"])
	}
	if clk.Offset() != 24*time.Hour {
		t.Errorf("expected clock offset 24h, got %v", clk.Offset())
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/admin/time/advance", `{"duration":"soon"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestTimeWithoutClock(t *testing.T) {
	srv := setupTestServer(t, Deps{})

	_, body := doJSON(t, http.MethodGet, srv.URL+"/admin/time", "")
	if _, ok := body["simulated"]; ok {
		t.Errorf("expected no simulated time, got %+v", body)
	}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/admin/time/advance", `{"duration":"1h"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleGetRequests(t *testing.T) {
	mw := hubcore.NewMiddleware(&hubcore.Config{Name: "test"}, nil)
	mw.ReqLog.Add(hubcore.RequestLogEntry{Method: "GET", Path: "/api/jobs"})
	srv := setupTestServer(t, Deps{Middleware: mw})

	resp, err := http.Get(srv.URL + "/admin/requests")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var entries []hubcore.RequestLogEntry
	json.NewDecoder(resp.Body).Decode(&entries)
	if len(entries) != 1 || entries[0].Path != "/api/jobs" {
		t.Errorf("unexpected entries %+v", entries)
	}
}
