package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ---------------------------------------------------------------------------
// Helper: a server that issues a session cookie and echoes requests
// ---------------------------------------------------------------------------

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("hub_session")
		if err != nil {
			http.SetCookie(w, &http.Cookie{Name: "hub_session", Value: "sess_1", Path: "/"})
			json.NewEncoder(w).Encode(map[string]string{"session": "new"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"session": c.Value})
	})

	mux.HandleFunc("PUT /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		body["id"] = r.PathValue("id")
		json.NewEncoder(w).Encode(body)
	})

	mux.HandleFunc("POST /raw", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(w, r.Body)
	})

	mux.HandleFunc("DELETE /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"no such thing","type":"not_found","code":404}}`))
	})

	mux.HandleFunc("GET /admin/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /admin/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"sessions": 1})
	})

	mux.HandleFunc("POST /admin/cache/invalidate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]int{"count": len(body["prefixes"])})
	})

	return httptest.NewServer(mux)
}

// ---------------------------------------------------------------------------
// HubClient
// ---------------------------------------------------------------------------

func TestHubClientKeepsSessionCookie(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewHubClient(t, srv)

	if got := c.Get("/session").AssertStatus(http.StatusOK).JSONMap()["session"]; got != "new" {
		t.Fatalf("expected new session, got %v", got)
	}
	if got := c.Get("/session").Path("session").String(); got != "sess_1" {
		t.Errorf("expected cookie to be sent back, got %v", got)
	}
	if got := c.Cookie("hub_session"); got != "sess_1" {
		t.Errorf("expected jar to hold the session cookie, got %q", got)
	}
}

func TestHubClientURLHasOwnJar(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	a := NewHubClientURL(t, srv.URL+"/")
	a.Get("/session")
	b := NewHubClientURL(t, srv.URL)
	if got := b.Get("/session").JSONMap()["session"]; got != "new" {
		t.Errorf("clients must not share cookies, got %v", got)
	}
}

func TestHubClientPutAndDelete(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewHubClient(t, srv)

	m := c.Put("/items/7", map[string]string{"name": "x"}).AssertStatus(http.StatusOK).JSONMap()
	if m["id"] != "7" || m["name"] != "x" {
		t.Errorf("unexpected body %v", m)
	}
	c.Delete("/items/7").AssertStatus(http.StatusNoContent)
}

func TestResponseErrorMessage(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewHubClient(t, srv)

	resp := c.Get("/missing").AssertStatus(http.StatusNotFound).AssertBodyContains("not_found")
	if got := resp.ErrorMessage(); got != "no such thing" {
		t.Errorf("expected error message, got %q", got)
	}
}

func TestRawBodySentVerbatim(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewHubClient(t, srv)

	resp := c.Post("/raw", `{"broken"`)
	if string(resp.Body) != `{"broken"` {
		t.Errorf("expected raw body echoed, got %s", resp.Body)
	}
	resp = c.Post("/raw", map[string]int{"n": 2})
	if resp.Path("n").Int() != 2 {
		t.Errorf("expected JSON-encoded body, got %s", resp.Body)
	}
}

// ---------------------------------------------------------------------------
// AdminClient
// ---------------------------------------------------------------------------

func TestAdminClientSendsToken(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	hc := NewHubClient(t, srv)

	NewAdminClient(hc, "").GetState().AssertStatus(http.StatusUnauthorized)
	admin := NewAdminClient(hc, "tok")
	admin.GetState().AssertStatus(http.StatusOK)
	admin.Health().AssertStatus(http.StatusOK).AssertBodyContains("ok")

	var out map[string]int
	admin.Invalidate("/jobs", "/wallet").JSON(&out)
	if out["count"] != 2 {
		t.Errorf("expected both prefixes sent, got %v", out)
	}
}
