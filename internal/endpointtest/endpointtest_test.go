package endpointtest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tlsTarget(t *testing.T, h http.HandlerFunc) (*httptest.Server, *Tester) {
	t.Helper()
	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)
	return srv, New(WithHTTPClient(srv.Client()), WithLogger(quietLogger()))
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/test-endpoint", strings.NewReader(body)))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestNonHTTPSIsRejectedWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer plain.Close()

	tester := New(WithLogger(quietLogger()))
	for _, u := range []string{"http://example.com", plain.URL} {
		rec, out := post(t, tester.Handler(), `{"url":"`+u+`","method":"GET"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, out["success"])
		assert.Contains(t, out["error"], "HTTPS")
	}
	assert.EqualValues(t, 0, hits.Load())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing url", Request{}, "url"},
		{"no host", Request{URL: "https://"}, "url"},
		{"garbage", Request{URL: "::not a url"}, "url"},
		{"ftp", Request{URL: "ftp://example.com"}, "url"},
		{"bad method", Request{URL: "https://example.com", Method: "TRACE"}, "method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	req := Request{URL: " https://example.com/x ", Method: "post"}
	require.NoError(t, Validate(&req))
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://example.com/x", req.URL)

	req = Request{URL: "https://example.com"}
	require.NoError(t, Validate(&req))
	assert.Equal(t, "GET", req.Method)
}

func TestMalformedJSONIs400(t *testing.T) {
	rec, out := post(t, New().Handler(), `{"url":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

func TestSuccessfulJSONResponseIsPrettyPrinted(t *testing.T) {
	srv, tester := tlsTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Echo", r.Header.Get("X-Api-Key"))
		w.Write([]byte(`{"a":1}`))
	})

	rec, out := post(t, tester.Handler(), `{"url":"`+srv.URL+`","method":"GET","headers":{"X-Api-Key":"k1"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.EqualValues(t, 200, out["statusCode"])
	assert.Equal(t, "OK", out["statusText"])
	assert.Equal(t, "{\n  \"a\": 1\n}", out["body"])
	assert.Equal(t, "k1", out["headers"].(map[string]any)["x-echo"])
	assert.Contains(t, out, "responseTime")
}

func TestDownstreamErrorStatusIsStill200(t *testing.T) {
	srv, tester := tlsTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	rec, out := post(t, tester.Handler(), `{"url":"`+srv.URL+`","method":"GET"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 500, out["statusCode"])
	assert.Equal(t, "boom", out["body"])
}

func TestBodyIsForwarded(t *testing.T) {
	srv, tester := tlsTarget(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Content-Type", r.Header.Get("Content-Type"))
		w.Write(b)
	})
	ctx := context.Background()

	res, err := tester.Run(ctx, Request{URL: srv.URL, Method: "POST", Body: json.RawMessage(`"plain text"`)})
	require.NoError(t, err)
	assert.Equal(t, "plain text", res.Body)
	assert.Empty(t, res.Headers["x-content-type"])

	res, err = tester.Run(ctx, Request{URL: srv.URL, Method: "POST", Body: json.RawMessage(`{"q":"hi"}`)})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"q\": \"hi\"\n}", res.Body)
	assert.Equal(t, "application/json", res.Headers["x-content-type"])
}

func TestLargeBodyIsTruncated(t *testing.T) {
	srv, tester := tlsTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", MaxBodyBytes+100)))
	})

	res, err := tester.Run(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Body, MaxBodyBytes)
}

func TestTimeoutIsDistinguished(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	tester := New(WithHTTPClient(srv.Client()), WithTimeout(50*time.Millisecond), WithLogger(quietLogger()))

	res, err := tester.Run(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestConnectionFailureIsDistinguished(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	client := srv.Client()
	u := srv.URL
	srv.Close()

	tester := New(WithHTTPClient(client), WithLogger(quietLogger()))
	rec, out := post(t, tester.Handler(), `{"url":"`+u+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "Failed to connect")
	assert.NotContains(t, out["error"], "timed out")
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(60, 2, func(r *http.Request) string { return r.Header.Get("X-Client") }, quietLogger())
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	do := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/test-endpoint", nil)
		req.Header.Set("X-Client", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	assert.Equal(t, http.StatusOK, do("b"))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(60, 1, nil, quietLogger())
	rl.Allow("a")
	assert.Equal(t, 0, rl.Sweep(time.Now()))
	assert.Equal(t, 1, rl.Sweep(time.Now().Add(time.Hour)))
	assert.Equal(t, 0, rl.Len())
}
