// Package endpointtest sends one request to a user-supplied HTTPS endpoint
// on the user's behalf and reports what came back.
package endpointtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jobhub-dev/jobhub/internal/metrics"
)

const (
	// DefaultTimeout aborts a test that has not completed.
	DefaultTimeout = 30 * time.Second
	// MaxBodyBytes caps how much of the tested endpoint's body is returned.
	MaxBodyBytes = 1 << 20
)

var allowedMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodHead, http.MethodOptions,
}

// Request is what the caller asks to send.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	// Body is sent as-is when it is a JSON string, otherwise as JSON text.
	Body json.RawMessage `json:"body,omitempty"`
}

// Result is always returned with HTTP 200; Success says whether the
// endpoint answered at all.
type Result struct {
	Success      bool              `json:"success"`
	StatusCode   int               `json:"statusCode,omitempty"`
	StatusText   string            `json:"statusText,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	Truncated    bool              `json:"truncated,omitempty"`
	ResponseTime int64             `json:"responseTime"`
	Error        string            `json:"error,omitempty"`
}

// ValidationError is returned for input rejected before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks req and normalizes its method. It never performs I/O.
func Validate(req *Request) error {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "url", Message: "invalid URL"}
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return &ValidationError{Field: "url", Message: "only HTTPS URLs are allowed"}
	}
	req.URL = raw

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !slices.Contains(allowedMethods, method) {
		return &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q", req.Method)}
	}
	req.Method = method
	return nil
}

// Tester runs endpoint tests.
type Tester struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Tester.
type Option func(*Tester)

// WithHTTPClient replaces the client used for outbound requests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tester) { t.client = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Tester) { t.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tester) { t.logger = l }
}

// New creates a Tester.
func New(opts ...Option) *Tester {
	t := &Tester{
		client: &http.Client{
			// redirects are reported, not followed
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Run validates req and sends it. Validation failures are returned as
// *ValidationError; everything after that is reported in the Result.
func (t *Tester) Run(ctx context.Context, req Request) (Result, error) {
	if err := Validate(&req); err != nil {
		metrics.RecordEndpointTest("invalid", 0)
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		metrics.RecordEndpointTest("invalid", 0)
		return Result{}, &ValidationError{Field: "body", Message: err.Error()}
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		metrics.RecordEndpointTest("invalid", 0)
		return Result{}, &ValidationError{Field: "url", Message: "invalid URL"}
	}
	for k, v := range req.Headers {
		out.Header.Set(k, v)
	}
	if contentType != "" && out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := t.client.Do(out)
	if err != nil {
		elapsed := time.Since(start)
		res := Result{ResponseTime: elapsed.Milliseconds()}
		switch {
		case isTimeout(ctx, err):
			res.Error = fmt.Sprintf("Request timed out after %s", t.timeout)
			metrics.RecordEndpointTest("timeout", elapsed)
		case errors.Is(err, context.Canceled):
			res.Error = "Request was cancelled"
			metrics.RecordEndpointTest("cancelled", elapsed)
		default:
			res.Error = "Failed to connect: " + connectReason(err)
			metrics.RecordEndpointTest("connect_error", elapsed)
		}
		t.logger.Info("endpoint test failed", "url", req.URL, "method", req.Method, "err", err)
		return res, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	elapsed := time.Since(start)
	if err != nil {
		res := Result{ResponseTime: elapsed.Milliseconds(), Error: "Failed to read response: " + err.Error()}
		outcome := "connect_error"
		if isTimeout(ctx, err) {
			res.Error = fmt.Sprintf("Request timed out after %s", t.timeout)
			outcome = "timeout"
		}
		metrics.RecordEndpointTest(outcome, elapsed)
		return res, nil
	}

	res := Result{
		Success:      true,
		StatusCode:   resp.StatusCode,
		StatusText:   strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
		Headers:      flattenHeaders(resp.Header),
		ResponseTime: elapsed.Milliseconds(),
	}
	if len(raw) > MaxBodyBytes {
		raw = raw[:MaxBodyBytes]
		res.Truncated = true
	}
	res.Body = formatBody(raw, resp.Header.Get("Content-Type"), res.Truncated)
	if res.StatusText == "" {
		res.StatusText = http.StatusText(resp.StatusCode)
	}

	metrics.RecordEndpointTest("ok", elapsed)
	t.logger.Debug("endpoint test", "url", req.URL, "method", req.Method, "status", resp.StatusCode, "elapsed", elapsed)
	return res, nil
}

func encodeBody(raw json.RawMessage) (io.Reader, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, "", fmt.Errorf("invalid body: %w", err)
		}
		if s == "" {
			return nil, "", nil
		}
		return strings.NewReader(s), "", nil
	}
	return bytes.NewReader(trimmed), "application/json", nil
}

func formatBody(raw []byte, contentType string, truncated bool) string {
	if !truncated && (strings.Contains(contentType, "json") || json.Valid(raw)) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			return buf.String()
		}
	}
	return string(raw)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[strings.ToLower(k)] = strings.Join(h.Values(k), ", ")
	}
	return out
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// connectReason turns a transport error into a short message without the
// request line url.Error prepends.
func connectReason(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "could not resolve host " + dnsErr.Name
	}
	return err.Error()
}
