// Package api is the typed client for the MRI platform's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/client/notify"
	"github.com/mri-lab/mri-console/internal/client/transport"
	"github.com/mri-lab/mri-console/internal/logger"
	"github.com/mri-lab/mri-console/internal/metrics"
)

var ErrUnexpectedContent = errors.New("unexpected response content type")

// StatusError is a non-2xx response. Detail is taken from the body's
// detail, message or error field.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed with status %d", e.Code)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Detail)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Session is what the client needs from the session service.
type Session interface {
	transport.Authorizer
	transport.Clearer
}

// Options configures New.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	Session     Session
	Notifier    notify.Notifier
	Navigator   nav.Navigator
	ExpiryDelay time.Duration
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	// Base is the innermost RoundTripper; nil uses http.DefaultTransport.
	Base http.RoundTripper
}

// Client talks to the backend. Calls that need a session go through the
// authorized pipeline; login and registration go through the public one.
type Client struct {
	baseURL string
	authed  *http.Client
	public  *http.Client
	logger  *zap.Logger
}

// New assembles both request pipelines.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := logger.OrNop(opts.Logger)

	authed := transport.NewClient(timeout, opts.Base,
		transport.Logging(log),
		transport.Metrics(opts.Metrics),
		transport.SessionExpiry(transport.ExpiryOptions{
			Session:   opts.Session,
			Notifier:  opts.Notifier,
			Navigator: opts.Navigator,
			Delay:     opts.ExpiryDelay,
			Metrics:   opts.Metrics,
			Logger:    log,
		}),
		transport.RequireAuth(opts.Session),
	)
	public := transport.NewClient(timeout, opts.Base,
		transport.Logging(log),
		transport.Metrics(opts.Metrics),
		transport.PassiveAuth(opts.Session),
	)

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		authed:  authed,
		public:  public,
		logger:  log.Named("api"),
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doJSON sends in (if non-nil) as JSON and decodes the response into out
// (if non-nil).
func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	return c.send(hc, req, out)
}

func (c *Client) send(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeJSON(resp, out)
}

// open sends req and returns the raw body for non-JSON payloads.
func (c *Client) open(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &StatusError{Code: resp.StatusCode, Detail: extractDetail(data)}
}

func extractDetail(data []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	if len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		return string(payload.Detail)
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

func decodeJSON(resp *http.Response, out any) error {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return fmt.Errorf("%w: %q", ErrUnexpectedContent, resp.Header.Get("Content-Type"))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
