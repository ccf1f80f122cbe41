package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/client/notify"
	"github.com/mri-lab/mri-console/internal/logger"
	"github.com/mri-lab/mri-console/internal/metrics"
)

const (
	msgSessionExpired = "登录已过期，请重新登录"
	// DefaultExpiryDelay leaves the notice on screen before leaving the page.
	DefaultExpiryDelay = 2 * time.Second
)

// Clearer drops the stored session.
type Clearer interface {
	Clear() error
}

// ExpiryOptions configures SessionExpiry.
type ExpiryOptions struct {
	Session   Clearer
	Notifier  notify.Notifier
	Navigator nav.Navigator
	Delay     time.Duration
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type expiry struct {
	opts   ExpiryOptions
	logger *zap.Logger

	mu      sync.Mutex
	pending *time.Timer
}

// IsExpiredStatus reports whether a response means the session is gone:
// 401, 403, or a redirect the client refused to follow.
func IsExpiredStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden ||
		(code >= 300 && code < 400 && code != http.StatusNotModified)
}

// SessionExpiry clears the session, shows a notice and schedules a redirect
// to the login page whenever the backend rejects the session. Requests that
// RequireAuth refused for lack of a token get the same notice and redirect.
func SessionExpiry(opts ExpiryOptions) Middleware {
	if opts.Delay <= 0 {
		opts.Delay = DefaultExpiryDelay
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop
	}
	e := &expiry{opts: opts, logger: logger.OrNop(opts.Logger).Named("transport")}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(r)
			if err != nil {
				if errors.Is(err, ErrNoToken) {
					e.expire(r, 0)
				}
				return nil, err
			}

			if !IsExpiredStatus(resp.StatusCode) {
				return resp, nil
			}

			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			e.expire(r, resp.StatusCode)
			return nil, fmt.Errorf("%w: %s %s returned %d", ErrSessionExpired, r.Method, r.URL.Path, resp.StatusCode)
		})
	}
}

func (e *expiry) expire(r *http.Request, status int) {
	e.logger.Warn("session rejected", zap.String("path", r.URL.Path), zap.Int("status", status))
	e.opts.Metrics.SessionExpired()

	if e.opts.Session != nil {
		if err := e.opts.Session.Clear(); err != nil {
			e.logger.Error("failed to clear session", zap.Error(err))
		}
	}
	e.opts.Notifier.Notify(notify.Warning, msgSessionExpired)

	if e.opts.Navigator == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		return
	}
	e.pending = time.AfterFunc(e.opts.Delay, func() {
		e.mu.Lock()
		e.pending = nil
		e.mu.Unlock()
		e.opts.Navigator.Navigate(nav.PathLogin)
	})
}
