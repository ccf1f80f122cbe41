package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/client/notify"
)

type staticAuth struct {
	header string
	ok     bool
}

func (s staticAuth) AuthorizationHeader() (string, bool) { return s.header, s.ok }

type fakeSession struct {
	staticAuth
	cleared int32
}

func (f *fakeSession) Clear() error {
	atomic.AddInt32(&f.cleared, 1)
	f.ok = false
	return nil
}

func setupBackend(t *testing.T, seen *atomic.Value) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/static/app.css", func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/private", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Get("/api/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	r.Get("/api/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestPassiveAuthInjectsOnlyForAPI(t *testing.T) {
	var seen atomic.Value
	srv := setupBackend(t, &seen)
	client := NewClient(time.Second, nil, PassiveAuth(staticAuth{header: "Bearer tok", ok: true}))

	resp, err := client.Get(srv.URL + "/api/echo")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	resp.Body.Close()
	if seen.Load() != "Bearer tok" {
		t.Fatalf("expected header injected, got %v", seen.Load())
	}

	resp, err = client.Get(srv.URL + "/static/app.css")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	resp.Body.Close()
	if seen.Load() != "" {
		t.Fatalf("expected no header for static asset, got %v", seen.Load())
	}
}

func TestPassiveAuthSendsUnauthenticatedWithoutToken(t *testing.T) {
	var seen atomic.Value
	srv := setupBackend(t, &seen)
	client := NewClient(time.Second, nil, PassiveAuth(staticAuth{}))

	resp, err := client.Get(srv.URL + "/api/echo")
	if err != nil {
		t.Fatalf("expected request to be sent, got %v", err)
	}
	resp.Body.Close()
	if seen.Load() != "" {
		t.Fatalf("expected no header, got %v", seen.Load())
	}
}

func TestRequireAuthDoesNotSendWithoutToken(t *testing.T) {
	var calls int32
	base := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("should not be called")
	})
	client := NewClient(time.Second, base, RequireAuth(staticAuth{}))

	_, err := client.Get("http://example.invalid/api/medical/ask")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("request must not reach the network")
	}
}

func TestRequireAuthOverridesCallerHeader(t *testing.T) {
	var seen atomic.Value
	srv := setupBackend(t, &seen)
	client := NewClient(time.Second, nil, RequireAuth(staticAuth{header: "bearer fresh", ok: true}))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/echo", nil)
	req.Header.Set("Authorization", "Bearer stale")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do err: %v", err)
	}
	resp.Body.Close()
	if seen.Load() != "bearer fresh" {
		t.Fatalf("expected fresh header, got %v", seen.Load())
	}
}

func TestSessionExpiryOnRejectedResponses(t *testing.T) {
	var seen atomic.Value
	srv := setupBackend(t, &seen)

	for _, path := range []string{"/api/private", "/api/forbidden", "/api/redirect"} {
		sess := &fakeSession{staticAuth: staticAuth{header: "Bearer tok", ok: true}}
		rec := &nav.Recorder{}
		notices := &notify.Recorder{}
		client := NewClient(time.Second, nil,
			SessionExpiry(ExpiryOptions{Session: sess, Notifier: notices, Navigator: rec, Delay: 20 * time.Millisecond}),
			RequireAuth(sess),
		)

		_, err := client.Get(srv.URL + path)
		if !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("%s: expected ErrSessionExpired, got %v", path, err)
		}
		if atomic.LoadInt32(&sess.cleared) != 1 {
			t.Fatalf("%s: expected session cleared once", path)
		}
		if n := notices.Notices(); len(n) != 1 || n[0].Level != notify.Warning {
			t.Fatalf("%s: expected one warning notice, got %v", path, n)
		}
		if rec.Last() != "" {
			t.Fatalf("%s: redirect must wait for the delay", path)
		}

		select {
		case got := <-rec.Wait():
			if got != "/login" {
				t.Fatalf("%s: expected /login, got %s", path, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: expected delayed redirect", path)
		}
	}
}

func TestSessionExpiryWhenNoToken(t *testing.T) {
	rec := &nav.Recorder{}
	sess := &fakeSession{}
	client := NewClient(time.Second, nil,
		SessionExpiry(ExpiryOptions{Session: sess, Navigator: rec, Delay: time.Millisecond}),
		RequireAuth(sess),
	)

	if _, err := client.Get("http://example.invalid/api/medical/ask"); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	select {
	case <-rec.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected redirect to login")
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	base := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody}, nil
	})

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/api/x", nil)
	if _, err := Chain(base, mark("a"), nil, mark("b")).RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip err: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "base" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestIsExpiredStatus(t *testing.T) {
	cases := map[int]bool{200: false, 304: false, 302: true, 401: true, 403: true, 404: false, 500: false}
	for code, want := range cases {
		if got := IsExpiredStatus(code); got != want {
			t.Fatalf("status %d: expected %v, got %v", code, want, got)
		}
	}
}
