package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mri-lab/mri-console/internal/client/nav"
)

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

type wsBackend struct {
	srv      *httptest.Server
	connects atomic.Int32
	mu       sync.Mutex
	received []Message
	tokens   []string
	// onConnect runs for each accepted connection before the read loop.
	onConnect func(n int32, conn *websocket.Conn)
}

func newBackend(t *testing.T, onConnect func(n int32, conn *websocket.Conn)) *wsBackend {
	t.Helper()
	b := &wsBackend{onConnect: onConnect}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	r := chi.NewRouter()
	r.Get("/api/ws/{clientID}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := b.connects.Add(1)
		b.mu.Lock()
		b.tokens = append(b.tokens, r.URL.Query().Get("token"))
		b.mu.Unlock()

		conn.WriteJSON(Message{Type: TypeConnectionEstablished, ClientID: chi.URLParam(r, "clientID")})
		if b.onConnect != nil {
			b.onConnect(n, conn)
		}
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			b.mu.Lock()
			b.received = append(b.received, msg)
			b.mu.Unlock()
			if msg.Type == TypePing {
				conn.WriteJSON(Message{Type: TypePong})
			}
		}
	})
	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *wsBackend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *wsBackend) pings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.received {
		if m.Type == TypePing {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRunWithoutTokenRedirects(t *testing.T) {
	b := newBackend(t, nil)
	rec := &nav.Recorder{}
	c := New(Options{URL: b.url(), Session: staticToken(""), Navigator: rec})

	err := c.Run(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if rec.Last() != nav.PathLogin {
		t.Fatalf("expected redirect to %s, got %q", nav.PathLogin, rec.Last())
	}
	if b.connects.Load() != 0 {
		t.Fatalf("expected no dial, got %d connections", b.connects.Load())
	}
}

func TestDispatchesServerMessages(t *testing.T) {
	b := newBackend(t, func(_ int32, conn *websocket.Conn) {
		conn.WriteJSON(Message{Type: TypeProgressUpdate, TaskID: "t1", Progress: 55, Status: "processing"})
		conn.WriteJSON(Message{Type: TypeModelLoaded, ModelID: "unet", Success: true})
		conn.WriteJSON(Message{Type: "mystery"})
		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		conn.WriteJSON(Message{Type: TypeReconstructionComplete, TaskID: "t1", ResultID: "r9"})
	})

	var (
		mu        sync.Mutex
		connected string
		progress  ProgressUpdate
		loaded    ModelLoaded
	)
	done := make(chan ReconstructionComplete, 1)
	c := New(Options{
		URL:      b.url(),
		ClientID: "cid-1",
		Session:  staticToken("tok"),
		Handlers: Handlers{
			OnConnected: func(m Message) { mu.Lock(); connected = m.ClientID; mu.Unlock() },
			OnProgress:  func(p ProgressUpdate) { mu.Lock(); progress = p; mu.Unlock() },
			OnModelLoaded: func(m ModelLoaded) {
				mu.Lock()
				loaded = m
				mu.Unlock()
			},
			OnReconstructionComplete: func(r ReconstructionComplete) { done <- r },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case r := <-done:
		if r.ResultID != "r9" {
			t.Fatalf("expected result r9, got %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reconstruction_complete not dispatched")
	}

	mu.Lock()
	defer mu.Unlock()
	if connected != "cid-1" {
		t.Fatalf("expected connected client id cid-1, got %q", connected)
	}
	if progress.TaskID != "t1" || progress.Progress != 55 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if loaded.ModelID != "unet" || !loaded.Success {
		t.Fatalf("unexpected model_loaded %+v", loaded)
	}
	if c.State() != StateOpen {
		t.Fatalf("expected open state, got %s", c.State())
	}
	b.mu.Lock()
	if b.tokens[0] != "tok" {
		t.Fatalf("expected token in query, got %q", b.tokens[0])
	}
	b.mu.Unlock()
}

func TestHeartbeatSendsPing(t *testing.T) {
	b := newBackend(t, nil)
	c := New(Options{
		URL:               b.url(),
		Session:           staticToken("tok"),
		HeartbeatInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return b.pings() >= 2 })
}

func TestReconnectsAfterEveryDrop(t *testing.T) {
	const drops = 3
	var mu sync.Mutex
	var connectedAt []time.Time
	b := newBackend(t, func(n int32, conn *websocket.Conn) {
		mu.Lock()
		connectedAt = append(connectedAt, time.Now())
		mu.Unlock()
		if n <= drops {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
			conn.Close()
		}
	})

	var states []State
	delay := 60 * time.Millisecond
	c := New(Options{
		URL:            b.url(),
		Session:        staticToken("tok"),
		ReconnectDelay: delay,
		Handlers: Handlers{OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, 3*time.Second, func() bool { return b.connects.Load() == drops+1 })

	time.Sleep(3 * delay)
	if got := b.connects.Load(); got != drops+1 {
		t.Fatalf("expected %d connections, got %d", drops+1, got)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(connectedAt); i++ {
		if gap := connectedAt[i].Sub(connectedAt[i-1]); gap < delay {
			t.Fatalf("expected reconnect %d after at least %s, got %s", i, delay, gap)
		}
	}
	closed := 0
	for _, s := range states {
		if s == StateClosed {
			closed++
		}
	}
	if closed < drops {
		t.Fatalf("expected %d closed states between connections, got %v", drops, states)
	}
}

func TestCloseStopsRun(t *testing.T) {
	b := newBackend(t, nil)
	c := New(Options{URL: b.url(), Session: staticToken("tok"), ReconnectDelay: 10 * time.Millisecond})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateOpen })

	c.Close()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected nil after Close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if err := c.Send(Message{Type: TypePing}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
