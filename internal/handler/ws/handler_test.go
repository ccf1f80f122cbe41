package ws

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mri-lab/mri-console/internal/service/auth"
)

func setupServer(t *testing.T) (*httptest.Server, *Hub, string) {
	t.Helper()
	authSvc, err := auth.NewService(auth.Config{Secret: "s", TTL: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, _ := authSvc.IssueToken(auth.User{Username: "doctor"})

	hub := NewHub(nil)
	r := chi.NewRouter()
	New(hub, authSvc, nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub, token
}

func dial(t *testing.T, srv *httptest.Server, clientID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + clientID + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestRejectsInvalidToken(t *testing.T) {
	srv, _, _ := setupServer(t)
	conn := dial(t, srv, "c1", "bad")

	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected close 1008, got %v", err)
	}
	if ce.Text != "无效的认证令牌" {
		t.Fatalf("unexpected close reason %q", ce.Text)
	}
}

func TestEstablishedAndPong(t *testing.T) {
	srv, _, token := setupServer(t)
	conn := dial(t, srv, "c1", token)

	ev := readEvent(t, conn)
	if ev.Type != TypeConnectionEstablished || ev.ClientID != "c1" || ev.Username != "doctor" {
		t.Fatalf("unexpected greeting %+v", ev)
	}

	conn.WriteJSON(map[string]string{"type": "ping", "timestamp": "2024-05-20T00:00:00Z"})
	ev = readEvent(t, conn)
	if ev.Type != TypePong {
		t.Fatalf("expected pong, got %s", ev.Type)
	}
	var original map[string]string
	json.Unmarshal(ev.OriginalMessage, &original)
	if original["type"] != "ping" {
		t.Fatalf("expected original ping echoed, got %s", ev.OriginalMessage)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	if ev = readEvent(t, conn); ev.Type != TypeError || ev.Message != "Invalid JSON format" {
		t.Fatalf("expected invalid JSON error, got %+v", ev)
	}

	conn.WriteJSON(map[string]string{"type": "hello"})
	if ev = readEvent(t, conn); ev.Type != TypeResponse {
		t.Fatalf("expected response, got %s", ev.Type)
	}
}

func TestHubDelivers(t *testing.T) {
	srv, hub, token := setupServer(t)
	a := dial(t, srv, "c1", token)
	b := dial(t, srv, "c2", token)
	readEvent(t, a)
	readEvent(t, b)

	if hub.Clients() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.Clients())
	}

	if n := hub.Send("c1", ProgressEvent("t1", 50, "processing", "")); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	ev := readEvent(t, a)
	if ev.Type != TypeProgressUpdate || ev.Progress == nil || *ev.Progress != 50 {
		t.Fatalf("unexpected progress event %+v", ev)
	}

	if n := hub.SendUser("doctor", ReconstructionCompleteEvent("t1", "r1", "done")); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if ev := readEvent(t, b); ev.ResultID != "r1" {
		t.Fatalf("unexpected completion event %+v", ev)
	}

	if n := hub.Broadcast(ModelLoadedEvent("unet", true, "")); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
}
