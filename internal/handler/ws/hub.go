// Package ws serves the realtime job channel and fans events out to
// connected clients.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 事件类型
const (
	TypeConnectionEstablished  = "connection_established"
	TypeProgressUpdate         = "progress_update"
	TypeModelLoaded            = "model_loaded"
	TypeReconstructionComplete = "reconstruction_complete"
	TypePing                   = "ping"
	TypePong                   = "pong"
	TypeResponse               = "response"
	TypeError                  = "error"
)

// Event is a server-to-client message.
type Event struct {
	Type            string          `json:"type"`
	Timestamp       string          `json:"timestamp"`
	ClientID        string          `json:"client_id,omitempty"`
	Username        string          `json:"username,omitempty"`
	TaskID          string          `json:"task_id,omitempty"`
	Progress        *float64        `json:"progress,omitempty"`
	Status          string          `json:"status,omitempty"`
	Message         string          `json:"message,omitempty"`
	ModelID         string          `json:"model_id,omitempty"`
	Success         *bool           `json:"success,omitempty"`
	ResultID        string          `json:"result_id,omitempty"`
	OriginalMessage json.RawMessage `json:"original_message,omitempty"`
}

// ProgressEvent 进度更新事件。
func ProgressEvent(taskID string, progress float64, status, message string) Event {
	return Event{Type: TypeProgressUpdate, TaskID: taskID, Progress: &progress, Status: status, Message: message}
}

// ModelLoadedEvent 模型加载结果事件。
func ModelLoadedEvent(modelID string, success bool, message string) Event {
	return Event{Type: TypeModelLoaded, ModelID: modelID, Success: &success, Message: message}
}

// ReconstructionCompleteEvent 重建完成事件。
func ReconstructionCompleteEvent(taskID, resultID, message string) Event {
	return Event{Type: TypeReconstructionComplete, TaskID: taskID, ResultID: resultID, Message: message}
}

const writeWait = 10 * time.Second

type conn struct {
	ws       *websocket.Conn
	clientID string
	username string
	mu       sync.Mutex
}

func (c *conn) send(ev Event) error {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().Format(time.RFC3339)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(ev)
}

// Hub tracks live connections by client id. One client id may hold
// several connections.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[*conn]struct{}
	logger *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{conns: make(map[string]map[*conn]struct{}), logger: log.Named("ws")}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.clientID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[c.clientID] = set
	}
	set[c] = struct{}{}
	h.logger.Info("client connected", zap.String("client_id", c.clientID), zap.String("username", c.username), zap.Int("clients", len(h.conns)))
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[c.clientID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.clientID)
		}
	}
	h.logger.Info("client disconnected", zap.String("client_id", c.clientID), zap.Int("clients", len(h.conns)))
}

func (h *Hub) snapshot(match func(*conn) bool) []*conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*conn
	for _, set := range h.conns {
		for c := range set {
			if match(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

func (h *Hub) deliver(targets []*conn, ev Event) int {
	sent := 0
	for _, c := range targets {
		if err := c.send(ev); err != nil {
			h.logger.Warn("send failed", zap.String("client_id", c.clientID), zap.Error(err))
			c.ws.Close()
			continue
		}
		sent++
	}
	return sent
}

// Send delivers ev to every connection of clientID.
func (h *Hub) Send(clientID string, ev Event) int {
	return h.deliver(h.snapshot(func(c *conn) bool { return c.clientID == clientID }), ev)
}

// SendUser delivers ev to every connection opened by username.
func (h *Hub) SendUser(username string, ev Event) int {
	return h.deliver(h.snapshot(func(c *conn) bool { return c.username == username }), ev)
}

// Broadcast delivers ev to all connections.
func (h *Hub) Broadcast(ev Event) int {
	return h.deliver(h.snapshot(func(*conn) bool { return true }), ev)
}

// Clients returns the number of distinct connected client ids.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
