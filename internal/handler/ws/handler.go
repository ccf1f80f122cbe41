package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/service/auth"
)

// Verifier validates the token passed in the query string.
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Handler WebSocket 接入处理器
type Handler struct {
	hub      *Hub
	verifier Verifier
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func New(hub *Hub, verifier Verifier, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.Named("ws"),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{clientID}", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.String("client_id", clientID), zap.Error(err))
		return
	}
	defer wsConn.Close()

	token := r.URL.Query().Get("token")
	if token == "" {
		h.reject(wsConn, clientID, "未提供认证令牌")
		return
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.reject(wsConn, clientID, "无效的认证令牌")
		return
	}

	c := &conn{ws: wsConn, clientID: clientID, username: claims.Subject}
	h.hub.add(c)
	defer h.hub.remove(c)

	if err := c.send(Event{
		Type:     TypeConnectionEstablished,
		ClientID: clientID,
		Username: claims.Subject,
		Message:  "Connection established",
	}); err != nil {
		return
	}

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read error", zap.String("client_id", clientID), zap.Error(err))
			}
			return
		}
		if err := c.send(reply(data)); err != nil {
			return
		}
	}
}

// reply echoes an inbound message; pings are answered with pong.
func reply(data []byte) Event {
	var original json.RawMessage
	if err := json.Unmarshal(data, &original); err != nil {
		return Event{Type: TypeError, Message: "Invalid JSON format"}
	}

	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &head)

	ev := Event{Type: TypeResponse, OriginalMessage: original}
	if head.Type == TypePing {
		ev.Type = TypePong
	}
	return ev
}

// reject closes the socket with 1008.
func (h *Handler) reject(c *websocket.Conn, clientID, reason string) {
	h.logger.Warn("rejecting connection", zap.String("client_id", clientID), zap.String("reason", reason))
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
