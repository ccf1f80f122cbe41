package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/logger"
	"github.com/mri-lab/mri-console/internal/metrics"
)

var (
	// ErrNoToken aborts Run before any dial when the session has no token.
	ErrNoToken      = errors.New("channel requires an access token")
	ErrNotConnected = errors.New("channel is not connected")
)

// State 连接状态。
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// TokenSource supplies the access token appended to the connect URL.
type TokenSource interface {
	Token() (string, bool)
}

// Options configures a Client.
type Options struct {
	// URL is the websocket root, e.g. ws://localhost:8080.
	URL               string
	ClientID          string
	Session           TokenSource
	Navigator         nav.Navigator
	Handlers          Handlers
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
}

// DefaultOptions 默认参数：关闭后 3 秒重连，每 30 秒心跳。
func DefaultOptions() Options {
	return Options{
		ReconnectDelay:    3 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client is a websocket connection that reconnects forever after a fixed
// delay until its context ends or Close is called.
type Client struct {
	opts   Options
	dialer *websocket.Dialer
	logger *zap.Logger

	state atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a client. Zero durations take the defaults.
func New(opts Options) *Client {
	def := DefaultOptions()
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = def.ReconnectDelay
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	opts.URL = strings.TrimRight(opts.URL, "/")

	return &Client{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		logger: logger.OrNop(opts.Logger).Named("channel").With(zap.String("client_id", opts.ClientID)),
		done:   make(chan struct{}),
	}
}

// ClientID returns the identity used in the connect path.
func (c *Client) ClientID() string { return c.opts.ClientID }

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.logger.Debug("state changed", zap.Stringer("state", s))
	if h := c.opts.Handlers.OnStateChange; h != nil {
		h(s)
	}
}

// Run connects and keeps reconnecting. It returns ErrNoToken (after
// navigating to the login page) when no token is available, nil after Close,
// or ctx.Err() once ctx ends.
func (c *Client) Run(ctx context.Context) error {
	for {
		token, ok := c.opts.Session.Token()
		if !ok || token == "" {
			c.logger.Warn("no access token, redirecting to login")
			if c.opts.Navigator != nil {
				c.opts.Navigator.Navigate(nav.PathLogin)
			}
			return ErrNoToken
		}

		c.connectAndServe(ctx, token)
		c.setState(StateClosed)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-time.After(c.opts.ReconnectDelay):
			c.opts.Metrics.Reconnect()
			c.logger.Info("reconnecting")
		}
	}
}

// Close stops Run and closes the current connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.closeConn()
	return nil
}

// Send writes v as JSON on the open connection.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.State() != StateOpen {
		return ErrNotConnected
	}
	return c.write(conn, v)
}

func (c *Client) write(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteJSON(v)
}

func (c *Client) endpoint(token string) string {
	return fmt.Sprintf("%s/api/ws/%s?token=%s", c.opts.URL, url.PathEscape(c.opts.ClientID), url.QueryEscape(token))
}

// connectAndServe runs one connection until it drops.
func (c *Client) connectAndServe(ctx context.Context, token string) {
	c.closeConn()
	c.setState(StateConnecting)

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint(token), nil)
	if err != nil {
		c.logger.Warn("websocket dial failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateOpen)
	c.logger.Info("websocket connected")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-connCtx.Done():
		case <-c.done:
		}
		conn.Close()
	}()
	go c.heartbeatLoop(connCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && connCtx.Err() == nil {
				c.logger.Warn("websocket read error", zap.Error(err))
			} else {
				c.logger.Info("websocket closed", zap.Error(err))
			}
			c.closeConn()
			return
		}
		c.dispatch(data)
	}
}

// heartbeatLoop 定期发送 ping 消息
func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			ping := heartbeat{Type: TypePing, Timestamp: t.UTC().Format(time.RFC3339)}
			if err := c.write(conn, ping); err != nil {
				c.logger.Debug("heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// dispatch routes one inbound frame. Malformed or unknown messages are
// logged and dropped.
func (c *Client) dispatch(data []byte) {
	msg, err := decode(data)
	if err != nil {
		c.logger.Warn("invalid channel message", zap.Error(err))
		return
	}
	c.opts.Metrics.ChannelMessage(msg.Type)
	h := c.opts.Handlers

	switch msg.Type {
	case TypeConnectionEstablished:
		if h.OnConnected != nil {
			h.OnConnected(msg)
		}
	case TypeProgressUpdate:
		if h.OnProgress != nil {
			h.OnProgress(ProgressUpdate{TaskID: msg.TaskID, Progress: msg.Progress, Status: msg.Status, Message: msg.Message})
		}
	case TypeModelLoaded:
		if h.OnModelLoaded != nil {
			h.OnModelLoaded(ModelLoaded{ModelID: msg.ModelID, Success: msg.Success, Message: msg.Message})
		}
	case TypeReconstructionComplete:
		if h.OnReconstructionComplete != nil {
			h.OnReconstructionComplete(ReconstructionComplete{TaskID: msg.TaskID, ResultID: msg.ResultID, Message: msg.Message})
		}
	case TypePong:
	case TypeError:
		if h.OnError != nil {
			h.OnError(msg.Message)
		}
	default:
		c.logger.Debug("unknown channel message", zap.String("type", msg.Type))
	}
}
