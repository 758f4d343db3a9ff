package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cinesync/backend/internal/auth"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBufferSize = 256

	// Maximum views one connection may hold open
	maxViews = 64
)

var (
	errClientClosed = errors.New("client connection closed")
	errBufferFull   = errors.New("send buffer full")
	errTooManyViews = apierrors.New(apierrors.ErrRateLimited, "too many open views")
)

// view is anything a client keeps open until it unsubscribes or leaves
type view interface {
	Close()
}

// Client represents a single WebSocket connection
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	UserID   string
	Username string
	Session  *auth.Session

	// Buffered channel of outbound messages
	send chan []byte

	ConnectedAt time.Time
	LastPingAt  time.Time
	RemoteAddr  string
	UserAgent   string

	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	views   map[string]view
	focused bool
	online  bool
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, session *auth.Session) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	c := &Client{
		hub:         hub,
		conn:        conn,
		UserID:      session.UID(),
		Session:     session,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(rate.Limit(config.MaxMessagesPerSecond), config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
		views:       make(map[string]view),
		focused:     true,
		online:      true,
	}
	if p := session.Profile(); p != nil {
		c.Username = p.Username
	}
	return c
}

// ReadPump reads client messages until the connection drops
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		readCtx, readCancel := context.WithTimeout(c.ctx, pongWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Info("Client disconnected normally", logger.WithUserID(c.UserID))
			} else if c.ctx.Err() == nil {
				logger.Log.Warn("Read error for client", logger.WithUserID(c.UserID), zap.Error(err))
				c.hub.metrics.Errors.Add(1)
			}
			return
		}

		if !c.limiter.Allow() {
			c.SendError("rate_limited", "Too many messages, please slow down")
			c.hub.metrics.Errors.Add(1)
			continue
		}

		c.hub.metrics.MessagesReceived.Add(1)

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Log.Warn("WebSocket JSON parse error", logger.WithUserID(c.UserID), zap.Error(err))
			c.SendError("invalid_json", "Failed to parse message")
			continue
		}

		c.handleMessage(&message)
	}
}

// WritePump writes queued messages and keeps the connection alive
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			c.conn.Close(websocket.StatusNormalClosure, "closing")
			return

		case message := <-c.send:
			if err := c.write(message); err != nil {
				logger.Log.Warn("Write error for client", logger.WithUserID(c.UserID), zap.Error(err))
				c.hub.metrics.Errors.Add(1)
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.LastPingAt = time.Now()
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Log.Warn("Ping failed for client", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) write(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// drain flushes what is already queued, best effort
func (c *Client) drain() {
	for {
		select {
		case data := <-c.send:
			if c.write(data) != nil {
				return
			}
		default:
			return
		}
	}
}

// handleMessage routes incoming messages to appropriate handlers
func (c *Client) handleMessage(message *Message) {
	if message.Timestamp.IsZero() {
		message.Timestamp = FlexibleTime{Time: time.Now().UTC()}
	}

	switch message.Type {
	case MessageTypePing, "heartbeat":
		c.handlePing(message)
		return

	case MessageTypeAuth:
		c.handleAuth(message)
		return
	}

	if handler, ok := c.hub.GetHandler(message.Type); ok {
		if err := handler(c, message); err != nil {
			logger.Log.Warn("Handler error",
				logger.WithUserID(c.UserID),
				zap.String("type", message.Type),
				zap.Error(err))
			apiErr := apierrors.FromError(err)
			c.SendReplyError(message, string(apiErr.Code), apiErr.Message)
		}
		return
	}

	logger.Log.Warn("Unknown message type",
		logger.WithUserID(c.UserID),
		zap.String("type", message.Type))
	c.SendError("unknown_type", fmt.Sprintf("Unknown message type: %s", message.Type))
}

// handlePing responds to ping messages with pong
func (c *Client) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	pong := NewReply(message, MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    serverTime - ping.ClientTime,
	})
	_ = c.Send(pong)
}

// handleAuth reports the session state; tokens are only checked on connect
func (c *Client) handleAuth(message *Message) {
	status := "authenticated"
	if c.Session.State() == auth.ProfileLoaded {
		status = "profile_loaded"
	}
	_ = c.Send(NewReply(message, MessageTypeAuth, AuthPayload{UserID: c.UserID, Status: status}))
}

// enqueue queues raw data without blocking
func (c *Client) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Send sends a message to this client
func (c *Client) Send(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if c.IsClosed() {
		return errClientClosed
	}
	if !c.enqueue(data) {
		return errBufferFull
	}
	c.hub.metrics.MessagesSent.Add(1)
	return nil
}

// SendError sends an error message to the client
func (c *Client) SendError(code, message string) {
	_ = c.Send(NewErrorMessage(code, message))
}

// SendReplyError sends an error tied to the message that caused it
func (c *Client) SendReplyError(original *Message, code, message string) {
	msg := NewErrorMessage(code, message)
	msg.ReplyTo = original.ID
	_ = c.Send(msg)
}

// addView registers an open view under key, replacing an older one
func (c *Client) addView(key string, v view) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		v.Close()
		return errClientClosed
	}
	old, replacing := c.views[key]
	if !replacing && len(c.views) >= maxViews {
		c.mu.Unlock()
		v.Close()
		return errTooManyViews
	}
	c.views[key] = v
	c.mu.Unlock()
	if replacing {
		old.Close()
	}
	return nil
}

// removeView closes the view under key
func (c *Client) removeView(key string) bool {
	c.mu.Lock()
	v, ok := c.views[key]
	delete(c.views, key)
	c.mu.Unlock()
	if ok {
		v.Close()
	}
	return ok
}

func (c *Client) view(key string) (view, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[key]
	return v, ok
}

// ViewCount returns the number of open views
func (c *Client) ViewCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.views)
}

// presence returns the last focus and connectivity the client reported
func (c *Client) presence() (focused, online bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.focused, c.online
}

// setPresence stores focus and connectivity and returns the open views
func (c *Client) setPresence(focused, online bool) []view {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused, c.online = focused, online
	out := make([]view, 0, len(c.views))
	for _, v := range c.views {
		out = append(out, v)
	}
	return out
}

// Close closes every open view and the connection
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	views := c.views
	c.views = make(map[string]view)
	c.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
	c.cancel()
}

// IsClosed returns whether the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
