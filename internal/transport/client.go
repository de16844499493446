package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dmaran/parley/internal/bus"
	"github.com/dmaran/parley/internal/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client maintains the event socket connection. Inbound events are validated
// and republished on the bus under the transport.* namespace; outbound
// intents fail fast with ErrTransportUnavailable while disconnected, they
// are never queued. Reconnection is automatic with capped backoff.
type Client struct {
	url    string
	token  string
	bus    *bus.Bus
	logger *zap.Logger
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// NewClient creates a socket client for the given ws:// URL.
func NewClient(url, token string, b *bus.Bus, logger *zap.Logger) *Client {
	return &Client{
		url:    url,
		token:  token,
		bus:    b,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// Start launches the connect/read/reconnect loop.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop tears down the connection and stops reconnecting.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	backoff := initialBackoff
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		header := http.Header{}
		if c.token != "" {
			header.Set("Authorization", "Bearer "+c.token)
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, header)
		if err != nil {
			c.logger.Warn("socket dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		backoff = initialBackoff

		if first {
			c.logger.Info("socket connected", zap.String("url", c.url))
			c.bus.Emit("transport.connected", nil)
			first = false
		} else {
			c.logger.Info("socket reconnected", zap.String("url", c.url))
			c.bus.Emit("transport.reconnected", nil)
		}

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("socket disconnected")
		c.bus.Emit("transport.disconnected", nil)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}

		kind, payload, err := DecodeInbound(raw)
		if err != nil {
			c.logger.Warn("dropping invalid event", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		c.bus.Emit("transport."+string(kind), payload)
	}
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends one outbound intent. Returns ErrTransportUnavailable when
// disconnected; the caller decides whether that matters.
func (c *Client) Emit(kind Kind, payload any) error {
	data, err := EncodeOutbound(kind, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return model.ErrTransportUnavailable
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Identify announces the local identity. Sent after every (re)connect.
func (c *Client) Identify(userID, username string) error {
	return c.Emit(KindIdentify, Identity{UserID: userID, Username: username})
}

// Join issues a join_conversation intent for a room.
func (c *Client) Join(roomID string) error {
	return c.Emit(KindJoin, JoinRoom{RoomID: roomID})
}

// SendMessage fans a confirmed message out to the room over the socket.
func (c *Client) SendMessage(m model.Message) error {
	return c.Emit(KindSendMessage, m)
}

// Typing signals that the local user is typing in a room.
func (c *Client) Typing(roomID, username string) error {
	return c.Emit(KindTyping, TypingSignal{Room: roomID, User: username})
}

// StopTyping clears the local typing signal for a room.
func (c *Client) StopTyping(roomID string) error {
	return c.Emit(KindStopTyping, TypingSignal{Room: roomID})
}

// RequestOnlineUsers asks for the current online user list.
func (c *Client) RequestOnlineUsers() error {
	return c.Emit(KindGetOnlineUsers, nil)
}

// MarkRead announces that the local user read up to a message.
func (c *Client) MarkRead(conversationID, messageID string) error {
	return c.Emit(KindMarkRead, MarkReadIntent{ConversationID: conversationID, MessageID: messageID})
}
