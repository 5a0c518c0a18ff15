package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CallDirectory answers whether a subscribe key names a known call. The
// calls store satisfies it.
type CallDirectory interface {
	Known(ctx context.Context, id string) (bool, error)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBuffer     = 64
)

// Client is one websocket subscriber connection.
//
// Concurrency: readPump is the only reader, writePump the only writer.
// Deliver is called by arbitrary publisher goroutines and only enqueues.
type Client struct {
	hub       *Hub
	directory CallDirectory
	conn      *websocket.Conn
	log       *slog.Logger

	send chan ServerMessage

	closeOnce sync.Once
	done      chan struct{}

	mu   sync.Mutex
	keys map[string]struct{}
}

func NewClient(h *Hub, directory CallDirectory, conn *websocket.Conn, log *slog.Logger) *Client {
	return &Client{
		hub:       h,
		directory: directory,
		conn:      conn,
		log:       log,
		send:      make(chan ServerMessage, sendBuffer),
		done:      make(chan struct{}),
		keys:      make(map[string]struct{}),
	}
}

// Run services the connection until it closes. Blocks; callers run it in
// its own goroutine per connection.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

// Deliver enqueues msg for the write pump. Never blocks: a full buffer
// drops the message and reports false.
func (c *Client) Deliver(msg ServerMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket closed unexpectedly", "err", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Deliver(ServerMessage{
				Type:    MessageTypeError,
				Message: "invalid message",
				Code:    CodeSubscribeInvalid,
			})
			continue
		}

		switch {
		case msg.Subscribe != nil:
			c.handleSubscribe(ctx, *msg.Subscribe)
		case msg.Unsubscribe != nil:
			c.handleUnsubscribe(*msg.Unsubscribe)
		default:
			c.Deliver(ServerMessage{
				Type:    MessageTypeError,
				Message: "expected subscribe or unsubscribe",
				Code:    CodeSubscribeInvalid,
			})
		}
	}
}

func (c *Client) handleSubscribe(ctx context.Context, id string) {
	id = strings.TrimSpace(id)
	// Validation happens here, before the hub ever sees the key.
	if id == "" {
		c.Deliver(ServerMessage{
			Type:    MessageTypeError,
			Message: "subscribe id must not be empty",
			Code:    CodeSubscribeInvalid,
		})
		return
	}

	known, err := c.directory.Known(ctx, id)
	if err != nil {
		c.log.Error("subscribe lookup failed", "id", id, "err", err)
		c.Deliver(ServerMessage{
			Type:    MessageTypeError,
			Message: "subscription lookup failed",
		})
		return
	}
	if !known {
		c.Deliver(ServerMessage{
			Type:    MessageTypeError,
			Message: "no call found for identifier",
			Code:    CodeCallNotFound,
		})
		return
	}

	c.mu.Lock()
	c.keys[id] = struct{}{}
	c.mu.Unlock()
	c.hub.Subscribe(id, c)

	c.Deliver(ServerMessage{Type: MessageTypeSubscriptionConfirmed, ID: id})
}

func (c *Client) handleUnsubscribe(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		c.Deliver(ServerMessage{
			Type:    MessageTypeError,
			Message: "unsubscribe id must not be empty",
			Code:    CodeSubscribeInvalid,
		})
		return
	}

	c.mu.Lock()
	delete(c.keys, id)
	c.mu.Unlock()
	c.hub.Unsubscribe(id, c)

	c.Deliver(ServerMessage{Type: MessageTypeUnsubscribeConfirmed, ID: id})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close removes the client from every key it subscribed to and closes the
// connection. Idempotent.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		keys := make([]string, 0, len(c.keys))
		for k := range c.keys {
			keys = append(keys, k)
		}
		c.keys = make(map[string]struct{})
		c.mu.Unlock()

		for _, k := range keys {
			c.hub.Unsubscribe(k, c)
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
