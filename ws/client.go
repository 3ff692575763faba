package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/task"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 20 // 1MB

	inboundQueue = 256
)

var ErrClosed = errors.New("bridge connection closed")

// Client is one bridge connection. Events are handled one at a time, in
// arrival order, by ProcessEvents; responses to our calls are delivered
// straight from the read pump so handlers can await them.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	inbound chan Event
	done    chan struct{} // closed on unregister
	mu      sync.RWMutex

	// Auth state
	challengeNonce string
	authenticated  bool
	bridgeID       string

	pendingMu sync.Mutex
	pending   map[string]chan RPCMessage
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		inbound: make(chan Event, inboundQueue),
		done:    make(chan struct{}),
		pending: make(map[string]chan RPCMessage),
	}
}

func (c *Client) BridgeID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bridgeID
}

func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Client) SetAuth(bridgeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridgeID = bridgeID
	c.authenticated = true
}

func (c *Client) setChallenge(nonce string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challengeNonce = nonce
}

func (c *Client) challenge() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.challengeNonce
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal error", "err", err)
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.send <- data:
		return nil
	default:
		slog.Warn("client send buffer full, dropping message", "bridge", c.BridgeID())
		return fmt.Errorf("send buffer full")
	}
}

// Call sends a request to the bridge and decodes the response payload
// into out, which may be nil.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	id := uuid.NewString()
	ch := make(chan RPCMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.SendJSON(NewRequest(id, method, params)); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	timer := time.NewTimer(c.hub.CallTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if !resp.OK {
			return responseError(method, resp.Error)
		}
		if out != nil && len(resp.Payload) > 0 {
			if err := json.Unmarshal(resp.Payload, out); err != nil {
				return fmt.Errorf("%s: decode response: %w", method, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for %s response", method)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%s: %w", method, ErrClosed)
	}
}

func responseError(method string, e *RPCError) error {
	if e == nil {
		return fmt.Errorf("%s rejected", method)
	}
	if e.Code == CodeForbidden {
		return fmt.Errorf("%s: %s: %w", method, e.Message, chat.ErrForbidden)
	}
	return fmt.Errorf("%s: %w", method, e)
}

// resolve hands a response to the call waiting for it.
func (c *Client) resolve(msg RPCMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		slog.Debug("response for unknown call", "id", msg.ID)
		return
	}
	ch <- msg
}

func (c *Client) enqueue(evt Event) {
	select {
	case c.inbound <- evt:
	default:
		slog.Warn("inbound queue full, dropping event", "event", evt.Name, "bridge", c.BridgeID())
	}
}

// ProcessEvents runs the client's event worker until the connection closes.
func (c *Client) ProcessEvents(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case evt := <-c.inbound:
			if c.hub.EventRouter == nil {
				continue
			}
			err := task.Run(ctx, func(ctx context.Context) error {
				c.hub.EventRouter(ctx, c, evt)
				return nil
			})
			if err != nil {
				slog.Error("event handler failed", "event", evt.Name, "err", err)
			}
		}
	}
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("bridge disconnected", "err", err)
			}
			return
		}
		c.hub.handleMessage(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
