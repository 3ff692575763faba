// Package bridge is the platform side of the gateway protocol. A bridge
// dials the bot, answers its challenge, forwards platform events, and
// serves the calls the bot makes back.
package bridge

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/ws"
)

const (
	challengeTimeout = 10 * time.Second
	callTimeout      = 60 * time.Second
	Version          = "1.0.0"
)

// Handler serves one call from the bot. Returning chat.ErrForbidden (or an
// error wrapping it) reports a permission failure.
type Handler func(ctx context.Context, method string, params json.RawMessage) (any, error)

type Client struct {
	url       string
	id        string
	key       ed25519.PrivateKey
	conn      *websocket.Conn
	connected bool
	mu        sync.Mutex
	writeMu   sync.Mutex
	nextID    atomic.Int64

	pending   map[string]chan ws.RPCMessage
	pendingMu sync.Mutex

	challenges chan string
	done       chan struct{}
	closeOnce  sync.Once

	handler Handler
}

func NewClient(url, bridgeID string, key ed25519.PrivateKey, handler Handler) *Client {
	return &Client{
		url:        url,
		id:         bridgeID,
		key:        key,
		pending:    make(map[string]chan ws.RPCMessage),
		challenges: make(chan string, 1),
		done:       make(chan struct{}),
		handler:    handler,
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Connect(ctx context.Context) error {
	url := c.url
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	case !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://"):
		url = "wss://" + url
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()

	if err := c.authenticate(ctx); err != nil {
		c.Close()
		return fmt.Errorf("auth: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	slog.Info("bridge: connected", "url", url, "bridge", c.id)
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Emit sends a platform event to the bot.
func (c *Client) Emit(event string, payload any) error {
	return c.write(ws.NewEvent(event, payload))
}

func (c *Client) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer func() {
		c.closeOnce.Do(func() { close(c.done) })
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("bridge readLoop ended", "err", err)
			return
		}

		var msg ws.RPCMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "res":
			c.pendingMu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- msg
			}

		case "req":
			go c.serve(msg)

		case "event":
			if msg.Event == "connect.challenge" {
				var payload struct {
					Nonce string `json:"nonce"`
				}
				json.Unmarshal(msg.Payload, &payload)
				select {
				case c.challenges <- payload.Nonce:
				default:
				}
			}
		}
	}
}

func (c *Client) serve(msg ws.RPCMessage) {
	if c.handler == nil {
		c.write(ws.NewErrorResponse(msg.ID, ws.CodeUnknownMethod, "Unknown method: "+msg.Method))
		return
	}

	result, err := c.handler(context.Background(), msg.Method, msg.Params)
	if err != nil {
		code := "INTERNAL"
		var rpcErr *ws.RPCError
		switch {
		case errors.Is(err, chat.ErrForbidden):
			code = ws.CodeForbidden
		case errors.As(err, &rpcErr):
			code = rpcErr.Code
		}
		c.write(ws.NewErrorResponse(msg.ID, code, err.Error()))
		return
	}
	c.write(ws.NewResponse(msg.ID, result))
}

func (c *Client) send(ctx context.Context, method string, params any) (ws.RPCMessage, error) {
	id := fmt.Sprintf("bridge-%d", c.nextID.Add(1))

	ch := make(chan ws.RPCMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(ws.NewRequest(id, method, params)); err != nil {
		return ws.RPCMessage{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(callTimeout):
		return ws.RPCMessage{}, fmt.Errorf("timeout waiting for %s response", method)
	case <-ctx.Done():
		return ws.RPCMessage{}, ctx.Err()
	case <-c.done:
		return ws.RPCMessage{}, fmt.Errorf("connection closed")
	}
}

func (c *Client) authenticate(ctx context.Context) error {
	var nonce string
	select {
	case nonce = <-c.challenges:
	case <-time.After(challengeTimeout):
		return fmt.Errorf("timeout waiting for challenge")
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("connection closed before challenge")
	}

	params := ws.SignConnect(c.key, ws.ConnectBridge{ID: c.id, Version: Version, Platform: "go"}, nonce, time.Now())
	resp, err := c.send(ctx, "connect", params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("connect error: %s: %s", resp.Error.Code, resp.Error.Message)
	}
	if !resp.OK {
		return fmt.Errorf("connect rejected")
	}
	return nil
}
