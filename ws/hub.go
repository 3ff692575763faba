package ws

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultCallTimeout = 30 * time.Second
	tickInterval       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub accepts bridge connections and routes their events. Calls to the
// platform go through the most recently authenticated bridge.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	mu      sync.RWMutex
	bridges []*Client // authenticated, oldest first

	// PublicKey is the only key bridges may sign with. Nil accepts any.
	PublicKey   ed25519.PublicKey
	CallTimeout time.Duration
	EventRouter func(ctx context.Context, client *Client, evt Event)
}

func NewHub(publicKey ed25519.PublicKey) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		stopped:     make(chan struct{}),
		PublicKey:   publicKey,
		CallTimeout: DefaultCallTimeout,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			nonce := generateNonce()
			client.setChallenge(nonce)
			client.SendJSON(NewEvent("connect.challenge", map[string]string{
				"nonce": nonce,
			}))
			slog.Info("bridge connected, challenge sent")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				slog.Info("bridge unregistered", "bridge", client.BridgeID())
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.bridges {
		if c == client {
			h.bridges = append(h.bridges[:i], h.bridges[i+1:]...)
			break
		}
	}
}

// Register hands client to the run loop. Once the hub has stopped it closes
// the client instead and reports false.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		close(client.done)
		client.conn.Close()
		return false
	}
}

// ServeHTTP upgrades the request and starts the client's pumps and worker.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade failed", "err", err)
		return
	}
	client := NewClient(h, conn)
	if !h.Register(client) {
		slog.Warn("hub stopped, rejecting bridge")
		return
	}
	go client.WritePump()
	go client.ProcessEvents(context.WithoutCancel(r.Context()))
	go client.ReadPump()
}

// Active returns the bridge platform calls go through, if any.
func (h *Hub) Active() *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.bridges) == 0 {
		return nil
	}
	return h.bridges[len(h.bridges)-1]
}

// Bridges returns the number of authenticated bridges.
func (h *Hub) Bridges() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bridges)
}

func (h *Hub) handleMessage(client *Client, data []byte) {
	var msg RPCMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "err", err)
		return
	}

	switch msg.Type {
	case "res":
		client.resolve(msg)

	case "req":
		// Handle connect specially (before auth check)
		if msg.Method == "connect" {
			h.handleConnect(client, msg)
			return
		}
		if !client.IsAuthenticated() {
			client.SendJSON(NewErrorResponse(msg.ID, CodeAuthRequired, "Not authenticated"))
			return
		}
		client.SendJSON(NewErrorResponse(msg.ID, CodeUnknownMethod, "Unknown method: "+msg.Method))

	case "event":
		if !client.IsAuthenticated() {
			slog.Warn("event from unauthenticated bridge", "event", msg.Event)
			return
		}
		client.enqueue(Event{Name: msg.Event, Payload: msg.Payload})

	default:
		slog.Warn("unknown message type", "type", msg.Type)
	}
}

func (h *Hub) handleConnect(client *Client, msg RPCMessage) {
	if client.IsAuthenticated() {
		client.SendJSON(NewErrorResponse(msg.ID, CodeAuthFailed, "Already authenticated"))
		return
	}

	bridgeID, err := VerifyConnect(msg.Params, client.challenge(), h.PublicKey)
	if err != nil {
		slog.Warn("auth failed", "err", err)
		client.SendJSON(NewErrorResponse(msg.ID, CodeAuthFailed, err.Error()))
		return
	}
	if h.PublicKey == nil {
		slog.Warn("no bridge public key configured, accepting bridge", "bridge", bridgeID)
	}

	client.SetAuth(bridgeID)
	h.mu.Lock()
	h.bridges = append(h.bridges, client)
	h.mu.Unlock()

	client.SendJSON(NewResponse(msg.ID, map[string]any{
		"protocol": Protocol,
		"policy": map[string]any{
			"tickIntervalMs": tickInterval.Milliseconds(),
		},
	}))

	slog.Info("bridge authenticated", "bridge", bridgeID)

	go h.tickLoop(client)
}

func (h *Hub) tickLoop(client *Client) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-ticker.C:
			if err := client.SendJSON(NewEvent("tick", nil)); err != nil {
				return
			}
		}
	}
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
