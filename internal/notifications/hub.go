package notifications

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max total listener connections per node
	maxTotalConns = 10000
)

// RadioHub fans broadcast/song change events out to every connected listener
// socket on this node. Unlike a chat hub there is no per-user routing: the
// station has one timeline and everyone hears the same thing.
type RadioHub struct {
	mu         sync.RWMutex
	conns      map[*Client]struct{}
	totalConns int
	shutdown   chan struct{}
	closed     bool
}

// Name returns a human-readable identifier for this hub.
func (h *RadioHub) Name() string { return "radio hub" }

// NewRadioHub creates a new RadioHub instance.
func NewRadioHub() *RadioHub {
	return &RadioHub{
		conns:    make(map[*Client]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Register adds a listener connection. profileID is zero for anonymous listeners.
func (h *RadioHub) Register(profileID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errors.New("hub is shut down")
	}
	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	client := NewClient(h, conn, profileID)
	h.conns[client] = struct{}{}
	h.totalConns++
	return client, nil
}

// UnregisterClient removes a listener connection.
func (h *RadioHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[client]; ok {
		delete(h.conns, client)
		h.totalConns--
	}
}

// ListenerCount returns the number of connected listener sockets.
func (h *RadioHub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// Broadcast sends a message to every connected listener. Slow consumers whose
// send buffers are full are dropped rather than allowed to stall the fanout.
func (h *RadioHub) Broadcast(message []byte) {
	h.mu.RLock()
	var stale []*Client
	for client := range h.conns {
		select {
		case client.Send <- message:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		log.Printf("RadioHub: dropping slow listener (profile %d)", client.ProfileID)
		h.UnregisterClient(client)
		close(client.Send)
	}
}

// StartWiring subscribes the hub to the Redis radio channels so mutations on
// any node reach listeners connected to this one.
func (h *RadioHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		h.Broadcast([]byte(payload))
	})
}

// Shutdown closes every listener connection and stops accepting new ones.
func (h *RadioHub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.conns))
	for client := range h.conns {
		clients = append(clients, client)
	}
	h.conns = make(map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	for _, client := range clients {
		close(client.Send)
	}
	close(h.shutdown)
	return nil
}
