package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/framefit/passportcam/internal/log"
)

// Hub tracks connected clients and fans broadcasts out to them. Clients that
// cannot keep up with the feed are dropped rather than allowed to stall it.
type Hub struct {
	name string

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// last is replayed to clients as they connect, so a dashboard that
	// joins mid-session sees the current status instead of waiting for
	// the next transition. Binary frames are not retained.
	lastJSON []byte
}

// New creates a hub. Run must be started before clients attach.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run is the hub's main loop. It owns the client set; all membership changes
// happen here. Returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			if h.lastJSON != nil {
				select {
				case client.send <- JSON(h.lastJSON):
				default:
				}
			}
			h.mu.Unlock()
			log.Debug("hub client connected", "hub", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("hub client disconnected", "hub", h.name, "clients", count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			if msg.Kind == KindJSON {
				h.lastJSON = msg.Data
			}
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Send buffer full: the client is too slow.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow hub client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all connected clients. Drops the message if
// the hub itself is backed up.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn("hub broadcast queue full, dropping message", "hub", h.name)
	}
}

// BroadcastJSON encodes v and broadcasts it as a text frame.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(JSON(data))
	return nil
}

// BroadcastBinary broadcasts raw bytes, used for JPEG preview frames.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Binary(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
