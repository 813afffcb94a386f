// Package live streams delivery outcomes to connected WebSocket clients so
// open UIs can surface a reminder the moment it is sent.
package live

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pmorrell/minder/internal/model"
)

// Message is a delivery event broadcast to all clients.
type Message struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Channel        string `json:"channel"`
	Title          string `json:"title"`
	Status         string `json:"status"`
}

// Hub maintains the set of active WebSocket clients and broadcasts delivery
// events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "live_hub"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast fans a delivery outcome out to all connected clients. Slow
// clients are skipped rather than blocking the dispatch tick.
func (h *Hub) Broadcast(event string, n *model.Notification) {
	data, err := json.Marshal(Message{
		Type:           event,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Channel:        n.Channel,
		Title:          n.Title,
		Status:         n.Status,
	})
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
