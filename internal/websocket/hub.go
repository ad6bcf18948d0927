// Package websocket streams loyalty activity to connected dashboards. Each
// connection follows one merchant.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a live feed entry.
type Message struct {
	Type       string         `json:"type"`
	MerchantID int64          `json:"merchant_id"`
	Entity     string         `json:"entity"`
	Action     string         `json:"action"`
	ID         int64          `json:"id,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(merchantID int64, entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:       fmt.Sprintf("%s_%s", entity, action),
		MerchantID: merchantID,
		Entity:     entity,
		Action:     action,
		ID:         id,
		Extra:      extra,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
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

// Broadcast sends a message to every client following msg.MerchantID.
// Clients whose buffers are full miss the message.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.merchantID != msg.MerchantID {
			continue
		}
		if !c.enqueue(data) {
			h.logger.Debug("feed message dropped", "merchant_id", c.merchantID, "type", msg.Type)
		}
	}
}

// Publish builds and broadcasts a message in one call.
func (h *Hub) Publish(merchantID int64, entity, action string, id int64, extra map[string]any) {
	h.Broadcast(NewMessage(merchantID, entity, action, id, extra))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
