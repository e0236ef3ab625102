package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chat-backend/internal/observability"
)

// Hub tracks live websocket connections so they can be counted and drained.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	log     *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: make(map[string]*client), log: logger.Named("ws.hub")}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.info.ConnID] = c
	h.mu.Unlock()
	observability.IncWSActive(c.info.Kind)
	observability.IncWSEvent(c.info.Kind, "ws_connect")
	h.publish(c.info, "ws_connect", "")
}

func (h *Hub) remove(c *client, reason string, failed bool) {
	h.mu.Lock()
	delete(h.clients, c.info.ConnID)
	h.mu.Unlock()
	observability.DecWSActive(c.info.Kind)
	if failed {
		observability.IncWSEvent(c.info.Kind, "ws_error")
		h.publish(c.info, "ws_error", reason)
	}
	observability.IncWSEvent(c.info.Kind, "ws_disconnect")
	h.publish(c.info, "ws_disconnect", reason)
}

// Count reports live connections of kind; an empty kind counts all.
func (h *Hub) Count(kind string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if kind == "" {
		return len(h.clients)
	}
	n := 0
	for _, c := range h.clients {
		if c.info.Kind == kind {
			n++
		}
	}
	return n
}

// Shutdown asks every connection to close with a going-away frame.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	h.log.Info("closing websocket connections", zap.Int("count", len(clients)))
	for _, c := range clients {
		c.shutdown()
	}
}

func (h *Hub) publish(info ConnInfo, event, reason string) {
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	if err := observability.PublishEvent(context.Background(), info.routingKey(), info.lifecycle().Envelope(event, reason), headers); err != nil {
		h.log.Debug("ws lifecycle publish failed", zap.String("event", event), zap.Error(err))
	}
}
