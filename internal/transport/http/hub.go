package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"live-quiz-service/internal/domain"
)

// Hub fans events out to every connected websocket client. It implements app.Broadcaster.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu     sync.RWMutex
	logger *slog.Logger
	done   chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled, then closes every connection.
// A client's send channel belongs to its handler, which closes it after remove returns.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				_ = c.conn.Close()
			}
			h.mu.Unlock()
			h.logger.Info("websocket hub stopping")
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", c.id, "role", c.role, "name", c.name)

		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", c.id)

		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("client buffer full, skipping", "client_id", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues event for every client without waiting on any of them.
func (h *Hub) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", event.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "type", event.Type)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
