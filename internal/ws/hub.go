package ws

import (
	"sync"

	"connectifyr/internal/metrics"
	"connectifyr/internal/models"

	"go.uber.org/zap"
)

const clientBuffer = 100

// Hub fans session events out to every open browser tab.
type Hub struct {
	clients map[uint64]chan models.ServerEvent
	nextID  uint64
	logger  *zap.Logger

	mu sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[uint64]chan models.ServerEvent),
		logger:  logger.Named("hub"),
	}
}

// Join registers a new client and returns its id and event channel.
func (h *Hub) Join() (uint64, chan models.ServerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ch := make(chan models.ServerEvent, clientBuffer)
	h.clients[h.nextID] = ch
	metrics.ConnectedClients.Inc()
	return h.nextID, ch
}

func (h *Hub) Leave(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
		metrics.ConnectedClients.Dec()
	}
}

// Publish never blocks. A client whose buffer is full misses the event and
// catches up on its next fetch. A logout event is the last one a tab gets:
// every client is disconnected right after it.
func (h *Hub) Publish(event models.ServerEvent) {
	if event.Type == models.ServerEventLogout {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.broadcast(event)
		h.disconnectAll()
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.broadcast(event)
}

func (h *Hub) broadcast(event models.ServerEvent) {
	for id, ch := range h.clients {
		select {
		case ch <- event:
		default:
			h.logger.Warn("client too slow, dropping event", zap.Uint64("client", id), zap.String("type", string(event.Type)))
		}
	}
}

func (h *Hub) disconnectAll() {
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
		metrics.ConnectedClients.Dec()
	}
	h.logger.Debug("all clients disconnected")
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
