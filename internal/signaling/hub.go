package signaling

import (
	"sync"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/relay"
)

// Hub indexes live connections by ID. It is the relay's Deliverer.
type Hub struct {
	max     int
	metrics *metrics.Metrics

	mu    sync.RWMutex
	conns map[string]*conn
}

// NewHub returns an empty hub admitting at most max connections (0 means
// unlimited).
func NewHub(max int, m *metrics.Metrics) *Hub {
	return &Hub{
		max:     max,
		metrics: m,
		conns:   make(map[string]*conn),
	}
}

var _ relay.Deliverer = (*Hub)(nil)

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Full reports whether a new connection would be refused.
func (h *Hub) Full() bool {
	return h.max > 0 && h.Len() >= h.max
}

func (h *Hub) register(c *conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.max > 0 && len(h.conns) >= h.max {
		return ErrTooManyConnections
	}
	h.conns[c.id] = c
	return nil
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if h.conns[c.id] == c {
		delete(h.conns, c.id)
	}
	h.mu.Unlock()
}

func (h *Hub) get(id string) *conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[id]
}

// Deliver queues frame for connection id. Unknown, closing and overloaded
// connections report false.
func (h *Hub) Deliver(id string, frame []byte) bool {
	c := h.get(id)
	if c == nil {
		return false
	}
	return c.enqueue(frame)
}

// CloseAll sends a going-away close to every connection. It is used during
// shutdown; the read loops then run their normal cleanup.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.shutdown(reason)
	}
}
