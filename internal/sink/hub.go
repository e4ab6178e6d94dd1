package sink

import (
	"sync"

	"github.com/gorilla/websocket"

	"camgrid/internal/logging"
)

// Hub owns one relay sink per grid slot and tracks total dashboard client
// presence across slots. The session manager asks the hub for sinks; the
// API layer attaches websocket clients to them.
type Hub struct {
	logger logging.Logger

	mu         sync.Mutex
	relays     map[int]*Relay
	clients    int
	onPresence func(clients int)
}

// NewHub creates an empty sink hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		relays: make(map[int]*Relay),
	}
}

// OnPresence registers a callback invoked with the total client count after
// every join or leave. Used to derive page visibility from presence.
func (h *Hub) OnPresence(fn func(clients int)) {
	h.mu.Lock()
	h.onPresence = fn
	h.mu.Unlock()
}

// Sink returns the relay for a slot, creating it on first use. Relays
// survive registry rebuilds; the manager attaches and detaches media but
// the surface itself belongs to the layout.
func (h *Hub) Sink(slot int) *Relay {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.relays[slot]
	if !ok {
		r = NewRelay(slot, h.logger)
		h.relays[slot] = r
	}
	return r
}

// Join attaches a dashboard websocket client to a slot's relay.
func (h *Hub) Join(slot int, conn *websocket.Conn) *Relay {
	h.mu.Lock()
	r, ok := h.relays[slot]
	if !ok {
		r = NewRelay(slot, h.logger)
		h.relays[slot] = r
	}
	h.clients++
	count := h.clients
	fn := h.onPresence
	h.mu.Unlock()

	r.AddClient(conn)
	h.logger.Debug("dashboard client joined", "slot", slot, "clients", count)
	if fn != nil {
		fn(count)
	}
	return r
}

// Leave detaches a client from a slot's relay.
func (h *Hub) Leave(slot int, conn *websocket.Conn) {
	h.mu.Lock()
	r, ok := h.relays[slot]
	if ok {
		h.clients--
	}
	count := h.clients
	fn := h.onPresence
	h.mu.Unlock()

	if ok {
		r.RemoveClient(conn)
	}
	h.logger.Debug("dashboard client left", "slot", slot, "clients", count)
	if fn != nil {
		fn(count)
	}
}

// Clients returns the total number of attached dashboard connections.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}
