package sink

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"camgrid/internal/logging"
)

// control message types sent to dashboard clients.
const (
	ctrlAttach      = "attach"      // attach the given URL natively
	ctrlDetach      = "detach"      // drop the current source
	ctrlPlaceholder = "placeholder" // show a placeholder message
	ctrlPause       = "pause"
	ctrlPlay        = "play"
)

// ErrNoSource is returned by Play when nothing is attached to the sink.
var ErrNoSource = errors.New("sink: no source attached")

type controlMessage struct {
	Type    string `json:"type"`
	Slot    int    `json:"slot"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// client serializes writes to one dashboard connection. gorilla/websocket
// permits a single concurrent writer per connection, while segments arrive
// from engine goroutines and controls from the manager loop.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// Relay is a Sink that forwards media to connected dashboard clients over
// websockets. Playback position is modeled server-side: it advances in
// wall-clock time while playing, bounded by how much media the engine has
// delivered, so the health monitor observes stalls exactly when delivery
// stops.
type Relay struct {
	slot   int
	logger logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*client

	source  string // direct-path URL, empty in fed mode
	fed     bool   // true once an engine wrote a segment
	paused  bool
	stopped bool

	pos      float64 // position at lastSync
	buffered float64 // seconds of delivered media beyond pos at lastSync
	lastSync time.Time
	err      error

	width, height int
}

// NewRelay creates a relay sink for one grid slot.
func NewRelay(slot int, logger logging.Logger) *Relay {
	return &Relay{
		slot:     slot,
		logger:   logger,
		clients:  make(map[*websocket.Conn]*client),
		paused:   true,
		lastSync: time.Now(),
	}
}

// AddClient registers a dashboard websocket connection.
func (r *Relay) AddClient(conn *websocket.Conn) {
	c := &client{conn: conn}
	r.mu.Lock()
	r.clients[conn] = c
	source := r.source
	r.mu.Unlock()

	// A late joiner on a direct-path slot needs the attach message replayed.
	if source != "" {
		msg, _ := json.Marshal(controlMessage{Type: ctrlAttach, Slot: r.slot, URL: source})
		_ = c.write(websocket.TextMessage, msg)
	}
}

// RemoveClient unregisters a connection. The caller owns closing it.
func (r *Relay) RemoveClient(conn *websocket.Conn) {
	r.mu.Lock()
	delete(r.clients, conn)
	r.mu.Unlock()
}

// ClientCount returns the number of attached dashboard connections.
func (r *Relay) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// ReportError records a decode/transport error reported by a client.
// Cleared by ClearSource.
func (r *Relay) ReportError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// SetSource implements Sink (direct playback path).
func (r *Relay) SetSource(url string) {
	r.mu.Lock()
	r.syncLocked()
	r.source = url
	r.fed = false
	r.pos = 0
	r.buffered = 0
	r.err = nil
	r.mu.Unlock()

	r.broadcastControl(controlMessage{Type: ctrlAttach, Slot: r.slot, URL: url})
}

// ClearSource implements Sink.
func (r *Relay) ClearSource() {
	r.mu.Lock()
	r.source = ""
	r.fed = false
	r.paused = true
	r.pos = 0
	r.buffered = 0
	r.err = nil
	r.lastSync = time.Now()
	r.mu.Unlock()

	r.broadcastControl(controlMessage{Type: ctrlDetach, Slot: r.slot})
}

// Play implements Sink.
func (r *Relay) Play() error {
	r.mu.Lock()
	if r.source == "" && !r.fed {
		r.mu.Unlock()
		return ErrNoSource
	}
	r.syncLocked()
	r.paused = false
	r.mu.Unlock()

	r.broadcastControl(controlMessage{Type: ctrlPlay, Slot: r.slot})
	return nil
}

// Pause implements Sink.
func (r *Relay) Pause() {
	r.mu.Lock()
	r.syncLocked()
	r.paused = true
	r.mu.Unlock()

	r.broadcastControl(controlMessage{Type: ctrlPause, Slot: r.slot})
}

// Playing implements Sink.
func (r *Relay) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.paused && (r.source != "" || r.fed)
}

// Paused implements Sink.
func (r *Relay) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Position implements Sink.
func (r *Relay) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncLocked()
	return r.pos
}

// BufferedAhead implements Sink. Direct-path playback is opaque to the
// server, so it reports unbounded buffer.
func (r *Relay) BufferedAhead() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.source != "" && !r.fed {
		return math.Inf(1)
	}
	r.syncLocked()
	return r.buffered
}

// Seek implements Sink.
func (r *Relay) Seek(pos float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncLocked()
	if pos > r.pos {
		// Seeking forward consumes buffered media.
		r.buffered = math.Max(0, r.buffered-(pos-r.pos))
	}
	r.pos = pos
}

// Err implements Sink.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// WriteSegment implements Sink: fan the segment out to every client and
// extend the buffered window.
func (r *Relay) WriteSegment(seg Segment) error {
	r.mu.Lock()
	r.syncLocked()
	r.fed = true
	r.buffered += seg.Duration
	conns := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if err := c.write(websocket.BinaryMessage, seg.Data); err != nil {
			r.logger.Debug("segment write failed, dropping client", "slot", r.slot, "error", err)
			r.RemoveClient(c.conn)
			_ = c.conn.Close()
		}
	}
	return nil
}

// ShowPlaceholder implements Sink.
func (r *Relay) ShowPlaceholder(msg string) {
	r.broadcastControl(controlMessage{Type: ctrlPlaceholder, Slot: r.slot, Message: msg})
}

// Size implements Sink.
func (r *Relay) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// SetSize records the rendered surface dimensions reported by the layout
// layer, used to cap engine render resolution.
func (r *Relay) SetSize(width, height int) {
	r.mu.Lock()
	r.width, r.height = width, height
	r.mu.Unlock()
}

// syncLocked advances the modeled playback clock. While playing, position
// moves forward in wall-clock time but never past the delivered media.
// Caller holds r.mu.
func (r *Relay) syncLocked() {
	now := time.Now()
	elapsed := now.Sub(r.lastSync).Seconds()
	r.lastSync = now

	if r.paused || elapsed <= 0 {
		return
	}
	if r.source != "" && !r.fed {
		// Direct playback: no server-side buffer model, clock runs free.
		r.pos += elapsed
		return
	}
	advance := math.Min(elapsed, r.buffered)
	r.pos += advance
	r.buffered -= advance
}

func (r *Relay) broadcastControl(msg controlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	r.mu.Lock()
	conns := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if err := c.write(websocket.TextMessage, data); err != nil {
			r.RemoveClient(c.conn)
			_ = c.conn.Close()
		}
	}
}
