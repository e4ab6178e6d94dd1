package logging

import (
	"sync"
	"sync/atomic"
	"time"
)

// Entry is a single structured log line held in the history buffer.
type Entry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EntryFunc is called for each new log entry written to the history buffer.
type EntryFunc func(entry Entry)

// History is a thread-safe circular buffer of recent log entries.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	head    int
	count   int
	seq     atomic.Uint64
}

// NewHistory creates a history buffer holding up to size entries.
func NewHistory(size int) *History {
	return &History{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write appends an entry, assigning it a monotonic sequence number and
// overwriting the oldest entry when full.
func (h *History) Write(entry Entry) Entry {
	entry.Seq = h.seq.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.head] = entry
	h.head = (h.head + 1) % h.size
	if h.count < h.size {
		h.count++
	}
	return entry
}

// Recent returns up to n most recent entries, oldest first. n <= 0 returns
// everything buffered.
func (h *History) Recent(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]Entry, 0, n)
	start := (h.head - n + h.size) % h.size
	for i := 0; i < n; i++ {
		out = append(out, h.entries[(start+i)%h.size])
	}
	return out
}

// Len returns the number of buffered entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
