// Package engine provides the adaptive-bitrate stream engine: it parses an
// HLS manifest, follows the live playlist, and feeds segments into a sink
// while staying close to the live edge. The session manager drives engines
// exclusively through the Engine interface so tests can substitute fakes.
package engine

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"camgrid/internal/sink"
)

// ErrorClass partitions engine errors for the initializer's recovery
// decisions.
type ErrorClass int

const (
	// ErrorClassNetwork covers manifest, playlist, and segment load
	// failures. Recoverable in place via StartLoad.
	ErrorClassNetwork ErrorClass = iota
	// ErrorClassMedia covers decode and sink ingest failures.
	ErrorClassMedia
	// ErrorClassOther covers everything else (parse errors, internal).
	ErrorClassOther
)

// String returns the lowercase class name.
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassNetwork:
		return "network"
	case ErrorClassMedia:
		return "media"
	default:
		return "other"
	}
}

// Error is an engine failure with a class and fatality marker. Non-fatal
// errors are informational; fatal errors mean the engine has stopped
// loading and needs outside intervention.
type Error struct {
	Class  ErrorClass
	Fatal  bool
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s (%s): %v", e.Detail, e.Class, e.Err)
	}
	return fmt.Sprintf("engine: %s (%s)", e.Detail, e.Class)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// EventKind identifies an engine notification.
type EventKind int

const (
	// EventMediaAttached fires once a sink is attached and a source set.
	EventMediaAttached EventKind = iota
	// EventManifestParsed fires after the master manifest (or a
	// standalone media playlist) is parsed.
	EventManifestParsed
	// EventLevelLoaded fires after each media playlist refresh.
	EventLevelLoaded
	// EventFragmentBuffered fires after a segment is written to the sink.
	EventFragmentBuffered
	// EventPlaylistEnded fires when the playlist presents EXT-X-ENDLIST.
	EventPlaylistEnded
	// EventError carries an Error, fatal or not.
	EventError
)

// Event is one engine notification.
type Event struct {
	Kind     EventKind
	Err      *Error  // set for EventError
	LiveEdge float64 // set for manifest/level/fragment events
	Sequence uint64  // set for fragment events
}

// EventFunc receives engine events. Called from engine goroutines; the
// receiver is responsible for marshaling onto its own loop.
type EventFunc func(Event)

// Config tunes an engine for low-latency live playback.
type Config struct {
	// MaxForwardBuffer is the most media, in seconds, kept buffered ahead
	// of the playback position.
	MaxForwardBuffer float64
	// MaxBufferBytes caps the estimated bytes held in the forward buffer.
	MaxBufferBytes int64
	// LiveSyncSegments is how many segments behind the live edge playback
	// starts and re-syncs to.
	LiveSyncSegments int
	// MaxLiveLagSegments is the furthest playback may drift behind the
	// live edge before the engine jumps forward.
	MaxLiveLagSegments int

	// Bounded per-phase load retries.
	ManifestRetries int
	PlaylistRetries int
	SegmentRetries  int

	// HTTPTimeout bounds each manifest/playlist/segment request.
	HTTPTimeout time.Duration
	// PollInterval overrides the playlist refresh interval; zero means
	// half the playlist target duration.
	PollInterval time.Duration

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// DefaultConfig returns the low-latency live profile: small forward buffer,
// tight live-edge tracking, bounded retries per load phase.
func DefaultConfig() Config {
	return Config{
		MaxForwardBuffer:   15,
		MaxBufferBytes:     3 << 20,
		LiveSyncSegments:   2,
		MaxLiveLagSegments: 4,
		ManifestRetries:    2,
		PlaylistRetries:    3,
		SegmentRetries:     3,
		HTTPTimeout:        10 * time.Second,
	}
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.MaxForwardBuffer <= 0 {
		c.MaxForwardBuffer = def.MaxForwardBuffer
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = def.MaxBufferBytes
	}
	if c.LiveSyncSegments <= 0 {
		c.LiveSyncSegments = def.LiveSyncSegments
	}
	if c.MaxLiveLagSegments <= 0 {
		c.MaxLiveLagSegments = def.MaxLiveLagSegments
	}
	if c.ManifestRetries <= 0 {
		c.ManifestRetries = def.ManifestRetries
	}
	if c.PlaylistRetries <= 0 {
		c.PlaylistRetries = def.PlaylistRetries
	}
	if c.SegmentRetries <= 0 {
		c.SegmentRetries = def.SegmentRetries
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = def.HTTPTimeout
	}
}

// Engine is the adaptive-bitrate playback component owned by a session.
type Engine interface {
	// LoadSource sets the manifest URL. Loading begins once media is also
	// attached.
	LoadSource(url string)
	// AttachMedia binds the output sink. Loading begins once a source is
	// also set.
	AttachMedia(s sink.Sink)
	// DetachMedia stops loading and unbinds the sink.
	DetachMedia()
	// StopLoad pauses network activity without releasing the sink.
	StopLoad()
	// StartLoad resumes loading after StopLoad or a network-class fatal
	// error, re-syncing to the live edge.
	StartLoad()
	// RecoverMediaError attempts the engine's built-in repair for
	// decode/media failures.
	RecoverMediaError() error
	// Destroy releases the engine permanently. No events fire afterward.
	Destroy()
	// LiveEdge returns the most recent playable position of the stream.
	LiveEdge() float64
}

// Factory constructs an engine. The session manager takes a Factory so
// tests can inject scripted engines.
type Factory func(cfg Config, onEvent EventFunc) Engine

// CacheBust appends a cache-defeating query parameter so intermediary
// caches never serve a stale manifest.
func CacheBust(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("_ts", strconv.FormatInt(time.Now().UnixNano(), 36))
	u.RawQuery = q.Encode()
	return u.String()
}
