// Package sink models the video output surface a stream session attaches
// to. The session manager only ever talks to the Sink interface; the relay
// implementation fans media out to connected dashboard clients over
// websockets.
package sink

// Segment is one piece of media fed to a sink by the adaptive-bitrate path.
type Segment struct {
	Sequence uint64
	URI      string
	Duration float64 // seconds
	Data     []byte
}

// Sink is one slot's output surface. The manager attaches and detaches
// media but does not own the sink; its lifetime is tied to the layout
// layer.
type Sink interface {
	// SetSource attaches a raw source URL for native playback (direct
	// path). The adaptive path feeds media via WriteSegment instead.
	SetSource(url string)
	// ClearSource pauses playback and drops any attached media.
	ClearSource()

	Play() error
	Pause()

	Playing() bool
	Paused() bool

	// Position is the current playback position in seconds.
	Position() float64
	// BufferedAhead is how many seconds of media are buffered beyond the
	// current position.
	BufferedAhead() float64
	// Seek moves the playback position, discarding buffered media.
	Seek(pos float64)

	// Err reports a decode or transport error observed by the surface,
	// nil when playback is healthy.
	Err() error

	// WriteSegment ingests one segment of media from a stream engine.
	WriteSegment(seg Segment) error

	// ShowPlaceholder displays a message instead of media, e.g. for
	// unconfigured slots.
	ShowPlaceholder(msg string)

	// Size returns the rendered surface dimensions in pixels, zero when
	// unknown.
	Size() (width, height int)
}
