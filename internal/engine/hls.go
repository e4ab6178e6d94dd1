package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"camgrid/internal/logging"
	"camgrid/internal/sink"
)

// HLS is the live HLS implementation of Engine. One instance follows one
// media playlist; it is never reused after Destroy.
//
// The load loop runs on its own goroutine; network fetches are its only
// suspension points. Events are delivered from that goroutine via the
// EventFunc given at construction.
type HLS struct {
	cfg     Config
	onEvent EventFunc
	client  *http.Client
	logger  logging.Logger

	mu        sync.Mutex
	sourceURL string
	out       sink.Sink
	attached  bool
	loading   bool
	destroyed bool
	cancel    context.CancelFunc
	done      chan struct{}

	liveEdge float64
	nextSeq  uint64
	synced   bool
}

// NewHLS creates an HLS engine. Events are delivered to onEvent until
// Destroy.
func NewHLS(cfg Config, onEvent EventFunc) *HLS {
	cfg.fillDefaults()
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &HLS{
		cfg:     cfg,
		onEvent: onEvent,
		client:  client,
		logger:  logging.GetLogger("engine"),
	}
}

// LoadSource implements Engine.
func (h *HLS) LoadSource(url string) {
	h.mu.Lock()
	h.sourceURL = url
	h.maybeStartLocked()
	h.mu.Unlock()
}

// AttachMedia implements Engine.
func (h *HLS) AttachMedia(s sink.Sink) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.out = s
	h.attached = true
	h.mu.Unlock()

	h.emit(Event{Kind: EventMediaAttached})

	h.mu.Lock()
	h.maybeStartLocked()
	h.mu.Unlock()
}

// DetachMedia implements Engine.
func (h *HLS) DetachMedia() {
	h.StopLoad()
	h.mu.Lock()
	h.attached = false
	h.out = nil
	h.mu.Unlock()
}

// StopLoad implements Engine. Blocks until the load loop has exited so no
// segment write races a subsequent detach. Must not be called from the
// event callback; the load loop is the goroutine delivering events.
func (h *HLS) StopLoad() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.loading = false
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// StartLoad implements Engine. Resumes loading and re-syncs to the live
// edge.
func (h *HLS) StartLoad() {
	h.mu.Lock()
	h.synced = false
	h.maybeStartLocked()
	h.mu.Unlock()
}

// RecoverMediaError implements Engine: drop the buffered window and resume
// from the live edge.
func (h *HLS) RecoverMediaError() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return fmt.Errorf("engine destroyed")
	}
	out := h.out
	h.mu.Unlock()

	if out == nil {
		return fmt.Errorf("no media attached")
	}

	h.StopLoad()
	h.mu.Lock()
	h.synced = false
	out.Seek(h.liveEdge)
	h.maybeStartLocked()
	h.mu.Unlock()
	return nil
}

// Destroy implements Engine.
func (h *HLS) Destroy() {
	h.StopLoad()
	h.mu.Lock()
	h.destroyed = true
	h.attached = false
	h.out = nil
	h.onEvent = nil
	h.mu.Unlock()
}

// LiveEdge implements Engine.
func (h *HLS) LiveEdge() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.liveEdge
}

// maybeStartLocked starts the load loop once both a source and a sink are
// present. Caller holds h.mu.
func (h *HLS) maybeStartLocked() {
	if h.loading || h.destroyed || !h.attached || h.sourceURL == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done
	h.loading = true
	go func() {
		defer close(done)
		h.loadLoop(ctx)
	}()
}

// emit delivers an event unless the engine has been destroyed.
func (h *HLS) emit(ev Event) {
	h.mu.Lock()
	fn := h.onEvent
	destroyed := h.destroyed
	h.mu.Unlock()
	if fn != nil && !destroyed {
		fn(ev)
	}
}

func (h *HLS) fatal(class ErrorClass, detail string, err error) {
	h.mu.Lock()
	h.loading = false
	h.mu.Unlock()
	h.emit(Event{Kind: EventError, Err: &Error{Class: class, Fatal: true, Detail: detail, Err: err}})
}

func (h *HLS) transient(class ErrorClass, detail string, err error) {
	h.emit(Event{Kind: EventError, Err: &Error{Class: class, Fatal: false, Detail: detail, Err: err}})
}

// loadLoop resolves the media playlist, then follows it until cancelled,
// the stream ends, or a load phase exhausts its retries.
func (h *HLS) loadLoop(ctx context.Context) {
	h.mu.Lock()
	source := h.sourceURL
	h.mu.Unlock()

	playlistURL, err := h.resolveMediaPlaylist(ctx, source)
	if err != nil {
		if ctx.Err() == nil {
			h.fatal(ErrorClassNetwork, "manifest load failed", err)
		}
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		playlist, err := h.fetchPlaylist(ctx, playlistURL, h.cfg.PlaylistRetries)
		if err != nil {
			if ctx.Err() == nil {
				h.fatal(ErrorClassNetwork, "playlist load failed", err)
			}
			return
		}

		h.mu.Lock()
		h.liveEdge = float64(playlist.MediaSequence)*playlist.TargetDuration + playlist.Duration()
		edge := h.liveEdge
		h.mu.Unlock()

		h.emit(Event{Kind: EventLevelLoaded, LiveEdge: edge})

		if done := h.consume(ctx, playlist); done {
			return
		}

		interval := h.cfg.PollInterval
		if interval <= 0 {
			half := playlist.TargetDuration / 2
			if half < 0.5 {
				half = 0.5
			}
			interval = time.Duration(half * float64(time.Second))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// resolveMediaPlaylist fetches the source manifest and, if it is a master
// playlist, selects a rendition and returns its media playlist URL.
func (h *HLS) resolveMediaPlaylist(ctx context.Context, source string) (*url.URL, error) {
	base, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse manifest url: %w", err)
	}

	body, err := h.fetch(ctx, CacheBust(source), h.cfg.ManifestRetries, "manifest")
	if err != nil {
		return nil, err
	}

	master, media, err := ParsePlaylist(base, body)
	body.Close()
	if err != nil {
		return nil, err
	}

	if master == nil {
		// Standalone media playlist; source URL is the level URL.
		h.mu.Lock()
		h.liveEdge = float64(media.MediaSequence)*media.TargetDuration + media.Duration()
		edge := h.liveEdge
		h.mu.Unlock()
		h.emit(Event{Kind: EventManifestParsed, LiveEdge: edge})
		return base, nil
	}

	variant := h.selectVariant(master)
	h.emit(Event{Kind: EventManifestParsed})
	level, err := url.Parse(variant.URI)
	if err != nil {
		return nil, fmt.Errorf("parse variant url: %w", err)
	}
	return level, nil
}

// selectVariant auto-selects the starting rendition: the highest-bandwidth
// variant whose resolution fits the sink's rendered size, falling back to
// the lowest-bandwidth variant when nothing fits or the size is unknown.
func (h *HLS) selectVariant(master *MasterPlaylist) Variant {
	variants := make([]Variant, len(master.Variants))
	copy(variants, master.Variants)
	sort.Slice(variants, func(i, j int) bool { return variants[i].Bandwidth < variants[j].Bandwidth })

	h.mu.Lock()
	out := h.out
	h.mu.Unlock()

	var maxW, maxH int
	if out != nil {
		maxW, maxH = out.Size()
	}
	if maxW <= 0 || maxH <= 0 {
		return variants[0]
	}

	best := variants[0]
	for _, v := range variants {
		if v.Width == 0 || (v.Width <= maxW && v.Height <= maxH) {
			best = v
		}
	}
	return best
}

// consume feeds new playlist segments into the sink, honoring the forward
// buffer caps. Returns true when the loop should stop (ENDLIST or fatal).
func (h *HLS) consume(ctx context.Context, playlist *MediaPlaylist) bool {
	h.mu.Lock()
	if !h.synced {
		h.nextSeq = syncPoint(playlist, h.cfg.LiveSyncSegments)
		h.synced = true
	} else if last := playlist.LastSequence(); last >= uint64(h.cfg.MaxLiveLagSegments) && h.nextSeq < last-uint64(h.cfg.MaxLiveLagSegments) {
		// Fell too far behind live; jump forward rather than chase.
		h.logger.Debug("behind live edge, resyncing", "next", h.nextSeq, "last", last)
		h.nextSeq = syncPoint(playlist, h.cfg.LiveSyncSegments)
	}
	next := h.nextSeq
	out := h.out
	h.mu.Unlock()

	if out == nil {
		return true
	}

	var bufferedBytes int64
	for _, seg := range playlist.Segments {
		if seg.Sequence < next {
			continue
		}
		if ctx.Err() != nil {
			return true
		}

		// Respect the forward buffer: wait for the sink to drain before
		// fetching more.
		for out.BufferedAhead() >= h.cfg.MaxForwardBuffer || bufferedBytes >= h.cfg.MaxBufferBytes {
			select {
			case <-ctx.Done():
				return true
			case <-time.After(200 * time.Millisecond):
			}
			bufferedBytes = 0 // re-estimate from scratch after a drain wait
		}

		body, err := h.fetch(ctx, seg.URI, h.cfg.SegmentRetries, "segment")
		if err != nil {
			if ctx.Err() == nil {
				h.fatal(ErrorClassNetwork, "segment load failed", err)
			}
			return true
		}
		data, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			if ctx.Err() == nil {
				h.fatal(ErrorClassNetwork, "segment read failed", err)
			}
			return true
		}

		if err := out.WriteSegment(sink.Segment{
			Sequence: seg.Sequence,
			URI:      seg.URI,
			Duration: seg.Duration,
			Data:     data,
		}); err != nil {
			h.fatal(ErrorClassMedia, "segment ingest failed", err)
			return true
		}
		bufferedBytes += int64(len(data))

		h.mu.Lock()
		h.nextSeq = seg.Sequence + 1
		edge := h.liveEdge
		h.mu.Unlock()
		h.emit(Event{Kind: EventFragmentBuffered, Sequence: seg.Sequence, LiveEdge: edge})
	}

	if playlist.Ended {
		h.emit(Event{Kind: EventPlaylistEnded})
		h.mu.Lock()
		h.loading = false
		h.mu.Unlock()
		return true
	}
	return false
}

// syncPoint picks the startup sequence: LiveSyncSegments behind the newest
// segment, clamped to the playlist window.
func syncPoint(playlist *MediaPlaylist, liveSync int) uint64 {
	if len(playlist.Segments) == 0 {
		return playlist.MediaSequence
	}
	last := playlist.LastSequence()
	first := playlist.Segments[0].Sequence
	if back := uint64(liveSync - 1); last >= first+back {
		return last - back
	}
	return first
}

// fetchPlaylist fetches and parses a media playlist with a fresh
// cache-busting parameter per attempt.
func (h *HLS) fetchPlaylist(ctx context.Context, u *url.URL, retries int) (*MediaPlaylist, error) {
	body, err := h.fetch(ctx, CacheBust(u.String()), retries, "playlist")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	master, media, err := ParsePlaylist(u, body)
	if err != nil {
		return nil, err
	}
	if master != nil {
		return nil, fmt.Errorf("expected media playlist, got master")
	}
	return media, nil
}

// fetch performs a GET with bounded retries. Each failed attempt before the
// last emits a non-fatal network error.
func (h *HLS) fetch(ctx context.Context, rawURL string, retries int, phase string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := h.client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}
		if err == nil {
			resp.Body.Close()
			err = fmt.Errorf("%s: unexpected status %d", phase, resp.StatusCode)
		}
		lastErr = err
		if attempt < retries {
			h.transient(ErrorClassNetwork, phase+" retry", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
			}
		}
	}
	return nil, fmt.Errorf("%s failed after %d retries: %w", phase, retries, lastErr)
}
