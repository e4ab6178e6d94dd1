package engine

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Variant is one rendition in a master manifest.
type Variant struct {
	URI       string
	Bandwidth int
	Width     int
	Height    int
}

// MasterPlaylist lists the available renditions.
type MasterPlaylist struct {
	Variants []Variant
}

// MediaSegment is one entry of a media playlist.
type MediaSegment struct {
	Sequence uint64
	URI      string
	Duration float64
}

// MediaPlaylist is a parsed media playlist.
type MediaPlaylist struct {
	TargetDuration float64
	MediaSequence  uint64
	Segments       []MediaSegment
	Ended          bool
}

// Duration returns the total seconds of media the playlist covers.
func (p *MediaPlaylist) Duration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// LastSequence returns the sequence number of the newest segment, or
// MediaSequence when the playlist is empty.
func (p *MediaPlaylist) LastSequence() uint64 {
	if len(p.Segments) == 0 {
		return p.MediaSequence
	}
	return p.Segments[len(p.Segments)-1].Sequence
}

// ParsePlaylist reads an M3U8 document and returns either a master playlist
// or a media playlist, never both. URIs are resolved against base.
//
// Only the tags camgrid needs are interpreted; unknown tags are skipped,
// which is what the HLS spec requires of clients anyway.
func ParsePlaylist(base *url.URL, r io.Reader) (*MasterPlaylist, *MediaPlaylist, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty playlist")
	}
	if first := strings.TrimSpace(scanner.Text()); first != "#EXTM3U" {
		return nil, nil, fmt.Errorf("not an M3U8 playlist: first line %q", first)
	}

	master := &MasterPlaylist{}
	media := &MediaPlaylist{}

	var pendingVariant *Variant
	var pendingDuration float64
	var haveDuration bool
	seq := uint64(0)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			v := parseStreamInf(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			pendingVariant = &v

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if d, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64); err == nil {
				media.TargetDuration = d
			}

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if n, err := strconv.ParseUint(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64); err == nil {
				media.MediaSequence = n
				seq = n
			}

		case strings.HasPrefix(line, "#EXTINF:"):
			spec := strings.TrimPrefix(line, "#EXTINF:")
			if i := strings.IndexByte(spec, ','); i >= 0 {
				spec = spec[:i]
			}
			d, err := strconv.ParseFloat(strings.TrimSpace(spec), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad EXTINF duration: %w", err)
			}
			pendingDuration = d
			haveDuration = true

		case line == "#EXT-X-ENDLIST":
			media.Ended = true

		case strings.HasPrefix(line, "#"):
			// Unrecognized tag, skip.

		default:
			uri := resolveURI(base, line)
			if pendingVariant != nil {
				pendingVariant.URI = uri
				master.Variants = append(master.Variants, *pendingVariant)
				pendingVariant = nil
				continue
			}
			if !haveDuration {
				return nil, nil, fmt.Errorf("segment %q without EXTINF", line)
			}
			media.Segments = append(media.Segments, MediaSegment{
				Sequence: seq,
				URI:      uri,
				Duration: pendingDuration,
			})
			seq++
			haveDuration = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read playlist: %w", err)
	}

	if len(master.Variants) > 0 {
		return master, nil, nil
	}
	return nil, media, nil
}

// parseStreamInf extracts the attributes camgrid cares about from an
// EXT-X-STREAM-INF attribute list.
func parseStreamInf(attrs string) Variant {
	var v Variant
	for _, attr := range splitAttributes(attrs) {
		key, value, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "BANDWIDTH":
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				v.Bandwidth = n
			}
		case "RESOLUTION":
			if w, h, ok := strings.Cut(strings.TrimSpace(value), "x"); ok {
				v.Width, _ = strconv.Atoi(w)
				v.Height, _ = strconv.Atoi(h)
			}
		}
	}
	return v
}

// splitAttributes splits an attribute list on commas outside quoted
// strings.
func splitAttributes(s string) []string {
	var out []string
	var b strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == ',' && !inQuote:
			out = append(out, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// resolveURI resolves a possibly-relative playlist URI against the
// playlist's own URL.
func resolveURI(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
