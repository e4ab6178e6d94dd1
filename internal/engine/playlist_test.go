package engine

import (
	"net/url"
	"strings"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestParseMasterPlaylist(t *testing.T) {
	src := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,CODECS="avc1.640020,mp4a.40.2"
high/index.m3u8
`
	base := mustURL(t, "http://cam.local/stream/")
	master, media, err := ParsePlaylist(base, strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParsePlaylist: %v", err)
	}
	if media != nil {
		t.Fatal("expected master playlist, got media")
	}
	if len(master.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(master.Variants))
	}
	v := master.Variants[1]
	if v.Bandwidth != 2500000 || v.Width != 1280 || v.Height != 720 {
		t.Errorf("variant mismatch: %+v", v)
	}
	if v.URI != "http://cam.local/stream/high/index.m3u8" {
		t.Errorf("variant URI not resolved: %s", v.URI)
	}
}

func TestParseMediaPlaylist(t *testing.T) {
	src := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:120
#EXTINF:3.960,
seg120.ts
#EXTINF:4.000,
seg121.ts
#EXTINF:2.120,
seg122.ts
`
	base := mustURL(t, "http://cam.local/stream/low/index.m3u8")
	master, media, err := ParsePlaylist(base, strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParsePlaylist: %v", err)
	}
	if master != nil {
		t.Fatal("expected media playlist, got master")
	}
	if media.TargetDuration != 4 {
		t.Errorf("target duration = %v, want 4", media.TargetDuration)
	}
	if media.MediaSequence != 120 {
		t.Errorf("media sequence = %d, want 120", media.MediaSequence)
	}
	if len(media.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(media.Segments))
	}
	if media.Segments[2].Sequence != 122 {
		t.Errorf("last sequence = %d, want 122", media.Segments[2].Sequence)
	}
	if media.Segments[0].URI != "http://cam.local/stream/low/seg120.ts" {
		t.Errorf("segment URI not resolved: %s", media.Segments[0].URI)
	}
	if media.Ended {
		t.Error("playlist should not be marked ended")
	}
	if got := media.Duration(); got < 10.07 || got > 10.09 {
		t.Errorf("duration = %v, want ~10.08", got)
	}
}

func TestParsePlaylistEndlist(t *testing.T) {
	src := `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXTINF:4.0,
seg0.ts
#EXT-X-ENDLIST
`
	_, media, err := ParsePlaylist(mustURL(t, "http://cam.local/vod.m3u8"), strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParsePlaylist: %v", err)
	}
	if !media.Ended {
		t.Error("expected ENDLIST to mark playlist ended")
	}
}

func TestParsePlaylistRejectsGarbage(t *testing.T) {
	for _, src := range []string{"", "not a playlist", "#EXTM3U8\nseg.ts"} {
		if _, _, err := ParsePlaylist(mustURL(t, "http://x/"), strings.NewReader(src)); err == nil {
			t.Errorf("expected error for %q", src)
		}
	}
}

func TestCacheBust(t *testing.T) {
	a := CacheBust("http://cam.local/index.m3u8")
	if !strings.Contains(a, "_ts=") {
		t.Fatalf("missing cache-bust parameter: %s", a)
	}
	if CacheBust("http://cam.local/index.m3u8?a=1") == a {
		t.Error("existing query should be preserved alongside the parameter")
	}
}
