package logging

import (
	"log/slog"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"ERROR", slog.LevelError, true},
		{"verbose", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.ok {
				if got == nil {
					t.Fatalf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
				}
				if *got != tt.want {
					t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
				}
			} else if got != nil {
				t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
			}
		})
	}
}

func TestHistoryWrapAround(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Write(Entry{Timestamp: time.Now(), Level: "info", Module: "test", Message: string(rune('a' + i))})
	}

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}

	entries := h.Recent(0)
	if len(entries) != 3 {
		t.Fatalf("Recent(0) returned %d entries, want 3", len(entries))
	}
	// Oldest surviving entry is "c" (third written).
	if entries[0].Message != "c" || entries[2].Message != "e" {
		t.Errorf("Recent(0) = [%s %s %s], want [c d e]", entries[0].Message, entries[1].Message, entries[2].Message)
	}
}

func TestHistorySequenceMonotonic(t *testing.T) {
	h := NewHistory(10)
	var last uint64
	for i := 0; i < 4; i++ {
		e := h.Write(Entry{Message: "x"})
		if e.Seq <= last {
			t.Fatalf("sequence not monotonic: %d after %d", e.Seq, last)
		}
		last = e.Seq
	}
}

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	a := GetLogger("logging-test-module")
	b := GetLogger("logging-test-module")
	if a != b {
		t.Error("GetLogger returned different instances for the same module")
	}
}

func TestHistoryRecentLimit(t *testing.T) {
	h := NewHistory(5)
	for i := 0; i < 5; i++ {
		h.Write(Entry{Message: "m"})
	}
	if got := len(h.Recent(2)); got != 2 {
		t.Errorf("Recent(2) returned %d entries, want 2", got)
	}
	if got := len(h.Recent(100)); got != 5 {
		t.Errorf("Recent(100) returned %d entries, want 5", got)
	}
}
