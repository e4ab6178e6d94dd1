package session

import (
	"testing"

	"camgrid/internal/config"
)

func TestRegistryCreateReplaces(t *testing.T) {
	r := newRegistry()
	slot := config.Slot{Index: 0, URL: "http://cam/0.m3u8", Name: "Cam 0"}

	first := r.create(0, slot, &fakeSink{})
	second := r.create(0, slot, &fakeSink{})
	if first == second {
		t.Fatal("create must return a fresh session")
	}
	if !first.destroyed() {
		t.Error("replaced session was not destroyed")
	}
	if got, _ := r.get(0); got != second {
		t.Error("registry does not hold the replacement")
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := newRegistry()
	out := &fakeSink{}
	s := r.create(3, config.Slot{Index: 3, URL: "http://cam/3.m3u8"}, out)

	r.remove(3)
	r.remove(3) // second call must be a no-op
	r.remove(9) // absent index is fine too

	if !s.destroyed() {
		t.Error("session not marked destroyed")
	}
	if _, ok := r.get(3); ok {
		t.Error("session still present after remove")
	}
	if out.pauseCount() == 0 {
		t.Error("sink not paused during teardown")
	}
}

func TestRegistryRemoveReleasesEngine(t *testing.T) {
	r := newRegistry()
	s := r.create(0, config.Slot{Index: 0, URL: "http://cam/0.m3u8"}, &fakeSink{})

	e := &fakeEngine{}
	s.engine = e
	r.remove(0)

	if !e.isDestroyed() {
		t.Error("engine not destroyed on remove")
	}
	if !e.isStopped() {
		t.Error("engine loading not stopped on remove")
	}
	if s.engine != nil {
		t.Error("engine reference not cleared")
	}
}

func TestRegistryEachInSlotOrder(t *testing.T) {
	r := newRegistry()
	for _, i := range []int{4, 0, 2} {
		r.create(i, config.Slot{Index: i, URL: "http://cam/x.m3u8"}, &fakeSink{})
	}
	var order []int
	r.each(func(s *Session) { order = append(order, s.index) })
	want := []int{0, 2, 4}
	if len(order) != len(want) {
		t.Fatalf("visited %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("visited %v, want %v", order, want)
		}
	}
}
