package store

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store

	if _, ok := s.RecentResolution("x", time.Hour); ok {
		t.Fatal("nil store returned a resolution")
	}
	s.SaveResolution("x", "y")
	s.MarkEmbedFailure("x")
	if s.IsDeadEmbed("x", 1, time.Hour) {
		t.Fatal("nil store reported a dead embed")
	}
	s.Prune(time.Hour, time.Hour)
	if err := s.Close(); err != nil {
		t.Fatalf("closing nil store: %v", err)
	}
}

func TestOpenEmptyPathDisables(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\") errored: %v", err)
	}
	if s != nil {
		t.Fatal("empty path should return a nil store")
	}
}

func TestResolutionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, ok := s.RecentResolution("https://voe.sx/e/abc", time.Hour); ok {
		t.Fatal("resolution found before any save")
	}

	s.SaveResolution("https://voe.sx/e/abc", "https://cdn.example/a.m3u8")
	got, ok := s.RecentResolution("https://voe.sx/e/abc", time.Hour)
	if !ok {
		t.Fatal("saved resolution not found")
	}
	if got != "https://cdn.example/a.m3u8" {
		t.Fatalf("stream = %q", got)
	}

	// expired window
	if _, ok := s.RecentResolution("https://voe.sx/e/abc", time.Nanosecond); ok {
		t.Fatal("resolution returned outside its ttl")
	}

	// overwrite on re-save
	s.SaveResolution("https://voe.sx/e/abc", "https://cdn.example/b.m3u8")
	got, _ = s.RecentResolution("https://voe.sx/e/abc", time.Hour)
	if got != "https://cdn.example/b.m3u8" {
		t.Fatalf("stream after re-save = %q", got)
	}
}

func TestDeadEmbedThreshold(t *testing.T) {
	s := openTestStore(t)
	embed := "https://mixdrop.ag/e/dead"

	s.MarkEmbedFailure(embed)
	s.MarkEmbedFailure(embed)
	if s.IsDeadEmbed(embed, 3, time.Hour) {
		t.Fatal("dead below threshold")
	}

	s.MarkEmbedFailure(embed)
	if !s.IsDeadEmbed(embed, 3, time.Hour) {
		t.Fatal("not dead at threshold")
	}

	// a successful resolution clears the history
	s.SaveResolution(embed, "https://cdn.example/x.m3u8")
	if s.IsDeadEmbed(embed, 3, time.Hour) {
		t.Fatal("still dead after a successful resolution")
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)

	s.SaveResolution("e1", "u1")
	s.MarkEmbedFailure("e2")

	// generous windows keep everything
	s.Prune(time.Hour, time.Hour)
	if _, ok := s.RecentResolution("e1", time.Hour); !ok {
		t.Fatal("prune removed a fresh resolution")
	}

	// zero windows prune nothing either (disabled)
	s.Prune(0, 0)
	if _, ok := s.RecentResolution("e1", time.Hour); !ok {
		t.Fatal("prune with zero ttl removed a resolution")
	}
}
