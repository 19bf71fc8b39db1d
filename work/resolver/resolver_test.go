package resolver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"vodharvest/work/types"
)

func TestIsManifestURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example/stream/master.m3u8", true},
		{"https://cdn.example/stream/master.m3u8?token=abc", true},
		{"https://cdn.example/stream/MASTER.M3U8", true},
		{"https://cdn.example/seg/chunk.ts", false},
		{"https://cdn.example/page?file=master.m3u8", false},
		{"https://cdn.example/analytics.js", false},
		{"://not a url", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsManifestURL(tc.url); got != tc.want {
			t.Errorf("IsManifestURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestScanInlineManifest(t *testing.T) {
	body := `<html><script>var player = {"file": "https://cdn.example/hls/master.m3u8?sig=xyz"};</script></html>`
	got, ok := ScanInlineManifest(body)
	if !ok {
		t.Fatal("no manifest found in page body")
	}
	if got != "https://cdn.example/hls/master.m3u8?sig=xyz" {
		t.Fatalf("got %q", got)
	}
}

func TestScanInlineManifestEscaped(t *testing.T) {
	body := `{"source":"https:\/\/cdn.example\/hls\/index.m3u8"}`
	got, ok := ScanInlineManifest(body)
	if !ok {
		t.Fatal("no manifest found in escaped body")
	}
	if got != "https://cdn.example/hls/index.m3u8" {
		t.Fatalf("got %q", got)
	}
}

func TestScanInlineManifestAbsent(t *testing.T) {
	if _, ok := ScanInlineManifest("<html>nothing here</html>"); ok {
		t.Fatal("found a manifest in a page without one")
	}
}

func TestRaceFirstWins(t *testing.T) {
	candidates := []types.EmbedCandidate{
		{URL: "https://slow.example/e/1", ProviderTag: "slow"},
		{URL: "https://fast.example/e/2", ProviderTag: "fast"},
	}

	resolve := func(ctx context.Context, c types.EmbedCandidate) *types.ResolvedStream {
		if c.ProviderTag == "fast" {
			return &types.ResolvedStream{URL: "https://cdn.example/fast.m3u8", SourceCandidate: c}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
			return &types.ResolvedStream{URL: "https://cdn.example/slow.m3u8", SourceCandidate: c}
		}
	}

	start := time.Now()
	got := raceFirst(context.Background(), candidates, resolve)
	if got == nil {
		t.Fatal("race returned nil")
	}
	if got.URL != "https://cdn.example/fast.m3u8" {
		t.Fatalf("winner = %q, want the fast candidate", got.URL)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("race did not cancel the slow loser: took %s", elapsed)
	}
}

func TestRaceFirstAllFail(t *testing.T) {
	candidates := []types.EmbedCandidate{
		{URL: "a"}, {URL: "b"}, {URL: "c"},
	}
	var calls atomic.Int32
	resolve := func(ctx context.Context, c types.EmbedCandidate) *types.ResolvedStream {
		calls.Add(1)
		return nil
	}
	if got := raceFirst(context.Background(), candidates, resolve); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
	if calls.Load() != 3 {
		t.Fatalf("resolve called %d times, want 3", calls.Load())
	}
}

func TestRaceFirstNoCandidates(t *testing.T) {
	if got := raceFirst(context.Background(), nil, nil); got != nil {
		t.Fatalf("expected nil for empty candidate set, got %+v", got)
	}
}

func TestRaceFirstReturnsWithinBudget(t *testing.T) {
	// a candidate that never resolves yields nil promptly, without hanging
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var attempts atomic.Int32
	resolve := func(ctx context.Context, c types.EmbedCandidate) *types.ResolvedStream {
		attempts.Add(1)
		return nil
	}
	got := raceFirst(ctx, []types.EmbedCandidate{{URL: "x"}}, resolve)
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
