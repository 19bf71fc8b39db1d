package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"vodharvest/work/playlist"
)

// swappableSource stands in for the orchestrator, whose aggregator changes
// between harvest runs.
type swappableSource struct {
	agg *playlist.Aggregator
}

func (s *swappableSource) Playlist() *playlist.Aggregator {
	return s.agg
}

func seededAggregator() *playlist.Aggregator {
	agg := playlist.NewAggregator()
	agg.Add(playlist.Entry{Title: "T", GroupName: playlist.TrendingGroup, StreamURL: "https://cdn.example/t.m3u8"})
	agg.Add(playlist.Entry{Title: "H", GroupName: "Horror", StreamURL: "https://cdn.example/h.m3u8"})
	return agg
}

func testRouter(agg *playlist.Aggregator) *mux.Router {
	return sourceRouter(&swappableSource{agg: agg})
}

func sourceRouter(src Source) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/playlist", HandlePlaylist(src)).Methods("GET")
	router.HandleFunc("/{group}/playlist", HandleGroupPlaylist(src)).Methods("GET")
	router.HandleFunc("/healthz", HandleHealthz()).Methods("GET")
	return router
}

func TestHandlePlaylist(t *testing.T) {
	router := testRouter(seededAggregator())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/playlist", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "#EXTM3U\n") {
		t.Fatal("response is not a playlist")
	}
	if !strings.Contains(body, "https://cdn.example/t.m3u8") || !strings.Contains(body, "https://cdn.example/h.m3u8") {
		t.Fatal("full playlist missing entries")
	}
}

func TestHandlePlaylistEmpty(t *testing.T) {
	router := testRouter(playlist.NewAggregator())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/playlist", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before first harvest", rec.Code)
	}
}

func TestHandleGroupPlaylist(t *testing.T) {
	router := testRouter(seededAggregator())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/Horror/playlist", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "https://cdn.example/h.m3u8") {
		t.Fatal("group playlist missing its entry")
	}
	if strings.Contains(body, "https://cdn.example/t.m3u8") {
		t.Fatal("group playlist leaked another group's entry")
	}
}

func TestHandleGroupPlaylistSanitizedName(t *testing.T) {
	router := testRouter(seededAggregator())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/Trending_Movies/playlist", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want sanitized group name to match", rec.Code)
	}
}

func TestHandleGroupPlaylistUnknown(t *testing.T) {
	router := testRouter(seededAggregator())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/Nope/playlist", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandlePlaylistSeesSwappedAggregator(t *testing.T) {
	// handlers must follow the source across a refresh, not hold the
	// aggregator they were built with
	src := &swappableSource{agg: seededAggregator()}
	router := sourceRouter(src)

	replaced := playlist.NewAggregator()
	replaced.Add(playlist.Entry{Title: "N", GroupName: "Horror", StreamURL: "https://cdn.example/n.m3u8"})
	src.agg = replaced

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/playlist", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "https://cdn.example/n.m3u8") {
		t.Fatal("response missing the refreshed entry")
	}
	if strings.Contains(body, "https://cdn.example/t.m3u8") {
		t.Fatal("response served the stale aggregator")
	}
}

func TestHandleHealthz(t *testing.T) {
	router := testRouter(playlist.NewAggregator())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = (%d, %q)", rec.Code, rec.Body.String())
	}
}
