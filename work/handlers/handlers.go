// Package handlers exposes the accumulated playlist over HTTP when the
// harvester runs in serve mode.
package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"vodharvest/work/playlist"
	"vodharvest/work/utils"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Source yields the playlist of the most recent complete harvest. The
// orchestrator swaps aggregators between runs, so handlers fetch one per
// request instead of holding a pointer from startup.
type Source interface {
	Playlist() *playlist.Aggregator
}

// HandlePlaylist serves the full playlist.
func HandlePlaylist(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agg := src.Playlist()
		if agg.Len() == 0 {
			http.Error(w, "no harvest has completed yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", playlistContentType)
		w.Write([]byte(agg.Serialize()))
	}
}

// HandleGroupPlaylist serves one group's entries. The path segment is matched
// against sanitized group names so URLs stay clean.
func HandleGroupPlaylist(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := mux.Vars(r)["group"]

		var filtered []playlist.Entry
		for _, e := range src.Playlist().Entries() {
			if utils.SanitizeGroupName(e.GroupName) == want || e.GroupName == want {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			http.Error(w, "unknown group", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", playlistContentType)
		w.Write([]byte(playlist.Serialize(filtered)))
	}
}

// HandleHealthz reports liveness.
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
