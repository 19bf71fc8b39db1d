package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ItemsDiscovered counts catalog items collected per category, before any
// extraction or resolution takes place. Counter, only increases.
var ItemsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vodharvest_items_discovered",
	Help: "Catalog items discovered",
}, []string{"category"})

// EmbedsFound counts embed candidates located per provider tag.
var EmbedsFound = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vodharvest_embeds_found",
	Help: "Embed candidates located",
}, []string{"provider"})

// StreamsResolved counts successfully resolved manifest URLs per category.
var StreamsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vodharvest_streams_resolved",
	Help: "Stream URLs resolved",
}, []string{"category"})

// StageFailures counts per-stage failures. The "stage" label is one of
// discovery, extract, resolve, enrich, probe, session; "kind" distinguishes
// timeout from error.
var StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vodharvest_stage_failures",
	Help: "Failures by pipeline stage",
}, []string{"stage", "kind"})

// MetadataCacheHits counts lookup cache hits and misses.
var MetadataCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vodharvest_metadata_cache",
	Help: "Metadata lookup cache hits and misses",
}, []string{"result"})

// SessionsRecycled counts browser session recycles, labeled by reason
// (cadence or failure).
var SessionsRecycled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vodharvest_sessions_recycled",
	Help: "Browser sessions recycled",
}, []string{"reason"})

// RunDuration records wall-clock seconds of each full harvest run.
var RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "vodharvest_run_duration_seconds",
	Help:    "Duration of a full harvest run",
	Buckets: prometheus.ExponentialBuckets(30, 2, 8),
})

// PlaylistEntries is the entry count of the most recent export.
var PlaylistEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "vodharvest_playlist_entries",
	Help: "Entries in the last exported playlist",
})
