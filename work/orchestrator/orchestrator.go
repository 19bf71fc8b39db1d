// Package orchestrator drives the full harvest: trending first on its own
// session, then genre categories in bounded chunks, one browser session per
// category, items processed sequentially within it. Every stage failure is
// contained to its item or category; the run degrades to partial output.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"vodharvest/work/await"
	"vodharvest/work/browser"
	"vodharvest/work/config"
	"vodharvest/work/logger"
	"vodharvest/work/metrics"
	"vodharvest/work/playlist"
	"vodharvest/work/store"
	"vodharvest/work/types"
	"vodharvest/work/utils"
)

// Discoverer enumerates catalog items for a category.
type Discoverer interface {
	Discover(ctx context.Context, session *browser.Session, facet *types.GenreFacet, limit int) ([]types.CatalogItem, error)
}

// Extractor pulls embed candidates from an item's watch page.
type Extractor interface {
	Extract(ctx context.Context, session *browser.Session, watchURL string) ([]types.EmbedCandidate, error)
}

// Resolver races embed candidates to a manifest URL.
type Resolver interface {
	ResolveFirst(ctx context.Context, session *browser.Session, candidates []types.EmbedCandidate, policy config.RetryPolicy) *types.ResolvedStream
}

// Enricher produces display metadata for an item.
type Enricher interface {
	Enrich(item types.CatalogItem) types.MetadataRecord
}

// Verifier checks a resolved manifest. Failures are logged, never fatal.
type Verifier interface {
	Verify(ctx context.Context, streamURL string) error
}

// SessionPool hands out browser sessions. *browser.Pool is the production
// implementation.
type SessionPool interface {
	Acquire(ctx context.Context) (*browser.Session, error)
	Recycle(ctx context.Context, s *browser.Session) (*browser.Session, error)
	Dispose(s *browser.Session)
}

// Orchestrator owns one harvest run.
type Orchestrator struct {
	cfg      *config.Config
	pool     SessionPool
	workers  *ants.Pool
	discover Discoverer
	extract  Extractor
	resolve  Resolver
	enrich   Enricher
	verify   Verifier
	store    *store.Store

	mu  sync.RWMutex
	agg *playlist.Aggregator // last complete harvest, swapped in by Run
}

// New wires an Orchestrator from its collaborators. verify and st may be nil.
func New(cfg *config.Config, pool SessionPool, workers *ants.Pool, discover Discoverer, extract Extractor, resolve Resolver, enrich Enricher, verify Verifier, st *store.Store) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		pool:     pool,
		workers:  workers,
		discover: discover,
		extract:  extract,
		resolve:  resolve,
		enrich:   enrich,
		verify:   verify,
		store:    st,
		agg:      playlist.NewAggregator(),
	}
}

// Run executes one full harvest, writes the playlist when anything resolved,
// and reports how many entries were exported. It returns an error only for
// faults that prevent any output, such as a failed playlist write.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	o.store.Prune(o.cfg.ResolutionTTL, o.cfg.DeadEmbedCooldown)

	// each run harvests into a fresh aggregator so entries gone from the
	// site do not survive a refresh; the previous one keeps serving until
	// this run completes with output
	agg := playlist.NewAggregator()

	o.processCategory(ctx, agg, nil, playlist.TrendingGroup)

	facets := o.cfg.Facets
	chunk := o.cfg.ChunkSize
	if chunk <= 0 {
		chunk = 1
	}

	for i := 0; i < len(facets); i += chunk {
		if ctx.Err() != nil {
			break
		}
		end := i + chunk
		if end > len(facets) {
			end = len(facets)
		}

		var wg sync.WaitGroup
		for _, fc := range facets[i:end] {
			facet := &types.GenreFacet{Name: fc.Name, Query: fc.Query, MenuItem: fc.MenuItem}
			wg.Add(1)
			task := func() {
				defer wg.Done()
				o.processCategory(ctx, agg, facet, facet.Name)
			}
			if err := o.workers.Submit(task); err != nil {
				logger.Warn("orchestrator: submitting category %s: %v", facet.Name, err)
				wg.Done()
			}
		}
		wg.Wait()
	}

	count := agg.Len()
	if count == 0 {
		logger.Warn("orchestrator: no entries resolved, keeping previous playlist")
		return 0, nil
	}

	o.mu.Lock()
	o.agg = agg
	o.mu.Unlock()

	if err := agg.WriteFile(o.cfg.OutputPath); err != nil {
		return count, fmt.Errorf("exporting playlist: %w", err)
	}
	logger.Info("orchestrator: exported %d entries to %s in %s", count, o.cfg.OutputPath, time.Since(start).Round(time.Second))
	return count, nil
}

// Playlist exposes the last complete harvest, for serving between runs.
func (o *Orchestrator) Playlist() *playlist.Aggregator {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.agg
}

// processCategory discovers one category on its own session and walks its
// items. A nil facet means the trending page.
func (o *Orchestrator) processCategory(ctx context.Context, agg *playlist.Aggregator, facet *types.GenreFacet, group string) {
	session, err := o.acquireSession(ctx)
	if err != nil {
		logger.Error("orchestrator: no session for category %s: %v", group, err)
		metrics.StageFailures.WithLabelValues("session", "acquire").Inc()
		return
	}
	defer func() { o.pool.Dispose(session) }()

	items, outcome, err := await.Run(ctx, o.cfg.DiscoveryBudget, func(ctx context.Context) ([]types.CatalogItem, error) {
		return o.discover.Discover(ctx, session, facet, o.cfg.ItemLimit)
	})
	switch {
	case outcome == await.TimedOut:
		logger.Warn("orchestrator: discovery timed out for %s", group)
		metrics.StageFailures.WithLabelValues("discovery", "timeout").Inc()
		return
	case err != nil:
		logger.Warn("orchestrator: discovery failed for %s: %v", group, err)
		metrics.StageFailures.WithLabelValues("discovery", "error").Inc()
		return
	case len(items) == 0:
		logger.Info("orchestrator: nothing discovered for %s", group)
		return
	}

	metrics.ItemsDiscovered.WithLabelValues(group).Add(float64(len(items)))
	logger.Info("orchestrator: %s yielded %d items", group, len(items))

	recycleEvery := o.cfg.RecycleEvery
	for n, item := range items {
		if ctx.Err() != nil {
			return
		}

		if recycleEvery > 0 && n > 0 && n%recycleEvery == 0 {
			fresh, err := o.pool.Recycle(ctx, session)
			if err != nil {
				logger.Warn("orchestrator: recycling session for %s: %v", group, err)
				metrics.StageFailures.WithLabelValues("session", "recycle").Inc()
				return
			}
			session = fresh
			metrics.SessionsRecycled.WithLabelValues("cadence").Inc()
		}

		if o.processItem(ctx, agg, session, item, group) {
			continue
		}

		// an extraction failure can mean the session itself died; replace it
		// so the remaining items do not all fail on a dead session
		fresh, err := o.pool.Recycle(ctx, session)
		if err != nil {
			logger.Warn("orchestrator: replacing failed session for %s: %v", group, err)
			metrics.StageFailures.WithLabelValues("session", "recycle").Inc()
			return
		}
		session = fresh
		metrics.SessionsRecycled.WithLabelValues("failure").Inc()
	}
}

// processItem runs extract, resolve, enrich, accumulate for one item. Any
// stage dropping out drops only this item. The return value reports whether
// the session is still trustworthy; an extraction failure marks it suspect.
func (o *Orchestrator) processItem(ctx context.Context, agg *playlist.Aggregator, session *browser.Session, item types.CatalogItem, group string) bool {
	candidates, outcome, err := o.extractWithRetry(ctx, session, item.WatchURL)
	switch {
	case outcome == await.TimedOut:
		logger.Debug("orchestrator: embed extraction timed out for %q", item.Title)
		metrics.StageFailures.WithLabelValues("extract", "timeout").Inc()
		return false
	case err != nil:
		logger.Debug("orchestrator: embed extraction failed for %q: %v", item.Title, err)
		metrics.StageFailures.WithLabelValues("extract", "error").Inc()
		return false
	}

	candidates = o.filterDead(candidates)
	if len(candidates) == 0 {
		logger.Debug("orchestrator: no embeds for %q, dropping", item.Title)
		return true
	}

	stream := o.cachedResolution(candidates)
	if stream == nil {
		stream = o.resolve.ResolveFirst(ctx, session, candidates, o.cfg.Resolve)
	}
	if stream == nil {
		logger.Debug("orchestrator: no stream resolved for %q, dropping", item.Title)
		metrics.StageFailures.WithLabelValues("resolve", "exhausted").Inc()
		for _, c := range candidates {
			o.store.MarkEmbedFailure(c.URL)
		}
		return true
	}

	o.store.SaveResolution(stream.SourceCandidate.URL, stream.URL)
	metrics.StreamsResolved.WithLabelValues(group).Inc()

	if o.verify != nil && o.cfg.VerifyStreams {
		if err := o.verify.Verify(ctx, stream.URL); err != nil {
			logger.Warn("orchestrator: verification failed for %s: %v", utils.LogURL(o.cfg.ObfuscateUrls, stream.URL), err)
			metrics.StageFailures.WithLabelValues("verify", "decode").Inc()
		}
	}

	rec := o.enrich.Enrich(item)

	entry := playlist.Entry{
		Title:       rec.Title,
		LogoURL:     rec.PosterURL,
		GroupName:   group,
		StreamURL:   stream.URL,
		Description: describeRecord(rec),
	}
	if entry.Title == "" {
		entry.Title = item.Title
	}
	if entry.LogoURL == "" {
		entry.LogoURL = item.PosterURL
	}

	if agg.Add(entry) {
		logger.Debug("orchestrator: accumulated %q into %s", entry.Title, group)
	} else {
		logger.Debug("orchestrator: duplicate stream for %q, skipped", entry.Title)
	}
	return true
}

// extractWithRetry applies the embed-boundary retry policy around extraction.
// Each attempt runs under its own budget; only a clean completion stops the
// loop early.
func (o *Orchestrator) extractWithRetry(ctx context.Context, session *browser.Session, watchURL string) ([]types.EmbedCandidate, await.Outcome, error) {
	attempts := o.cfg.Embed.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	budget := o.cfg.Embed.PerAttemptBudget
	if budget <= 0 {
		budget = o.cfg.ExtractBudget
	}

	var (
		candidates []types.EmbedCandidate
		outcome    await.Outcome
		err        error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, await.Failed, ctx.Err()
		}
		candidates, outcome, err = await.Run(ctx, budget, func(ctx context.Context) ([]types.EmbedCandidate, error) {
			return o.extract.Extract(ctx, session, watchURL)
		})
		if outcome == await.Completed {
			return candidates, outcome, err
		}
		logger.Debug("orchestrator: extraction attempt %d/%d for %s: %s", attempt, attempts, utils.LogURL(o.cfg.ObfuscateUrls, watchURL), outcome)
	}
	return candidates, outcome, err
}

// acquireSession gets a session from the pool, retrying once after a short
// pause. The retry covers both a briefly exhausted pool and a transient
// session creation failure; a closed pool aborts immediately.
func (o *Orchestrator) acquireSession(ctx context.Context) (*browser.Session, error) {
	session, err := o.pool.Acquire(ctx)
	if err == nil {
		return session, nil
	}
	if err == browser.ErrPoolClosed {
		return nil, err
	}

	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return o.pool.Acquire(ctx)
}

// filterDead drops candidates on the failure cooldown list.
func (o *Orchestrator) filterDead(candidates []types.EmbedCandidate) []types.EmbedCandidate {
	if o.store == nil {
		return candidates
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if o.store.IsDeadEmbed(c.URL, o.cfg.DeadEmbedThreshold, o.cfg.DeadEmbedCooldown) {
			logger.Debug("orchestrator: skipping dead embed %s", c.URL)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// cachedResolution answers from the persisted store when a candidate was
// resolved recently enough.
func (o *Orchestrator) cachedResolution(candidates []types.EmbedCandidate) *types.ResolvedStream {
	if o.store == nil {
		return nil
	}
	for _, c := range candidates {
		if url, ok := o.store.RecentResolution(c.URL, o.cfg.ResolutionTTL); ok {
			logger.Debug("orchestrator: reusing stored resolution for %s", c.URL)
			return &types.ResolvedStream{URL: url, SourceCandidate: c}
		}
	}
	return nil
}

// describeRecord formats the optional description from lookup metadata.
func describeRecord(rec types.MetadataRecord) string {
	var parts []string
	if rec.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", rec.Year))
	}
	if rec.Rating > 0 {
		parts = append(parts, fmt.Sprintf("%.1f/10", rec.Rating))
	}
	return strings.Join(parts, ", ")
}
