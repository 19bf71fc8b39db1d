// Package resolver turns an embedded-player URL into the manifest URL the
// player requests when told to play. Resolution is observational: the embed
// page is driven inside an isolated tab while its outgoing network traffic is
// watched for the first request ending in the manifest extension.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/grafana/regexp"

	"vodharvest/work/browser"
	"vodharvest/work/config"
	"vodharvest/work/logger"
	"vodharvest/work/types"
	"vodharvest/work/utils"
)

// manifestExtension is the suffix a captured request URL must carry.
const manifestExtension = ".m3u8"

// playClickX/Y is the fixed viewport coordinate of the synthetic playback
// click; embed players put their big play button in the middle.
const (
	playClickX = 640
	playClickY = 360
)

// inlineManifestPattern finds manifest URLs embedded in page text or scripts,
// used as the fallback when no network signal arrives.
var inlineManifestPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+\.m3u8[^\s"'<>\\]*`)

// playControlSelectors are tried, in order, for a clickable play control
// before falling back to the fixed-coordinate click alone.
var playControlSelectors = []string{
	".jw-icon-display", ".vjs-big-play-button", ".plyr__control--overlaid",
	"button[aria-label*='lay']", ".play-button", "#play",
}

// state tracks the resolution attempt through its phases; it only feeds
// debug logs.
type state int

const (
	stateIdle state = iota
	stateNavigating
	stateInteracting
	stateAwaitingSignal
	stateResolved
	stateTimedOut
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateNavigating:
		return "navigating"
	case stateInteracting:
		return "interacting"
	case stateAwaitingSignal:
		return "awaiting signal"
	case stateResolved:
		return "resolved"
	case stateTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Resolver drives embeds and captures manifest URLs.
type Resolver struct {
	cfg *config.Config
}

// New builds a Resolver.
func New(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve runs one attempt against one candidate. A nil stream with nil error
// means no manifest signal arrived inside the wait budget; that is an
// expected outcome, not a failure of the session.
func (r *Resolver) Resolve(ctx context.Context, session *browser.Session, candidate types.EmbedCandidate) (*types.ResolvedStream, error) {
	tabCtx, tabCancel := session.Tab()
	defer tabCancel()

	runCtx, cancel := bindTab(ctx, tabCtx)
	defer cancel()

	st := stateIdle
	firstHit := make(chan string, 1)

	chromedp.ListenTarget(runCtx, func(ev any) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok {
			if IsManifestURL(e.Request.URL) {
				select {
				case firstHit <- e.Request.URL:
				default:
				}
			}
		}
	})

	st = stateNavigating
	logger.Debug("resolve %s: %s %s", candidate.ProviderTag, st, utils.LogURL(r.cfg.ObfuscateUrls, candidate.URL))
	if err := chromedp.Run(runCtx, network.Enable(), chromedp.Navigate(candidate.URL)); err != nil {
		st = stateTimedOut
		logger.Debug("resolve %s: navigation failed (%s): %v", candidate.ProviderTag, st, err)
		return nil, nil
	}

	st = stateInteracting
	logger.Debug("resolve %s: %s", candidate.ProviderTag, st)
	r.triggerPlayback(runCtx)

	st = stateAwaitingSignal
	budget := r.cfg.ResolveBudget
	if budget <= 0 {
		budget = 25 * time.Second
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case u := <-firstHit:
		st = stateResolved
		logger.Debug("resolve %s: %s via network signal", candidate.ProviderTag, st)
		return &types.ResolvedStream{URL: u, SourceCandidate: candidate}, nil
	case <-timer.C:
		// secondary scan: the player may have written the manifest URL into
		// the page instead of fetching it while we watched
		if u, ok := r.scanInline(runCtx); ok {
			st = stateResolved
			logger.Debug("resolve %s: %s via inline scan", candidate.ProviderTag, st)
			return &types.ResolvedStream{URL: u, SourceCandidate: candidate}, nil
		}
		st = stateTimedOut
		logger.Debug("resolve %s: %s after %s", candidate.ProviderTag, st, budget)
		return nil, nil
	case <-runCtx.Done():
		return nil, runCtx.Err()
	}
}

// ResolveWithRetry applies the configured retry policy around Resolve.
// Exhausting the attempts returns nil, never an error that aborts the item.
func (r *Resolver) ResolveWithRetry(ctx context.Context, session *browser.Session, candidate types.EmbedCandidate, policy config.RetryPolicy) *types.ResolvedStream {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if policy.PerAttemptBudget > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.PerAttemptBudget)
		}

		stream, err := r.Resolve(attemptCtx, session, candidate)
		cancel()
		if stream != nil {
			return stream
		}
		if err != nil {
			logger.Debug("resolve %s: attempt %d/%d errored: %v", candidate.ProviderTag, attempt, attempts, err)
		}
	}
	return nil
}

// ResolveFirst races resolution across all candidates; the first non-nil
// result wins and the losing attempts are cancelled.
func (r *Resolver) ResolveFirst(ctx context.Context, session *browser.Session, candidates []types.EmbedCandidate, policy config.RetryPolicy) *types.ResolvedStream {
	resolve := func(ctx context.Context, c types.EmbedCandidate) *types.ResolvedStream {
		return r.ResolveWithRetry(ctx, session, c, policy)
	}
	return raceFirst(ctx, candidates, resolve)
}

// raceFirst is the candidate race, split out so the first-wins semantics can
// be exercised without a browser.
func raceFirst(ctx context.Context, candidates []types.EmbedCandidate, resolve func(context.Context, types.EmbedCandidate) *types.ResolvedStream) *types.ResolvedStream {
	if len(candidates) == 0 {
		return nil
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *types.ResolvedStream, len(candidates))
	var wg sync.WaitGroup

	for _, c := range candidates {
		wg.Add(1)
		go func(c types.EmbedCandidate) {
			defer wg.Done()
			results <- resolve(raceCtx, c)
		}(c)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for stream := range results {
		if stream != nil {
			cancel()
			return stream
		}
	}
	return nil
}

// triggerPlayback simulates a user-initiated playback action: a click on a
// detected play control when one exists, plus a synthetic click at the fixed
// viewport coordinate. Both are best effort.
func (r *Resolver) triggerPlayback(ctx context.Context) {
	for _, sel := range playControlSelectors {
		var clicked bool
		script := fmt.Sprintf(`(() => {
			const n = document.querySelector(%q);
			if (n) { n.click(); return true; }
			return false;
		})()`, sel)
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err == nil && clicked {
			logger.Debug("resolve: clicked play control %q", sel)
			break
		}
	}

	if err := chromedp.Run(ctx, chromedp.MouseClickXY(playClickX, playClickY)); err != nil {
		logger.Debug("resolve: synthetic click failed: %v", err)
	}
}

// scanInline inspects the rendered document and script bodies for an inline
// manifest URL.
func (r *Resolver) scanInline(ctx context.Context) (string, bool) {
	var body string
	script := `document.documentElement ? document.documentElement.outerHTML : ''`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &body)); err != nil {
		return "", false
	}
	return ScanInlineManifest(body)
}

// ScanInlineManifest extracts the first manifest URL from page text. Script
// strings carry backslash-escaped URLs, so the body is unescaped before
// matching.
func ScanInlineManifest(body string) (string, bool) {
	body = strings.ReplaceAll(body, `\/`, `/`)
	m := inlineManifestPattern.FindString(body)
	if m == "" {
		return "", false
	}
	return m, true
}

// IsManifestURL reports whether the request URL's path ends in the manifest
// extension, ignoring query and fragment.
func IsManifestURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), manifestExtension)
}

// bindTab ties the tab's browsing context to the caller's deadline.
func bindTab(callerCtx, tabCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tabCtx)
	if callerCtx == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(callerCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
