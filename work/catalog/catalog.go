// Package catalog discovers candidate titles on the listing site: navigate,
// trigger the site's incremental loading with bounded scroll cycles, and lift
// item stubs out of whatever card markup the site currently ships.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/grafana/regexp"

	"vodharvest/work/browser"
	"vodharvest/work/config"
	"vodharvest/work/logger"
	"vodharvest/work/types"
)

// itemIDPattern pulls the trailing numeric segment the site appends to detail
// paths ("/movie/free-interstellar-hd-19764").
var itemIDPattern = regexp.MustCompile(`-(\d+)/?$`)

// trailingFragment matches numeric or date junk the listing UI appends after
// titles ("Interstellar 2014", "Dune: Part TwoNov 5, 24").
var trailingFragment = regexp.MustCompile(`\s*(?:\(?(?:19|20)\d{2}\)?|[A-Z][a-z]{2,8}\.? \d{1,2}, ?\d{2,4})\s*$`)

// nodeFields is the per-card payload returned by the extraction script.
type nodeFields struct {
	Title   string `json:"title"`
	Href    string `json:"href"`
	Poster  string `json:"poster"`
	Quality string `json:"quality"`
}

// Discovery walks the listing page with a browser session.
type Discovery struct {
	cfg        *config.Config
	strategies []LocatorStrategy
}

// New builds a Discovery using the default locator strategies.
func New(cfg *config.Config) *Discovery {
	return &Discovery{cfg: cfg, strategies: DefaultStrategies}
}

// NewWithStrategies builds a Discovery with an explicit strategy chain.
func NewWithStrategies(cfg *config.Config, strategies []LocatorStrategy) *Discovery {
	return &Discovery{cfg: cfg, strategies: strategies}
}

// Discover navigates the listing endpoint (optionally facet-filtered),
// performs the scroll cycles, and returns up to limit item stubs. A
// navigation or locator failure returns an error; callers treat that as an
// empty category, never as fatal.
func (d *Discovery) Discover(ctx context.Context, session *browser.Session, facet *types.GenreFacet, limit int) ([]types.CatalogItem, error) {
	target := d.listingURL(facet)
	logger.Debug("discovery: navigating to %s", target)

	runCtx, cancel := session.Bind(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(target)); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", target, err)
	}

	strategy, err := d.waitForItems(runCtx)
	if err != nil && facet != nil && facet.MenuItem != "" {
		// the site may ignore the query parameter; fall back to a simulated
		// genre menu selection
		logger.Debug("discovery: query facet yielded nothing, trying menu selection for %q", facet.Name)
		if merr := d.selectFacetMenu(runCtx, facet); merr == nil {
			strategy, err = d.waitForItems(runCtx)
		}
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("discovery: using locator strategy %q", strategy.Name)

	d.scrollCycles(runCtx)

	return d.collectItems(runCtx, strategy, limit)
}

// listingURL applies the facet filter as a query parameter.
func (d *Discovery) listingURL(facet *types.GenreFacet) string {
	if facet == nil {
		return d.cfg.SiteBaseURL + d.cfg.TrendingPath
	}
	return fmt.Sprintf("%s%s?genre=%s", d.cfg.SiteBaseURL, d.cfg.ListingPath, url.QueryEscape(facet.Query))
}

// waitForItems polls the strategy chain until one selector matches at least
// one node. Each strategy gets a few short polls before the next is tried.
func (d *Discovery) waitForItems(ctx context.Context) (*LocatorStrategy, error) {
	const polls = 5
	const pollDelay = time.Second

	for attempt := 0; attempt < polls; attempt++ {
		for i := range d.strategies {
			s := &d.strategies[i]
			var n int
			script := fmt.Sprintf(`document.querySelectorAll(%q).length`, s.ItemSel)
			if err := chromedp.Run(ctx, chromedp.Evaluate(script, &n)); err != nil {
				return nil, fmt.Errorf("probing locator %q: %w", s.Name, err)
			}
			if n > 0 {
				return s, nil
			}
		}
		if err := chromedp.Run(ctx, chromedp.Sleep(pollDelay)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no locator strategy matched any item node")
}

// selectFacetMenu clicks the genre menu entry matching the facet's menu text.
func (d *Discovery) selectFacetMenu(ctx context.Context, facet *types.GenreFacet) error {
	script := fmt.Sprintf(`(() => {
		const want = %q.toLowerCase();
		const links = document.querySelectorAll('nav a, .genre a, .category a, a');
		for (const a of links) {
			if ((a.textContent || '').trim().toLowerCase() === want) { a.click(); return true; }
		}
		return false;
	})()`, facet.MenuItem)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no menu entry for facet %q", facet.Name)
	}
	return chromedp.Run(ctx, chromedp.Sleep(d.cfg.SettleDelay))
}

// scrollCycles triggers incremental loading with a fixed number of
// scroll-and-settle rounds. This is a heuristic, not a completion guarantee.
func (d *Discovery) scrollCycles(ctx context.Context) {
	for i := 0; i < d.cfg.ScrollCycles; i++ {
		err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(d.cfg.ScrollDelay),
		)
		if err != nil {
			logger.Debug("discovery: scroll cycle %d failed: %v", i+1, err)
			return
		}
	}
}

// collectItems re-queries the matching nodes and extracts fields per node
// under a per-node budget, so one malformed card cannot stall the page.
func (d *Discovery) collectItems(ctx context.Context, strategy *LocatorStrategy, limit int) ([]types.CatalogItem, error) {
	var count int
	script := fmt.Sprintf(`document.querySelectorAll(%q).length`, strategy.ItemSel)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return nil, fmt.Errorf("counting item nodes: %w", err)
	}
	logger.Debug("discovery: %d candidate nodes", count)

	items := make([]types.CatalogItem, 0, limit)
	seen := make(map[string]struct{}, limit)

	for i := 0; i < count && len(items) < limit; i++ {
		fields, err := d.extractNode(ctx, strategy, i)
		if err != nil {
			logger.Debug("discovery: node %d skipped: %v", i, err)
			continue
		}

		item, ok := d.buildItem(fields)
		if !ok {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}

	return items, nil
}

// extractNode pulls one card's fields inside the per-node budget.
func (d *Discovery) extractNode(ctx context.Context, s *LocatorStrategy, idx int) (*nodeFields, error) {
	nodeCtx := ctx
	if d.cfg.NodeBudget > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, d.cfg.NodeBudget)
		defer cancel()
	}

	script := fmt.Sprintf(`(() => {
		const card = document.querySelectorAll(%q)[%d];
		if (!card) return null;
		const pick = sel => sel ? card.querySelector(sel) : null;
		const title = pick(%q);
		const link = pick(%q);
		const poster = pick(%q);
		const quality = pick(%q);
		let posterURL = '';
		if (poster) {
			posterURL = poster.src || poster.getAttribute('data-src') || '';
			if (!posterURL) {
				const bg = getComputedStyle(poster).backgroundImage || '';
				const m = bg.match(/url\(["']?(.*?)["']?\)/);
				if (m) posterURL = m[1];
			}
		}
		return {
			title: title ? (title.getAttribute('title') || title.textContent || '').trim() : '',
			href: link ? (link.getAttribute('href') || '') : '',
			poster: posterURL,
			quality: quality ? (quality.textContent || '').trim() : '',
		};
	})()`, s.ItemSel, idx, s.TitleSel, s.LinkSel, s.PosterSel, s.QualitySel)

	var fields *nodeFields
	if err := chromedp.Run(nodeCtx, chromedp.Evaluate(script, &fields)); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("node vanished during extraction")
	}
	return fields, nil
}

// buildItem validates the raw fields and produces a CatalogItem. Nodes
// without a parseable identifier are skipped.
func (d *Discovery) buildItem(f *nodeFields) (types.CatalogItem, bool) {
	if f.Href == "" || f.Title == "" {
		return types.CatalogItem{}, false
	}

	m := itemIDPattern.FindStringSubmatch(f.Href)
	if m == nil {
		return types.CatalogItem{}, false
	}

	detail := d.absolute(f.Href)
	return types.CatalogItem{
		ID:        m[1],
		Title:     CleanTitle(f.Title),
		PosterURL: d.absolute(f.Poster),
		DetailURL: detail,
		WatchURL:  watchURL(detail),
		Quality:   f.Quality,
	}, true
}

func (d *Discovery) absolute(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base, err := url.Parse(d.cfg.SiteBaseURL)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// watchURL maps a detail page to the corresponding watch page.
func watchURL(detail string) string {
	if strings.Contains(detail, "/movie/") {
		return strings.Replace(detail, "/movie/", "/watch-movie/", 1)
	}
	return detail
}

// CleanTitle strips one trailing numeric/date fragment the listing UI appends
// after the title proper. At most one fragment comes off, and never the whole
// title: "1917" and "Blade Runner 2049 (2017)" both keep their year.
func CleanTitle(raw string) string {
	t := strings.TrimSpace(raw)
	stripped := strings.TrimSpace(trailingFragment.ReplaceAllString(t, ""))
	if stripped == "" {
		return t
	}
	return stripped
}
