// Package embed selects a streaming provider on an item's watch page and
// collects the embedded-player URLs it exposes.
package embed

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/chromedp/chromedp"

	"vodharvest/work/browser"
	"vodharvest/work/config"
	"vodharvest/work/logger"
	"vodharvest/work/metrics"
	"vodharvest/work/types"
)

// structuralTokens are class/id fragments the secondary heuristic pass
// accepts as provider controls when text matching finds nothing.
var structuralTokens = []string{"server", "provider", "source", "link-item"}

// Extractor locates provider controls and embedded player URLs.
type Extractor struct {
	cfg *config.Config
}

// New builds an Extractor for the configured provider preference list.
func New(cfg *config.Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract navigates the watch page and returns embed candidates in document
// order. An empty slice with nil error means no provider control and no embed
// was present; the item is dropped downstream.
func (e *Extractor) Extract(ctx context.Context, session *browser.Session, watchURL string) ([]types.EmbedCandidate, error) {
	runCtx, cancel := session.Bind(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(watchURL)); err != nil {
		return nil, fmt.Errorf("navigating to watch page: %w", err)
	}

	// let the interactive controls render
	if err := chromedp.Run(runCtx, chromedp.Sleep(e.cfg.SettleDelay)); err != nil {
		return nil, err
	}

	// cheap path: a matching embed is already on the page
	if candidates := e.scanEmbeds(runCtx); len(candidates) > 0 {
		logger.Debug("embed: %d candidates present before any interaction", len(candidates))
		return candidates, nil
	}

	clicked, provider := e.clickProviderControl(runCtx)
	if !clicked {
		logger.Debug("embed: no provider control found on %s", watchURL)
		return nil, nil
	}
	logger.Debug("embed: selected provider control %q", provider)

	if err := chromedp.Run(runCtx, chromedp.Sleep(e.cfg.SettleDelay)); err != nil {
		return nil, err
	}

	return e.scanEmbeds(runCtx), nil
}

// clickProviderControl finds a control matching a known provider name
// (case-insensitive substring on the control text), falling back to
// structural class/id token matching, and invokes it.
func (e *Extractor) clickProviderControl(ctx context.Context) (bool, string) {
	for _, provider := range e.cfg.Providers {
		if e.clickByText(ctx, provider) {
			return true, provider
		}
	}

	// secondary pass: structural attributes instead of text
	script := fmt.Sprintf(`(() => {
		const tokens = %s;
		const nodes = document.querySelectorAll('a, button, li, div[role="button"]');
		for (const n of nodes) {
			const attrs = ((n.className || '') + ' ' + (n.id || '')).toLowerCase();
			if (tokens.some(t => attrs.includes(t))) { n.click(); return (n.textContent || '').trim(); }
		}
		return '';
	})()`, jsStringArray(structuralTokens))

	var label string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &label)); err != nil {
		logger.Debug("embed: structural control pass failed: %v", err)
		return false, ""
	}
	if label == "" {
		return false, ""
	}
	return true, label
}

func (e *Extractor) clickByText(ctx context.Context, provider string) bool {
	script := fmt.Sprintf(`(() => {
		const want = %q.toLowerCase();
		const nodes = document.querySelectorAll('a, button, li, span, div[role="button"]');
		for (const n of nodes) {
			if ((n.textContent || '').toLowerCase().includes(want)) { n.click(); return true; }
		}
		return false;
	})()`, provider)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false
	}
	return clicked
}

// scanEmbeds collects iframe URLs matching the embed allow-list, in document
// order, tagged with the provider whose shape they matched.
func (e *Extractor) scanEmbeds(ctx context.Context) []types.EmbedCandidate {
	var urls []string
	script := `Array.from(document.querySelectorAll('iframe'))
		.map(f => f.src || f.getAttribute('data-src') || '')
		.filter(u => u.length > 0)`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &urls)); err != nil {
		logger.Debug("embed: iframe scan failed: %v", err)
		return nil
	}

	var candidates []types.EmbedCandidate
	for _, u := range urls {
		if tag, ok := e.matchEmbedShape(u); ok {
			candidates = append(candidates, types.EmbedCandidate{URL: u, ProviderTag: tag})
			metrics.EmbedsFound.WithLabelValues(tag).Inc()
		}
	}
	return candidates
}

// matchEmbedShape applies the URL-shape allow-list: a known provider name in
// the host, or a generic embed/player path.
func (e *Extractor) matchEmbedShape(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}

	host := strings.ToLower(u.Host)
	for _, provider := range e.cfg.Providers {
		if strings.Contains(host, strings.ToLower(provider)) {
			return provider, true
		}
	}

	p := strings.ToLower(u.Path)
	if strings.Contains(p, "/embed") || strings.Contains(p, "/player") || strings.Contains(p, "/e/") {
		return "generic", true
	}
	return "", false
}

func jsStringArray(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
