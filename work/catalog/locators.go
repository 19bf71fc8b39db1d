package catalog

// LocatorStrategy is one independent rule for finding item cards on the
// listing page. The DOM is not ours, so strategies are tried in order until
// one yields nodes; swapping in a new rule when the site drifts is a data
// change, not a code change.
type LocatorStrategy struct {
	Name       string // For logging
	ItemSel    string // Card node selector
	TitleSel   string // Title node, relative to the card
	LinkSel    string // Detail anchor, relative to the card
	PosterSel  string // Poster node (img src or background-image), relative to the card
	QualitySel string // Optional quality badge, relative to the card
}

// DefaultStrategies covers the card shapes the listing site has shipped so
// far, most specific first.
var DefaultStrategies = []LocatorStrategy{
	{
		Name:       "film-poster",
		ItemSel:    "div.flw-item",
		TitleSel:   ".film-name a",
		LinkSel:    ".film-name a",
		PosterSel:  ".film-poster img",
		QualitySel: ".film-poster-quality",
	},
	{
		Name:       "film-list",
		ItemSel:    ".film_list-wrap .film-detail",
		TitleSel:   "h2 a, h3 a",
		LinkSel:    "h2 a, h3 a",
		PosterSel:  "img",
		QualitySel: ".quality",
	},
	{
		Name:      "generic-card",
		ItemSel:   "article, .card, .item",
		TitleSel:  "a[title], a",
		LinkSel:   "a[href]",
		PosterSel: "img, [style*='background-image']",
	},
}
