package types

// CatalogItem is one candidate title lifted from the listing page. An item is
// discarded as soon as it either produced a playlist entry or was dropped.
// IDs are unique within a single discovery call only; re-running discovery may
// reassign them.
type CatalogItem struct {
	ID        string // Identifier parsed from the detail link's trailing path segment
	Title     string // Raw title as shown by the listing UI
	PosterURL string // Poster image, usually lifted from a background-image style
	DetailURL string // Absolute URL of the item's detail page
	WatchURL  string // Absolute URL of the item's watch page
	Quality   string // Optional quality badge text ("HD", "CAM", ...)
}

// GenreFacet is a named filter narrowing discovery to one category. Static
// reference data, built from config at startup.
type GenreFacet struct {
	Name     string // Display name, also the playlist group name
	Query    string // Query-parameter value for genre filtering
	MenuItem string // Menu entry text for the simulated-selection fallback
}

// EmbedCandidate is one embedded-player URL found on a watch page, tagged with
// the provider it was matched against. Candidates are ordered by preference;
// the first one that resolves wins.
type EmbedCandidate struct {
	URL         string
	ProviderTag string
}

// ResolvedStream is the manifest URL observed while driving an embed, plus the
// candidate that produced it. At most one exists per catalog item.
type ResolvedStream struct {
	URL             string
	SourceCandidate EmbedCandidate
}

// MetadataRecord is the external lookup result for a normalized title. A nil
// record means the lookup found nothing and the raw item fields are used.
type MetadataRecord struct {
	Title     string
	Year      int
	Rating    float64
	PosterURL string
}
