package catalog

import (
	"testing"

	"vodharvest/work/config"
	"vodharvest/work/types"
)

func testDiscovery() *Discovery {
	cfg := &config.Config{SiteBaseURL: "https://example-flix.to"}
	return New(cfg)
}

func TestCleanTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Interstellar 2014", "Interstellar"},
		{"Interstellar (2014)", "Interstellar"},
		{"The Thing", "The Thing"},
		{"Alien Nov 5, 24", "Alien"},
		{"Dune March 1, 2024", "Dune"},
		{"  padded  ", "padded"},
		{"Blade Runner 2049 (2017)", "Blade Runner 2049"},
		{"1917", "1917"},
		{"2012 (2009)", "2012"},
	}
	for _, tc := range cases {
		if got := CleanTitle(tc.in); got != tc.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildItem(t *testing.T) {
	d := testDiscovery()

	item, ok := d.buildItem(&nodeFields{
		Title:   "Interstellar",
		Href:    "/movie/watch-interstellar-19694",
		Poster:  "/images/interstellar.jpg",
		Quality: "HD",
	})
	if !ok {
		t.Fatal("buildItem rejected a valid node")
	}
	if item.ID != "19694" {
		t.Errorf("ID = %q, want 19694", item.ID)
	}
	if item.DetailURL != "https://example-flix.to/movie/watch-interstellar-19694" {
		t.Errorf("DetailURL = %q", item.DetailURL)
	}
	if item.WatchURL != "https://example-flix.to/watch-movie/watch-interstellar-19694" {
		t.Errorf("WatchURL = %q", item.WatchURL)
	}
	if item.PosterURL != "https://example-flix.to/images/interstellar.jpg" {
		t.Errorf("PosterURL = %q", item.PosterURL)
	}
	if item.Quality != "HD" {
		t.Errorf("Quality = %q", item.Quality)
	}
}

func TestBuildItemRejectsUnparseableNodes(t *testing.T) {
	d := testDiscovery()

	cases := []nodeFields{
		{Title: "no link"},
		{Href: "/movie/watch-x-123"},
		{Title: "no id", Href: "/movie/watch-x"},
	}
	for _, f := range cases {
		if _, ok := d.buildItem(&f); ok {
			t.Errorf("buildItem accepted %+v", f)
		}
	}
}

func TestBuildItemTrailingSlashID(t *testing.T) {
	d := testDiscovery()
	item, ok := d.buildItem(&nodeFields{Title: "X", Href: "/movie/watch-x-42/"})
	if !ok || item.ID != "42" {
		t.Fatalf("got (%+v, %v), want ID 42", item, ok)
	}
}

func TestAbsoluteLeavesFullURLs(t *testing.T) {
	d := testDiscovery()
	full := "https://cdn.example/poster.jpg"
	if got := d.absolute(full); got != full {
		t.Errorf("absolute(%q) = %q", full, got)
	}
	if got := d.absolute(""); got != "" {
		t.Errorf("absolute(\"\") = %q", got)
	}
}

func TestWatchURLMapping(t *testing.T) {
	in := "https://example-flix.to/movie/watch-x-1"
	want := "https://example-flix.to/watch-movie/watch-x-1"
	if got := watchURL(in); got != want {
		t.Errorf("watchURL = %q, want %q", got, want)
	}
	// non-movie paths pass through
	tv := "https://example-flix.to/tv/watch-y-2"
	if got := watchURL(tv); got != tv {
		t.Errorf("watchURL rewrote %q to %q", tv, got)
	}
}

func TestListingURL(t *testing.T) {
	cfg := &config.Config{
		SiteBaseURL:  "https://example-flix.to",
		TrendingPath: "/home",
		ListingPath:  "/movie",
	}
	d := New(cfg)

	if got := d.listingURL(nil); got != "https://example-flix.to/home" {
		t.Errorf("trending listing = %q", got)
	}

	facet := &types.GenreFacet{Name: "Sci-Fi", Query: "sci-fi"}
	if got := d.listingURL(facet); got != "https://example-flix.to/movie?genre=sci-fi" {
		t.Errorf("facet listing = %q", got)
	}
}
