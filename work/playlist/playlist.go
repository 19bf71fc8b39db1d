// Package playlist accumulates resolved entries and serializes them into the
// exported playlist file. Output is deterministic for a fixed entry set: the
// trending group leads, remaining groups sort by name, and entries keep the
// order they were added in.
package playlist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/grafana/regexp"

	"vodharvest/work/metrics"
)

// TrendingGroup is the group name that always serializes first.
const TrendingGroup = "Trending Movies"

// attrPattern parses key="value" pairs from an EXTINF attribute section.
var attrPattern = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)

// Entry is one exportable record.
type Entry struct {
	Title       string
	LogoURL     string
	GroupName   string
	StreamURL   string
	Description string
}

// Aggregator collects entries across concurrent pipeline workers.
type Aggregator struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]struct{}
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]struct{})}
}

// Add appends an entry unless its stream URL was already added. Entries
// without a stream URL are rejected.
func (a *Aggregator) Add(e Entry) bool {
	if e.StreamURL == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[e.StreamURL]; dup {
		return false
	}
	a.seen[e.StreamURL] = struct{}{}
	a.entries = append(a.entries, e)
	return true
}

// Len reports how many entries have been accepted.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Entries returns a copy of the accepted entries in insertion order.
func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Serialize renders the accepted entries into the playlist text.
func (a *Aggregator) Serialize() string {
	return Serialize(a.Entries())
}

// Serialize renders entries grouped and ordered: the trending group first,
// the rest alphabetically, insertion order within each group.
func Serialize(entries []Entry) string {
	groups := make(map[string][]Entry)
	var order []string
	for _, e := range entries {
		if _, ok := groups[e.GroupName]; !ok {
			order = append(order, e.GroupName)
		}
		groups[e.GroupName] = append(groups[e.GroupName], e)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i] == TrendingGroup {
			return order[j] != TrendingGroup
		}
		if order[j] == TrendingGroup {
			return false
		}
		return order[i] < order[j]
	})

	var b strings.Builder
	b.WriteString("#EXTM3U\n\n")

	for _, name := range order {
		members := groups[name]
		fmt.Fprintf(&b, "# %s (%d items)\n", name, len(members))
		for _, e := range members {
			title := e.Title
			if e.Description != "" {
				title += " - " + e.Description
			}
			fmt.Fprintf(&b, "#EXTINF:-1 tvg-logo=\"%s\" group-title=\"%s\", %s\n%s\n\n", e.LogoURL, e.GroupName, title, e.StreamURL)
		}
	}

	return b.String()
}

// WriteFile atomically replaces the playlist file with the serialized output.
func (a *Aggregator) WriteFile(path string) error {
	entries := a.Entries()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".playlist-*")
	if err != nil {
		return fmt.Errorf("creating temp playlist: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(Serialize(entries)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing playlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing playlist: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing playlist: %w", err)
	}

	metrics.PlaylistEntries.Set(float64(len(entries)))
	return nil
}

// Parse reads serialized playlist text back into entries. Group banners are
// ignored; grouping is recovered from the group-title attribute.
func Parse(text string) []Entry {
	var out []Entry
	var pending *Entry

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || line == "#EXTM3U":
		case strings.HasPrefix(line, "#EXTINF:"):
			e := parseEXTINF(line)
			pending = &e
		case strings.HasPrefix(line, "#"):
			// group banner
		default:
			if pending != nil {
				pending.StreamURL = line
				out = append(out, *pending)
				pending = nil
			}
		}
	}

	return out
}

// parseEXTINF splits one EXTINF line into attributes and display title. The
// display title follows the first comma outside quotes; later commas belong
// to the title or description.
func parseEXTINF(line string) Entry {
	body := strings.TrimPrefix(line, "#EXTINF:")

	comma := -1
	inQuotes := false
	for i := 0; i < len(body) && comma == -1; i++ {
		switch body[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				comma = i
			}
		}
	}

	var e Entry
	attrPart := body
	if comma != -1 {
		attrPart = body[:comma]
		display := strings.TrimSpace(body[comma+1:])
		// Descriptions never contain " - ", so the last occurrence separates
		// them even when the title itself has one. A bare title containing
		// " - " with no description still splits; callers tolerate that.
		if i := strings.LastIndex(display, " - "); i >= 0 {
			e.Title = display[:i]
			e.Description = display[i+3:]
		} else {
			e.Title = display
		}
	}

	for _, m := range attrPattern.FindAllStringSubmatch(attrPart, -1) {
		switch m[1] {
		case "tvg-logo":
			e.LogoURL = m[2]
		case "group-title":
			e.GroupName = m[2]
		}
	}

	return e
}
