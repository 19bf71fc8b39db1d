// Package metadata cleans scraped titles and enriches catalog entries from an
// external lookup service. Enrichment is strictly best effort: a failed or
// empty lookup falls back to the scraped fields and never fails the item.
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grafana/regexp"
	"github.com/maypok86/otter/v2"
	"go.uber.org/ratelimit"

	"vodharvest/work/client"
	"vodharvest/work/config"
	"vodharvest/work/logger"
	"vodharvest/work/metrics"
	"vodharvest/work/types"
)

// separator marks the point where listing markup glues auxiliary text onto a
// title; everything from the first occurrence on is noise.
const separator = "•"

// datePattern matches calendar fragments the listing appends to titles, in
// the form "Nov 5, 24" or "November 5, 24".
var datePattern = regexp.MustCompile(`(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{2}\b`)

// caseBoundary finds the seam where two concatenated words meet.
var caseBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize strips listing noise from a scraped title. The result of
// normalizing an already-normalized title is the same title.
func Normalize(raw string) string {
	s := raw
	if i := strings.Index(s, separator); i >= 0 {
		s = s[:i]
	}
	s = datePattern.ReplaceAllString(s, "")
	s = caseBoundary.ReplaceAllString(s, "$1 $2")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// searchResponse mirrors the lookup service's movie search payload.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
}

// Enricher looks up movie records by title, with an in-process cache and a
// request rate ceiling toward the remote service.
type Enricher struct {
	cfg     *config.Config
	http    *client.HeaderSettingClient
	cache   *otter.Cache[string, types.MetadataRecord]
	limiter ratelimit.Limiter
}

// New builds an Enricher from the metadata section of the configuration.
func New(cfg *config.Config) *Enricher {
	mc := cfg.Metadata

	size := mc.CacheSize
	if size <= 0 {
		size = 2048
	}
	ttl := mc.CacheTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	rps := mc.RequestsPerSec
	if rps <= 0 {
		rps = 4
	}

	httpClient := client.New(mc.UserAgent, mc.ReqReferrer)
	if cfg.EnrichBudget > 0 {
		httpClient.Client.Timeout = cfg.EnrichBudget
	}

	return &Enricher{
		cfg:  cfg,
		http: httpClient,
		cache: otter.Must(&otter.Options[string, types.MetadataRecord]{
			MaximumSize:      size,
			ExpiryCalculator: otter.ExpiryWriting[string, types.MetadataRecord](ttl),
		}),
		limiter: ratelimit.New(rps),
	}
}

// Enrich returns a metadata record for the item. Lookup failures degrade to a
// record carrying only what was scraped.
func (e *Enricher) Enrich(item types.CatalogItem) types.MetadataRecord {
	title := Normalize(item.Title)
	fallback := types.MetadataRecord{Title: title, PosterURL: item.PosterURL}
	if title == "" {
		return fallback
	}

	if rec, ok := e.cache.GetIfPresent(title); ok {
		metrics.MetadataCacheHits.WithLabelValues("hit").Inc()
		return rec
	}
	metrics.MetadataCacheHits.WithLabelValues("miss").Inc()

	rec, err := e.lookup(title)
	if err != nil {
		logger.Debug("metadata: lookup %q failed, using scraped fields: %v", title, err)
		metrics.StageFailures.WithLabelValues("enrich", "lookup").Inc()
		return fallback
	}
	if rec == nil {
		logger.Debug("metadata: no match for %q", title)
		return fallback
	}

	if rec.PosterURL == "" {
		rec.PosterURL = item.PosterURL
	}
	e.cache.Set(title, *rec)
	return *rec
}

// lookup performs one rate-limited search call. A nil record with nil error
// means the service answered with no results.
func (e *Enricher) lookup(title string) (*types.MetadataRecord, error) {
	mc := e.cfg.Metadata
	if mc.BaseURL == "" || mc.APIKey == "" {
		return nil, nil
	}

	e.limiter.Take()

	q := url.Values{}
	q.Set("query", title)
	q.Set("api_key", mc.APIKey)
	endpoint := strings.TrimRight(mc.BaseURL, "/") + "/search/movie?" + q.Encode()

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Results) == 0 {
		return nil, nil
	}

	return recordFromResult(payload.Results[0], mc.BaseURL), nil
}

// recordFromResult converts one search hit into a record.
func recordFromResult(r searchResult, baseURL string) *types.MetadataRecord {
	rec := &types.MetadataRecord{
		Title:  r.Title,
		Rating: r.VoteAverage,
	}
	if len(r.ReleaseDate) >= 4 {
		if y, err := strconv.Atoi(r.ReleaseDate[:4]); err == nil {
			rec.Year = y
		}
	}
	if r.PosterPath != "" {
		rec.PosterURL = posterURL(baseURL, r.PosterPath)
	}
	return rec
}

// posterURL resolves a poster path against the image host used by common
// metadata services. An absolute path is returned as is when the base host is
// unknown.
func posterURL(baseURL, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.Contains(baseURL, "themoviedb.org") {
		return "https://image.tmdb.org/t/p/w500" + path
	}
	return path
}
