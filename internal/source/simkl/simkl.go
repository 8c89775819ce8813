// Package simkl harvests the Simkl API. Simkl has no complete listing, so
// identifiers are discovered through calendars, ranked lists and search
// sweeps before each one is fetched in detail.
package simkl

import (
	"bytes"
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/animap/harvester/internal/discovery"
	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/fetch"
	"github.com/animap/harvester/internal/source"
)

// DefaultBaseURL is the public Simkl API.
const DefaultBaseURL = "https://api.simkl.com"

const (
	apiKeyHeader = "simkl-api-key"
	searchLimit  = 50
)

// Ranked lists and best-of filters queried during discovery.
var (
	rankedLists = []string{"trending", "popular", "best"}
	bestFilters = []string{"most-watched", "highest-rated", "most-favorited", "newest"}
	// Genres is the facet vocabulary of the genre sweep.
	Genres = []string{"action", "comedy", "drama", "fantasy", "horror", "romance", "sci-fi", "thriller", "mystery", "adventure"}
)

// Client discovers and fetches one media type.
type Client struct {
	fetcher   *fetch.Fetcher
	baseURL   string
	clientID  string
	kind      domain.MediaKind
	yearStart int
	yearEnd   int
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithYears sets the inclusive range of the release-year sweep.
func WithYears(start, end int) Option {
	return func(c *Client) {
		c.yearStart = start
		c.yearEnd = end
	}
}

// New creates a client. Simkl rejects anonymous requests, so an empty
// clientID is a configuration error.
func New(fetcher *fetch.Fetcher, kind domain.MediaKind, clientID string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, herrors.Configuration("SIMKL_CLIENT_ID is required for simkl targets")
	}
	c := &Client{
		fetcher:   fetcher,
		baseURL:   DefaultBaseURL,
		clientID:  clientID,
		kind:      kind,
		yearStart: 2000,
		yearEnd:   2026,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Target returns the harvested target.
func (c *Client) Target() domain.Target {
	return domain.Target{Catalog: domain.CatalogSimkl, Kind: c.kind}
}

// Strategies returns the discovery strategies in their fixed order: calendar,
// ranked lists, genre sweep, year sweep, best-of filters.
func (c *Client) Strategies() []discovery.Strategy {
	var out []discovery.Strategy

	out = append(out, c.strategy("calendar", c.baseURL+"/calendar/all-"+string(c.kind)+".json", 0))

	for _, list := range rankedLists {
		out = append(out, c.strategy(list, fmt.Sprintf("%s/%s/%s", c.baseURL, c.kind, list), discovery.StaticLimit))
	}

	for _, genre := range Genres {
		q := url.Values{}
		q.Set("q", genre)
		q.Set("limit", strconv.Itoa(searchLimit))
		out = append(out, c.strategy("genre:"+genre, c.searchURL(q), 0))
	}

	for year := c.yearStart; year <= c.yearEnd; year++ {
		q := url.Values{}
		q.Set("year", strconv.Itoa(year))
		q.Set("limit", strconv.Itoa(searchLimit))
		out = append(out, c.strategy("year:"+strconv.Itoa(year), c.searchURL(q), 0))
	}

	for _, filter := range bestFilters {
		out = append(out, c.strategy("best:"+filter, fmt.Sprintf("%s/%s/best/%s", c.baseURL, c.kind, filter), discovery.StaticLimit))
	}

	return out
}

func (c *Client) searchURL(q url.Values) string {
	return fmt.Sprintf("%s/search/%s?%s", c.baseURL, c.kind, q.Encode())
}

// strategy builds a strategy that reads one list endpoint. limit caps the
// number of entries taken; zero means all.
func (c *Client) strategy(name, u string, limit int) discovery.Strategy {
	return discovery.StrategyFunc{
		Label: name,
		Fn: func(ctx context.Context, emit func(domain.Identifier)) error {
			data, err := c.fetcher.Do(ctx, fetch.Get(string(domain.CatalogSimkl), u, c.header()))
			if err != nil {
				return err
			}
			entries, err := decodeEntries(data)
			if err != nil {
				return herrors.Malformed(string(domain.CatalogSimkl), err)
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			for _, e := range entries {
				emit(e.id())
			}
			return nil
		},
	}
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set(apiKeyHeader, c.clientID)
	return h
}

type ids struct {
	Simkl   domain.Identifier `json:"simkl"`
	SimklID domain.Identifier `json:"simkl_id"`
	MAL     domain.Identifier `json:"mal"`
	AniList domain.Identifier `json:"anilist"`
	AniDB   domain.Identifier `json:"anidb"`
	Kitsu   domain.Identifier `json:"kitsu"`
	TMDB    domain.Identifier `json:"tmdb"`
	IMDB    domain.Identifier `json:"imdb"`
}

// entry holds the payload fields the harvester reads.
type entry struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   ids    `json:"ids"`
}

func (e entry) id() domain.Identifier {
	if e.IDs.Simkl != "" {
		return e.IDs.Simkl
	}
	return e.IDs.SimklID
}

// decodeEntries reads a list response. Calendar files come either as a flat
// array or as an object keyed by date; both are accepted.
func decodeEntries(data []byte) ([]entry, error) {
	v := jsontext.Value(bytes.TrimSpace(data))
	if !v.IsValid() {
		return nil, fmt.Errorf("invalid JSON list (%d bytes)", len(v))
	}
	switch v.Kind() {
	case '[':
		var entries []entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	case '{':
		var byDate map[string][]entry
		if err := json.Unmarshal(data, &byDate); err != nil {
			return nil, err
		}
		var entries []entry
		for _, day := range byDate {
			entries = append(entries, day...)
		}
		return entries, nil
	case 'n':
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected JSON %s", v.Kind())
	}
}

// FetchDetail fetches the full record for id.
func (c *Client) FetchDetail(ctx context.Context, id domain.Identifier) (source.Item, error) {
	u := fmt.Sprintf("%s/%s/%s?extended=full", c.baseURL, c.kind, url.PathEscape(string(id)))

	data, err := c.fetcher.Do(ctx, fetch.Get(string(domain.CatalogSimkl), u, c.header()))
	if err != nil {
		return source.Item{}, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return source.Item{}, herrors.Malformed(string(domain.CatalogSimkl), err)
	}
	return source.Item{
		ID:      id,
		Payload: jsontext.Value(data),
		Title:   e.Title,
		Year:    e.Year,
	}, nil
}

// ExtractCrossRefs reads the ids object.
func (c *Client) ExtractCrossRefs(item source.Item) domain.CrossRefs {
	refs := source.Refs(domain.CatalogSimkl, item)

	var e entry
	if err := json.Unmarshal(item.Payload, &e); err != nil {
		return refs
	}
	own := domain.CatalogSimkl
	refs.Set(own, domain.CatalogMAL, string(e.IDs.MAL))
	refs.Set(own, domain.CatalogAniList, string(e.IDs.AniList))
	refs.Set(own, domain.CatalogAniDB, string(e.IDs.AniDB))
	refs.Set(own, domain.CatalogKitsu, string(e.IDs.Kitsu))
	refs.Set(own, domain.CatalogTMDB, string(e.IDs.TMDB))
	refs.Set(own, domain.CatalogIMDB, string(e.IDs.IMDB))
	return refs
}
