// Package jikan harvests MyAnimeList through the Jikan REST API.
//
// The listing endpoint is paginated with page/limit and a has_next_page flag.
// Listing entries are thinner than the /full detail payload, so items about to
// be written are enriched one request at a time.
package jikan

import (
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/fetch"
	"github.com/animap/harvester/internal/source"
)

// DefaultBaseURL is the public Jikan v4 API.
const DefaultBaseURL = "https://api.jikan.moe/v4"

const pageLimit = 25

// Client pages through MyAnimeList entries of one media type.
type Client struct {
	fetcher *fetch.Fetcher
	baseURL string
	kind    domain.MediaKind
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// New creates a client.
func New(fetcher *fetch.Fetcher, kind domain.MediaKind, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		baseURL: DefaultBaseURL,
		kind:    kind,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the harvested target.
func (c *Client) Target() domain.Target {
	return domain.Target{Catalog: domain.CatalogMAL, Kind: c.kind}
}

// Style is page-numbered.
func (c *Client) Style() source.Style { return source.StylePage }

// Start is the first page.
func (c *Client) Start() int { return 1 }

// Step is one page.
func (c *Client) Step() int { return 1 }

type listResponse struct {
	Data       []jsontext.Value `json:"data"`
	Pagination struct {
		HasNextPage     bool `json:"has_next_page"`
		LastVisiblePage int  `json:"last_visible_page"`
	} `json:"pagination"`
}

type detailResponse struct {
	Data jsontext.Value `json:"data"`
}

type named struct {
	Name string `json:"name"`
}

type dated struct {
	Prop struct {
		From struct {
			Year int `json:"year"`
		} `json:"from"`
	} `json:"prop"`
}

// entry holds the payload fields the harvester reads.
type entry struct {
	MalID          domain.Identifier `json:"mal_id"`
	Title          string            `json:"title"`
	TitleEnglish   string            `json:"title_english"`
	Year           int               `json:"year"`
	Aired          dated             `json:"aired"`
	Published      dated             `json:"published"`
	Rating         string            `json:"rating"`
	Genres         []named           `json:"genres"`
	ExplicitGenres []named           `json:"explicit_genres"`
	External       []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"external"`
}

var adultGenres = map[string]bool{"hentai": true, "erotica": true}

func (e entry) adult() bool {
	if strings.Contains(e.Rating, "Rx") {
		return true
	}
	for _, g := range slices.Concat(e.Genres, e.ExplicitGenres) {
		if adultGenres[strings.ToLower(g.Name)] {
			return true
		}
	}
	return false
}

func (e entry) year() int {
	if e.Year > 0 {
		return e.Year
	}
	return max(e.Aired.Prop.From.Year, e.Published.Prop.From.Year)
}

func itemFrom(raw jsontext.Value) (source.Item, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return source.Item{}, err
	}
	return source.Item{
		ID:      e.MalID,
		Payload: raw,
		Adult:   e.adult(),
		Title:   e.Title,
		Year:    e.year(),
	}, nil
}

// FetchPage fetches one listing page.
func (c *Client) FetchPage(ctx context.Context, page int) (source.Page, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(pageLimit))
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, c.kind, q.Encode())

	data, err := c.fetcher.Do(ctx, fetch.Get(string(domain.CatalogMAL), u, nil))
	if err != nil {
		return source.Page{}, err
	}

	var resp listResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return source.Page{}, herrors.Malformed(string(domain.CatalogMAL), err)
	}

	out := source.Page{HasMore: resp.Pagination.HasNextPage}
	for _, raw := range resp.Data {
		item, err := itemFrom(raw)
		if err != nil {
			return source.Page{}, herrors.Malformed(string(domain.CatalogMAL), err)
		}
		out.Items = append(out.Items, item)
	}

	c.logger.Debug("jikan page",
		"page", page,
		"last_page", resp.Pagination.LastVisiblePage,
		"items", len(out.Items),
	)
	return out, nil
}

// Enrich replaces the listing payload with the /full detail payload. When the
// detail request fails the listing entry is kept; only cancellation is
// returned as an error.
func (c *Client) Enrich(ctx context.Context, item source.Item) (source.Item, error) {
	u := fmt.Sprintf("%s/%s/%s/full", c.baseURL, c.kind, url.PathEscape(string(item.ID)))

	data, err := c.fetcher.Do(ctx, fetch.Get(string(domain.CatalogMAL), u, nil))
	if err != nil {
		if ctx.Err() != nil {
			return item, ctx.Err()
		}
		c.logger.Warn("detail fetch failed, keeping listing entry",
			"id", item.ID,
			"error", err,
		)
		return item, nil
	}

	var resp detailResponse
	if err := json.Unmarshal(data, &resp); err != nil || len(resp.Data) == 0 {
		c.logger.Warn("detail payload unreadable, keeping listing entry", "id", item.ID)
		return item, nil
	}
	full, err := itemFrom(resp.Data)
	if err != nil || full.ID != item.ID {
		c.logger.Warn("detail payload mismatched, keeping listing entry", "id", item.ID)
		return item, nil
	}
	return full, nil
}

// ExtractCrossRefs reads AniList and AniDB links from the external list.
func (c *Client) ExtractCrossRefs(item source.Item) domain.CrossRefs {
	refs := source.Refs(domain.CatalogMAL, item)

	var e entry
	if err := json.Unmarshal(item.Payload, &e); err != nil {
		return refs
	}
	for _, ext := range e.External {
		link := strings.ToLower(ext.URL)
		switch {
		case strings.Contains(link, "anilist.co"):
			refs.Set(domain.CatalogMAL, domain.CatalogAniList, domain.AniListIDFromURL(link))
		case strings.Contains(link, "anidb.net"):
			refs.Set(domain.CatalogMAL, domain.CatalogAniDB, domain.AniDBIDFromURL(link))
		}
	}
	return refs
}
