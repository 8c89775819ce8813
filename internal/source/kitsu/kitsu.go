// Package kitsu harvests the Kitsu JSON:API by item offset.
package kitsu

import (
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/fetch"
	"github.com/animap/harvester/internal/source"
)

// DefaultBaseURL is the public Kitsu edge API.
const DefaultBaseURL = "https://kitsu.app/api/edge"

const (
	pageLimit   = 20
	contentType = "application/vnd.api+json"
)

// Client walks one media type by offset.
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
	return domain.Target{Catalog: domain.CatalogKitsu, Kind: c.kind}
}

// Style is offset-based.
func (c *Client) Style() source.Style { return source.StyleOffset }

// Start is offset zero.
func (c *Client) Start() int { return 0 }

// Step is one page of items.
func (c *Client) Step() int { return pageLimit }

type resourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type listResponse struct {
	Data     []jsontext.Value `json:"data"`
	Included []struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			ExternalSite string `json:"externalSite"`
			ExternalID   string `json:"externalId"`
		} `json:"attributes"`
	} `json:"included"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// resource holds the payload fields the harvester reads.
type resource struct {
	ID         domain.Identifier `json:"id"`
	Attributes struct {
		CanonicalTitle string `json:"canonicalTitle"`
		StartDate      string `json:"startDate"`
		NSFW           bool   `json:"nsfw"`
		AgeRating      string `json:"ageRating"`
	} `json:"attributes"`
	Relationships struct {
		Mappings struct {
			Data []resourceRef `json:"data"`
		} `json:"mappings"`
	} `json:"relationships"`
}

type mapping struct {
	site string
	id   string
}

// siteCatalogs maps the prefix of a Kitsu externalSite to a catalog.
var siteCatalogs = map[string]domain.Catalog{
	"myanimelist": domain.CatalogMAL,
	"anilist":     domain.CatalogAniList,
	"anidb":       domain.CatalogAniDB,
}

// FetchPage fetches the page starting at offset, with mappings included.
func (c *Client) FetchPage(ctx context.Context, offset int) (source.Page, error) {
	q := url.Values{}
	q.Set("page[limit]", strconv.Itoa(pageLimit))
	q.Set("page[offset]", strconv.Itoa(offset))
	q.Set("include", "mappings")
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, c.kind, q.Encode())

	header := http.Header{}
	header.Set("Accept", contentType)
	header.Set("Content-Type", contentType)

	data, err := c.fetcher.Do(ctx, fetch.Get(string(domain.CatalogKitsu), u, header))
	if err != nil {
		return source.Page{}, err
	}

	var resp listResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return source.Page{}, herrors.Malformed(string(domain.CatalogKitsu), err)
	}

	mappings := make(map[string]mapping, len(resp.Included))
	for _, inc := range resp.Included {
		if inc.Type == "mappings" {
			mappings[inc.ID] = mapping{site: inc.Attributes.ExternalSite, id: inc.Attributes.ExternalID}
		}
	}

	out := source.Page{HasMore: resp.Links.Next != "" && len(resp.Data) > 0}
	for _, raw := range resp.Data {
		var r resource
		if err := json.Unmarshal(raw, &r); err != nil {
			return source.Page{}, herrors.Malformed(string(domain.CatalogKitsu), err)
		}

		item := source.Item{
			ID:      r.ID,
			Payload: raw,
			Adult:   r.Attributes.NSFW || r.Attributes.AgeRating == "R18",
			Title:   r.Attributes.CanonicalTitle,
			Year:    yearOf(r.Attributes.StartDate),
		}
		for _, ref := range r.Relationships.Mappings.Data {
			m, ok := mappings[ref.ID]
			if !ok {
				continue
			}
			site, _, _ := strings.Cut(m.site, "/")
			if cat, ok := siteCatalogs[site]; ok {
				if item.Refs == nil {
					item.Refs = domain.CrossRefs{}
				}
				item.Refs[cat] = m.id
			}
		}
		out.Items = append(out.Items, item)
	}

	c.logger.Debug("kitsu page",
		"offset", offset,
		"items", len(out.Items),
		"included", len(resp.Included),
	)
	return out, nil
}

// ExtractCrossRefs returns the references learned from included mappings.
// Kitsu payloads carry no cross-reference fields of their own.
func (c *Client) ExtractCrossRefs(item source.Item) domain.CrossRefs {
	return source.Refs(domain.CatalogKitsu, item)
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
