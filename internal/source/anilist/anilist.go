// Package anilist harvests the AniList GraphQL API page by page.
package anilist

import (
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"log/slog"
	"net/http"
	"strings"

	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/fetch"
	"github.com/animap/harvester/internal/source"
)

// DefaultEndpoint is the public GraphQL endpoint.
const DefaultEndpoint = "https://graphql.anilist.co"

const perPage = 50

const pageQuery = `query ($page: Int, $perPage: Int, $type: MediaType) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { hasNextPage currentPage lastPage }
    media(type: $type, sort: ID) {
      id idMal format status episodes chapters volumes isAdult
      title { romaji english native }
      description
      startDate { year month day }
      endDate { year month day }
      season seasonYear
      coverImage { extraLarge large }
      bannerImage genres synonyms
      tags { name rank }
      averageScore meanScore popularity favourites
      source countryOfOrigin
      studios { nodes { name isAnimationStudio } }
      relations { edges { relationType node { id type } } }
      externalLinks { url site }
      trailer { id site }
    }
  }
}`

// Client pages through one media type.
type Client struct {
	fetcher  *fetch.Fetcher
	endpoint string
	token    string
	kind     domain.MediaKind
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// New creates a client. token is optional; without it AniList filters adult
// content out of every page.
func New(fetcher *fetch.Fetcher, kind domain.MediaKind, token string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		fetcher:  fetcher,
		endpoint: DefaultEndpoint,
		token:    token,
		kind:     kind,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the harvested target.
func (c *Client) Target() domain.Target {
	return domain.Target{Catalog: domain.CatalogAniList, Kind: c.kind}
}

// Style is page-numbered.
func (c *Client) Style() source.Style { return source.StylePage }

// Start is the first page.
func (c *Client) Start() int { return 1 }

// Step is one page.
func (c *Client) Step() int { return 1 }

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type pageResponse struct {
	Data struct {
		Page *struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
				CurrentPage int  `json:"currentPage"`
				LastPage    int  `json:"lastPage"`
			} `json:"pageInfo"`
			Media []jsontext.Value `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// media holds the payload fields the harvester reads.
type media struct {
	ID      domain.Identifier `json:"id"`
	IDMal   domain.Identifier `json:"idMal"`
	IsAdult bool              `json:"isAdult"`
	Title   struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
	} `json:"title"`
	StartDate struct {
		Year int `json:"year"`
	} `json:"startDate"`
	SeasonYear    int `json:"seasonYear"`
	ExternalLinks []struct {
		URL  string `json:"url"`
		Site string `json:"site"`
	} `json:"externalLinks"`
}

// FetchPage fetches one page of media.
func (c *Client) FetchPage(ctx context.Context, page int) (source.Page, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: pageQuery,
		Variables: map[string]any{
			"page":    page,
			"perPage": perPage,
			"type":    strings.ToUpper(string(c.kind)),
		},
	}, json.Deterministic(true))
	if err != nil {
		return source.Page{}, herrors.Internal("encode query", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	data, err := c.fetcher.Do(ctx, fetch.Request{
		Source: string(domain.CatalogAniList),
		Method: http.MethodPost,
		URL:    c.endpoint,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return source.Page{}, err
	}

	var resp pageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return source.Page{}, herrors.Malformed(string(domain.CatalogAniList), err)
	}
	if resp.Data.Page == nil {
		msg := "response has no Page"
		if len(resp.Errors) > 0 {
			msg = resp.Errors[0].Message
		}
		return source.Page{}, herrors.Wrap(herrors.KindSource, string(domain.CatalogAniList), msg, nil)
	}

	out := source.Page{HasMore: resp.Data.Page.PageInfo.HasNextPage}
	for _, raw := range resp.Data.Page.Media {
		var m media
		if err := json.Unmarshal(raw, &m); err != nil {
			return source.Page{}, herrors.Malformed(string(domain.CatalogAniList), err)
		}
		out.Items = append(out.Items, source.Item{
			ID:      m.ID,
			Payload: raw,
			Adult:   m.IsAdult,
			Title:   firstNonEmpty(m.Title.English, m.Title.Romaji),
			Year:    max(m.StartDate.Year, m.SeasonYear),
		})
	}

	c.logger.Debug("anilist page",
		"page", resp.Data.Page.PageInfo.CurrentPage,
		"last_page", resp.Data.Page.PageInfo.LastPage,
		"items", len(out.Items),
	)
	return out, nil
}

// ExtractCrossRefs reads idMal and the Kitsu and AniDB external links.
func (c *Client) ExtractCrossRefs(item source.Item) domain.CrossRefs {
	refs := source.Refs(domain.CatalogAniList, item)

	var m media
	if err := json.Unmarshal(item.Payload, &m); err != nil {
		return refs
	}
	refs.Set(domain.CatalogAniList, domain.CatalogMAL, string(m.IDMal))
	for _, link := range m.ExternalLinks {
		site := strings.ToLower(link.Site)
		switch {
		case strings.Contains(site, "kitsu"):
			refs.Set(domain.CatalogAniList, domain.CatalogKitsu, domain.LastPathSegment(link.URL))
		case strings.Contains(site, "anidb"):
			refs.Set(domain.CatalogAniList, domain.CatalogAniDB, domain.AniDBIDFromURL(link.URL))
		}
	}
	return refs
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
