// Package source defines the contract every harvested catalog implements.
//
// A catalog is either a Pager, walked page by page with its items handed
// straight to the sink, or a Discoverer, whose identifiers are first
// collected by discovery strategies and then fetched one by one.
package source

import (
	"context"
	"encoding/json/jsontext"
	"time"

	"github.com/animap/harvester/internal/discovery"
	"github.com/animap/harvester/internal/domain"
)

// Item is one media entry as returned by a catalog.
type Item struct {
	ID      domain.Identifier
	Payload jsontext.Value
	Adult   bool

	// Title and Year feed the cross-reference index media key.
	Title string
	Year  int

	// Refs holds references learned outside the payload, e.g. from resources
	// included alongside a JSON:API page. May be nil.
	Refs domain.CrossRefs
}

// Page is one page of a paginated listing.
type Page struct {
	Items   []Item
	HasMore bool
}

// Style tells how a Pager's position is interpreted.
type Style int

// Pagination styles.
const (
	// StylePage positions are 1-based page numbers.
	StylePage Style = iota
	// StyleOffset positions are 0-based item offsets.
	StyleOffset
)

func (s Style) String() string {
	if s == StyleOffset {
		return "offset"
	}
	return "page"
}

// Source is implemented by every catalog.
type Source interface {
	Target() domain.Target
	// ExtractCrossRefs returns the references of item. Every catalog key is
	// present and the own entry equals item.ID.
	ExtractCrossRefs(item Item) domain.CrossRefs
}

// Pager is a source with a complete paginated listing.
type Pager interface {
	Source
	Style() Style
	// Start is the first position of a fresh walk.
	Start() int
	// Step is the distance between consecutive positions.
	Step() int
	FetchPage(ctx context.Context, pos int) (Page, error)
}

// Enricher is an optional Pager extension for catalogs whose listing carries
// less than the detail endpoint. The engine only enriches items it is going
// to write.
type Enricher interface {
	Enrich(ctx context.Context, item Item) (Item, error)
}

// Discoverer is a source without a complete listing.
type Discoverer interface {
	Source
	Strategies() []discovery.Strategy
	FetchDetail(ctx context.Context, id domain.Identifier) (Item, error)
}

// DefaultSpacing is the minimum interval between two requests to a catalog.
var DefaultSpacing = map[domain.Catalog]time.Duration{
	domain.CatalogAniList: time.Second,
	domain.CatalogMAL:     time.Second,
	domain.CatalogKitsu:   500 * time.Millisecond,
	domain.CatalogSimkl:   300 * time.Millisecond,
}

// Refs starts a cross-reference set for item and merges the item's side
// channel references into it.
func Refs(own domain.Catalog, item Item) domain.CrossRefs {
	refs := domain.NewCrossRefs(own, item.ID)
	for _, c := range domain.Catalogs {
		refs.Set(own, c, item.Refs[c])
	}
	return refs
}
