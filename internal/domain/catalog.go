// Package domain contains the core entities of the harvester: catalogs, media
// kinds, identifiers, cross-references, records and run statistics.
package domain

import (
	"fmt"
	"strings"
)

// Catalog names one external metadata catalog. It is also the key used in
// cross-reference sets.
type Catalog string

// Known catalogs. Only some of them are harvested; the rest appear as
// cross-reference targets.
const (
	CatalogAniList Catalog = "anilist"
	CatalogMAL     Catalog = "mal"
	CatalogKitsu   Catalog = "kitsu"
	CatalogAniDB   Catalog = "anidb"
	CatalogSimkl   Catalog = "simkl"
	CatalogTMDB    Catalog = "tmdb"
	CatalogIMDB    Catalog = "imdb"
)

// Catalogs lists every catalog that has a slot in a cross-reference set, in
// display order.
var Catalogs = []Catalog{
	CatalogAniList,
	CatalogMAL,
	CatalogKitsu,
	CatalogAniDB,
	CatalogSimkl,
	CatalogTMDB,
	CatalogIMDB,
}

// Valid reports whether c is a known catalog.
func (c Catalog) Valid() bool {
	for _, known := range Catalogs {
		if c == known {
			return true
		}
	}
	return false
}

// MediaKind is the kind of media a target harvests.
type MediaKind string

// Media kinds.
const (
	KindAnime MediaKind = "anime"
	KindManga MediaKind = "manga"
	KindTV    MediaKind = "tv"
)

// harvestable maps each harvested catalog to the media kinds it serves.
var harvestable = map[Catalog][]MediaKind{
	CatalogAniList: {KindAnime, KindManga},
	CatalogMAL:     {KindAnime, KindManga},
	CatalogKitsu:   {KindAnime, KindManga},
	CatalogSimkl:   {KindAnime, KindTV},
}

// Target is one (catalog, media kind) pair. Checkpoints, statistics and
// record directories are all scoped to a target.
type Target struct {
	Catalog Catalog
	Kind    MediaKind
}

// String returns the "<catalog>-<kind>" form, e.g. "anilist-anime".
func (t Target) String() string {
	return string(t.Catalog) + "-" + string(t.Kind)
}

// ParseTarget parses "<catalog>-<kind>" and rejects combinations that no
// source implements.
func ParseTarget(s string) (Target, error) {
	catalog, kind, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "-")
	if !ok || catalog == "" || kind == "" {
		return Target{}, fmt.Errorf("target %q: want <catalog>-<kind>", s)
	}

	kinds, ok := harvestable[Catalog(catalog)]
	if !ok {
		return Target{}, fmt.Errorf("target %q: unsupported catalog %q", s, catalog)
	}
	for _, k := range kinds {
		if k == MediaKind(kind) {
			return Target{Catalog: Catalog(catalog), Kind: k}, nil
		}
	}
	return Target{}, fmt.Errorf("target %q: catalog %s does not serve %q", s, catalog, kind)
}

// Targets returns every supported target.
func Targets() []Target {
	var out []Target
	for _, c := range Catalogs {
		for _, k := range harvestable[c] {
			out = append(out, Target{Catalog: c, Kind: k})
		}
	}
	return out
}
