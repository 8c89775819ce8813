package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// CrossRefs maps catalog name to the identifier of the same media item in that
// catalog. Every known catalog has an entry; unknown references are empty
// strings, never missing keys. The record's own catalog always maps to its own
// identifier.
type CrossRefs map[Catalog]string

// NewCrossRefs returns a set with every catalog present and own set to id.
func NewCrossRefs(own Catalog, id Identifier) CrossRefs {
	refs := make(CrossRefs, len(Catalogs))
	for _, c := range Catalogs {
		refs[c] = ""
	}
	refs[own] = string(id)
	return refs
}

// Set records a reference. Empty values, unknown catalogs and attempts to
// overwrite the own entry (identified by own) are ignored.
func (r CrossRefs) Set(own, c Catalog, value string) {
	value = strings.TrimSpace(value)
	if value == "" || c == own || !c.Valid() {
		return
	}
	r[c] = value
}

// Known returns the catalogs with a non-empty reference, excluding own.
func (r CrossRefs) Known(own Catalog) []Catalog {
	var out []Catalog
	for _, c := range Catalogs {
		if c != own && r[c] != "" {
			out = append(out, c)
		}
	}
	return out
}

// Merge fills empty slots of r from other. Existing values are kept.
// It reports whether anything changed.
func (r CrossRefs) Merge(other CrossRefs) bool {
	changed := false
	for _, c := range Catalogs {
		if r[c] == "" && other[c] != "" {
			r[c] = other[c]
			changed = true
		}
	}
	return changed
}

// Normalize adds missing catalog keys with empty values.
func (r CrossRefs) Normalize() CrossRefs {
	if r == nil {
		r = make(CrossRefs, len(Catalogs))
	}
	for _, c := range Catalogs {
		if _, ok := r[c]; !ok {
			r[c] = ""
		}
	}
	return r
}

var anidbAidRe = regexp.MustCompile(`aid=(\d+)`)

// LastPathSegment returns the final non-empty path segment of a URL, e.g.
// "https://kitsu.app/anime/steins-gate/" -> "steins-gate".
func LastPathSegment(rawURL string) string {
	s := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		s = strings.TrimRight(u.Path, "/")
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// AniDBIDFromURL extracts the anime id from AniDB links in either the
// "?aid=123" or the "/anime/123" form.
func AniDBIDFromURL(rawURL string) string {
	if m := anidbAidRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if i := strings.LastIndex(rawURL, "="); i >= 0 {
		return rawURL[i+1:]
	}
	return LastPathSegment(rawURL)
}

// AniListIDFromURL extracts the media id from "https://anilist.co/anime/21/One-Piece".
func AniListIDFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 && (parts[0] == "anime" || parts[0] == "manga") {
		return parts[1]
	}
	return LastPathSegment(rawURL)
}
