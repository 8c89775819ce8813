// Package normalize turns catalog titles into comparable keys.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Matches any non-alphanumeric character.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	// Matches multiple hyphens.
	multipleHyphens = regexp.MustCompile(`-+`)
)

// ascii folds s to lowercase ASCII. Accented letters lose their marks;
// characters with no ASCII base (CJK, emoji) are dropped.
func ascii(s string) string {
	s = norm.NFKD.String(s)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(s)
}

// Slug converts a title to a hyphenated slug.
// "Steins;Gate 0" -> "steins-gate-0".
// "Pokémon: The Movie" -> "pokemon-the-movie".
func Slug(title string) string {
	s := nonAlphanumeric.ReplaceAllString(ascii(title), "-")
	s = multipleHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Compact strips a title down to its letters and digits.
// "Steins;Gate 0" -> "steinsgate0".
func Compact(title string) string {
	return nonAlphanumeric.ReplaceAllString(ascii(title), "")
}

// MediaKey identifies a work across catalogs by title, start year and kind,
// e.g. "cowboybebop-1998-anime". An unknown year is written as "unknown".
// Titles with nothing left after folding yield an empty key.
func MediaKey(title string, year int, kind string) string {
	t := Compact(title)
	if t == "" {
		return ""
	}
	y := "unknown"
	if year > 0 {
		y = strconv.Itoa(year)
	}
	return t + "-" + y + "-" + strings.ToLower(kind)
}
