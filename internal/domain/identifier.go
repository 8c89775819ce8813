package domain

import (
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Identifier is a catalog-scoped record key. Catalogs use integers or opaque
// strings; both are carried as strings. Identifiers are not unique across
// catalogs.
type Identifier string

// CompareIdentifiers orders identifiers ascending. Two numeric identifiers
// compare by value so "9" sorts before "10"; anything else compares bytewise,
// with numeric identifiers first.
func CompareIdentifiers(a, b Identifier) int {
	an, aErr := strconv.ParseInt(string(a), 10, 64)
	bn, bErr := strconv.ParseInt(string(b), 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(string(a), string(b))
}

// SortIdentifiers sorts ids in place with CompareIdentifiers.
func SortIdentifiers(ids []Identifier) {
	slices.SortFunc(ids, CompareIdentifiers)
}

// FileSafe reports whether the identifier can be used as a file name.
func (id Identifier) FileSafe() bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(string(id), `/\`+"\x00")
}

// UnmarshalJSON accepts both string and numeric identifiers, so catalog
// payloads and legacy checkpoints holding integer ids decode the same way.
func (id *Identifier) UnmarshalJSON(b []byte) error {
	v := jsontext.Value(b)
	switch v.Kind() {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = Identifier(s)
	case '0':
		*id = Identifier(strings.TrimSpace(string(b)))
	case 'n':
		*id = ""
	default:
		return fmt.Errorf("identifier: unexpected JSON %s", v.Kind())
	}
	return nil
}
