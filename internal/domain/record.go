package domain

import (
	"encoding/json/jsontext"
	"fmt"
	"time"
)

// Mode selects how the record sink treats records that already exist.
type Mode string

// Run modes.
const (
	// ModeUpdate skips records refreshed within the freshness threshold.
	ModeUpdate Mode = "update"
	// ModeForce rewrites every record.
	ModeForce Mode = "force"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUpdate, ModeForce:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q (must be update or force)", s)
}

// Record is one canonical media record as stored on disk.
// Payload is the catalog's own JSON for the item, kept verbatim.
type Record struct {
	Catalog     Catalog        `json:"service"`
	ID          Identifier     `json:"media_id"`
	Kind        MediaKind      `json:"media_type"`
	Refs        CrossRefs      `json:"id_mappings"`
	Payload     jsontext.Value `json:"data"`
	Adult       bool           `json:"is_adult"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Outcome is the result of handing a record to the sink.
type Outcome int

// Sink outcomes.
const (
	OutcomeSkipped Outcome = iota
	OutcomeCreated
	OutcomeRefreshed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeRefreshed:
		return "refreshed"
	default:
		return "skipped"
	}
}
