// Package id generates identifiers for harvest runs.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// RunPrefix prefixes every run identifier.
const RunPrefix = "run"

const (
	// Lowercase letters and digits keep run ids safe in file names and logs.
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	size     = 12
)

// Generate returns prefix-<nanoid>, e.g. "run-k3v9x0q2m1ab".
func Generate(prefix string) (string, error) {
	s, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + "-" + s, nil
}

// NewRun returns a fresh run identifier.
func NewRun() (string, error) {
	return Generate(RunPrefix)
}
