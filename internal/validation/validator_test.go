package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/validation"
)

type settings struct {
	Target  string `flag:"target" validate:"required,target"`
	Mode    string `flag:"mode" validate:"mode"`
	Workers int    `flag:"workers" validate:"gte=1,lte=64"`
	Start   int    `flag:"year-start" validate:"gte=1900"`
	End     int    `flag:"year-end" validate:"gtefield=Start"`
}

func valid() settings {
	return settings{Target: "kitsu-manga", Mode: "force", Workers: 4, Start: 2000, End: 2001}
}

func TestValidator_Valid(t *testing.T) {
	assert.NoError(t, validation.New().Validate(valid()))
}

func TestValidator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*settings)
		wantMsg string
	}{
		{"missing target", func(s *settings) { s.Target = "" }, "target is required"},
		{"unsupported target", func(s *settings) { s.Target = "simkl-manga" }, `target "simkl-manga" is not a supported target`},
		{"bad mode", func(s *settings) { s.Mode = "fast" }, "mode must be update or force"},
		{"no workers", func(s *settings) { s.Workers = 0 }, "workers must be greater than or equal to 1"},
		{"inverted years", func(s *settings) { s.End = 1999 }, "year-end must not be before Start"},
	}

	v := validation.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)

			err := v.Validate(s)
			require.Error(t, err)
			assert.ErrorIs(t, err, herrors.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidator_ReportsAllFields(t *testing.T) {
	s := valid()
	s.Mode = ""
	s.Workers = 100

	err := validation.New().Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode must be update or force; workers must be less than or equal to 64")
}
