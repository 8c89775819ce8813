package errors

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := Transient("simkl", 3, fmt.Errorf("connection reset"))

	assert.True(t, Is(err, ErrTransient))
	assert.False(t, Is(err, ErrSource))

	wrapped := fmt.Errorf("detail 42: %w", err)
	assert.True(t, Is(wrapped, ErrTransient))
	assert.Equal(t, KindTransient, KindOf(wrapped))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
}

func TestKind_Skippable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindThrottle, true},
		{KindTransient, true},
		{KindSource, true},
		{KindConfiguration, false},
		{KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Skippable())
		})
	}
}

func TestError_Message(t *testing.T) {
	err := SourceStatus("kitsu", 404, "not here").WithOp("page", "kitsu")
	assert.Equal(t, "page [kitsu]: unexpected status: not here (status 404)", err.Error())

	cause := fmt.Errorf("eof")
	m := Malformed("anilist", cause)
	assert.Contains(t, m.Error(), "malformed response")
	assert.ErrorIs(t, m, cause)
}

func TestSourceStatus_TruncatesBody(t *testing.T) {
	body := make([]byte, 500)
	for i := range body {
		body[i] = 'x'
	}
	err := SourceStatus("mal", 400, string(body))
	assert.Less(t, len(err.Message), 250)
}

func TestSourceStatus_TruncatesOnRuneBoundary(t *testing.T) {
	body := "x" + strings.Repeat("é", 200)
	err := SourceStatus("kitsu", 422, body)

	assert.True(t, utf8.ValidString(err.Message), "message %q", err.Message)
	assert.True(t, strings.HasSuffix(err.Message, "é..."))
}

func TestConfigurationf(t *testing.T) {
	err := Configurationf("unknown target %q", "foo-bar")
	assert.True(t, Is(err, ErrConfiguration))
	assert.False(t, err.Kind.Skippable())
}
