package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/animap/harvester/internal/domain"
)

func TestNew_FormatByEnvironment(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Writer: &buf, Environment: "production"}).Info("page fetched", "page", 3)
	assert.Contains(t, buf.String(), `"msg":"page fetched"`)
	assert.Contains(t, buf.String(), `"page":3`)

	buf.Reset()
	New(Config{Writer: &buf, Environment: "development", NoColor: true}).Info("page fetched", "page", 3)
	assert.Contains(t, buf.String(), "INF page fetched page=3")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, Format: "json", Level: slog.LevelWarn})
	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestPrettyHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewPrettyHandler(&buf, nil, false))

	l = ForTarget(l, domain.Target{Catalog: domain.CatalogKitsu, Kind: domain.KindManga})
	l.WithGroup("fetch").Warn("retrying", "attempt", 2, "error", errors.New("gateway timeout"))

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "WRN retrying")
	assert.Contains(t, line, "catalog=kitsu kind=manga")
	assert.Contains(t, line, "fetch.attempt=2")
	assert.Contains(t, line, `fetch.error="gateway timeout"`)
}

func TestPrettyHandler_Colors(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil, true)).Error("boom")
	assert.Contains(t, buf.String(), colorRed+"ERR"+colorReset)
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(t.Context(), slog.LevelError))
}

func TestPrettyHandler_QuotesAnyValues(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewPrettyHandler(&buf, nil, false))

	l.Info("page", "error", errors.New("eof"), "positions", []int{2, 3}, "empty", errors.New(""))

	line := buf.String()
	assert.Contains(t, line, "error=eof")
	assert.Contains(t, line, `positions="[2 3]"`)
	assert.Contains(t, line, `empty=""`)
}
