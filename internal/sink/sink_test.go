package sink

import (
	"context"
	"encoding/json/jsontext"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
)

var malAnime = domain.Target{Catalog: domain.CatalogMAL, Kind: domain.KindAnime}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func setupTestSink(t *testing.T, mode domain.Mode) (*FileSink, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)}
	s := NewFileSink(t.TempDir(), malAnime, mode, 7*24*time.Hour,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = clock.now
	return s, clock
}

func testRecord(id domain.Identifier, adult bool) domain.Record {
	refs := domain.NewCrossRefs(domain.CatalogMAL, id)
	refs[domain.CatalogAniList] = "21"
	return domain.Record{
		ID:      id,
		Refs:    refs,
		Payload: jsontext.Value(`{"mal_id":` + string(id) + `,"title":"One Piece"}`),
		Adult:   adult,
	}
}

func TestPut_CreatedThenSkippedIsByteIdentical(t *testing.T) {
	s, clock := setupTestSink(t, domain.ModeUpdate)
	ctx := context.Background()
	stats := domain.NewRunStats(malAnime, domain.ModeUpdate, clock.t)

	out, err := s.Put(ctx, testRecord("21", false), stats)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, out)

	before, err := os.ReadFile(s.Path("21"))
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Hour)
	out, err = s.Put(ctx, testRecord("21", false), stats)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, out)

	after, err := os.ReadFile(s.Path("21"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.Created)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 1, snap.Processed)
}

func TestPut_FreshnessBoundary(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want domain.Outcome
	}{
		{name: "exactly at threshold is stale", age: 7 * 24 * time.Hour, want: domain.OutcomeRefreshed},
		{name: "one second before is fresh", age: 7*24*time.Hour - time.Second, want: domain.OutcomeSkipped},
		{name: "well past threshold", age: 30 * 24 * time.Hour, want: domain.OutcomeRefreshed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := setupTestSink(t, domain.ModeUpdate)
			ctx := context.Background()
			written := clock.t

			_, err := s.Put(ctx, testRecord("5", false), nil)
			require.NoError(t, err)

			clock.t = written.Add(tt.age)
			fresh, err := s.Fresh(ctx, "5")
			require.NoError(t, err)
			assert.Equal(t, tt.want == domain.OutcomeSkipped, fresh)

			out, err := s.Put(ctx, testRecord("5", false), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestPut_ForceAlwaysRefreshes(t *testing.T) {
	s, _ := setupTestSink(t, domain.ModeForce)
	ctx := context.Background()

	_, err := s.Put(ctx, testRecord("1", false), nil)
	require.NoError(t, err)
	out, err := s.Put(ctx, testRecord("1", false), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRefreshed, out)

	fresh, err := s.Fresh(ctx, "1")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestPut_MatureCountedForEveryOutcome(t *testing.T) {
	s, clock := setupTestSink(t, domain.ModeUpdate)
	ctx := context.Background()
	stats := domain.NewRunStats(malAnime, domain.ModeUpdate, clock.t)

	_, err := s.Put(ctx, testRecord("1", true), stats)
	require.NoError(t, err)
	_, err = s.Put(ctx, testRecord("1", true), stats)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Snapshot().Mature)
}

func TestPut_CanonicalRecord(t *testing.T) {
	s, clock := setupTestSink(t, domain.ModeUpdate)
	ctx := context.Background()

	rec := testRecord("42", true)
	rec.Refs = domain.CrossRefs{domain.CatalogMAL: "999", domain.CatalogAniDB: "7"}
	_, err := s.Put(ctx, rec, nil)
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, domain.CatalogMAL, got.Catalog)
	assert.Equal(t, domain.KindAnime, got.Kind)
	assert.Equal(t, "42", got.Refs[domain.CatalogMAL], "own entry equals own identifier")
	assert.Equal(t, "7", got.Refs[domain.CatalogAniDB])
	assert.Len(t, got.Refs, len(domain.Catalogs))
	assert.True(t, got.Adult)
	assert.True(t, clock.t.Equal(got.LastUpdated))
	assert.JSONEq(t, `{"mal_id":42,"title":"One Piece"}`, string(got.Payload))

	raw, err := os.ReadFile(s.Path("42"))
	require.NoError(t, err)
	for _, key := range []string{`"service"`, `"media_id"`, `"media_type"`, `"id_mappings"`, `"data"`, `"is_adult"`, `"last_updated"`, `"kitsu"`} {
		assert.Contains(t, string(raw), key)
	}
}

func TestPut_RejectsUnsafeIdentifier(t *testing.T) {
	s, _ := setupTestSink(t, domain.ModeUpdate)

	_, err := s.Put(context.Background(), testRecord("../x", false), nil)
	assert.ErrorIs(t, err, herrors.ErrSource)
}

func TestPut_StatsFileIsReserved(t *testing.T) {
	s, _ := setupTestSink(t, domain.ModeUpdate)
	ctx := context.Background()

	statsPath := filepath.Join(s.dir, StatsFile)
	require.NoError(t, os.MkdirAll(s.dir, 0o755))
	require.NoError(t, os.WriteFile(statsPath, []byte(`{"items_processed":3}`), 0o644))

	for _, id := range []domain.Identifier{"stats", "STATS"} {
		rec := domain.Record{ID: id, Refs: domain.NewCrossRefs(domain.CatalogMAL, id)}
		_, err := s.Put(ctx, rec, nil)
		assert.ErrorIs(t, err, herrors.ErrSource, "id %s", id)

		fresh, err := s.Fresh(ctx, id)
		require.NoError(t, err)
		assert.False(t, fresh)
	}

	data, err := os.ReadFile(statsPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items_processed":3}`, string(data))
}

func TestFresh_FallsBackToModTime(t *testing.T) {
	s, clock := setupTestSink(t, domain.ModeUpdate)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path("9")), 0o755))
	require.NoError(t, os.WriteFile(s.Path("9"), []byte(`{"media_id":"9"}`), 0o644))

	mtime := clock.t.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(s.Path("9"), mtime, mtime))

	fresh, err := s.Fresh(context.Background(), "9")
	require.NoError(t, err)
	assert.True(t, fresh)

	clock.t = mtime.Add(8 * 24 * time.Hour)
	fresh, err = s.Fresh(context.Background(), "9")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestInventory(t *testing.T) {
	s, _ := setupTestSink(t, domain.ModeUpdate)
	ctx := context.Background()
	for _, id := range []domain.Identifier{"1", "2", "3"} {
		_, err := s.Put(ctx, testRecord(id, false), nil)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, StatsFile), []byte(`{}`), 0o644))

	outputDir := filepath.Dir(s.dir)
	files, size, err := Inventory(outputDir, malAnime)
	require.NoError(t, err)
	assert.Equal(t, 3, files)
	assert.Positive(t, size)

	files, _, err = Inventory(outputDir, domain.Target{Catalog: domain.CatalogKitsu, Kind: domain.KindManga})
	require.NoError(t, err)
	assert.Zero(t, files)
}
