package checkpoint

import (
	"context"
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

var simklAnime = domain.Target{Catalog: domain.CatalogSimkl, Kind: domain.KindAnime}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state"), filepath.Join(dir, "out"), simklAnime,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestStore_LoadMissingIsZero(t *testing.T) {
	s := setupTestStore(t)

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Zero(), st)
	assert.Equal(t, 1, st.Page)
	assert.NotNil(t, st.CollectedIDs)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	want := State{
		Page:         7,
		Offset:       140,
		CollectedIDs: []domain.Identifier{"1", "2", "10"},
		DetailIndex:  2,
		Phase:        PhaseDetail,
		Pending:      []int{3},
	}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	want.UpdatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, want, got)
	assert.Equal(t, filepath.Base(s.Path()), "checkpoint_simkl-anime.json")
}

func TestStore_LegacyFile(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	legacy := `{"page": 1, "offset": 0, "collected_ids": [37089, 40101, 1]}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Identifier{"37089", "40101", "1"}, st.CollectedIDs)
	assert.Equal(t, PhaseDiscovery, st.Phase)
	assert.Equal(t, 0, st.DetailIndex)
}

func TestStore_CorruptFile(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"page": 3, "coll`), 0o644))

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, herrors.ErrInternal)
}

func TestStore_Clear(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Clear(ctx), "clearing a missing checkpoint is fine")
	require.NoError(t, s.Save(ctx, State{Page: 4}))
	require.NoError(t, s.Clear(ctx))

	st, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Page)
}

func TestStore_Stats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadStats(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	stats := domain.NewRunStats(simklAnime, domain.ModeUpdate, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	stats.RecordOutcome(domain.OutcomeCreated, true)
	stats.Finish(time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveStats(ctx, stats.Snapshot()))

	got, ok, err := s.LoadStats(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stats.Snapshot(), got)

	raw, err := os.ReadFile(s.StatsPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"nsfw_items"`)
	assert.Contains(t, string(raw), `"start_time"`)
	assert.Equal(t, filepath.Join("simkl-anime", "stats.json"),
		filepath.Join(filepath.Base(filepath.Dir(s.StatsPath())), filepath.Base(s.StatsPath())))
}

func TestStore_CanceledContext(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, Zero()), context.Canceled)
	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
