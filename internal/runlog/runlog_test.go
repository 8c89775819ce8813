package runlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animap/harvester/internal/domain"
)

func setupTestLog(t *testing.T) *Log {
	t.Helper()

	l, err := Open(filepath.Join(t.TempDir(), "state", "runs.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLog_StartFinishGet(t *testing.T) {
	l := setupTestLog(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return start }

	target := domain.Target{Catalog: domain.CatalogAniList, Kind: domain.KindAnime}
	runID, err := l.Start(ctx, target, domain.ModeUpdate)
	require.NoError(t, err)
	assert.Regexp(t, `^run-[0-9a-z]+$`, runID)

	r, err := l.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, r.Status)
	assert.Equal(t, "anilist-anime", r.Summary.Target)
	assert.True(t, r.Summary.StartedAt.Equal(start))
	assert.True(t, r.Summary.FinishedAt.IsZero())

	summary := domain.RunSummary{
		Processed:  5,
		Created:    4,
		Refreshed:  1,
		Skipped:    2,
		Mature:     1,
		Failed:     3,
		FinishedAt: start.Add(time.Minute),
	}
	require.NoError(t, l.Finish(ctx, runID, summary, StatusFailed, errors.New("boom")))

	r, err = l.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "boom", r.Error)
	assert.Equal(t, 5, r.Summary.Processed)
	assert.Equal(t, 4, r.Summary.Created)
	assert.Equal(t, 3, r.Summary.Failed)
	assert.Equal(t, domain.ModeUpdate, r.Summary.Mode)
	assert.True(t, r.Summary.FinishedAt.Equal(start.Add(time.Minute)))
}

func TestLog_FinishUnknownRun(t *testing.T) {
	l := setupTestLog(t)
	err := l.Finish(context.Background(), "run-missing", domain.RunSummary{}, StatusCompleted, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Get(context.Background(), "run-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLog_Recent(t *testing.T) {
	l := setupTestLog(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	anilist := domain.Target{Catalog: domain.CatalogAniList, Kind: domain.KindAnime}
	kitsu := domain.Target{Catalog: domain.CatalogKitsu, Kind: domain.KindManga}

	var ids []string
	for i, target := range []domain.Target{anilist, kitsu, anilist} {
		l.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		runID, err := l.Start(ctx, target, domain.ModeForce)
		require.NoError(t, err)
		ids = append(ids, runID)
	}

	all, err := l.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	only, err := l.Recent(ctx, "anilist-anime", 1)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, ids[2], only[0].ID)
}
