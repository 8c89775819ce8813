// Package checkpoint persists the resume state of a harvest target and the
// statistics of its latest run.
//
// The checkpoint file is the only resume mechanism: it is rewritten after
// every page, discovery strategy and detail batch, always atomically, so a
// crash at any point leaves the previous complete state on disk.
package checkpoint

import (
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/sink"
	"github.com/animap/harvester/internal/util"
)

// Phase is the stage a discovery-based target was in when last saved.
type Phase string

// Phases.
const (
	PhaseDiscovery Phase = "discovery"
	PhaseDetail    Phase = "detail"
)

// State is the persisted resume state of one target.
type State struct {
	// Page is the last processed page of a page-numbered source.
	Page int `json:"page"`
	// Offset is the last processed offset of an offset-paginated source.
	Offset int `json:"offset"`
	// CollectedIDs is the discovered identifier set, sorted.
	CollectedIDs []domain.Identifier `json:"collected_ids"`
	// DetailIndex is how far the detail walk over CollectedIDs got.
	DetailIndex int   `json:"detail_index"`
	Phase       Phase `json:"phase,omitzero"`
	// Pending lists page or offset positions that failed and are retried
	// first on the next run.
	Pending   []int     `json:"pending,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Zero is the state of a target that has never run.
func Zero() State {
	return State{
		Page:         1,
		CollectedIDs: []domain.Identifier{},
		Phase:        PhaseDiscovery,
	}
}

func (s State) normalized() State {
	s.Page = max(s.Page, 1)
	s.Offset = max(s.Offset, 0)
	s.DetailIndex = max(s.DetailIndex, 0)
	if s.CollectedIDs == nil {
		s.CollectedIDs = []domain.Identifier{}
	}
	if s.Phase == "" {
		s.Phase = PhaseDiscovery
	}
	return s
}

// Store reads and writes the checkpoint and statistics files of one target.
type Store struct {
	path      string
	statsPath string
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates a store. The checkpoint lives at
// {stateDir}/checkpoint_{target}.json and the statistics at
// {outputDir}/{target}/stats.json.
func NewStore(stateDir, outputDir string, target domain.Target, logger *slog.Logger) *Store {
	return &Store{
		path:      filepath.Join(stateDir, fmt.Sprintf("checkpoint_%s.json", target)),
		statsPath: filepath.Join(sink.TargetDir(outputDir, target), sink.StatsFile),
		logger:    logger,
		now:       time.Now,
	}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// StatsPath returns the statistics file path.
func (s *Store) StatsPath() string {
	return s.statsPath
}

// Load returns the saved state, or Zero when no checkpoint exists.
func (s *Store) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Zero(), nil
	}
	if err != nil {
		return State{}, herrors.Internal("read checkpoint", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, herrors.Internal(fmt.Sprintf("parse checkpoint %s", s.path), err)
	}
	st = st.normalized()

	s.logger.Debug("checkpoint loaded",
		"path", s.path,
		"page", st.Page,
		"offset", st.Offset,
		"collected", len(st.CollectedIDs),
		"phase", st.Phase,
	)
	return st, nil
}

// Save atomically replaces the checkpoint.
func (s *Store) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	st = st.normalized()
	st.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(st, jsontext.WithIndent("  "))
	if err != nil {
		return herrors.Internal("encode checkpoint", err)
	}
	if err := util.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return herrors.Internal("write checkpoint", err)
	}
	return nil
}

// Clear removes the checkpoint so the next run starts from the beginning.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return herrors.Internal("remove checkpoint", err)
	}
	s.logger.Info("checkpoint cleared", "path", s.path)
	return nil
}

// SaveStats overwrites the statistics file with the run's summary.
func (s *Store) SaveStats(ctx context.Context, summary domain.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(summary, jsontext.WithIndent("  "))
	if err != nil {
		return herrors.Internal("encode stats", err)
	}
	if err := util.WriteFileAtomic(s.statsPath, data, 0o644); err != nil {
		return herrors.Internal("write stats", err)
	}
	return nil
}

// LoadStats reads the statistics of the latest run. ok is false when no run
// has finished yet.
func (s *Store) LoadStats(ctx context.Context) (summary domain.RunSummary, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return domain.RunSummary{}, false, err
	}

	data, err := os.ReadFile(s.statsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.RunSummary{}, false, nil
	}
	if err != nil {
		return domain.RunSummary{}, false, herrors.Internal("read stats", err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.RunSummary{}, false, herrors.Internal("parse stats", err)
	}
	return summary, true, nil
}
