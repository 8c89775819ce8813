// Package sink writes one record file per identifier with freshness-gated
// refresh and outcome accounting.
package sink

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
	"strings"
	"time"

	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/util"
)

// DefaultFreshness is the age below which an existing record is not rewritten
// in update mode.
const DefaultFreshness = 7 * 24 * time.Hour

// StatsFile is the run statistics file. It shares the target directory with
// the records, so no record may take its name.
const StatsFile = "stats.json"

// FileSink stores records as {outputDir}/{target}/{id}.json.
type FileSink struct {
	dir       string
	target    domain.Target
	mode      domain.Mode
	freshness time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewFileSink creates a sink for one target. A non-positive freshness uses
// DefaultFreshness.
func NewFileSink(outputDir string, target domain.Target, mode domain.Mode, freshness time.Duration, logger *slog.Logger) *FileSink {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &FileSink{
		dir:       TargetDir(outputDir, target),
		target:    target,
		mode:      mode,
		freshness: freshness,
		logger:    logger,
		now:       time.Now,
	}
}

// TargetDir is the directory holding a target's records.
func TargetDir(outputDir string, target domain.Target) string {
	return filepath.Join(outputDir, target.String())
}

// Path returns the record file for id.
func (s *FileSink) Path(id domain.Identifier) string {
	return filepath.Join(s.dir, string(id)+".json")
}

// Mode returns the run mode.
func (s *FileSink) Mode() domain.Mode {
	return s.mode
}

// Fresh reports whether a record for id exists and is younger than the
// freshness threshold. Force mode never considers anything fresh.
func (s *FileSink) Fresh(ctx context.Context, id domain.Identifier) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.mode == domain.ModeForce || !storable(id) {
		return false, nil
	}
	updated, exists, err := s.stored(id)
	if err != nil || !exists {
		return false, err
	}
	return s.isFresh(updated), nil
}

// Put stores rec and counts the outcome in stats (which may be nil).
//
// In update mode an existing record younger than the threshold is left
// untouched and Put returns OutcomeSkipped. Otherwise the record is written
// with LastUpdated set to now: OutcomeCreated when no file existed,
// OutcomeRefreshed when one did.
func (s *FileSink) Put(ctx context.Context, rec domain.Record, stats *domain.RunStats) (domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutcomeSkipped, err
	}
	if !storable(rec.ID) {
		return domain.OutcomeSkipped, herrors.Wrap(herrors.KindSource, string(s.target.Catalog),
			fmt.Sprintf("identifier %q cannot be stored", rec.ID), nil)
	}

	updated, exists, err := s.stored(rec.ID)
	if err != nil {
		return domain.OutcomeSkipped, err
	}

	if exists && s.mode == domain.ModeUpdate && s.isFresh(updated) {
		if stats != nil {
			stats.RecordOutcome(domain.OutcomeSkipped, rec.Adult)
		}
		s.logger.Debug("record fresh, skipped", "id", rec.ID)
		return domain.OutcomeSkipped, nil
	}

	rec = s.canonical(rec)
	data, err := json.Marshal(rec, json.Deterministic(true), jsontext.WithIndent("  "))
	if err != nil {
		return domain.OutcomeSkipped, herrors.Internal(fmt.Sprintf("encode record %s", rec.ID), err)
	}
	if err := util.WriteFileAtomic(s.Path(rec.ID), data, 0o644); err != nil {
		return domain.OutcomeSkipped, herrors.Internal(fmt.Sprintf("write record %s", rec.ID), err)
	}

	outcome := domain.OutcomeCreated
	if exists {
		outcome = domain.OutcomeRefreshed
	}
	if stats != nil {
		stats.RecordOutcome(outcome, rec.Adult)
	}
	s.logger.Debug("record stored", "id", rec.ID, "outcome", outcome.String())
	return outcome, nil
}

// Get reads a stored record.
func (s *FileSink) Get(ctx context.Context, id domain.Identifier) (domain.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, false, err
	}
	if !storable(id) {
		return domain.Record{}, false, nil
	}
	data, err := os.ReadFile(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, herrors.Internal("read record", err)
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Record{}, false, herrors.Internal(fmt.Sprintf("parse record %s", id), err)
	}
	return rec, true, nil
}

// canonical fills the fields owned by the sink.
func (s *FileSink) canonical(rec domain.Record) domain.Record {
	rec.Catalog = s.target.Catalog
	rec.Kind = s.target.Kind
	rec.Refs = rec.Refs.Normalize()
	rec.Refs[s.target.Catalog] = string(rec.ID)
	if len(rec.Payload) == 0 {
		rec.Payload = jsontext.Value("null")
	}
	rec.LastUpdated = s.now().UTC().Truncate(time.Second)
	return rec
}

// storable reports whether id can name a record file without clobbering
// another file of the target directory.
func storable(id domain.Identifier) bool {
	return id.FileSafe() && !strings.EqualFold(string(id)+".json", StatsFile)
}

func (s *FileSink) isFresh(updated time.Time) bool {
	return s.now().Sub(updated) < s.freshness
}

// stored returns the last-updated time of the record on disk. The stored
// last_updated field is authoritative; the file's modification time is used
// when the field is missing or unreadable.
func (s *FileSink) stored(id domain.Identifier) (time.Time, bool, error) {
	path := s.Path(id)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, herrors.Internal("stat record", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return info.ModTime(), true, nil
	}
	var head struct {
		LastUpdated time.Time `json:"last_updated"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.LastUpdated.IsZero() {
		return info.ModTime(), true, nil
	}
	return head.LastUpdated, true, nil
}

// Inventory counts the record files of a target and their total size.
func Inventory(outputDir string, target domain.Target) (files int, bytes int64, err error) {
	entries, err := os.ReadDir(TargetDir(outputDir, target))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", target, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == StatsFile || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files++
		bytes += info.Size()
	}
	return files, bytes, nil
}
