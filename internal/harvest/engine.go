// Package harvest drives one harvest run for one target: it restores the
// checkpoint, walks the source, hands records to the sink and saves progress
// after every unit of work.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/animap/harvester/internal/checkpoint"
	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/runlog"
	"github.com/animap/harvester/internal/source"
)

// CheckpointStore persists resume state and run statistics.
type CheckpointStore interface {
	Load(ctx context.Context) (checkpoint.State, error)
	Save(ctx context.Context, st checkpoint.State) error
	Clear(ctx context.Context) error
	SaveStats(ctx context.Context, summary domain.RunSummary) error
}

// Sink stores records.
type Sink interface {
	Mode() domain.Mode
	Fresh(ctx context.Context, id domain.Identifier) (bool, error)
	Get(ctx context.Context, id domain.Identifier) (domain.Record, bool, error)
	Put(ctx context.Context, rec domain.Record, stats *domain.RunStats) (domain.Outcome, error)
}

// Indexer receives every written record.
type Indexer interface {
	Record(ctx context.Context, rec domain.Record, title string, year int) error
}

// RunLog records run history.
type RunLog interface {
	Start(ctx context.Context, target domain.Target, mode domain.Mode) (string, error)
	Finish(ctx context.Context, runID string, s domain.RunSummary, status runlog.Status, runErr error) error
}

// Options tunes a run.
type Options struct {
	// Workers is the number of concurrent detail fetches.
	Workers int
	// BatchSize is the number of identifiers between detail checkpoints.
	BatchSize int
	// ProgressEvery is the detail progress log interval, in items.
	ProgressEvery int
	// MaxFailedPages stops a paged walk after this many consecutive failed pages.
	MaxFailedPages int
	// Reset clears the checkpoint before the run.
	Reset bool
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		Workers:        4,
		BatchSize:      50,
		ProgressEvery:  50,
		MaxFailedPages: 3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = d.ProgressEvery
	}
	if o.MaxFailedPages <= 0 {
		o.MaxFailedPages = d.MaxFailedPages
	}
	return o
}

// Engine runs harvests for one source.
type Engine struct {
	src    source.Source
	store  CheckpointStore
	sink   Sink
	index  Indexer
	runs   RunLog
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithIndex feeds written records to a cross-reference index.
func WithIndex(x Indexer) Option {
	return func(e *Engine) { e.index = x }
}

// WithRunLog records each run in a run history.
func WithRunLog(l RunLog) Option {
	return func(e *Engine) { e.runs = l }
}

// WithClock overrides the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. src must be a source.Pager or a source.Discoverer.
func New(src source.Source, store CheckpointStore, sink Sink, opts Options, logger *slog.Logger, options ...Option) (*Engine, error) {
	switch src.(type) {
	case source.Pager, source.Discoverer:
	default:
		return nil, herrors.Configurationf("source %s can neither page nor discover", src.Target())
	}

	e := &Engine{
		src:    src,
		store:  store,
		sink:   sink,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Run performs one harvest and returns its counters.
//
// Per-page and per-item failures are counted and skipped. Run only fails
// when the context ends, a checkpoint cannot be saved or a record cannot be
// written locally. The statistics file and run log are written in every
// case, so an interrupted run still leaves its counters behind.
func (e *Engine) Run(ctx context.Context) (domain.RunSummary, error) {
	target := e.src.Target()
	stats := domain.NewRunStats(target, e.sink.Mode(), e.now().UTC())

	if e.opts.Reset {
		if err := e.store.Clear(ctx); err != nil {
			return stats.Snapshot(), err
		}
	}
	st, err := e.store.Load(ctx)
	if err != nil {
		return stats.Snapshot(), err
	}

	runID := e.startRun(ctx, target)

	e.logger.Info("harvest started",
		"target", target.String(),
		"mode", e.sink.Mode(),
		"run_id", runID,
	)

	switch src := e.src.(type) {
	case source.Pager:
		err = e.paged(ctx, src, &st, stats)
	case source.Discoverer:
		err = e.discovered(ctx, src, &st, stats)
	}

	stats.Finish(e.now().UTC())
	summary := stats.Snapshot()

	// Bookkeeping outlives cancellation.
	saveCtx := context.WithoutCancel(ctx)
	if serr := e.store.SaveStats(saveCtx, summary); serr != nil {
		e.logger.Error("failed to save statistics", "error", serr)
		err = errors.Join(err, serr)
	}
	e.finishRun(saveCtx, runID, summary, err)

	e.logger.Info("harvest finished",
		"target", target.String(),
		"processed", summary.Processed,
		"created", summary.Created,
		"refreshed", summary.Refreshed,
		"skipped", summary.Skipped,
		"mature", summary.Mature,
		"failed", summary.Failed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second),
	)
	return summary, err
}

func (e *Engine) startRun(ctx context.Context, target domain.Target) string {
	if e.runs == nil {
		return ""
	}
	runID, err := e.runs.Start(ctx, target, e.sink.Mode())
	if err != nil {
		e.logger.Warn("run log unavailable", "error", err)
		return ""
	}
	return runID
}

func (e *Engine) finishRun(ctx context.Context, runID string, summary domain.RunSummary, runErr error) {
	if e.runs == nil || runID == "" {
		return
	}
	status := runlog.StatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = runlog.StatusInterrupted
	case runErr != nil:
		status = runlog.StatusFailed
	}
	if err := e.runs.Finish(ctx, runID, summary, status, runErr); err != nil {
		e.logger.Warn("failed to record run", "run_id", runID, "error", err)
	}
}

// putItem converts item to a record and hands it to the sink. Records that were
// written are also indexed.
func (e *Engine) putItem(ctx context.Context, item source.Item, stats *domain.RunStats) (domain.Outcome, error) {
	target := e.src.Target()
	rec := domain.Record{
		Catalog: target.Catalog,
		ID:      item.ID,
		Kind:    target.Kind,
		Refs:    e.src.ExtractCrossRefs(item),
		Payload: item.Payload,
		Adult:   item.Adult,
	}

	outcome, err := e.sink.Put(ctx, rec, stats)
	if err != nil {
		return outcome, err
	}

	if outcome != domain.OutcomeSkipped && e.index != nil {
		if err := e.index.Record(ctx, rec, item.Title, item.Year); err != nil {
			e.logger.Warn("failed to index record", "id", item.ID, "error", err)
		}
	}
	return outcome, nil
}

// skipFresh reports whether id already has a fresh record. When it does, the
// skip is counted using the stored adult flag.
func (e *Engine) skipFresh(ctx context.Context, id domain.Identifier, stats *domain.RunStats) (bool, error) {
	fresh, err := e.sink.Fresh(ctx, id)
	if err != nil || !fresh {
		return false, err
	}
	rec, _, err := e.sink.Get(ctx, id)
	if err != nil {
		return false, err
	}
	stats.RecordOutcome(domain.OutcomeSkipped, rec.Adult)
	return true, nil
}

// fatal reports whether err must stop the run rather than skip one unit.
func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return !herrors.KindOf(err).Skippable()
}

func (e *Engine) save(ctx context.Context, st *checkpoint.State) error {
	if err := e.store.Save(ctx, *st); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
