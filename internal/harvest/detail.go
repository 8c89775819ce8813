package harvest

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/animap/harvester/internal/checkpoint"
	"github.com/animap/harvester/internal/cursor"
	"github.com/animap/harvester/internal/discovery"
	"github.com/animap/harvester/internal/domain"
	"github.com/animap/harvester/internal/source"
)

// discovered harvests a source without a complete listing: discovery grows
// the identifier set, then every identifier is fetched in ascending order.
//
// A run interrupted during the detail walk resumes at the saved detail index
// without discovering again. A finished walk resets the checkpoint to the
// discovery phase; the collected set is kept as the next run's seed.
func (e *Engine) discovered(ctx context.Context, d source.Discoverer, st *checkpoint.State, stats *domain.RunStats) error {
	resume := st.Phase == checkpoint.PhaseDetail && st.DetailIndex < len(st.CollectedIDs)

	if resume {
		e.logger.Info("resuming detail walk",
			"index", st.DetailIndex,
			"total", len(st.CollectedIDs),
		)
	} else {
		agg := discovery.NewAggregator(e.logger)
		res, err := agg.Run(ctx, st.CollectedIDs, d.Strategies(), func(set *discovery.Set) error {
			st.CollectedIDs = set.Sorted()
			return e.save(ctx, st)
		})
		if err != nil {
			return err
		}

		st.CollectedIDs = res.Set.Sorted()
		st.Phase = checkpoint.PhaseDetail
		st.DetailIndex = 0
		if err := e.save(ctx, st); err != nil {
			return err
		}
	}

	stats.SetDiscovered(len(st.CollectedIDs))

	if err := e.details(ctx, d, st, stats); err != nil {
		return err
	}

	st.Phase = checkpoint.PhaseDiscovery
	st.DetailIndex = 0
	return e.save(ctx, st)
}

// details walks a frozen snapshot of the collected set in batches. Each batch
// is fetched by a bounded worker pool and checkpointed once it is complete;
// an interrupted batch is repeated on resume.
func (e *Engine) details(ctx context.Context, d source.Discoverer, st *checkpoint.State, stats *domain.RunStats) error {
	list := cursor.NewIDList(st.CollectedIDs, st.DetailIndex)
	total := list.Len()
	var done atomic.Int64
	done.Store(int64(list.Index()))

	for !list.Done() {
		batch := list.Next(e.opts.BatchSize)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.Workers)
		for _, id := range batch {
			g.Go(func() error {
				if err := e.detail(gctx, d, id, stats); err != nil {
					return err
				}
				if n := done.Add(1); n%int64(e.opts.ProgressEvery) == 0 {
					snap := stats.Snapshot()
					e.logger.Info("detail progress",
						"done", n,
						"total", total,
						"written", snap.Processed,
						"skipped", snap.Skipped,
						"failed", snap.Failed,
					)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		list.Advance(len(batch))
		st.DetailIndex = list.Index()
		if err := e.save(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// detail fetches and stores one identifier. Skippable failures are counted
// and swallowed; the identifier stays in the set for a later run.
func (e *Engine) detail(ctx context.Context, d source.Discoverer, id domain.Identifier, stats *domain.RunStats) error {
	skipped, err := e.skipFresh(ctx, id, stats)
	if err != nil {
		return err
	}
	if skipped {
		return nil
	}

	item, err := d.FetchDetail(ctx, id)
	if err == nil {
		_, err = e.putItem(ctx, item, stats)
	}
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		stats.RecordFailure()
		e.logger.Warn("detail skipped", "id", id, "error", err)
	}
	return nil
}
