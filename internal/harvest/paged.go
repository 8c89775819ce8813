package harvest

import (
	"context"

	"github.com/animap/harvester/internal/checkpoint"
	"github.com/animap/harvester/internal/cursor"
	"github.com/animap/harvester/internal/domain"
	"github.com/animap/harvester/internal/source"
)

// paged walks a paginated source. Pages that failed on an earlier run are
// retried first; the walk then resumes at the saved position and stops when
// the source reports no more pages, returns an empty page, or fails
// MaxFailedPages times in a row. A failed page moves the saved position past
// it, so the next run retries it from Pending and carries on beyond it.
// Positions retried in this run are not fetched again by the walk.
func (e *Engine) paged(ctx context.Context, p source.Pager, st *checkpoint.State, stats *domain.RunStats) error {
	start := st.Page
	if p.Style() == source.StyleOffset {
		start = st.Offset
	}
	cur := cursor.NewOffset(max(start, p.Start()), p.Step(), st.Pending)

	commit := func() error {
		if p.Style() == source.StyleOffset {
			st.Offset = cur.Position
		} else {
			st.Page = cur.Position
		}
		st.Pending = cur.Retry()
		return e.save(ctx, st)
	}

	attempted := make(map[int]bool)
	if retry := cur.Retry(); len(retry) > 0 {
		e.logger.Info("retrying failed pages", "positions", retry)
		for _, pos := range retry {
			attempted[pos] = true
			page, err := e.page(ctx, p, pos, stats)
			if err != nil {
				if fatal(ctx, err) {
					return err
				}
				continue
			}
			cur.Commit(pos)
			if err := commit(); err != nil {
				return err
			}
			if pos == cur.Position && (!page.HasMore || len(page.Items) == 0) {
				e.logger.Info("listing complete", p.Style().String(), pos)
				return nil
			}
		}
	}

	failures := 0
	for pos := cur.Position; ; pos = cur.Next(pos) {
		if attempted[pos] {
			continue
		}
		page, err := e.page(ctx, p, pos, stats)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			cur.Skip(pos)
			if err := commit(); err != nil {
				return err
			}
			failures++
			if failures >= e.opts.MaxFailedPages {
				e.logger.Warn("too many consecutive failed pages, stopping",
					p.Style().String(), pos,
					"failures", failures,
				)
				return nil
			}
			continue
		}

		failures = 0
		cur.Commit(pos)
		if err := commit(); err != nil {
			return err
		}

		if !page.HasMore || len(page.Items) == 0 {
			e.logger.Info("listing complete", p.Style().String(), pos)
			return nil
		}
	}
}

// page fetches one page and stores its items. A fetch failure is counted
// and returned. Item failures are counted and skipped unless fatal.
func (e *Engine) page(ctx context.Context, p source.Pager, pos int, stats *domain.RunStats) (source.Page, error) {
	page, err := p.FetchPage(ctx, pos)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordFailure()
			e.logger.Warn("page skipped",
				p.Style().String(), pos,
				"error", err,
			)
		}
		return source.Page{}, err
	}

	enricher, _ := p.(source.Enricher)
	var written int
	for _, item := range page.Items {
		if enricher != nil {
			skipped, err := e.skipFresh(ctx, item.ID, stats)
			if err != nil {
				return page, err
			}
			if skipped {
				continue
			}
			if enriched, err := enricher.Enrich(ctx, item); err == nil {
				item = enriched
			} else if ctx.Err() != nil {
				return page, ctx.Err()
			}
		}

		outcome, err := e.putItem(ctx, item, stats)
		if err != nil {
			if fatal(ctx, err) {
				return page, err
			}
			stats.RecordFailure()
			e.logger.Warn("item skipped", "id", item.ID, "error", err)
			continue
		}
		if outcome != domain.OutcomeSkipped {
			written++
		}
	}

	e.logger.Info("page stored",
		p.Style().String(), pos,
		"items", len(page.Items),
		"written", written,
		"has_more", page.HasMore,
	)
	return page, nil
}
