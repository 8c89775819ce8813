// Package discovery builds the identifier set of a catalog that has no single
// complete listing, by unioning several partial, overlapping enumerations.
package discovery

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/animap/harvester/internal/domain"
)

// Strategy is one partial enumeration of a catalog: a calendar window, a
// ranked list, one facet value of a search sweep.
type Strategy interface {
	Name() string
	// Discover emits every identifier the strategy finds. Identifiers emitted
	// before a returned error are discarded.
	Discover(ctx context.Context, emit func(domain.Identifier)) error
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	Label string
	Fn    func(ctx context.Context, emit func(domain.Identifier)) error
}

// Name returns the label.
func (s StrategyFunc) Name() string { return s.Label }

// Discover calls Fn.
func (s StrategyFunc) Discover(ctx context.Context, emit func(domain.Identifier)) error {
	return s.Fn(ctx, emit)
}

// StaticLimit caps ranked and curated lists.
const StaticLimit = 100

// Set is a deduplicated identifier set. It is not safe for concurrent use;
// the aggregator mutates it from one goroutine only.
type Set struct {
	m map[domain.Identifier]struct{}
}

// NewSet returns a set holding ids.
func NewSet(ids ...domain.Identifier) *Set {
	s := &Set{m: make(map[domain.Identifier]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new. Empty identifiers are ignored.
func (s *Set) Add(id domain.Identifier) bool {
	if id == "" {
		return false
	}
	if _, ok := s.m[id]; ok {
		return false
	}
	s.m[id] = struct{}{}
	return true
}

// Contains reports membership.
func (s *Set) Contains(id domain.Identifier) bool {
	_, ok := s.m[id]
	return ok
}

// Len returns the number of identifiers.
func (s *Set) Len() int {
	return len(s.m)
}

// Sorted returns the identifiers in ascending, numeric-aware order.
func (s *Set) Sorted() []domain.Identifier {
	ids := slices.Collect(maps.Keys(s.m))
	domain.SortIdentifiers(ids)
	return ids
}

// Step is the provenance of one strategy run.
type Step struct {
	Name   string
	Before int
	After  int
	Err    error
}

// Added is the number of identifiers the strategy contributed.
func (s Step) Added() int {
	return s.After - s.Before
}

// Result is the outcome of an aggregation.
type Result struct {
	Set   *Set
	Steps []Step
}

// Aggregator runs strategies in order and unions their identifiers.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(logger *slog.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Run seeds a set from the previous run, then runs each strategy in order.
//
// A failing strategy contributes nothing and never aborts the run. afterEach,
// when set, is called after every strategy with the current set; it is where
// the caller checkpoints. Run only returns an error when ctx is done or
// afterEach fails. The partial result is returned in both cases.
func (a *Aggregator) Run(ctx context.Context, seed []domain.Identifier, strategies []Strategy, afterEach func(*Set) error) (Result, error) {
	res := Result{Set: NewSet(seed...)}
	seeded := res.Set.Len()

	a.logger.Info("discovery started",
		"strategies", len(strategies),
		"seed", seeded,
	)

	for _, st := range strategies {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		step := Step{Name: st.Name(), Before: res.Set.Len()}

		var found []domain.Identifier
		err := st.Discover(ctx, func(id domain.Identifier) {
			found = append(found, id)
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			step.Err = err
			a.logger.Warn("discovery strategy failed",
				"strategy", step.Name,
				"error", err,
			)
		} else {
			for _, id := range found {
				res.Set.Add(id)
			}
		}

		step.After = res.Set.Len()
		res.Steps = append(res.Steps, step)

		a.logger.Info("discovery strategy done",
			"strategy", step.Name,
			"added", step.Added(),
			"total", step.After,
		)

		if afterEach != nil {
			if err := afterEach(res.Set); err != nil {
				return res, err
			}
		}
	}

	a.logger.Info("discovery finished",
		"total", res.Set.Len(),
		"added", res.Set.Len()-seeded,
	)
	return res, nil
}
