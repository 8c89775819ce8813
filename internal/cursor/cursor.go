// Package cursor tracks how far a scan has progressed. Offset covers sources
// paginated by page number or item offset; IDList walks a frozen identifier
// snapshot produced by discovery.
package cursor

import (
	"slices"

	"github.com/animap/harvester/internal/domain"
)

// Offset is the cursor of a paginated source.
//
// Position is the furthest position the walk has dealt with: either its items
// were fully handed to the sink, or it failed and was added to Pending.
// Resuming starts at Position again, so the last processed page is fetched
// twice after a restart; record writes are idempotent, which makes that safe.
// Pending holds positions that failed and were skipped; they are retried
// before the walk resumes, so a failed stretch never holds the walk back.
type Offset struct {
	Position int
	Step     int
	Pending  []int
}

// NewOffset restores a cursor. A step below 1 is treated as 1.
func NewOffset(position, step int, pending []int) *Offset {
	return &Offset{
		Position: position,
		Step:     max(step, 1),
		Pending:  slices.Clone(pending),
	}
}

// Next returns the position after pos.
func (o *Offset) Next(pos int) int {
	return pos + o.Step
}

// Commit marks pos as processed. Position only moves forward, so committing
// a retried pending position leaves it alone.
func (o *Offset) Commit(pos int) {
	o.Resolve(pos)
	if pos > o.Position {
		o.Position = pos
	}
}

// Skip records pos as failed and moves Position past it.
func (o *Offset) Skip(pos int) {
	if !slices.Contains(o.Pending, pos) {
		o.Pending = append(o.Pending, pos)
		slices.Sort(o.Pending)
	}
	if pos > o.Position {
		o.Position = pos
	}
}

// Resolve drops pos from the pending list.
func (o *Offset) Resolve(pos int) {
	o.Pending = slices.DeleteFunc(o.Pending, func(p int) bool { return p == pos })
}

// Retry returns a copy of the pending positions in ascending order.
func (o *Offset) Retry() []int {
	return slices.Clone(o.Pending)
}

// IDList walks an ordered snapshot of identifiers. The snapshot is taken at
// construction and never changes, however the live discovered set evolves.
type IDList struct {
	ids   []domain.Identifier
	index int
}

// NewIDList freezes ids in ascending order and positions the cursor at index.
// An index outside the snapshot is clamped.
func NewIDList(ids []domain.Identifier, index int) *IDList {
	frozen := slices.Clone(ids)
	domain.SortIdentifiers(frozen)
	frozen = slices.Compact(frozen)
	return &IDList{ids: frozen, index: min(max(index, 0), len(frozen))}
}

// Next returns up to n identifiers from the current index without advancing.
func (l *IDList) Next(n int) []domain.Identifier {
	end := min(l.index+max(n, 0), len(l.ids))
	return l.ids[l.index:end]
}

// Advance moves the index forward by n, stopping at the end.
func (l *IDList) Advance(n int) {
	l.index = min(l.index+max(n, 0), len(l.ids))
}

// Done reports whether the walk is complete.
func (l *IDList) Done() bool {
	return l.index >= len(l.ids)
}

// Index is the number of identifiers already walked.
func (l *IDList) Index() int {
	return l.index
}

// Len is the snapshot size.
func (l *IDList) Len() int {
	return len(l.ids)
}
