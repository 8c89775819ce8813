package domain

import (
	"sync"
	"time"
)

// RunSummary is the persisted form of one run's counters. It is observational
// only: nothing reads it to make a control decision.
//
// Processed counts records written (Created + Refreshed). Skipped counts
// records left alone because they were fresh. Failed counts units of work
// abandoned after an error; it never overlaps Skipped.
type RunSummary struct {
	Target     string    `json:"target"`
	Mode       Mode      `json:"mode"`
	StartedAt  time.Time `json:"start_time"`
	FinishedAt time.Time `json:"end_time,omitzero"`

	Processed  int `json:"items_processed"`
	Created    int `json:"new_items"`
	Refreshed  int `json:"updated_items"`
	Skipped    int `json:"skipped_items"`
	Mature     int `json:"nsfw_items"`
	Failed     int `json:"failed_items"`
	Discovered int `json:"discovered_ids,omitzero"`
}

// RunStats accumulates a RunSummary. Detail workers share one value, so every
// mutation goes through the mutex.
type RunStats struct {
	mu sync.Mutex
	s  RunSummary
}

// NewRunStats returns zeroed counters for a run starting now.
func NewRunStats(target Target, mode Mode, now time.Time) *RunStats {
	return &RunStats{s: RunSummary{
		Target:    target.String(),
		Mode:      mode,
		StartedAt: now,
	}}
}

// RecordOutcome counts a sink outcome. Mature content is counted whatever the
// outcome.
func (st *RunStats) RecordOutcome(o Outcome, adult bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch o {
	case OutcomeCreated:
		st.s.Created++
		st.s.Processed++
	case OutcomeRefreshed:
		st.s.Refreshed++
		st.s.Processed++
	case OutcomeSkipped:
		st.s.Skipped++
	}
	if adult {
		st.s.Mature++
	}
}

// RecordFailure counts an abandoned unit of work.
func (st *RunStats) RecordFailure() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Failed++
}

// SetDiscovered records the size of the discovered identifier set.
func (st *RunStats) SetDiscovered(n int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Discovered = n
}

// Finish stamps the end time.
func (st *RunStats) Finish(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.FinishedAt = now
}

// Snapshot returns a copy safe to marshal while workers keep counting.
func (st *RunStats) Snapshot() RunSummary {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}
