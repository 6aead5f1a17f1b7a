package engine

import (
	"time"

	"github.com/samber/lo"
)

// EntryOutcome is the fate of one descriptor in a run.
type EntryOutcome struct {
	ID    string `json:"id"`
	Name  string `json:"entry"`
	Batch int    `json:"batch"`
	Bytes int64  `json:"bytes"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

func (o EntryOutcome) OK() bool {
	return o.Err == nil
}

// Result summarizes one pipeline run.
type Result struct {
	RunID     string         `json:"run_id"`
	State     State          `json:"state"`
	Total     int            `json:"total"`
	Batches   int            `json:"batches"`
	Entries   []EntryOutcome `json:"entries"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

func (r *Result) Succeeded() []EntryOutcome {
	return lo.Filter(r.Entries, func(o EntryOutcome, _ int) bool { return o.OK() })
}

func (r *Result) Failed() []EntryOutcome {
	return lo.Filter(r.Entries, func(o EntryOutcome, _ int) bool { return !o.OK() })
}

// Skipped returns the ids of every listed descriptor without an archive entry,
// including those that were never attempted.
func (r *Result) Skipped(items []Item) []string {
	archived := make(map[string]struct{}, len(r.Entries))
	for _, o := range r.Entries {
		if o.OK() {
			archived[o.ID] = struct{}{}
		}
	}

	var skipped []string
	for _, it := range items {
		if _, ok := archived[it.Descriptor.ID]; !ok {
			skipped = append(skipped, it.Descriptor.ID)
		}
	}
	return skipped
}
