package ingestion

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result for one record.
type Outcome struct {
	Index          int    `json:"index"`
	ConversationID string `json:"conversation_id,omitempty"`
	Action         Action `json:"action"`
	Err            error  `json:"-"`
	Error          string `json:"error,omitempty"`
}

// Report summarizes an import or resume run.
type Report struct {
	ImportID    string        `json:"import_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Total       int           `json:"total"`
	Imported    int           `json:"imported"`
	Merged      int           `json:"merged"`
	Overwritten int           `json:"overwritten"`
	Skipped     int           `json:"skipped"`
	Resumed     int           `json:"resumed"`
	Failed      int           `json:"failed"`
	Outcomes    []Outcome     `json:"outcomes"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// Failures returns the outcomes that carry an error.
func (r *Report) Failures() []Outcome {
	var failures []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failures = append(failures, o)
		}
	}
	return failures
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// collector gathers outcomes from concurrent workers.
type collector struct {
	mu       sync.Mutex
	id       string
	started  time.Time
	outcomes []Outcome
}

func newCollector() *collector {
	return &collector{id: uuid.NewString(), started: time.Now().UTC()}
}

func (c *collector) add(o Outcome) {
	if o.Err != nil {
		o.Action = ActionFailed
		o.Error = o.Err.Error()
	}
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
}

func (c *collector) report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Report{
		ImportID:   c.id,
		StartedAt:  c.started,
		FinishedAt: time.Now().UTC(),
		Outcomes:   slices.Clone(c.outcomes),
	}
	slices.SortFunc(r.Outcomes, func(a, b Outcome) int {
		return cmp.Compare(a.Index, b.Index)
	})
	r.Total = len(r.Outcomes)
	for _, o := range r.Outcomes {
		switch o.Action {
		case ActionImported:
			r.Imported++
		case ActionMerged:
			r.Merged++
		case ActionOverwritten:
			r.Overwritten++
		case ActionSkipped:
			r.Skipped++
		case ActionResumed:
			r.Resumed++
		case ActionFailed:
			r.Failed++
		}
	}
	r.Elapsed = r.Duration()
	return r
}
