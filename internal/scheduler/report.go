package scheduler

import (
	"time"

	"github.com/l0p7/worryhero/internal/cachestore"
	"github.com/l0p7/worryhero/internal/catalog"
	"github.com/l0p7/worryhero/internal/generator"
)

// RunResult labels a finished run for metrics.
type RunResult string

const (
	RunNoop      RunResult = "noop"
	RunCompleted RunResult = "completed"
	RunCancelled RunResult = "cancelled"
)

// ItemResult is how a single dispatched item settled.
type ItemResult struct {
	ID       string                `json:"id"`
	Kind     catalog.Kind          `json:"kind"`
	Batch    int                   `json:"batch"`
	Outcome  generator.Outcome     `json:"outcome"`
	Cache    cachestore.PutOutcome `json:"cache,omitempty"`
	Err      error                 `json:"-"`
	Duration time.Duration         `json:"duration"`
}

// Report summarizes one scheduler run.
type Report struct {
	RunID     string `json:"runId"`
	BatchSize int    `json:"batchSize"`
	// Missing counts catalog items without a cached asset when the run began.
	Missing int `json:"missing"`
	// Skipped counts missing items already claimed by another run.
	Skipped      int           `json:"skipped"`
	Batches      int           `json:"batches"`
	Succeeded    int           `json:"succeeded"`
	Degraded     int           `json:"degraded"`
	Empty        int           `json:"empty"`
	Failed       int           `json:"failed"`
	Undispatched int           `json:"undispatched"`
	Cancelled    bool          `json:"cancelled"`
	Duration     time.Duration `json:"duration"`
	Items        []ItemResult  `json:"items,omitempty"`
}

func (r *Report) tally() {
	for _, item := range r.Items {
		switch item.Outcome {
		case generator.OutcomeSuccess:
			r.Succeeded++
			if item.Cache == cachestore.Degraded {
				r.Degraded++
			}
		case generator.OutcomeEmpty:
			r.Empty++
		default:
			r.Failed++
		}
	}
}

// Dispatched counts the items whose fetch was started.
func (r Report) Dispatched() int {
	return len(r.Items)
}
