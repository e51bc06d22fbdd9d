package export

import (
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/gloss-export/internal/domain"
)

// Status is the outcome of one language in a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusConflict  Status = "conflict"
	StatusIntegrity Status = "integrity"
	StatusFailed    Status = "failed"
)

// StageResult holds the outcome of a single pipeline stage.
type StageResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// LanguageOutcome is what happened to one language document.
type LanguageOutcome struct {
	Language   string
	LanguageID uuid.UUID
	Status     Status
	Books      []int
	Revision   domain.Revision
	Attempts   int
	Unchanged  bool
	// EventsSettled counts gloss events marked as synced after the write.
	// SettleErr does not change Status: the next run exports the same books
	// again and produces the same document.
	EventsSettled int64
	SettleErr     error
	Err           error
	Duration      time.Duration
}

// RunReport summarizes one export run.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Stages    []StageResult
	Completed int
	Changed   int
	Outcomes  []LanguageOutcome
}

// HasFailures reports whether any language ended in a status other than
// succeeded or skipped.
func (r *RunReport) HasFailures() bool {
	for _, o := range r.Outcomes {
		if o.Status != StatusSucceeded && o.Status != StatusSkipped {
			return true
		}
	}
	return false
}

// Counts returns the number of languages per status.
func (r *RunReport) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// Outcome returns the outcome of the language with the given code.
func (r *RunReport) Outcome(code string) (LanguageOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Language == code {
			return o, true
		}
	}
	return LanguageOutcome{}, false
}
