package harness

import (
	"time"

	"github.com/roach88/wodrt/internal/ir"
)

// Trace entry kinds.
const (
	KindEvent  = "event"
	KindPush   = "push"
	KindPop    = "pop"
	KindMetric = "metric"
	KindError  = "error"
)

// TraceEntry is one observed engine step.
type TraceEntry struct {
	Seq    int64            `json:"seq"`
	Kind   string           `json:"kind"` // event, push, pop, metric, error
	Name   string           `json:"name"` // event name, block type or exercise id
	Key    string           `json:"key,omitempty"`
	Label  string           `json:"label,omitempty"`
	Status string           `json:"status,omitempty"`
	AtMs   int64            `json:"at_ms"`
	Values map[string]int64 `json:"values,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held and no unclaimed engine error
	// occurred.
	Pass bool `json:"pass"`

	// Trace lists input events, pushes, pops, metrics and errors in the
	// order the engine produced them.
	Trace []TraceEntry `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// History is the finalized span history when the run ended.
	History []ir.ExecutionRecord `json:"history"`

	SessionID string `json:"session_id"`
	Digest    string `json:"digest"`
	Done      bool   `json:"done"`

	engineErrs []error
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEntry{},
		Errors:  []string{},
		History: []ir.ExecutionRecord{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(e TraceEntry, start, at time.Time) {
	e.Seq = int64(len(r.Trace) + 1)
	e.AtMs = at.Sub(start).Milliseconds()
	r.Trace = append(r.Trace, e)
}
