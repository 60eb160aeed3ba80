package ir

import (
	"time"
)

// SpanStatus is the lifecycle state of an execution record.
type SpanStatus string

const (
	StatusActive    SpanStatus = "active"
	StatusCompleted SpanStatus = "completed"
	StatusFailed    SpanStatus = "failed"
)

// ExecutionRecord is the span of one block's active interval.
//
// ParentSpanID refers to the enclosing span, not the parent block: spans
// outlive the blocks that produced them. Seq is the logical clock stamp at
// creation and is the ordering key; Start/End are informational.
type ExecutionRecord struct {
	ID           string          `json:"id"`
	BlockKey     string          `json:"block_key"`
	ParentSpanID string          `json:"parent_span_id,omitempty"`
	Type         string          `json:"type"`
	Label        string          `json:"label"`
	Seq          int64           `json:"seq"`
	Start        time.Time       `json:"start"`
	End          *time.Time      `json:"end,omitempty"`
	Status       SpanStatus      `json:"status"`
	Metrics      []RuntimeMetric `json:"metrics,omitempty"`
}

// Elapsed returns the span length, measuring active spans up to now.
func (r ExecutionRecord) Elapsed(now time.Time) time.Duration {
	if r.End != nil {
		return r.End.Sub(r.Start)
	}
	return now.Sub(r.Start)
}

// Clone returns a deep copy.
func (r ExecutionRecord) Clone() ExecutionRecord {
	out := r
	if r.End != nil {
		end := *r.End
		out.End = &end
	}
	if r.Metrics != nil {
		out.Metrics = make([]RuntimeMetric, len(r.Metrics))
		for i, m := range r.Metrics {
			out.Metrics[i] = m.Clone()
		}
	}
	return out
}
