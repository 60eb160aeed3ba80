package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/roach88/wodrt/internal/ir"
)

// ExecutionLog tracks spans: a live set of active records and an append-only
// history of finalized ones.
//
// Thread-safety: safe for concurrent use.
type ExecutionLog struct {
	mu      sync.RWMutex
	active  map[string]*ir.ExecutionRecord
	history []ir.ExecutionRecord
}

// NewExecutionLog creates an empty log.
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{active: make(map[string]*ir.ExecutionRecord)}
}

// Open adds an active record.
func (l *ExecutionLog) Open(rec ir.ExecutionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec.Status = ir.StatusActive
	l.active[rec.ID] = &rec
}

// AttachMetric appends a copy of m to an active record.
// Returns false if the span is not active.
func (l *ExecutionLog) AttachMetric(spanID string, m ir.RuntimeMetric) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.active[spanID]
	if !ok {
		return false
	}
	rec.Metrics = append(rec.Metrics, m.Clone())
	return true
}

// Close finalizes an active record with the given status and moves it to
// history. Returns the finalized record and false if the span was not active.
func (l *ExecutionLog) Close(spanID string, status ir.SpanStatus, end time.Time) (ir.ExecutionRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.active[spanID]
	if !ok {
		return ir.ExecutionRecord{}, false
	}
	delete(l.active, spanID)
	rec.End = &end
	rec.Status = status
	l.history = append(l.history, *rec)
	return rec.Clone(), true
}

// Append adds an already finalized record straight to history.
func (l *ExecutionLog) Append(rec ir.ExecutionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, rec.Clone())
}

// Active returns copies of the active records ordered by seq.
func (l *ExecutionLog) Active() []ir.ExecutionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ir.ExecutionRecord, 0, len(l.active))
	for _, rec := range l.active {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b ir.ExecutionRecord) int {
		return int(a.Seq - b.Seq)
	})
	return out
}

// History returns copies of the finalized records in finalization order.
func (l *ExecutionLog) History() []ir.ExecutionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ir.ExecutionRecord, len(l.history))
	for i, rec := range l.history {
		out[i] = rec.Clone()
	}
	return out
}

// Record returns a copy of an active or finalized record by id.
func (l *ExecutionLog) Record(id string) (ir.ExecutionRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.active[id]; ok {
		return rec.Clone(), true
	}
	for _, rec := range l.history {
		if rec.ID == id {
			return rec.Clone(), true
		}
	}
	return ir.ExecutionRecord{}, false
}
