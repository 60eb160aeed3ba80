// Package metrics holds the append-only collection of performance records
// emitted during a session.
package metrics

import (
	"sync"

	"github.com/roach88/wodrt/internal/ir"
)

// Collector is an append-only metric store.
//
// Collect stores a deep copy, and every read returns copies, so history is
// immune to later mutation by the emitter or the reader.
type Collector struct {
	mu      sync.RWMutex
	metrics []ir.RuntimeMetric
	onAdd   []func(index int, m ir.RuntimeMetric)
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// OnCollect registers fn to be called after each Collect with the metric's
// index and a copy of it. Used by the session archive and telemetry.
func (c *Collector) OnCollect(fn func(index int, m ir.RuntimeMetric)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAdd = append(c.onAdd, fn)
}

// Collect appends a copy of m and returns its index.
func (c *Collector) Collect(m ir.RuntimeMetric) int {
	c.mu.Lock()
	c.metrics = append(c.metrics, m.Clone())
	index := len(c.metrics) - 1
	hooks := c.onAdd
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(index, m.Clone())
	}
	return index
}

// All returns copies of every collected metric in collection order.
func (c *Collector) All() []ir.RuntimeMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ir.RuntimeMetric, len(c.metrics))
	for i, m := range c.metrics {
		out[i] = m.Clone()
	}
	return out
}

// ForExercise returns copies of the metrics for one exercise id.
func (c *Collector) ForExercise(exerciseID string) []ir.RuntimeMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ir.RuntimeMetric
	for _, m := range c.metrics {
		if m.ExerciseID == exerciseID {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Len returns the number of collected metrics.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.metrics)
}

// Clear empties the collector between sessions. Hooks stay registered.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = nil
}

// Totals sums each value type per exercise, e.g. total reps of "pushups".
func (c *Collector) Totals() map[string]map[ir.MetricValueType]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[ir.MetricValueType]int64)
	for _, m := range c.metrics {
		t, ok := out[m.ExerciseID]
		if !ok {
			t = make(map[ir.MetricValueType]int64)
			out[m.ExerciseID] = t
		}
		for _, v := range m.Values {
			t[v.Type] += v.Value
		}
	}
	return out
}
