package behavior

import (
	"slices"
	"time"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
)

// EffortMetrics records the block's start at mount and emits one metric at
// unmount: the configured values plus the time spent, with a span covering
// the block's active interval.
type EffortMetrics struct {
	ExerciseID string
	Values     []ir.MetricValue
	Started    memory.Ref[time.Time]
}

func (m *EffortMetrics) Name() string { return "effort-metrics" }

func (m *EffortMetrics) OnMount(b *engine.Block, env engine.Env) ([]engine.Action, error) {
	if err := engine.RequireRef(b, env, m.Name(), CellEffortStart, m.Started.Reference); err != nil {
		return nil, err
	}
	return nil, memory.Set(env.Memory(), m.Started, env.Now())
}

func (m *EffortMetrics) OnUnmount(b *engine.Block, env engine.Env) ([]engine.Action, error) {
	start, err := memory.Get(env.Memory(), m.Started)
	if err != nil {
		return nil, err
	}
	stop := env.Now()
	values := slices.Clone(m.Values)
	values = append(values, ir.MetricValue{
		Type:  ir.MetricTime,
		Value: stop.Sub(start).Milliseconds(),
		Unit:  "ms",
	})
	return []engine.Action{engine.EmitMetricAction{Metric: ir.RuntimeMetric{
		ExerciseID: m.ExerciseID,
		Values:     values,
		Spans:      []ir.TimeSpan{{Start: start, Stop: &stop}},
	}}}, nil
}
