package compiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrt/internal/behavior"
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
)

func at(d time.Duration) time.Time { return t0.Add(d) }

func nextAt(d time.Duration) events.Event { return events.New(events.Next, at(d)) }

func tickAt(d time.Duration) events.Event { return events.New(events.Tick, at(d)) }

func metricValue(t *testing.T, m ir.RuntimeMetric, typ ir.MetricValueType) int64 {
	t.Helper()
	v, ok := m.Value(typ)
	require.True(t, ok, "metric %s has no %s value", m.ExerciseID, typ)
	return v.Value
}

func roundState(t *testing.T, e *engine.Engine) behavior.RoundState {
	t.Helper()
	rs, _, ok := memory.Find[behavior.RoundState](e.Memory(), memory.Filter{Type: behavior.CellRound})
	require.True(t, ok)
	return rs
}

func TestSession_ThreeRoundsOfPushups(t *testing.T) {
	s := ir.MustScript("pushups", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}}, Fragments: []ir.Fragment{
			{Type: ir.FragmentRounds, Count: 3, Image: "3 Rounds"},
		}},
		effort(2, ptr(1), "Pushups", reps(10)),
	})
	e := newSession(t, s)

	require.Equal(t, 3, e.Stack().Depth())
	assert.Equal(t, "10 Pushups", e.Stack().Top().Label)
	rs := roundState(t, e)
	assert.Equal(t, int64(1), rs.Round)
	assert.Equal(t, int64(3), rs.Total)

	require.NoError(t, e.Handle(nextAt(20*time.Second)))
	assert.Equal(t, int64(2), roundState(t, e).Round)
	require.NoError(t, e.Handle(nextAt(45*time.Second)))
	assert.Equal(t, int64(3), roundState(t, e).Round)
	require.NoError(t, e.Handle(nextAt(65*time.Second)))

	assert.True(t, e.Done())

	pushups := e.Metrics().ForExercise("pushups")
	require.Len(t, pushups, 3)
	for _, m := range pushups {
		assert.Equal(t, int64(10), metricValue(t, m, ir.MetricReps))
	}
	assert.Equal(t, int64(20000), metricValue(t, pushups[0], ir.MetricTime))
	assert.Equal(t, int64(25000), metricValue(t, pushups[1], ir.MetricTime))

	rounds := e.Metrics().ForExercise("3-rounds")
	require.Len(t, rounds, 1)
	assert.Equal(t, int64(3), metricValue(t, rounds[0], ir.MetricRounds))

	var types []string
	for _, rec := range e.Log().History() {
		types = append(types, rec.Type)
		assert.Equal(t, ir.StatusCompleted, rec.Status)
	}
	assert.Equal(t, []string{"effort", "round", "effort", "round", "effort", "round", "rounds", "root"}, types)
	assert.Empty(t, e.Log().Active())
}

func TestSession_Fran(t *testing.T) {
	s := ir.MustScript("fran", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}, {3}}, Fragments: []ir.Fragment{
			{Type: ir.FragmentRounds, Sequence: []int64{21, 15, 9}, Image: "21-15-9"},
		}},
		effort(2, ptr(1), "Thrusters", ir.Fragment{Type: ir.FragmentResistance, Amount: 95, Unit: "lb"}),
		effort(3, ptr(1), "Pull-ups"),
	})
	e := newSession(t, s)
	assert.Equal(t, "21 Thrusters", e.Stack().Top().Label)

	var labels []string
	for i := 1; i <= 6; i++ {
		labels = append(labels, e.Stack().Top().Label)
		require.NoError(t, e.Handle(nextAt(time.Duration(i)*time.Minute)))
	}
	assert.True(t, e.Done())
	assert.Equal(t, []string{
		"21 Thrusters", "21 Pull-ups",
		"15 Thrusters", "15 Pull-ups",
		"9 Thrusters", "9 Pull-ups",
	}, labels)

	thrusters := e.Metrics().ForExercise("thrusters")
	require.Len(t, thrusters, 3)
	var got []int64
	for _, m := range thrusters {
		got = append(got, metricValue(t, m, ir.MetricReps))
		assert.Equal(t, int64(95), metricValue(t, m, ir.MetricResistance))
	}
	assert.Equal(t, []int64{21, 15, 9}, got)
	assert.Len(t, e.Metrics().ForExercise("pull-ups"), 3)

	totals := e.Metrics().Totals()
	assert.Equal(t, int64(45), totals["thrusters"][ir.MetricReps])
	assert.Equal(t, int64(45), totals["pull-ups"][ir.MetricReps])
}

func TestSession_TimeCappedRepScheme(t *testing.T) {
	s := ir.MustScript("capped", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}}, Fragments: []ir.Fragment{
			{Type: ir.FragmentRounds, Sequence: []int64{21, 15, 9}, Image: "21-15-9"},
			{Type: ir.FragmentTimer, Duration: 600000, Image: "10:00"},
		}},
		effort(2, ptr(1), "Thrusters"),
	})
	e := newSession(t, s)
	assert.Equal(t, "timed-rounds", e.Stack().Blocks()[1].Type)

	var labels []string
	for i := 1; i <= 3; i++ {
		labels = append(labels, e.Stack().Top().Label)
		require.NoError(t, e.Handle(nextAt(time.Duration(i)*time.Minute)))
	}
	assert.True(t, e.Done())
	assert.Equal(t, []string{"21 Thrusters", "15 Thrusters", "9 Thrusters"}, labels)

	var got []int64
	for _, m := range e.Metrics().ForExercise("thrusters") {
		got = append(got, metricValue(t, m, ir.MetricReps))
	}
	assert.Equal(t, []int64{21, 15, 9}, got)
}

func TestSession_ForTime(t *testing.T) {
	s := ir.MustScript("for time", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}, {3}}, Fragments: []ir.Fragment{
			{Type: ir.FragmentAction, Label: "For Time"},
			{Type: ir.FragmentTimer, Direction: ir.DirectionUp},
		}},
		effort(2, ptr(1), "Row", ir.Fragment{Type: ir.FragmentDistance, Amount: 500, Unit: "m"}),
		effort(3, ptr(1), "Burpees", reps(20)),
	})
	e := newSession(t, s)
	assert.Equal(t, "for-time", e.Stack().Blocks()[1].Type)
	assert.Equal(t, "Row", e.Stack().Top().Label)

	require.NoError(t, e.Handle(tickAt(90*time.Second)))
	timer, _, ok := memory.Find[behavior.TimerState](e.Memory(), memory.Filter{Type: behavior.CellTimer})
	require.True(t, ok)
	assert.Equal(t, int64(90000), timer.ElapsedMs)
	assert.True(t, timer.Running)

	require.NoError(t, e.Handle(nextAt(2*time.Minute)))
	assert.Equal(t, "20 Burpees", e.Stack().Top().Label)
	require.NoError(t, e.Handle(nextAt(5*time.Minute)))
	assert.True(t, e.Done())

	total := e.Metrics().ForExercise("for-time")
	require.Len(t, total, 1)
	assert.Equal(t, int64(300000), metricValue(t, total[0], ir.MetricTime))
	_, hasRounds := total[0].Value(ir.MetricRounds)
	assert.False(t, hasRounds)
	assert.Len(t, e.Metrics().ForExercise("burpees"), 1)
}

func TestSession_AmrapEndsOnTimeCap(t *testing.T) {
	s := ir.MustScript("amrap", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}}, Fragments: []ir.Fragment{
			{Type: ir.FragmentTimer, Duration: 60000, Image: "1:00"},
			{Type: ir.FragmentAction, Label: "AMRAP"},
		}},
		effort(2, ptr(1), "Burpees", reps(5)),
	})
	e := newSession(t, s)

	require.NoError(t, e.Handle(nextAt(20*time.Second)))
	require.NoError(t, e.Handle(tickAt(30*time.Second)))
	require.NoError(t, e.Handle(nextAt(40*time.Second)))
	assert.False(t, e.Done())

	timer, _, ok := memory.Find[behavior.TimerState](e.Memory(), memory.Filter{Type: behavior.CellTimer, Requester: e.Stack().Top().Key})
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, timer.Remaining(at(30*time.Second)))

	require.NoError(t, e.Handle(tickAt(60*time.Second)))
	assert.True(t, e.Done())

	// Two finished rounds plus the one cut short by the cap.
	assert.Len(t, e.Metrics().ForExercise("burpees"), 3)
	rounds := e.Metrics().ForExercise("amrap")
	require.Len(t, rounds, 1)
	assert.Equal(t, int64(2), metricValue(t, rounds[0], ir.MetricRounds))
}

func TestSession_EmomAdvancesOnWindow(t *testing.T) {
	s := ir.MustScript("emom", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}}, Fragments: []ir.Fragment{
			{Type: ir.FragmentRounds, Count: 3},
			{Type: ir.FragmentTimer, Duration: 60000, Image: ":60"},
			{Type: ir.FragmentAction, Label: ir.ActionEMOM},
		}},
		effort(2, ptr(1), "Swings", reps(10)),
	})
	e := newSession(t, s)

	// Finishing early leaves the loop waiting for the window.
	require.NoError(t, e.Handle(nextAt(25*time.Second)))
	assert.Equal(t, "interval", e.Stack().Top().Type)
	assert.Equal(t, int64(1), roundState(t, e).Round)

	require.NoError(t, e.Handle(tickAt(60*time.Second)))
	assert.Equal(t, "effort", e.Stack().Top().Type)
	assert.Equal(t, int64(2), roundState(t, e).Round)

	// Not finishing in time: the window cuts the child short.
	require.NoError(t, e.Handle(tickAt(120*time.Second)))
	assert.Equal(t, int64(3), roundState(t, e).Round)

	require.NoError(t, e.Handle(nextAt(150*time.Second)))
	require.NoError(t, e.Handle(tickAt(180*time.Second)))
	assert.True(t, e.Done())

	assert.Len(t, e.Metrics().ForExercise("swings"), 3)
	rounds := e.Metrics().ForExercise("emom")
	require.Len(t, rounds, 1)
	assert.Equal(t, int64(3), metricValue(t, rounds[0], ir.MetricRounds))
}

func TestSession_ErrorBlockIsDismissed(t *testing.T) {
	s := ir.MustScript("bad group", []ir.Statement{
		{ID: 1, Children: [][]int64{{2, 3}, {5}}, Fragments: []ir.Fragment{{Type: ir.FragmentRounds, Count: 1}}},
		effort(2, ptr(1), "A"),
		{ID: 3, Parent: ptr(1), Children: [][]int64{{4}}, Fragments: []ir.Fragment{{Type: ir.FragmentEffort, Label: "B"}}},
		effort(4, ptr(3), "C"),
		effort(5, ptr(1), "D"),
	})
	e := newSession(t, s)

	top := e.Stack().Top()
	require.Equal(t, "error", top.Type)
	be, _, ok := memory.Find[behavior.BlockError](e.Memory(), memory.Filter{Type: behavior.CellBlockError})
	require.True(t, ok)
	assert.Equal(t, []int64{2, 3}, be.Group)
	assert.Contains(t, be.Message, CodeNoMatch)

	require.NoError(t, e.Handle(nextAt(time.Second)))
	assert.Equal(t, "D", e.Stack().Top().Label)

	hist := e.Log().History()
	require.NotEmpty(t, hist)
	assert.Equal(t, "error", hist[0].Type)
	assert.Equal(t, ir.StatusFailed, hist[0].Status)

	require.NoError(t, e.Handle(nextAt(2*time.Second)))
	assert.True(t, e.Done())
}

func TestSession_StopMidWorkout(t *testing.T) {
	s := ir.MustScript("stop", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}}, Fragments: []ir.Fragment{{Type: ir.FragmentRounds, Count: 5}}},
		effort(2, ptr(1), "Lunges", reps(20)),
	})
	e := newSession(t, s)
	require.NoError(t, e.Handle(nextAt(30*time.Second)))

	require.NoError(t, e.Handle(events.New(events.Stop, at(40*time.Second))))
	assert.True(t, e.Done())
	assert.Equal(t, 0, e.Stack().Depth())
	assert.Equal(t, 0, e.Memory().Len())

	// The interrupted effort still reports what was done.
	assert.Len(t, e.Metrics().ForExercise("lunges"), 2)
	for _, rec := range e.Log().History() {
		assert.Equal(t, ir.StatusCompleted, rec.Status)
	}
}
