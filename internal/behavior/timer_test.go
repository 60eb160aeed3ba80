package behavior

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
)

func TestTimerState(t *testing.T) {
	down := TimerState{DurationMs: 60000, Direction: ir.DirectionDown, StartedAt: t0, Running: true}
	assert.True(t, down.Countdown())
	assert.Equal(t, 20*time.Second, down.Elapsed(t0.Add(20*time.Second)))
	assert.Equal(t, 40*time.Second, down.Remaining(t0.Add(20*time.Second)))
	assert.Equal(t, time.Minute, down.Elapsed(t0.Add(2*time.Minute)))
	assert.Zero(t, down.Remaining(t0.Add(2*time.Minute)))

	up := TimerState{Direction: ir.DirectionUp, StartedAt: t0, Running: true}
	assert.False(t, up.Countdown())
	assert.Equal(t, 5*time.Minute, up.Elapsed(t0.Add(5*time.Minute)))
	assert.Zero(t, up.Remaining(t0.Add(5*time.Minute)))

	stopped := TimerState{DurationMs: 60000, Direction: ir.DirectionDown, ElapsedMs: 12000}
	assert.Equal(t, 12*time.Second, stopped.Elapsed(t0.Add(time.Hour)))
}

func TestNewTimerState(t *testing.T) {
	st := NewTimerState(ir.Fragment{Type: ir.FragmentTimer, Duration: 90000})
	assert.Equal(t, int64(90000), st.DurationMs)
	assert.Equal(t, ir.DirectionDown, st.Direction)
	assert.False(t, st.Running)
}

// restRoot is a single countdown block that completes on expiry or next.
func restRoot(durationMs int64) func(env engine.CompileEnv) (*engine.Block, error) {
	return func(env engine.CompileEnv) (*engine.Block, error) {
		key := env.NewKey()
		ctx := env.Memory().Context(key)
		timer := memory.Own(ctx, CellTimer, TimerState{DurationMs: durationMs, Direction: ir.DirectionDown}, memory.Public)
		return engine.NewBlock(key, "", "timer", "Rest", nil, ctx,
			&Timer{State: timer, OnExpire: events.TimerComplete},
			CompleteOnEvent{Event: events.TimerComplete},
			NextCompletes{},
		), nil
	}
}

func timerState(t *testing.T, e *engine.Engine) TimerState {
	t.Helper()
	st, _, ok := memory.Find[TimerState](e.Memory(), memory.Filter{Type: CellTimer})
	require.True(t, ok)
	return st
}

func TestTimer_ExpiresOnce(t *testing.T) {
	var expiries []any
	root := func(env engine.CompileEnv) (*engine.Block, error) {
		key := env.NewKey()
		ctx := env.Memory().Context(key)
		timer := memory.Own(ctx, CellTimer, TimerState{DurationMs: 10000, Direction: ir.DirectionDown}, memory.Public)
		return engine.NewBlock(key, "", "timer", "Hold", nil, ctx,
			&Timer{State: timer, OnExpire: events.TimerComplete},
			NextCompletes{},
			eventCounter{name: events.TimerComplete, seen: &expiries},
		), nil
	}
	e := engine.New(&testCompiler{root: root},
		engine.WithLogger(discard()),
		engine.WithTimeSource(fixedTime{}),
	)
	require.NoError(t, e.Start(ir.MustScript("hold", []ir.Statement{{ID: 1}})))

	st := timerState(t, e)
	assert.True(t, st.Running)
	assert.Equal(t, t0, st.StartedAt)

	require.NoError(t, e.Handle(events.New(events.Tick, t0.Add(4*time.Second))))
	st = timerState(t, e)
	assert.Equal(t, int64(4000), st.ElapsedMs)
	assert.False(t, st.Expired)

	require.NoError(t, e.Handle(events.New(events.Tick, t0.Add(11*time.Second))))
	require.NoError(t, e.Handle(events.New(events.Tick, t0.Add(12*time.Second))))
	st = timerState(t, e)
	assert.True(t, st.Expired)
	assert.False(t, st.Running)
	assert.Equal(t, int64(10000), st.ElapsedMs)
	assert.Equal(t, []any{int64(10000)}, expiries)
	assert.False(t, e.Done())
}

func TestTimer_LateTickNeverRewinds(t *testing.T) {
	e := engine.New(&testCompiler{root: restRoot(60000)},
		engine.WithLogger(discard()),
		engine.WithTimeSource(fixedTime{}),
	)
	require.NoError(t, e.Start(ir.MustScript("rest", []ir.Statement{{ID: 1}})))

	// Stamped before the timer started.
	require.NoError(t, e.Handle(events.New(events.Tick, t0.Add(-2*time.Second))))
	assert.Zero(t, timerState(t, e).ElapsedMs)

	require.NoError(t, e.Handle(events.New(events.Tick, t0.Add(8*time.Second))))
	assert.Equal(t, int64(8000), timerState(t, e).ElapsedMs)

	// Delivered out of order.
	require.NoError(t, e.Handle(events.New(events.Tick, t0.Add(3*time.Second))))
	assert.Equal(t, int64(8000), timerState(t, e).ElapsedMs)
}

func TestTimer_CompletesRestOnExpiry(t *testing.T) {
	e := engine.New(&testCompiler{root: restRoot(10000)},
		engine.WithLogger(discard()),
		engine.WithTimeSource(fixedTime{}),
	)
	require.NoError(t, e.Start(ir.MustScript("rest", []ir.Statement{{ID: 1}})))
	require.NoError(t, e.Handle(events.New(events.Tick, t0.Add(10*time.Second))))
	assert.True(t, e.Done())
}

func TestTimer_NextSkipsRest(t *testing.T) {
	e := engine.New(&testCompiler{root: restRoot(60000)},
		engine.WithLogger(discard()),
		engine.WithTimeSource(fixedTime{}),
	)
	require.NoError(t, e.Start(ir.MustScript("rest", []ir.Statement{{ID: 1}})))

	// Ticks never complete the block on their own before expiry.
	require.NoError(t, e.Handle(events.New(events.Tick, t0.Add(time.Second))))
	assert.False(t, e.Done())

	require.NoError(t, e.Handle(events.New(events.Next, t0.Add(15*time.Second))))
	assert.True(t, e.Done())
}

type eventCounter struct {
	name string
	seen *[]any
}

func (c eventCounter) Name() string     { return "counter" }
func (c eventCounter) Events() []string { return []string{c.name} }
func (c eventCounter) OnEvent(b *engine.Block, ev events.Event, env engine.Env) ([]engine.Action, error) {
	*c.seen = append(*c.seen, ev.Data["duration_ms"])
	return nil, nil
}
