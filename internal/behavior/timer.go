package behavior

import (
	"fmt"
	"time"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
)

// Memory cell types.
const (
	CellTimer       = "timer:state"
	CellRound       = "round:state"
	CellRepTarget   = "metric:reps"
	CellLoopDone    = "loop:complete"
	CellEffortStart = "effort:start"
	CellBlockError  = "block:error"
)

// TimerState is the live state of one timer.
type TimerState struct {
	DurationMs int64        `json:"duration_ms"` // 0 for an open-ended count-up
	Direction  ir.Direction `json:"direction"`
	StartedAt  time.Time    `json:"started_at"`
	ElapsedMs  int64        `json:"elapsed_ms"` // as of the last tick
	Running    bool         `json:"running"`
	Expired    bool         `json:"expired"`
}

// NewTimerState returns a stopped timer for a timer fragment.
func NewTimerState(f ir.Fragment) TimerState {
	return TimerState{DurationMs: f.Duration, Direction: f.TimerDirection()}
}

// Countdown reports whether the timer expires.
func (s TimerState) Countdown() bool {
	return s.Direction == ir.DirectionDown && s.DurationMs > 0
}

// Elapsed returns the elapsed time at now.
func (s TimerState) Elapsed(now time.Time) time.Duration {
	if !s.Running {
		return time.Duration(s.ElapsedMs) * time.Millisecond
	}
	d := now.Sub(s.StartedAt)
	if s.Countdown() && d > time.Duration(s.DurationMs)*time.Millisecond {
		d = time.Duration(s.DurationMs) * time.Millisecond
	}
	return d
}

// Remaining returns the time left on a countdown at now, 0 for count-ups.
func (s TimerState) Remaining(now time.Time) time.Duration {
	if !s.Countdown() {
		return 0
	}
	return time.Duration(s.DurationMs)*time.Millisecond - s.Elapsed(now)
}

// RestartTimer resets a timer cell and starts it at now.
func RestartTimer(s *memory.Store, ref memory.Ref[TimerState], now time.Time) error {
	st, err := memory.Get(s, ref)
	if err != nil {
		return err
	}
	st.StartedAt = now
	st.ElapsedMs = 0
	st.Running = true
	st.Expired = false
	return memory.Set(s, ref, st)
}

// Timer keeps a TimerState cell current on every tick and emits OnExpire
// once when a countdown runs out.
//
// The timer listens to ticks, so it keeps counting while children run on top
// of its block. A Manual timer is started by another behavior with
// RestartTimer instead of at mount.
type Timer struct {
	State    memory.Ref[TimerState]
	OnExpire string
	Manual   bool
}

func (t *Timer) Name() string { return "timer" }

func (t *Timer) OnMount(b *engine.Block, env engine.Env) ([]engine.Action, error) {
	if err := engine.RequireRef(b, env, t.Name(), CellTimer, t.State.Reference); err != nil {
		return nil, err
	}
	if t.Manual {
		return nil, nil
	}
	return nil, RestartTimer(env.Memory(), t.State, env.Now())
}

func (t *Timer) Events() []string {
	return []string{events.Tick}
}

func (t *Timer) OnEvent(b *engine.Block, ev events.Event, env engine.Env) ([]engine.Action, error) {
	st, err := memory.Get(env.Memory(), t.State)
	if err != nil {
		return nil, err
	}
	if !st.Running {
		return nil, nil
	}

	st.ElapsedMs = st.Elapsed(env.Now()).Milliseconds()
	var acts []engine.Action
	if st.Countdown() && st.ElapsedMs >= st.DurationMs {
		st.ElapsedMs = st.DurationMs
		st.Running = false
		st.Expired = true
		if t.OnExpire != "" {
			acts = append(acts, engine.EmitEventAction{Event: events.Event{
				Name: t.OnExpire,
				Data: map[string]any{"duration_ms": st.DurationMs},
			}})
		}
		env.Logger().Debug("timer expired",
			"duration_ms", st.DurationMs,
			"event", t.OnExpire)
	}
	if err := memory.Set(env.Memory(), t.State, st); err != nil {
		return nil, fmt.Errorf("update timer: %w", err)
	}
	return acts, nil
}

func (t *Timer) OnUnmount(b *engine.Block, env engine.Env) ([]engine.Action, error) {
	st, err := memory.Get(env.Memory(), t.State)
	if err != nil {
		return nil, err
	}
	if !st.Running {
		return nil, nil
	}
	st.ElapsedMs = st.Elapsed(env.Now()).Milliseconds()
	st.Running = false
	return nil, memory.Set(env.Memory(), t.State, st)
}
