package behavior

import (
	"errors"
	"fmt"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
)

// LoopKind selects how a LoopCoordinator decides it is done.
type LoopKind string

const (
	// LoopFixed runs every group TotalRounds times.
	LoopFixed LoopKind = "FIXED"
	// LoopRepScheme is LoopFixed with a per-round rep target published to
	// children, e.g. 21-15-9.
	LoopRepScheme LoopKind = "REP_SCHEME"
	// LoopTimeBound repeats the groups until its own countdown expires (AMRAP).
	LoopTimeBound LoopKind = "TIME_BOUND"
	// LoopInterval gives each position a fixed window; the window's expiry,
	// not the child's completion, moves the loop on (EMOM).
	LoopInterval LoopKind = "INTERVAL"
)

// LoopState is the position inside a loop derived from the advance index.
type LoopState struct {
	Position int64
	Rounds   int64 // completed passes over all groups
}

// State derives the loop state for index over groupCount groups.
func State(index int64, groupCount int) LoopState {
	n := int64(groupCount)
	return LoopState{Position: index % n, Rounds: index / n}
}

// RoundState is the public view of a loop's progress.
type RoundState struct {
	Index    int64  `json:"index"`    // -1 before the first advance
	Position int64  `json:"position"` // group being run
	Round    int64  `json:"round"`    // current round, 1-based
	Total    int64  `json:"total"`    // 0 when unbounded
	SpanID   string `json:"span_id,omitempty"`
}

// LoopConfig is the static configuration of a LoopCoordinator.
type LoopConfig struct {
	Kind        LoopKind
	Groups      [][]int64
	TotalRounds int64
	Sequence    []int64
	IntervalMs  int64

	// RecordRounds emits a rounds metric when the loop completes.
	RecordRounds bool
}

// Validate checks the configuration against its kind.
func (c LoopConfig) Validate() error {
	if len(c.Groups) == 0 {
		return errors.New("loop has no child groups")
	}
	switch c.Kind {
	case LoopFixed, LoopInterval:
		if c.TotalRounds < 1 {
			return fmt.Errorf("%s loop requires total rounds >= 1, got %d", c.Kind, c.TotalRounds)
		}
		if c.Kind == LoopInterval && c.IntervalMs <= 0 {
			return fmt.Errorf("INTERVAL loop requires an interval duration")
		}
	case LoopRepScheme:
		if len(c.Sequence) == 0 {
			return errors.New("REP_SCHEME loop requires a rep sequence")
		}
		if c.TotalRounds < 1 {
			return fmt.Errorf("REP_SCHEME loop requires total rounds >= 1, got %d", c.TotalRounds)
		}
	case LoopTimeBound:
		if c.TotalRounds < 0 {
			return fmt.Errorf("TIME_BOUND loop total rounds must be >= 0, got %d", c.TotalRounds)
		}
	default:
		return fmt.Errorf("unknown loop kind %q", c.Kind)
	}
	return nil
}

// tracksRounds reports whether each round gets its own span. A single pass
// (the session root, a plain group) does not.
func (c LoopConfig) tracksRounds() bool {
	return c.Kind != LoopFixed || c.TotalRounds != 1
}

// LoopRefs are the memory cells a LoopCoordinator works through.
type LoopRefs struct {
	Round     memory.Ref[RoundState]
	Done      memory.Ref[bool]
	RepTarget memory.Ref[int64]      // any loop with a Sequence
	Interval  memory.Ref[TimerState] // INTERVAL
	Timer     memory.Ref[TimerState] // TIME_BOUND
}

// LoopCoordinator compiles and pushes its child groups one at a time,
// repeating them in rounds.
//
// Each advance moves the index forward by one. A new round starts at
// position 0: the rep target (for loops with a rep sequence) is updated, the previous round span closes and
// a new one opens. Children are compiled when they are pushed so they read
// the rep target of their own round.
type LoopCoordinator struct {
	Config LoopConfig
	Refs   LoopRefs
}

func (l *LoopCoordinator) Name() string { return "loop" }

func (l *LoopCoordinator) OnMount(b *engine.Block, env engine.Env) ([]engine.Action, error) {
	if err := l.Config.Validate(); err != nil {
		return nil, err
	}
	if err := engine.RequireRef(b, env, l.Name(), CellRound, l.Refs.Round.Reference); err != nil {
		return nil, err
	}
	if err := engine.RequireRef(b, env, l.Name(), CellLoopDone, l.Refs.Done.Reference); err != nil {
		return nil, err
	}
	if len(l.Config.Sequence) > 0 {
		if err := engine.RequireRef(b, env, l.Name(), CellRepTarget, l.Refs.RepTarget.Reference); err != nil {
			return nil, err
		}
	}
	switch l.Config.Kind {
	case LoopInterval:
		if err := engine.RequireRef(b, env, l.Name(), "interval "+CellTimer, l.Refs.Interval.Reference); err != nil {
			return nil, err
		}
	case LoopTimeBound:
		if err := engine.RequireRef(b, env, l.Name(), CellTimer, l.Refs.Timer.Reference); err != nil {
			return nil, err
		}
	}
	return []engine.Action{engine.AdvanceAction{}}, nil
}

func (l *LoopCoordinator) OnAdvance(b *engine.Block, ev events.Event, env engine.Env) ([]engine.Action, error) {
	switch ev.Name {
	case events.Tick, events.Next:
		// Only children respond to the user and the clock.
		return nil, nil
	case events.ChildComplete:
		if l.Config.Kind == LoopInterval {
			// Wait for the window to close.
			return nil, nil
		}
	}

	store := env.Memory()
	done, err := memory.Get(store, l.Refs.Done)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}
	rs, err := memory.Get(store, l.Refs.Round)
	if err != nil {
		return nil, err
	}

	index := rs.Index + 1
	st := State(index, len(l.Config.Groups))

	finished, err := l.finished(st, env)
	if err != nil {
		return nil, err
	}
	if finished {
		completed := st.Rounds
		if l.Config.Kind == LoopTimeBound && ev.Name != events.ChildComplete && rs.Index >= 0 {
			// The running child was cut short by the time cap.
			completed = State(rs.Index, len(l.Config.Groups)).Rounds
		}
		return l.complete(b, rs, completed, env)
	}

	var acts []engine.Action
	rs.Index = index
	rs.Position = st.Position
	rs.Round = st.Rounds + 1
	rs.Total = l.Config.TotalRounds
	if st.Position == 0 {
		if len(l.Config.Sequence) > 0 {
			target := l.Config.Sequence[st.Rounds%int64(len(l.Config.Sequence))]
			if err := memory.Set(store, l.Refs.RepTarget, target); err != nil {
				return nil, err
			}
		}
		if rs.SpanID != "" {
			env.CloseSpan(rs.SpanID)
		}
		if l.Config.tracksRounds() {
			rs.SpanID = env.OpenSpan("round", roundLabel(rs.Round, rs.Total))
		}
		acts = append(acts, engine.EmitEventAction{Event: events.Event{
			Name: events.RoundStart,
			Data: map[string]any{"round": rs.Round, "total": rs.Total},
		}})
	}
	if err := memory.Set(store, l.Refs.Round, rs); err != nil {
		return nil, err
	}

	group := l.Config.Groups[st.Position]
	if l.Config.Kind == LoopInterval {
		if err := RestartTimer(store, l.Refs.Interval, env.Now()); err != nil {
			return nil, err
		}
	}
	child, err := env.Compile(group)
	if err != nil {
		return append(acts, engine.ErrorAction{Err: err, Group: group}), nil
	}
	return append(acts, engine.PushAction{Block: child}), nil
}

func (l *LoopCoordinator) finished(st LoopState, env engine.Env) (bool, error) {
	if l.Config.Kind == LoopTimeBound {
		timer, err := memory.Get(env.Memory(), l.Refs.Timer)
		if err != nil {
			return false, err
		}
		if timer.Expired {
			return true, nil
		}
		return l.Config.TotalRounds > 0 && st.Rounds >= l.Config.TotalRounds, nil
	}
	return st.Rounds >= l.Config.TotalRounds, nil
}

func (l *LoopCoordinator) complete(b *engine.Block, rs RoundState, completed int64, env engine.Env) ([]engine.Action, error) {
	if err := memory.Set(env.Memory(), l.Refs.Done, true); err != nil {
		return nil, err
	}
	if rs.SpanID != "" {
		env.CloseSpan(rs.SpanID)
	}
	env.Logger().Debug("loop complete",
		"kind", l.Config.Kind,
		"rounds", completed)

	var acts []engine.Action
	if l.Config.RecordRounds {
		acts = append(acts, engine.EmitMetricAction{Metric: ir.RuntimeMetric{
			ExerciseID: ir.NormalizeExerciseID(b.Label),
			Values:     []ir.MetricValue{{Type: ir.MetricRounds, Value: completed, Unit: "rounds"}},
		}})
	}
	return append(acts, engine.CompleteAction{Reason: "rounds"}), nil
}

func (l *LoopCoordinator) Events() []string {
	switch l.Config.Kind {
	case LoopInterval:
		return []string{events.IntervalComplete}
	case LoopTimeBound:
		return []string{events.TimerComplete}
	}
	return nil
}

// OnEvent handles the expiry of the loop's own timers: the running child is
// cut short and the loop advances.
func (l *LoopCoordinator) OnEvent(b *engine.Block, ev events.Event, env engine.Env) ([]engine.Action, error) {
	if ev.Source != b.Key {
		return nil, nil
	}
	return []engine.Action{engine.PopAboveAction{}, engine.AdvanceAction{}}, nil
}

func roundLabel(round, total int64) string {
	if total > 0 {
		return fmt.Sprintf("Round %d of %d", round, total)
	}
	return fmt.Sprintf("Round %d", round)
}
