package compiler

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/wodrt/internal/behavior"
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
)

// Interval matches an EMOM container: rounds, a timer giving the window
// length, children and an EMOM action.
type Interval struct{}

func (Interval) Name() string { return "interval" }

func (Interval) Match(stmts []ir.Statement) bool {
	s, ok := container(stmts)
	return ok && s.Has(ir.FragmentRounds) && s.Has(ir.FragmentTimer) && hasAction(s, ir.ActionEMOM)
}

func (Interval) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	s := stmts[0]
	rounds, _ := s.Fragment(ir.FragmentRounds)
	timer, _ := s.Fragment(ir.FragmentTimer)

	key := env.NewKey()
	ctx := env.Memory().Context(key)
	window := memory.Own(ctx, behavior.CellTimer, behavior.TimerState{
		DurationMs: timer.Duration,
		Direction:  ir.DirectionDown,
	}, memory.Public)
	loop := newLoop(ctx, behavior.LoopConfig{
		Kind:         behavior.LoopInterval,
		Groups:       s.Children,
		TotalRounds:  rounds.TotalRounds(),
		IntervalMs:   timer.Duration,
		RecordRounds: true,
	})
	loop.Refs.Interval = window
	return engine.NewBlock(key, env.ParentKey(), "interval", s.Label(), []int64{s.ID}, ctx,
		&behavior.Timer{State: window, OnExpire: events.IntervalComplete, Manual: true},
		loop,
	), nil
}

// TimedRounds matches rounds with a countdown: as many of the rounds as fit
// in the time cap.
type TimedRounds struct{}

func (TimedRounds) Name() string { return "timed-rounds" }

func (TimedRounds) Match(stmts []ir.Statement) bool {
	s, ok := container(stmts)
	return ok && s.Has(ir.FragmentRounds) && hasCountdown(s)
}

func (TimedRounds) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	s := stmts[0]
	rounds, _ := s.Fragment(ir.FragmentRounds)
	return timeBound(s, rounds.TotalRounds(), rounds.Sequence, "timed-rounds", env), nil
}

// RepScheme matches rounds given as a rep sequence, e.g. 21-15-9.
type RepScheme struct{}

func (RepScheme) Name() string { return "rep-scheme" }

func (RepScheme) Match(stmts []ir.Statement) bool {
	s, ok := container(stmts)
	if !ok {
		return false
	}
	f, ok := s.Fragment(ir.FragmentRounds)
	return ok && len(f.Sequence) > 0
}

func (RepScheme) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	s := stmts[0]
	rounds, _ := s.Fragment(ir.FragmentRounds)

	key := env.NewKey()
	ctx := env.Memory().Context(key)
	loop := newLoop(ctx, behavior.LoopConfig{
		Kind:         behavior.LoopRepScheme,
		Groups:       s.Children,
		TotalRounds:  rounds.TotalRounds(),
		Sequence:     rounds.Sequence,
		RecordRounds: true,
	})
	return engine.NewBlock(key, env.ParentKey(), "rep-scheme", s.Label(), []int64{s.ID}, ctx, loop), nil
}

// Rounds matches a fixed number of rounds.
type Rounds struct{}

func (Rounds) Name() string { return "rounds" }

func (Rounds) Match(stmts []ir.Statement) bool {
	s, ok := container(stmts)
	return ok && s.Has(ir.FragmentRounds)
}

func (Rounds) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	s := stmts[0]
	rounds, _ := s.Fragment(ir.FragmentRounds)

	key := env.NewKey()
	ctx := env.Memory().Context(key)
	loop := newLoop(ctx, behavior.LoopConfig{
		Kind:         behavior.LoopFixed,
		Groups:       s.Children,
		TotalRounds:  rounds.TotalRounds(),
		RecordRounds: true,
	})
	return engine.NewBlock(key, env.ParentKey(), "rounds", s.Label(), []int64{s.ID}, ctx, loop), nil
}

// Amrap matches a countdown over children without a round count: as many
// rounds as possible.
type Amrap struct{}

func (Amrap) Name() string { return "amrap" }

func (Amrap) Match(stmts []ir.Statement) bool {
	s, ok := container(stmts)
	return ok && hasCountdown(s) && !s.Has(ir.FragmentRounds)
}

func (Amrap) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	return timeBound(stmts[0], 0, nil, "amrap", env), nil
}

// ForTime matches a count-up timer over children: run them once and record
// how long it took.
type ForTime struct{}

func (ForTime) Name() string { return "for-time" }

func (ForTime) Match(stmts []ir.Statement) bool {
	s, ok := container(stmts)
	return ok && s.Has(ir.FragmentTimer) && !hasCountdown(s) && !s.Has(ir.FragmentRounds)
}

func (ForTime) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	s := stmts[0]
	f, _ := s.Fragment(ir.FragmentTimer)

	key := env.NewKey()
	ctx := env.Memory().Context(key)
	state := memory.Own(ctx, behavior.CellTimer, behavior.NewTimerState(f), memory.Public)
	loop := newLoop(ctx, behavior.LoopConfig{
		Kind:        behavior.LoopFixed,
		Groups:      s.Children,
		TotalRounds: 1,
	})
	return engine.NewBlock(key, env.ParentKey(), "for-time", s.Label(), []int64{s.ID}, ctx,
		&behavior.Timer{State: state},
		&behavior.EffortMetrics{
			ExerciseID: exerciseID(s, "for-time"),
			Started:    memory.Own(ctx, behavior.CellEffortStart, time.Time{}, memory.Private),
		},
		loop,
	), nil
}

// Group matches a plain parent: its children run once, in order.
type Group struct{}

func (Group) Name() string { return "group" }

func (Group) Match(stmts []ir.Statement) bool {
	s, ok := container(stmts)
	return ok && !s.Has(ir.FragmentRounds) && !s.Has(ir.FragmentTimer)
}

func (Group) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	s := stmts[0]
	key := env.NewKey()
	ctx := env.Memory().Context(key)
	loop := newLoop(ctx, behavior.LoopConfig{
		Kind:        behavior.LoopFixed,
		Groups:      s.Children,
		TotalRounds: 1,
	})
	return engine.NewBlock(key, env.ParentKey(), "group", s.Label(), []int64{s.ID}, ctx, loop), nil
}

// Timer matches a standalone timer, e.g. a rest or a for-time effort.
// A countdown completes itself; any timer can be skipped with next.
type Timer struct{}

func (Timer) Name() string { return "timer" }

func (Timer) Match(stmts []ir.Statement) bool {
	return len(stmts) == 1 && !stmts[0].HasChildren() && stmts[0].Has(ir.FragmentTimer)
}

func (Timer) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	s := stmts[0]
	f, _ := s.Fragment(ir.FragmentTimer)

	key := env.NewKey()
	ctx := env.Memory().Context(key)
	state := memory.Own(ctx, behavior.CellTimer, behavior.NewTimerState(f), memory.Public)
	started := memory.Own(ctx, behavior.CellEffortStart, time.Time{}, memory.Private)

	bs := []engine.Behavior{
		&behavior.Timer{State: state, OnExpire: events.TimerComplete},
		behavior.NextCompletes{},
		&behavior.EffortMetrics{
			ExerciseID: exerciseID(s, "timer"),
			Values:     effortValues(s, 0),
			Started:    started,
		},
	}
	if f.TimerDirection() == ir.DirectionDown {
		bs = append(bs, behavior.CompleteOnEvent{Event: events.TimerComplete})
	}
	return engine.NewBlock(key, env.ParentKey(), "timer", s.Label(), []int64{s.ID}, ctx, bs...), nil
}

// Effort matches any group of leaf statements, e.g. "10 Pushups". The rep
// count comes from the statement's own rep fragment, or else from the
// nearest inherited rep target (a REP_SCHEME round).
type Effort struct{}

func (Effort) Name() string { return "effort" }

func (Effort) Match(stmts []ir.Statement) bool {
	for _, s := range stmts {
		if s.HasChildren() {
			return false
		}
	}
	return len(stmts) > 0
}

func (Effort) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	inherited, _, _ := memory.Find[int64](env.Memory(), memory.Filter{
		Type:      behavior.CellRepTarget,
		Requester: env.ParentKey(),
	})

	key := env.NewKey()
	ctx := env.Memory().Context(key)
	bs := []engine.Behavior{behavior.NextCompletes{}}
	labels := make([]string, 0, len(stmts))
	ids := make([]int64, 0, len(stmts))
	for _, s := range stmts {
		ids = append(ids, s.ID)
		labels = append(labels, effortLabel(s, inherited))
		bs = append(bs, &behavior.EffortMetrics{
			ExerciseID: exerciseID(s, "effort"),
			Values:     effortValues(s, inherited),
			Started:    memory.Own(ctx, behavior.CellEffortStart, time.Time{}, memory.Private),
		})
	}
	return engine.NewBlock(key, env.ParentKey(), "effort", strings.Join(labels, " + "), ids, ctx, bs...), nil
}

// container returns the single statement of a group if it has children.
func container(stmts []ir.Statement) (ir.Statement, bool) {
	if len(stmts) != 1 || !stmts[0].HasChildren() {
		return ir.Statement{}, false
	}
	return stmts[0], true
}

func hasCountdown(s ir.Statement) bool {
	f, ok := s.Fragment(ir.FragmentTimer)
	return ok && f.TimerDirection() == ir.DirectionDown
}

func hasAction(s ir.Statement, label string) bool {
	for _, f := range s.Fragments {
		if f.Type == ir.FragmentAction && strings.EqualFold(f.Label, label) {
			return true
		}
	}
	return false
}

// newLoop allocates the cells every loop needs and returns the coordinator.
// Callers set timer refs for INTERVAL and TIME_BOUND loops.
func newLoop(ctx *memory.Context, cfg behavior.LoopConfig) *behavior.LoopCoordinator {
	refs := behavior.LoopRefs{
		Round: memory.Own(ctx, behavior.CellRound, behavior.RoundState{
			Index: -1,
			Total: cfg.TotalRounds,
		}, memory.Public),
		Done: memory.Own(ctx, behavior.CellLoopDone, false, memory.Private),
	}
	if len(cfg.Sequence) > 0 {
		refs.RepTarget = memory.Own(ctx, behavior.CellRepTarget, cfg.Sequence[0], memory.Inherited)
	}
	return &behavior.LoopCoordinator{Config: cfg, Refs: refs}
}

func timeBound(s ir.Statement, total int64, sequence []int64, typ string, env engine.CompileEnv) *engine.Block {
	f, _ := s.Fragment(ir.FragmentTimer)

	key := env.NewKey()
	ctx := env.Memory().Context(key)
	state := memory.Own(ctx, behavior.CellTimer, behavior.NewTimerState(f), memory.Public)
	loop := newLoop(ctx, behavior.LoopConfig{
		Kind:         behavior.LoopTimeBound,
		Groups:       s.Children,
		TotalRounds:  total,
		Sequence:     sequence,
		RecordRounds: true,
	})
	loop.Refs.Timer = state
	return engine.NewBlock(key, env.ParentKey(), typ, s.Label(), []int64{s.ID}, ctx,
		&behavior.Timer{State: state, OnExpire: events.TimerComplete},
		loop,
	)
}

func exerciseID(s ir.Statement, fallback string) string {
	if f, ok := s.Fragment(ir.FragmentEffort); ok && f.Label != "" {
		return ir.NormalizeExerciseID(f.Label)
	}
	if id := ir.NormalizeExerciseID(s.Label()); id != "" {
		return id
	}
	return fallback
}

// effortValues collects the measured values of a leaf statement. reps is
// used when the statement carries no rep fragment of its own.
func effortValues(s ir.Statement, reps int64) []ir.MetricValue {
	var out []ir.MetricValue
	if f, ok := s.Fragment(ir.FragmentRep); ok {
		reps = f.Count
	}
	if reps > 0 {
		out = append(out, ir.MetricValue{Type: ir.MetricReps, Value: reps, Unit: "reps"})
	}
	if f, ok := s.Fragment(ir.FragmentResistance); ok {
		out = append(out, ir.MetricValue{Type: ir.MetricResistance, Value: f.Amount, Unit: f.Unit})
	}
	if f, ok := s.Fragment(ir.FragmentDistance); ok {
		out = append(out, ir.MetricValue{Type: ir.MetricDistance, Value: f.Amount, Unit: f.Unit})
	}
	return out
}

func effortLabel(s ir.Statement, inherited int64) string {
	label := s.Label()
	if !s.Has(ir.FragmentEffort) && !s.Has(ir.FragmentAction) {
		return label
	}
	reps := inherited
	if f, ok := s.Fragment(ir.FragmentRep); ok {
		reps = f.Count
	}
	if reps > 0 {
		return strconv.FormatInt(reps, 10) + " " + label
	}
	return label
}
