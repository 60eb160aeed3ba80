package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/wodrt/internal/compiler"
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/store"
	"github.com/roach88/wodrt/internal/testutil"
)

// Harness holds the per-run state of one scenario.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	compiler *compiler.Compiler
	clock    *testutil.ManualClock
	recorder *store.Recorder
	logger   *slog.Logger
	start    time.Time
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger   *slog.Logger
	maxSteps int
}

// WithLogger routes engine and archive logs to l. The default discards them.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// WithMaxSteps sets the engine's per-event action quota.
func WithMaxSteps(n int) Option {
	return func(c *runConfig) { c.maxSteps = n }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory archive. The engine uses a manual
// clock starting at testutil.Epoch and sequential span ids and block keys.
//
// Execution flow:
//  1. Load the script and open the archive session
//  2. Start the engine
//  3. Deliver every step, advancing the clock to its offset first
//  4. Archive the history
//  5. Evaluate assertions
//
// An error is returned only when the scenario cannot be run at all; engine
// errors are part of the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: testutil.DiscardLogger(), maxSteps: engine.DefaultMaxSteps}
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := scenario.LoadScript()
	if err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	st, err := store.Open(":memory:", store.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	clock := testutil.NewManualClock(time.Time{})
	sessionID := store.NewSessionID(clock.Now())
	if _, err := st.CreateSession(ctx, sessionID, s, clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	result := NewResult()
	result.SessionID = sessionID

	h := &Harness{
		store:    st,
		compiler: compiler.New(compiler.WithLogger(cfg.logger)),
		clock:    clock,
		recorder: store.NewRecorder(ctx, st, sessionID, cfg.logger),
		logger:   cfg.logger,
		start:    clock.Now(),
	}
	h.engine = engine.New(h.compiler,
		engine.WithLogger(cfg.logger),
		engine.WithTimeSource(clock),
		engine.WithSpanIDs(engine.NewSequenceGenerator("span")),
		engine.WithBlockKeys(engine.NewSequenceGenerator("blk")),
		engine.WithMaxSteps(cfg.maxSteps),
		engine.WithObserver(h.recorder),
		engine.WithObserver(&tracer{result: result, start: h.start, clock: clock}),
	)

	if err := h.engine.Start(s); err != nil {
		h.engineError(result, err)
	}
	h.executeSteps(scenario.Steps, result)

	result.Done = h.engine.Done()
	result.History = h.engine.Log().History()
	digest, err := h.recorder.Finish(ctx, result.History, clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to archive session: %w", err)
	}
	result.Digest = digest

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     st,
		Engine:    h.engine,
		Compiler:  h.compiler,
		SessionID: sessionID,
		Logger:    cfg.logger,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	if !claimsErrors(scenario.Assertions) {
		for _, err := range result.engineErrs {
			result.AddError(fmt.Sprintf("unexpected engine error: %v", err))
		}
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"records", len(result.History),
		"digest", digest)
	return result, nil
}

// executeSteps delivers every step in order.
func (h *Harness) executeSteps(steps []Step, result *Result) {
	var prev time.Duration
	for i, step := range steps {
		if step.period > 0 {
			for t := prev + step.period; t < step.offset; t += step.period {
				h.deliver(events.Tick, t, result)
			}
		}
		h.deliver(step.Event, step.offset, result)
		h.logger.Debug("step delivered",
			"step", i,
			"event", step.Event,
			"at_ms", step.offset.Milliseconds())
		prev = step.offset
	}
}

func (h *Harness) deliver(name string, offset time.Duration, result *Result) {
	h.clock.Set(h.start.Add(offset))
	if err := h.engine.Handle(events.New(name, h.clock.Now())); err != nil {
		h.engineError(result, fmt.Errorf("%s at %s: %w", name, offset, err))
	}
}

func (h *Harness) engineError(result *Result, err error) {
	result.engineErrs = append(result.engineErrs, err)
	result.add(TraceEntry{Kind: KindError, Name: err.Error()}, h.start, h.clock.Now())
}

func claimsErrors(assertions []Assertion) bool {
	for _, a := range assertions {
		if a.Type == AssertError {
			return true
		}
	}
	return false
}

// tracer turns engine notifications into trace entries.
type tracer struct {
	engine.BaseObserver

	result *Result
	start  time.Time
	clock  *testutil.ManualClock
}

func (t *tracer) EventHandled(ev events.Event) {
	t.result.add(TraceEntry{Kind: KindEvent, Name: ev.Name}, t.start, ev.Timestamp)
}

func (t *tracer) BlockPushed(b *engine.Block) {
	t.result.add(TraceEntry{Kind: KindPush, Name: b.Type, Key: b.Key, Label: b.Label}, t.start, t.clock.Now())
}

func (t *tracer) BlockPopped(b *engine.Block, rec ir.ExecutionRecord) {
	at := t.clock.Now()
	if rec.End != nil {
		at = *rec.End
	}
	t.result.add(TraceEntry{Kind: KindPop, Name: b.Type, Key: b.Key, Label: b.Label, Status: string(rec.Status)}, t.start, at)
}

func (t *tracer) MetricEmitted(b *engine.Block, index int, m ir.RuntimeMetric) {
	values := make(map[string]int64, len(m.Values))
	for _, v := range m.Values {
		values[string(v.Type)] += v.Value
	}
	t.result.add(TraceEntry{Kind: KindMetric, Name: m.ExerciseID, Values: values}, t.start, t.clock.Now())
}
