package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
	"github.com/roach88/wodrt/internal/metrics"
)

// DefaultMaxSteps is the default maximum number of actions applied while
// handling one event.
const DefaultMaxSteps = 1000

// RuntimeOwner owns memory cells the engine itself allocates.
const RuntimeOwner = "runtime"

// Engine drives one workout session.
//
// Thread-safety model:
//   - Enqueue(), Close(), Snapshot() and the read accessors: safe from any goroutine
//   - Start(), Handle(), Run(): the single writer; Run must be called from
//     exactly one goroutine and Handle must not be called concurrently with it
type Engine struct {
	compiler  Compiler
	memory    *memory.Store
	bus       *events.Bus[queued]
	stack     *Stack
	log       *ExecutionLog
	collector *metrics.Collector
	seq       recordSeq
	inbox     *inbox
	logger    *slog.Logger
	timeSrc   TimeSource
	spanIDs   IDGenerator
	blockKeys IDGenerator
	maxSteps  int
	observers []Observer

	script  *ir.Script
	now     time.Time
	pending []queued

	parentsMu sync.RWMutex
	parents   map[string]string // live block key -> parent key

	dispatching atomic.Bool
	started     atomic.Bool
	done        atomic.Bool
	stopped     atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the per-event action quota.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTimeSource sets the source used to stamp events that arrive without
// a timestamp.
func WithTimeSource(ts TimeSource) Option {
	return func(e *Engine) {
		e.timeSrc = ts
	}
}

// WithSpanIDs sets the execution record id generator.
func WithSpanIDs(g IDGenerator) Option {
	return func(e *Engine) {
		e.spanIDs = g
	}
}

// WithBlockKeys sets the block key generator.
func WithBlockKeys(g IDGenerator) Option {
	return func(e *Engine) {
		e.blockKeys = g
	}
}

// WithMemory sets the memory store. The engine installs its own lineage on it.
func WithMemory(s *memory.Store) Option {
	return func(e *Engine) {
		e.memory = s
	}
}

// WithCollector sets the metric collector.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.collector = c
	}
}

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// New creates an engine that compiles blocks with c.
func New(c Compiler, opts ...Option) *Engine {
	e := &Engine{
		compiler:  c,
		stack:     NewStack(),
		log:       NewExecutionLog(),
		inbox:     newInbox(),
		logger:    slog.Default(),
		timeSrc:   SystemTime{},
		spanIDs:   UUIDv7Generator{},
		blockKeys: UUIDv7Generator{},
		maxSteps:  DefaultMaxSteps,
		parents:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.memory == nil {
		e.memory = memory.New(memory.WithLogger(e.logger))
	}
	if e.collector == nil {
		e.collector = metrics.NewCollector()
	}
	e.memory.SetLineage(memory.LineageFunc(e.isAncestor))
	e.bus = events.NewBus[queued](events.WithLogger(e.logger))

	// Owner "" is always in scope: the default handler advances whatever
	// block is on top when the user or the clock moves.
	e.bus.Register("", events.Tick, e.advanceTop)
	e.bus.Register("", events.Next, e.advanceTop)
	return e
}

func (e *Engine) advanceTop(ev events.Event) ([]queued, error) {
	top := e.stack.Top()
	if top == nil {
		return nil, nil
	}
	return []queued{{source: top, action: deliverAdvance{Event: ev}}}, nil
}

// isAncestor walks the live parent chain from descendant.
func (e *Engine) isAncestor(ancestor, descendant string) bool {
	e.parentsMu.RLock()
	defer e.parentsMu.RUnlock()
	key := descendant
	for {
		parent, ok := e.parents[key]
		if !ok || parent == "" {
			return false
		}
		if parent == ancestor {
			_, live := e.parents[parent]
			return live
		}
		key = parent
	}
}

// Start compiles the script's root block and pushes it.
//
// If the root fails to compile, no block is pushed: a failed record is
// appended to history, the error is published in a public "runtime:error"
// memory cell, and the error is returned.
func (e *Engine) Start(s *ir.Script) error {
	if !e.dispatching.CompareAndSwap(false, true) {
		return ErrReentrantDispatch
	}
	defer e.dispatching.Store(false)

	if e.started.Load() || e.done.Load() {
		return errors.New("engine: session already started")
	}
	e.script = s
	e.now = e.timeSrc.Now()

	root, err := e.compiler.CompileRoot(e.compileEnv(""))
	if err != nil {
		end := e.now
		e.log.Append(ir.ExecutionRecord{
			ID:     e.spanIDs.Generate(),
			Type:   "root",
			Label:  s.Name,
			Seq:    e.seq.next(),
			Start:  e.now,
			End:    &end,
			Status: ir.StatusFailed,
		})
		e.memory.Allocate("runtime:error", RuntimeOwner, err.Error(), memory.Public)
		e.logger.Error("root compile failed",
			"script", s.Name,
			"error", err)
		for _, o := range e.observers {
			o.CompileFailed(err)
		}
		e.done.Store(true)
		return fmt.Errorf("compile root: %w", err)
	}

	e.started.Store(true)
	e.logger.Info("session started",
		"script", s.Name,
		"root_key", root.Key)

	quota := NewQuotaEnforcer(e.maxSteps)
	e.pending = nil
	pushErr := e.push(root)
	return errors.Join(pushErr, e.drain("start", quota))
}

// Handle processes one event to completion: bus dispatch, then every
// resulting action in FIFO order, including actions produced by applying
// earlier ones.
//
// A zero Timestamp is filled from the engine's time source. Events after the
// session has ended are ignored.
func (e *Engine) Handle(ev events.Event) error {
	if !e.dispatching.CompareAndSwap(false, true) {
		return ErrReentrantDispatch
	}
	defer e.dispatching.Store(false)

	if !e.started.Load() {
		return ErrNotStarted
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.timeSrc.Now()
	}
	if ev.Timestamp.After(e.now) {
		e.now = ev.Timestamp
	}

	for _, o := range e.observers {
		o.EventHandled(ev)
	}

	if e.done.Load() {
		e.logger.Debug("event after session end ignored", "event", ev.Name)
		return nil
	}
	defer e.settled(ev)

	if ev.Name == events.Stop {
		e.logger.Info("session stopped",
			"depth", e.stack.Depth())
		for e.stack.Depth() > 0 {
			e.pop()
		}
		e.pending = nil
		e.stopped.Store(true)
		e.endSession()
		return nil
	}

	quota := NewQuotaEnforcer(e.maxSteps)
	e.pending = nil
	e.dispatch(ev)
	return e.drain(ev.Name, quota)
}

func (e *Engine) settled(ev events.Event) {
	for _, o := range e.observers {
		if so, ok := o.(SettledObserver); ok {
			so.EventSettled(ev)
		}
	}
}

// dispatch sends ev through the bus to every handler whose owner is live.
func (e *Engine) dispatch(ev events.Event) {
	results, _ := e.bus.Dispatch(ev, e.stack.ContainsKey)
	e.pending = append(e.pending, results...)
}

// drain applies pending actions until none remain.
func (e *Engine) drain(event string, quota *QuotaEnforcer) error {
	var errs []error
	for len(e.pending) > 0 {
		q := e.pending[0]
		e.pending = e.pending[1:]

		if err := quota.Check(event); err != nil {
			e.logger.Error("action quota exceeded",
				"event", event,
				"limit", quota.MaxSteps(),
				"dropped", len(e.pending))
			e.pending = nil
			return errors.Join(append(errs, err)...)
		}

		if q.source != nil && !e.stack.Contains(q.source) {
			e.logger.Debug("stale action dropped",
				"action", actionName(q.action),
				"block_key", q.source.Key)
			continue
		}

		if err := e.apply(q); err != nil {
			e.logger.Warn("action failed",
				"action", actionName(q.action),
				"event", event,
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) apply(q queued) error {
	src := q.source
	switch a := q.action.(type) {
	case PushAction:
		if a.Block == nil {
			return errors.New("push: nil block")
		}
		return e.push(a.Block)

	case CompleteAction:
		e.complete(src)
		return nil

	case PopAboveAction:
		e.popAbove(src)
		return nil

	case AdvanceAction:
		return e.advance(src, events.Event{Name: events.Advance, Timestamp: e.now, Source: src.Key})

	case deliverAdvance:
		return e.advance(src, a.Event)

	case EmitMetricAction:
		e.emitMetric(src, a.Metric)
		return nil

	case EmitEventAction:
		ev := a.Event
		if ev.Source == "" && src != nil {
			ev.Source = src.Key
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = e.now
		}
		e.dispatch(ev)
		return nil

	case ErrorAction:
		parent := ""
		if src != nil {
			parent = src.Key
		}
		e.logger.Warn("child compile failed",
			"parent_key", parent,
			"group", a.Group,
			"error", a.Err)
		return e.push(e.compiler.ErrorBlock(a.Err, a.Group, e.compileEnv(parent)))

	default:
		return fmt.Errorf("unknown action %T", a)
	}
}

func (e *Engine) advance(b *Block, ev events.Event) error {
	acts, err := b.Advance(ev, e.env(b))
	e.enqueue(b, acts)
	return err
}

func (e *Engine) enqueue(src *Block, acts []Action) {
	for _, a := range acts {
		e.pending = append(e.pending, queued{source: src, action: a})
	}
}

// push opens the block's span, mounts it and registers its listeners.
//
// A block whose mount fails is marked failed and completed so the parent
// moves on.
func (e *Engine) push(b *Block) error {
	parentSpan := ""
	if top := e.stack.Top(); top != nil {
		parentSpan = top.currentSpan()
	}
	id := e.spanIDs.Generate()
	e.log.Open(ir.ExecutionRecord{
		ID:           id,
		BlockKey:     b.Key,
		ParentSpanID: parentSpan,
		Type:         b.Type,
		Label:        b.Label,
		Seq:          e.seq.next(),
		Start:        e.now,
	})
	b.spans = []string{id}

	e.parentsMu.Lock()
	e.parents[b.Key] = b.ParentKey
	e.parentsMu.Unlock()

	for _, l := range b.listeners() {
		for _, name := range l.Events() {
			e.bus.Register(b.Key, name, func(ev events.Event) ([]queued, error) {
				acts, err := l.OnEvent(b, ev, e.env(b))
				out := make([]queued, len(acts))
				for i, a := range acts {
					out[i] = queued{source: b, action: a}
				}
				return out, err
			})
		}
	}

	e.logger.Debug("block pushed",
		"block_key", b.Key,
		"type", b.Type,
		"label", b.Label,
		"depth", e.stack.Depth()+1)

	acts, err := e.stack.Push(b, e.env(b))
	for _, o := range e.observers {
		o.BlockPushed(b)
	}
	e.enqueue(b, acts)
	if err != nil {
		b.MarkFailed()
		e.pending = append(e.pending, queued{source: b, action: CompleteAction{Reason: "mount failed"}})
		return err
	}
	return nil
}

// complete pops everything above b, then b, and notifies the new top.
func (e *Engine) complete(b *Block) {
	e.popAbove(b)
	e.pop()

	parent := e.stack.Top()
	if parent == nil {
		e.endSession()
		return
	}
	e.pending = append(e.pending, queued{
		source: parent,
		action: deliverAdvance{Event: events.Event{
			Name:      events.ChildComplete,
			Timestamp: e.now,
			Source:    b.Key,
		}},
	})
}

func (e *Engine) popAbove(b *Block) {
	for {
		top := e.stack.Top()
		if top == nil || top == b {
			return
		}
		e.pop()
	}
}

// pop removes the top block: unmount, finalize spans, unregister listeners,
// dispose, release memory.
func (e *Engine) pop() {
	top := e.stack.Top()
	if top == nil {
		return
	}
	env := e.env(top)
	b, acts, err := e.stack.Pop(env)
	if err != nil {
		e.logger.Warn("unmount failed",
			"block_key", b.Key,
			"error", err)
	}
	for _, a := range acts {
		if m, ok := a.(EmitMetricAction); ok {
			e.emitMetric(b, m.Metric)
			continue
		}
		e.logger.Debug("action from unmount dropped",
			"action", actionName(a),
			"block_key", b.Key)
	}

	status := ir.StatusCompleted
	if b.Failed() {
		status = ir.StatusFailed
	}
	var rec ir.ExecutionRecord
	for i := len(b.spans) - 1; i >= 0; i-- {
		st := ir.StatusCompleted
		if i == 0 {
			st = status
		}
		if r, ok := e.log.Close(b.spans[i], st, e.now); ok && i == 0 {
			rec = r
		}
	}
	if len(b.spans) > 1 {
		b.spans = b.spans[:1]
	}

	e.bus.RemoveOwner(b.Key)
	if err := b.Dispose(env); err != nil {
		e.logger.Warn("dispose failed",
			"block_key", b.Key,
			"error", err)
	}
	if ctx := b.Context(); ctx != nil {
		ctx.Release()
	}

	e.parentsMu.Lock()
	delete(e.parents, b.Key)
	e.parentsMu.Unlock()

	e.logger.Debug("block popped",
		"block_key", b.Key,
		"status", status,
		"depth", e.stack.Depth())
	for _, o := range e.observers {
		o.BlockPopped(b, rec)
	}
}

func (e *Engine) emitMetric(b *Block, m ir.RuntimeMetric) {
	idx := e.collector.Collect(m)
	if b != nil {
		e.log.AttachMetric(b.currentSpan(), m)
	}
	for _, o := range e.observers {
		o.MetricEmitted(b, idx, m)
	}
}

func (e *Engine) endSession() {
	if e.done.Swap(true) {
		return
	}
	e.logger.Info("session ended",
		"records", len(e.log.History()),
		"metrics", e.collector.Len())
	for _, o := range e.observers {
		o.SessionEnded(e.now)
	}
}

func (e *Engine) env(b *Block) Env {
	return blockEnv{e: e, b: b}
}

func (e *Engine) compileEnv(parent string) CompileEnv {
	return compileEnv{e: e, parent: parent}
}

// Enqueue submits an event for processing by the Run loop. An event with
// a zero timestamp is stamped from the engine's TimeSource.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been closed.
func (e *Engine) Enqueue(ev events.Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.timeSrc.Now()
	}
	return e.inbox.put(ev)
}

// Run starts the single-writer event loop. Blocks until ctx is cancelled,
// Close is called, or the session ends.
//
// A failing event is logged with its context and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		if e.done.Load() {
			e.logger.Info("engine stopping: session ended")
			return nil
		}

		ev, ok := e.inbox.take()
		if ok {
			if err := e.Handle(ev); err != nil {
				e.logger.Error("event processing failed",
					"event", ev.Name,
					"timestamp", ev.Timestamp,
					"error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.inbox.close()
			return ctx.Err()

		case <-e.inbox.ready:
			if e.inbox.len() == 0 {
				e.logger.Info("engine stopping: inbox closed")
				return nil
			}
		}
	}
}

// Close closes the inbox. Run returns once queued events are handled.
func (e *Engine) Close() {
	e.inbox.close()
}

// Done reports whether the session has ended.
func (e *Engine) Done() bool {
	return e.done.Load()
}

// Stopped reports whether the session ended on a stop event rather than
// by running to completion.
func (e *Engine) Stopped() bool {
	return e.stopped.Load()
}

// Stack returns the execution stack.
func (e *Engine) Stack() *Stack {
	return e.stack
}

// Log returns the execution log.
func (e *Engine) Log() *ExecutionLog {
	return e.log
}

// Memory returns the memory store.
func (e *Engine) Memory() *memory.Store {
	return e.memory
}

// Metrics returns the metric collector.
func (e *Engine) Metrics() *metrics.Collector {
	return e.collector
}

// Snapshot is a point-in-time view of a session for status output.
type Snapshot struct {
	Stack   []BlockInfo          `json:"stack"`
	Active  []ir.ExecutionRecord `json:"active"`
	Memory  []memory.Cell        `json:"memory"`
	Metrics int                  `json:"metrics"`
	Done    bool                 `json:"done"`
}

// Snapshot returns the current state. Only public and inherited memory
// cells are included.
func (e *Engine) Snapshot() Snapshot {
	blocks := e.stack.Blocks()
	infos := make([]BlockInfo, len(blocks))
	for i, b := range blocks {
		infos[i] = b.Info()
	}
	return Snapshot{
		Stack:   infos,
		Active:  e.log.Active(),
		Memory:  e.memory.Cells(memory.Filter{}),
		Metrics: e.collector.Len(),
		Done:    e.done.Load(),
	}
}
