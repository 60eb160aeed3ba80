package engine

import (
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
)

// Action is a declarative effect returned by a behavior hook. The engine
// applies it after the dispatch that produced it has returned.
//
// Sealed: only the types in this file implement Action.
type Action interface {
	action()
}

// PushAction pushes a freshly compiled child on top of the stack.
type PushAction struct {
	Block *Block
}

// CompleteAction completes the source block: every block above it is popped,
// then the block itself, and its parent receives a child-complete advance.
type CompleteAction struct {
	Reason string
}

// PopAboveAction pops every block above the source block.
type PopAboveAction struct{}

// AdvanceAction advances the source block again once the current dispatch
// finishes. Self-starting behaviors return it from mount.
type AdvanceAction struct{}

// EmitMetricAction collects a metric and attaches it to the source block's
// innermost open span.
type EmitMetricAction struct {
	Metric ir.RuntimeMetric
}

// EmitEventAction dispatches an internal event through the bus. Source and
// Timestamp are filled in by the engine when empty.
type EmitEventAction struct {
	Event events.Event
}

// ErrorAction reports that a child group could not be compiled. The engine
// pushes an error block in its place so the failure is visible and the user
// can dismiss it.
type ErrorAction struct {
	Err   error
	Group []int64
}

// deliverAdvance is queued by the engine itself to advance a block with a
// specific event (tick, next, child-complete).
type deliverAdvance struct {
	Event events.Event
}

func (PushAction) action()       {}
func (CompleteAction) action()   {}
func (PopAboveAction) action()   {}
func (AdvanceAction) action()    {}
func (EmitMetricAction) action() {}
func (EmitEventAction) action()  {}
func (ErrorAction) action()      {}
func (deliverAdvance) action()   {}

// actionName is used in logs.
func actionName(a Action) string {
	switch a.(type) {
	case PushAction:
		return "push"
	case CompleteAction:
		return "complete"
	case PopAboveAction:
		return "pop_above"
	case AdvanceAction:
		return "advance"
	case EmitMetricAction:
		return "emit_metric"
	case EmitEventAction:
		return "emit_event"
	case ErrorAction:
		return "error"
	case deliverAdvance:
		return "deliver_advance"
	default:
		return "unknown"
	}
}

// queued is an action tagged with the block that returned it.
// A nil source is the engine itself.
type queued struct {
	source *Block
	action Action
}
