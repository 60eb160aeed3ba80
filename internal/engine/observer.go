package engine

import (
	"time"

	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
)

// Observer is notified of engine activity. Calls happen on the engine's
// writer goroutine, synchronously; an observer must not call back into
// Handle.
type Observer interface {
	EventHandled(ev events.Event)
	BlockPushed(b *Block)
	BlockPopped(b *Block, rec ir.ExecutionRecord)
	MetricEmitted(b *Block, index int, m ir.RuntimeMetric)
	CompileFailed(err error)
	SessionEnded(at time.Time)
}

// BaseObserver implements Observer with no-ops. Embed it to implement only
// the callbacks you need.
type BaseObserver struct{}

func (BaseObserver) EventHandled(events.Event)                     {}
func (BaseObserver) BlockPushed(*Block)                            {}
func (BaseObserver) BlockPopped(*Block, ir.ExecutionRecord)        {}
func (BaseObserver) MetricEmitted(*Block, int, ir.RuntimeMetric)   {}
func (BaseObserver) CompileFailed(error)                           {}
func (BaseObserver) SessionEnded(time.Time)                        {}

// SettledObserver is an optional Observer extension. EventSettled is called
// once an event and every action it caused have been applied, so the engine
// state it sees already reflects the event.
type SettledObserver interface {
	EventSettled(ev events.Event)
}
