// Package events dispatches named runtime events to handlers registered by
// blocks on the active chain.
package events

import (
	"time"
)

// Well-known event names.
const (
	// Tick is raised by the external clock source.
	Tick = "tick"

	// Next is an explicit "move forward" request from the user.
	Next = "next"

	// TimerComplete is emitted when a countdown timer reaches zero.
	TimerComplete = "timer:complete"

	// IntervalComplete is emitted when an interval sub-timer expires.
	IntervalComplete = "interval:complete"

	// RoundStart is emitted by a loop coordinator at each round boundary.
	RoundStart = "round:start"

	// Advance is delivered to a block that asked to advance itself.
	Advance = "block:advance"

	// ChildComplete is delivered to a block when the child above it completes.
	ChildComplete = "block:child-complete"

	// Stop cancels the session: the whole active chain is popped.
	Stop = "session:stop"
)

// Any matches every event name when used in Register.
const Any = "*"

// Event is a named occurrence delivered through the bus.
type Event struct {
	Name      string         `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"` // emitting block key; empty for external events
	Data      map[string]any `json:"data,omitempty"`
}

// New creates an external event.
func New(name string, ts time.Time) Event {
	return Event{Name: name, Timestamp: ts}
}
