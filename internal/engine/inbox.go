package engine

import (
	"sync"

	"github.com/roach88/wodrt/internal/events"
)

// inbox buffers events submitted from other goroutines until the Run loop
// takes them. It is unbounded; input arrives at human speed.
type inbox struct {
	mu     sync.Mutex
	buf    []events.Event
	head   int
	closed bool

	// ready holds at most one token: "something changed". It is closed
	// together with the inbox.
	ready chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

// put appends ev. It reports false once the inbox is closed.
func (in *inbox) put(ev events.Event) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return false
	}
	in.buf = append(in.buf, ev)
	select {
	case in.ready <- struct{}{}:
	default:
	}
	return true
}

// take removes the oldest event.
func (in *inbox) take() (events.Event, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.head == len(in.buf) {
		return events.Event{}, false
	}
	ev := in.buf[in.head]
	in.buf[in.head] = events.Event{}
	in.head++
	if in.head == len(in.buf) {
		// Drained: reuse the backing array from the start.
		in.buf, in.head = in.buf[:0], 0
	}
	return ev, true
}

func (in *inbox) len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.buf) - in.head
}

// close rejects further puts and wakes the reader. Safe to call twice.
func (in *inbox) close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.closed {
		in.closed = true
		close(in.ready)
	}
}
