package api

import (
	"sync"
	"time"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
)

// Live caches the engine's latest snapshot for concurrent readers. The
// engine is single-threaded, so Live refreshes from inside engine callbacks
// and readers never touch the engine directly.
//
// Live implements engine.Observer and engine.SettledObserver. Call Bind once the engine exists and
// before it starts handling events.
type Live struct {
	engine.BaseObserver

	source func() engine.Snapshot

	mu   sync.RWMutex
	snap engine.Snapshot
}

// NewLive returns an unbound Live with an empty snapshot.
func NewLive() *Live {
	return &Live{}
}

// Bind sets the snapshot source and takes the first snapshot.
func (l *Live) Bind(source func() engine.Snapshot) {
	l.source = source
	l.refresh()
}

// Snapshot returns the latest cached snapshot.
func (l *Live) Snapshot() engine.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

// EventSettled refreshes after the event's effects are applied.
// EventHandled fires before dispatch and would cache the previous state.
func (l *Live) EventSettled(events.Event) { l.refresh() }

func (l *Live) SessionEnded(time.Time) { l.refresh() }

func (l *Live) refresh() {
	if l.source == nil {
		return
	}
	snap := l.source()
	l.mu.Lock()
	l.snap = snap
	l.mu.Unlock()
}
