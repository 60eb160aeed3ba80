package behavior

import (
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
)

// NextCompletes completes its block when the user signals next while the
// block is on top.
type NextCompletes struct{}

func (NextCompletes) Name() string { return "next-completes" }

func (NextCompletes) OnAdvance(b *engine.Block, ev events.Event, env engine.Env) ([]engine.Action, error) {
	if ev.Name != events.Next {
		return nil, nil
	}
	return []engine.Action{engine.CompleteAction{Reason: "next"}}, nil
}

// CompleteOnEvent completes its block when its own block emits Event, e.g. a
// countdown timer's expiry.
type CompleteOnEvent struct {
	Event string
}

func (c CompleteOnEvent) Name() string { return "complete-on-" + c.Event }

func (c CompleteOnEvent) Events() []string {
	return []string{c.Event}
}

func (c CompleteOnEvent) OnEvent(b *engine.Block, ev events.Event, env engine.Env) ([]engine.Action, error) {
	if ev.Source != b.Key {
		return nil, nil
	}
	return []engine.Action{engine.CompleteAction{Reason: c.Event}}, nil
}
