package engine

import (
	"github.com/roach88/wodrt/internal/events"
)

// Behavior is a composable unit of lifecycle logic attached to a Block.
//
// A behavior implements any subset of Mounter, Advancer, Unmounter, Disposer
// and Listener. It keeps no state of its own beyond constructor-injected
// configuration and memory references: everything that changes lives in
// memory cells.
type Behavior interface {
	Name() string
}

// Mounter is called when the block is pushed.
type Mounter interface {
	OnMount(b *Block, env Env) ([]Action, error)
}

// Advancer is called when the block is asked to move forward: by the default
// handler on tick and next while the block is on top, by its own
// AdvanceAction, or when its child completes.
type Advancer interface {
	OnAdvance(b *Block, ev events.Event, env Env) ([]Action, error)
}

// Unmounter is called when the block is about to be popped. Only
// EmitMetricAction results are applied; everything else is dropped because
// the block is leaving the stack.
type Unmounter interface {
	OnUnmount(b *Block, env Env) ([]Action, error)
}

// Disposer is called once after the block has been popped, before its
// memory context is released.
type Disposer interface {
	OnDispose(b *Block, env Env) error
}

// Listener receives named events from the bus while its block is anywhere
// on the active chain, not only on top. Timers use it to count while their
// children run.
type Listener interface {
	Events() []string
	OnEvent(b *Block, ev events.Event, env Env) ([]Action, error)
}
