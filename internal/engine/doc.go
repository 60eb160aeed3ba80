// Package engine implements the wodrt execution engine.
//
// A compiled workout is a stack of Blocks. Each Block is a vessel holding an
// ordered list of Behaviors, a memory context, and the ids of the statements
// it was compiled from. The engine drives the stack from external events
// (tick, next) and applies the Actions behaviors return.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All lifecycle dispatch happens on one goroutine. Run() takes external
// events from a FIFO inbox and hands each to Handle(). Enqueue() is safe from
// any goroutine (tickers, stdin readers, HTTP handlers).
//
// Lifecycle:
//  1. Push: the block's span is opened, then mount is dispatched to every
//     behavior in registration order.
//  2. Advance: the default handler advances the top block on tick and next.
//     Behaviors that must see events while not on top register as Listeners.
//  3. Pop: unmount is dispatched, the span is finalized and moved to history,
//     then the engine disposes the block and releases its memory context.
//
// Actions:
// Behaviors never mutate the stack. Hooks return Actions which the engine
// queues, tagged with their source block, and applies after the dispatch
// that produced them returns. An action whose source block has been popped
// is dropped. A self-starting behavior returns AdvanceAction from mount.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every execution record is stamped with a monotonic seq from Clock.Next().
// Wall-clock times come from the event being handled, never from time.Now()
// inside a hook, so replaying the same events reproduces the same history.
//
// Lazy Compilation:
// Loop coordinators hold statement-id groups only. Children are compiled at
// the moment they are pushed, so they read live memory state.
package engine
