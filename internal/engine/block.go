package engine

import (
	"slices"

	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/memory"
)

// Block is the executable unit compiled from one statement group.
//
// It holds no domain logic: it dispatches lifecycle points to its behaviors
// in registration order and collects the actions they return.
type Block struct {
	Key       string
	ParentKey string
	Type      string
	Label     string
	Sources   []int64

	behaviors []Behavior
	ctx       *memory.Context

	mounted  bool
	disposed bool
	failed   bool
	spans    []string // open span ids, block span first
}

// NewBlock assembles a block. ctx must be the memory context the strategy
// allocated the block's cells through.
func NewBlock(key, parentKey, typ, label string, sources []int64, ctx *memory.Context, behaviors ...Behavior) *Block {
	return &Block{
		Key:       key,
		ParentKey: parentKey,
		Type:      typ,
		Label:     label,
		Sources:   slices.Clone(sources),
		behaviors: behaviors,
		ctx:       ctx,
	}
}

// Context returns the block's memory context.
func (b *Block) Context() *memory.Context {
	return b.ctx
}

// Behaviors returns the behaviors in registration order.
func (b *Block) Behaviors() []Behavior {
	return slices.Clone(b.behaviors)
}

// Behavior returns the first behavior with the given name.
func (b *Block) Behavior(name string) (Behavior, bool) {
	for _, bh := range b.behaviors {
		if bh.Name() == name {
			return bh, true
		}
	}
	return nil, false
}

// MarkFailed flags the block so its span is finalized as failed.
func (b *Block) MarkFailed() {
	b.failed = true
}

// Failed reports whether MarkFailed was called.
func (b *Block) Failed() bool {
	return b.failed
}

// Mounted reports whether the block is currently mounted.
func (b *Block) Mounted() bool {
	return b.mounted
}

// SpanID returns the id of the block's own execution record, or "" before
// the block has been pushed.
func (b *Block) SpanID() string {
	if len(b.spans) == 0 {
		return ""
	}
	return b.spans[0]
}

// currentSpan returns the innermost open span, e.g. the current round.
func (b *Block) currentSpan() string {
	if len(b.spans) == 0 {
		return ""
	}
	return b.spans[len(b.spans)-1]
}

// Mount dispatches mount to every behavior.
func (b *Block) Mount(env Env) ([]Action, error) {
	b.mounted = true
	var out []Action
	for _, bh := range b.behaviors {
		m, ok := bh.(Mounter)
		if !ok {
			continue
		}
		acts, err := m.OnMount(b, env)
		if err != nil {
			return out, &LifecycleError{BlockKey: b.Key, Behavior: bh.Name(), Phase: "mount", Err: err}
		}
		out = append(out, acts...)
	}
	return out, nil
}

// Advance dispatches advance to every behavior. A block that is not mounted
// ignores the request.
func (b *Block) Advance(ev events.Event, env Env) ([]Action, error) {
	if !b.mounted {
		return nil, nil
	}
	var out []Action
	for _, bh := range b.behaviors {
		a, ok := bh.(Advancer)
		if !ok {
			continue
		}
		acts, err := a.OnAdvance(b, ev, env)
		if err != nil {
			return out, &LifecycleError{BlockKey: b.Key, Behavior: bh.Name(), Phase: "advance", Err: err}
		}
		out = append(out, acts...)
	}
	return out, nil
}

// Unmount dispatches unmount to every behavior. Every behavior runs even if
// an earlier one fails; the first error is returned.
func (b *Block) Unmount(env Env) ([]Action, error) {
	if !b.mounted {
		return nil, nil
	}
	b.mounted = false
	var out []Action
	var first error
	for _, bh := range b.behaviors {
		u, ok := bh.(Unmounter)
		if !ok {
			continue
		}
		acts, err := u.OnUnmount(b, env)
		if err != nil && first == nil {
			first = &LifecycleError{BlockKey: b.Key, Behavior: bh.Name(), Phase: "unmount", Err: err}
		}
		out = append(out, acts...)
	}
	return out, first
}

// Dispose dispatches dispose to every behavior. Idempotent.
//
// Dispose does not release memory: the caller releases Context() afterwards.
func (b *Block) Dispose(env Env) error {
	if b.disposed {
		return nil
	}
	b.disposed = true
	var first error
	for _, bh := range b.behaviors {
		d, ok := bh.(Disposer)
		if !ok {
			continue
		}
		if err := d.OnDispose(b, env); err != nil && first == nil {
			first = &LifecycleError{BlockKey: b.Key, Behavior: bh.Name(), Phase: "dispose", Err: err}
		}
	}
	return first
}

// listeners returns the behaviors that receive bus events.
func (b *Block) listeners() []Listener {
	var out []Listener
	for _, bh := range b.behaviors {
		if l, ok := bh.(Listener); ok {
			out = append(out, l)
		}
	}
	return out
}

// BlockInfo is a read-only description of a block for status output.
type BlockInfo struct {
	Key       string  `json:"key"`
	ParentKey string  `json:"parent_key,omitempty"`
	Type      string  `json:"type"`
	Label     string  `json:"label"`
	Sources   []int64 `json:"sources"`
	SpanID    string  `json:"span_id"`
}

// Info returns a snapshot description of the block.
func (b *Block) Info() BlockInfo {
	return BlockInfo{
		Key:       b.Key,
		ParentKey: b.ParentKey,
		Type:      b.Type,
		Label:     b.Label,
		Sources:   slices.Clone(b.Sources),
		SpanID:    b.SpanID(),
	}
}
