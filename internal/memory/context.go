package memory

import (
	"sync"
)

// Context is the memory context of one block: every cell it allocates is
// owned by the block and released together.
//
// Teardown is the caller's job, in two explicit steps: dispose the block,
// then Release its context.
type Context struct {
	store *Store
	owner string

	mu       sync.Mutex
	refs     []Reference
	released bool
}

// Owner returns the owning block key.
func (c *Context) Owner() string {
	return c.owner
}

// Store returns the backing store.
func (c *Context) Store() *Store {
	return c.store
}

// Allocate creates a cell owned by this context's block.
func (c *Context) Allocate(typ string, initial any, vis Visibility) Reference {
	ref := c.store.Allocate(typ, c.owner, initial, vis)
	c.mu.Lock()
	c.refs = append(c.refs, ref)
	c.mu.Unlock()
	return ref
}

// References returns the cells allocated through this context since the
// last Release.
func (c *Context) References() []Reference {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Reference, len(c.refs))
	copy(out, c.refs)
	return out
}

// Release releases every cell allocated through this context. Idempotent.
func (c *Context) Release() {
	c.mu.Lock()
	refs := c.refs
	c.refs = nil
	already := c.released
	c.released = true
	c.mu.Unlock()

	if already && len(refs) == 0 {
		return
	}
	for _, ref := range refs {
		c.store.Release(ref)
	}
	c.store.logger.Debug("memory context released",
		"owner", c.owner,
		"cells", len(refs))
}

// Released reports whether Release has been called.
func (c *Context) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
