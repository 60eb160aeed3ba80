package engine

import (
	"slices"
	"sync"
)

// Stack holds the active chain of blocks, bottom first.
//
// Push and Pop dispatch mount and unmount. Dispose and memory release are the
// caller's job after Pop: call Block.Dispose, then Block.Context().Release().
//
// Thread-safety: reads are safe from any goroutine. Push and Pop are called
// by the engine's single writer.
type Stack struct {
	mu     sync.RWMutex
	blocks []*Block
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push appends b and dispatches mount. The block stays on the stack even if
// mount fails; the error is returned with any actions gathered before it.
func (s *Stack) Push(b *Block, env Env) ([]Action, error) {
	s.mu.Lock()
	s.blocks = append(s.blocks, b)
	s.mu.Unlock()

	return b.Mount(env)
}

// Pop removes the top block, dispatches unmount and returns the block with
// the actions unmount produced. Pop on an empty stack returns nil.
func (s *Stack) Pop(env Env) (*Block, []Action, error) {
	s.mu.Lock()
	if len(s.blocks) == 0 {
		s.mu.Unlock()
		return nil, nil, nil
	}
	b := s.blocks[len(s.blocks)-1]
	s.blocks[len(s.blocks)-1] = nil
	s.blocks = s.blocks[:len(s.blocks)-1]
	s.mu.Unlock()

	acts, err := b.Unmount(env)
	return b, acts, err
}

// Top returns the top block, or nil.
func (s *Stack) Top() *Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1]
}

// Depth returns the number of blocks on the stack.
func (s *Stack) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Blocks returns the chain bottom first.
func (s *Stack) Blocks() []*Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.blocks)
}

// Contains reports whether b is on the stack.
func (s *Stack) Contains(b *Block) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.blocks, b)
}

// ContainsKey reports whether a block with the given key is on the stack.
func (s *Stack) ContainsKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.blocks, func(b *Block) bool { return b.Key == key })
}

// Parent returns the block directly below b, or nil.
func (s *Stack) Parent(b *Block) *Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.Index(s.blocks, b)
	if i <= 0 {
		return nil
	}
	return s.blocks[i-1]
}
