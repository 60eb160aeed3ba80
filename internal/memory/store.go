package memory

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Reference identifies one memory cell. The zero Reference is unallocated.
type Reference struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	OwnerID    string     `json:"owner_id"`
	Visibility Visibility `json:"visibility"`
}

// IsZero reports whether the reference was never allocated.
func (r Reference) IsZero() bool {
	return r.ID == 0
}

func (r Reference) String() string {
	return fmt.Sprintf("%s#%d(owner=%s, %s)", r.Type, r.ID, r.OwnerID, r.Visibility)
}

// Filter selects cells in Search. Zero fields match anything.
type Filter struct {
	Type       string
	OwnerID    string
	Visibility Visibility

	// Requester is the block key performing the search. Visibility rules are
	// applied relative to it; empty means an external reader.
	Requester string
}

// Cell is a reference paired with its current value.
type Cell struct {
	Reference
	Value any `json:"value"`
}

type subscriber struct {
	id int
	fn func(Reference, any)
}

type cell struct {
	ref   Reference
	value any
	subs  []subscriber
}

// Store is an arena of typed, visibility-scoped cells.
//
// Thread-safety: all methods are safe for concurrent use. Subscribers are
// called after the store lock is released, on the goroutine calling Set.
type Store struct {
	mu      sync.RWMutex
	cells   map[int64]*cell
	order   []int64 // live ids in allocation order
	nextID  int64
	nextSub int
	lineage Lineage
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLineage installs the ancestry oracle used for inherited cells.
func WithLineage(l Lineage) Option {
	return func(s *Store) { s.lineage = l }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		cells:  make(map[int64]*cell),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLineage replaces the ancestry oracle.
func (s *Store) SetLineage(l Lineage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineage = l
}

// Allocate creates a cell and returns its reference.
// An empty visibility is treated as Private.
func (s *Store) Allocate(typ, owner string, initial any, vis Visibility) Reference {
	if vis == "" {
		vis = Private
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ref := Reference{ID: s.nextID, Type: typ, OwnerID: owner, Visibility: vis}
	s.cells[ref.ID] = &cell{ref: ref, value: initial}
	s.order = append(s.order, ref.ID)
	return ref
}

// Get returns the current value of a cell.
// Returns *StaleReferenceError if the cell was released.
func (s *Store) Get(ref Reference) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cells[ref.ID]
	if !ok {
		return nil, &StaleReferenceError{Ref: ref}
	}
	return c.value, nil
}

// Set replaces the value of a cell and notifies its subscribers.
// Returns *StaleReferenceError if the cell was released.
func (s *Store) Set(ref Reference, value any) error {
	s.mu.Lock()
	c, ok := s.cells[ref.ID]
	if !ok {
		s.mu.Unlock()
		return &StaleReferenceError{Ref: ref}
	}
	c.value = value
	subs := slices.Clone(c.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(c.ref, value)
	}
	return nil
}

// Search returns the references matching f, in allocation order.
func (s *Store) Search(f Filter) []Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Reference
	for _, id := range s.order {
		c := s.cells[id]
		if s.matches(c.ref, f) {
			out = append(out, c.ref)
		}
	}
	return out
}

// Cells returns matching cells with their values, in allocation order.
func (s *Store) Cells(f Filter) []Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Cell
	for _, id := range s.order {
		c := s.cells[id]
		if s.matches(c.ref, f) {
			out = append(out, Cell{Reference: c.ref, Value: c.value})
		}
	}
	return out
}

func (s *Store) matches(ref Reference, f Filter) bool {
	if f.Type != "" && ref.Type != f.Type {
		return false
	}
	if f.OwnerID != "" && ref.OwnerID != f.OwnerID {
		return false
	}
	if f.Visibility != "" && ref.Visibility != f.Visibility {
		return false
	}
	return visibleTo(ref, f.Requester, s.lineage)
}

// Release removes a cell and drops its subscribers. Idempotent.
func (s *Store) Release(ref Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cells[ref.ID]; !ok {
		return
	}
	delete(s.cells, ref.ID)
	s.order = slices.DeleteFunc(s.order, func(id int64) bool { return id == ref.ID })
}

// Subscribe registers fn to be called after every Set on ref.
// Returns an unsubscribe func, which is safe to call more than once.
func (s *Store) Subscribe(ref Reference, fn func(Reference, any)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cells[ref.ID]
	if !ok {
		return nil, &StaleReferenceError{Ref: ref}
	}
	s.nextSub++
	id := s.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.cells[ref.ID]; ok {
			c.subs = slices.DeleteFunc(c.subs, func(sub subscriber) bool { return sub.id == id })
		}
	}, nil
}

// Len returns the number of live cells.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// Context returns an allocation context for owner. Cells allocated through
// it are released together by Context.Release.
func (s *Store) Context(owner string) *Context {
	return &Context{store: s, owner: owner}
}
