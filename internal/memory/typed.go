package memory

import (
	"fmt"
)

// Ref is a Reference whose cell holds a T.
type Ref[T any] struct {
	Reference
}

// As converts an untyped reference, e.g. one returned by Search.
func As[T any](r Reference) Ref[T] {
	return Ref[T]{Reference: r}
}

// Allocate creates a typed cell in s.
func Allocate[T any](s *Store, typ, owner string, initial T, vis Visibility) Ref[T] {
	return Ref[T]{Reference: s.Allocate(typ, owner, initial, vis)}
}

// Own creates a typed cell owned by the context's block.
func Own[T any](c *Context, typ string, initial T, vis Visibility) Ref[T] {
	return Ref[T]{Reference: c.Allocate(typ, initial, vis)}
}

// Get returns the value of a typed cell.
// Returns *StaleReferenceError for released cells and *TypeMismatchError when
// the stored value is not a T.
func Get[T any](s *Store, ref Ref[T]) (T, error) {
	var zero T
	v, err := s.Get(ref.Reference)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Ref:  ref.Reference,
			Want: fmt.Sprintf("%T", zero),
			Got:  fmt.Sprintf("%T", v),
		}
	}
	return t, nil
}

// Set replaces the value of a typed cell.
func Set[T any](s *Store, ref Ref[T], value T) error {
	return s.Set(ref.Reference, value)
}

// Find returns the typed value of the last visible cell matching f.
// The last match is the most recently allocated, i.e. the nearest ancestor
// when several blocks on the chain publish the same type.
func Find[T any](s *Store, f Filter) (T, Ref[T], bool) {
	var zero T
	refs := s.Search(f)
	for i := len(refs) - 1; i >= 0; i-- {
		ref := As[T](refs[i])
		v, err := Get(s, ref)
		if err == nil {
			return v, ref, true
		}
	}
	return zero, Ref[T]{}, false
}
