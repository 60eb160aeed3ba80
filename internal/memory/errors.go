package memory

import (
	"errors"
	"fmt"
)

// ErrStaleReference is matched by errors.Is for every *StaleReferenceError.
var ErrStaleReference = errors.New("stale memory reference")

// StaleReferenceError is returned by Get and Set on a released or never
// allocated reference.
type StaleReferenceError struct {
	Ref Reference
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("stale memory reference: %s", e.Ref)
}

// Is makes errors.Is(err, ErrStaleReference) match.
func (e *StaleReferenceError) Is(target error) bool {
	return target == ErrStaleReference
}

// TypeMismatchError is returned by the typed accessors when the stored value
// is not of the requested Go type.
type TypeMismatchError struct {
	Ref  Reference
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("memory cell %s holds %s, not %s", e.Ref, e.Got, e.Want)
}

// IsStaleReference returns true if err is or wraps a *StaleReferenceError.
func IsStaleReference(err error) bool {
	var se *StaleReferenceError
	return errors.As(err, &se)
}

// IsTypeMismatch returns true if err is or wraps a *TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}
