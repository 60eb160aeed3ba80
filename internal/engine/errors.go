package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/wodrt/internal/memory"
)

// ErrReentrantDispatch is returned by Handle when it is called while another
// dispatch on the same engine is still in progress, e.g. from inside a
// behavior hook or a memory subscriber.
var ErrReentrantDispatch = errors.New("engine: reentrant dispatch")

// ErrNotStarted is returned by Handle before Start has succeeded.
var ErrNotStarted = errors.New("engine: session not started")

// MissingDependencyError reports that a behavior's required memory reference
// was never allocated. It is a programming error in the strategy that built
// the block and is raised at mount.
type MissingDependencyError struct {
	BlockKey string
	Behavior string
	Ref      string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("block %s: behavior %s requires memory reference %q, which was never allocated",
		e.BlockKey, e.Behavior, e.Ref)
}

// IsMissingDependency returns true if err is or wraps a *MissingDependencyError.
func IsMissingDependency(err error) bool {
	var me *MissingDependencyError
	return errors.As(err, &me)
}

// RequireRef returns *MissingDependencyError if ref is unallocated or has
// already been released. Behaviors call it from their mount hook.
func RequireRef(b *Block, env Env, behavior, name string, ref memory.Reference) error {
	if ref.IsZero() {
		return &MissingDependencyError{BlockKey: b.Key, Behavior: behavior, Ref: name}
	}
	if _, err := env.Memory().Get(ref); err != nil {
		return &MissingDependencyError{BlockKey: b.Key, Behavior: behavior, Ref: name}
	}
	return nil
}

// LifecycleError wraps a failure returned by a behavior hook.
type LifecycleError struct {
	BlockKey string
	Behavior string
	Phase    string // mount, advance, unmount, event, dispose
	Err      error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s %s (block=%s): %v", e.Behavior, e.Phase, e.BlockKey, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}
