package events

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Handler reacts to an event and returns results for the dispatcher,
// typically runtime actions.
type Handler[R any] func(Event) ([]R, error)

// HandlerError wraps a failure of one handler. Dispatch isolates these: the
// remaining handlers still run.
type HandlerError struct {
	Event   string
	Owner   string
	Handler int64
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("event %q handler %d (owner=%s): %v", e.Event, e.Handler, e.Owner, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsHandlerError returns true if err is or wraps a *HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}

type registration[R any] struct {
	id      int64
	owner   string
	name    string
	handler Handler[R]
}

// Bus dispatches events to registered handlers in registration order.
//
// Thread-safety: Register/Unregister/RemoveOwner are safe from any goroutine.
// Handlers are invoked without the bus lock held, so a handler may register
// or remove handlers; changes take effect on the next Dispatch.
type Bus[R any] struct {
	mu      sync.Mutex
	regs    []registration[R]
	nextID  int64
	logger  *slog.Logger
	onError func(*HandlerError)
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	onError func(*HandlerError)
}

// WithLogger sets the logger used for handler failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithErrorHook is called for every isolated handler failure, after logging.
func WithErrorHook(fn func(*HandlerError)) Option {
	return func(o *options) { o.onError = fn }
}

// NewBus creates an empty bus.
func NewBus[R any](opts ...Option) *Bus[R] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bus[R]{logger: o.logger, onError: o.onError}
}

// Register adds a handler for name (or Any) owned by owner and returns its id.
// An empty owner marks a handler that is always in scope.
func (b *Bus[R]) Register(owner, name string, h Handler[R]) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.regs = append(b.regs, registration[R]{id: b.nextID, owner: owner, name: name, handler: h})
	return b.nextID
}

// Unregister removes one handler. Unknown ids are ignored.
func (b *Bus[R]) Unregister(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs = slices.DeleteFunc(b.regs, func(r registration[R]) bool { return r.id == id })
}

// RemoveOwner removes every handler registered by owner and returns how many
// were removed.
func (b *Bus[R]) RemoveOwner(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.regs)
	b.regs = slices.DeleteFunc(b.regs, func(r registration[R]) bool { return r.owner == owner })
	return before - len(b.regs)
}

// Len returns the number of registered handlers.
func (b *Bus[R]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.regs)
}

// Dispatch delivers ev to every matching handler whose owner is in scope, in
// registration order, and concatenates their results.
//
// inScope decides whether a handler's owner is on the active chain; nil
// means every owner is. Owner "" is always in scope.
//
// A failing or panicking handler is logged and reported in the returned
// slice of *HandlerError; it never prevents later handlers from running.
func (b *Bus[R]) Dispatch(ev Event, inScope func(owner string) bool) ([]R, []error) {
	b.mu.Lock()
	regs := slices.Clone(b.regs)
	b.mu.Unlock()

	var results []R
	var errs []error
	for _, r := range regs {
		if r.name != ev.Name && r.name != Any {
			continue
		}
		if r.owner != "" && inScope != nil && !inScope(r.owner) {
			continue
		}

		out, err := b.invoke(r, ev)
		if err != nil {
			he := &HandlerError{Event: ev.Name, Owner: r.owner, Handler: r.id, Err: err}
			b.logger.Warn("event handler failed",
				"event", ev.Name,
				"owner", r.owner,
				"handler_id", r.id,
				"error", err)
			if b.onError != nil {
				b.onError(he)
			}
			errs = append(errs, he)
			continue
		}
		results = append(results, out...)
	}
	return results, errs
}

func (b *Bus[R]) invoke(r registration[R], ev Event) (out []R, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.handler(ev)
}
