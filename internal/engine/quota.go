package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer bounds the number of actions applied while handling one
// event. A behavior that keeps returning AdvanceAction without ever pushing or
// completing would otherwise spin forever inside a single tick.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step count and returns *StepsExceededError once the
// limit is passed.
func (q *QuotaEnforcer) Check(event string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Event: event,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Reset sets the step count back to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the number of steps taken.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the configured limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when handling one event applies more
// actions than the engine's step limit.
type StepsExceededError struct {
	Event string
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("event %q exceeded max steps quota: %d steps > %d limit",
		e.Event, e.Steps, e.Limit)
}

// IsStepsExceeded returns true if err is or wraps a *StepsExceededError.
func IsStepsExceeded(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
