package compiler

import (
	"errors"
	"fmt"
)

// Compilation error codes.
const (
	CodeEmptyInput       = "EMPTY_INPUT"
	CodeNoMatch          = "NO_MATCH"
	CodeUnknownStatement = "UNKNOWN_STATEMENT"
	CodeInvalidFragment  = "INVALID_FRAGMENT"
)

// CompilationError reports why a statement group produced no block.
type CompilationError struct {
	Code    string
	Group   []int64
	Message string
	Err     error
}

func (e *CompilationError) Error() string {
	if len(e.Group) > 0 {
		return fmt.Sprintf("[%s] group %v: %s", e.Code, e.Group, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// IsCompilationError returns true if err is or wraps a *CompilationError.
func IsCompilationError(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}

// ErrorCode returns the code of the *CompilationError in err's chain, or "".
func ErrorCode(err error) string {
	var ce *CompilationError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
