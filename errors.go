package testtree

import (
	"errors"
	"fmt"
)

// RuntimeError marks a run that broke down before or outside of test
// execution: bad configuration, an unreadable plan file, an engine abort.
// It maps to exit code 2 so callers can tell infrastructure trouble apart
// from failing tests.
type RuntimeError struct {
	Err error
}

// NewRuntimeError wraps err as a RuntimeError.
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRuntimeError reports whether err is or wraps a RuntimeError.
func IsRuntimeError(err error) bool {
	var target *RuntimeError
	return errors.As(err, &target)
}

// TestFailureError marks a run that completed with failing tests. It maps to
// exit code 1.
type TestFailureError struct {
	Message string
}

// NewTestFailureError creates a TestFailureError with the given summary.
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// IsTestFailureError reports whether err is or wraps a TestFailureError.
func IsTestFailureError(err error) bool {
	var target *TestFailureError
	return errors.As(err, &target)
}
