package machtest

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error setting up or running the harness itself,
// as opposed to a test that failed. Examples include configuration errors and
// an unreadable registry.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError wraps the error that stopped a test run.
type TestFailureError struct {
	Err error
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %v", e.Err)
}

func (e *TestFailureError) Unwrap() error {
	return e.Err
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(err error) *TestFailureError {
	return &TestFailureError{Err: err}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
