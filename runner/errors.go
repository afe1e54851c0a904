package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BuildMissingError is returned before any test runs when the build-output
// directory does not exist.
type BuildMissingError struct {
	Dir string
}

func (e *BuildMissingError) Error() string {
	return fmt.Sprintf("nothing is built: build directory %s does not exist, please build first", e.Dir)
}

// MissingBinaryError is returned when a selected test has no executable. It
// means the build is incomplete and always stops the run.
type MissingBinaryError struct {
	Test string
	Path string
}

func (e *MissingBinaryError) Error() string {
	return fmt.Sprintf("test %s does not exist at %s: running this test requires a build first", e.Test, e.Path)
}

// TestFailureError is returned when a test binary exits with a nonzero status
// or cannot be started.
type TestFailureError struct {
	Test     string
	ExitCode int
	Err      error
}

func (e *TestFailureError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("test %s failed with exit code %d", e.Test, e.ExitCode)
	}
	return fmt.Sprintf("test %s failed: %v", e.Test, e.Err)
}

func (e *TestFailureError) Unwrap() error {
	return e.Err
}

// TestTimedOutError is returned when a test exceeds the per-test timeout.
type TestTimedOutError struct {
	Test    string
	Timeout time.Duration
}

func (e *TestTimedOutError) Error() string {
	return fmt.Sprintf("test %s timed out after %v", e.Test, e.Timeout)
}

// SuiteFailedError summarizes a run in continue mode that had failures.
type SuiteFailedError struct {
	Failed []string
	Errs   []error
}

func (e *SuiteFailedError) Error() string {
	return fmt.Sprintf("%d test(s) failed: %s", len(e.Failed), strings.Join(e.Failed, ", "))
}

func (e *SuiteFailedError) Unwrap() []error {
	return e.Errs
}

// IsAlwaysFatal reports whether err stops the run under every failure policy.
func IsAlwaysFatal(err error) bool {
	var buildErr *BuildMissingError
	var binErr *MissingBinaryError
	return errors.As(err, &buildErr) ||
		errors.As(err, &binErr) ||
		errors.Is(err, context.Canceled)
}
