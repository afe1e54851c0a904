package types

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusTimeout TestStatus = "timeout"
	TestStatusError   TestStatus = "error"
	// TestStatusNotRun marks selected tests that never started because the
	// suite halted first.
	TestStatusNotRun TestStatus = "not_run"
)

// TestSpec identifies a single selected test.
type TestSpec struct {
	Algorithm string // Algorithm the test is declared under
	File      string // Test file identifier as declared in the registry
	Stem      string // File name without directory and extension
}

// NewTestSpec derives a TestSpec from a registry entry.
func NewTestSpec(algorithm, file string) TestSpec {
	return TestSpec{
		Algorithm: algorithm,
		File:      file,
		Stem:      TestStem(file),
	}
}

// TestStem strips the directory and extension from a test file identifier,
// e.g. "gtest/aes_gcm_test.cc" becomes "aes_gcm_test".
func TestStem(file string) string {
	base := path.Base(filepath.ToSlash(file))
	return strings.TrimSuffix(base, path.Ext(base))
}

// CoverageArtifacts lists the files produced by the coverage pipeline for
// one test. Paths are relative to the build root.
type CoverageArtifacts struct {
	RawProfile    string
	Dir           string
	MergedProfile string
	LCOV          string
	HTMLDir       string
}

// TestOutcome captures the result of a single test execution
type TestOutcome struct {
	Test     TestSpec
	Binary   string // Resolved executable path
	Status   TestStatus
	ExitCode int
	Duration time.Duration
	Error    error
	TimedOut bool
	Output   string // Tail of the combined output, ANSI stripped, kept for failing tests
	// OutputTruncated is set when Output lost the beginning of the output.
	OutputTruncated bool
	LogPath  string // Full output on disk, if a file logger is configured

	Coverage *CoverageArtifacts // Set once the coverage pipeline completed
}

// Passed reports whether the test ran and exited successfully.
func (o *TestOutcome) Passed() bool {
	return o != nil && o.Status == TestStatusPass
}
