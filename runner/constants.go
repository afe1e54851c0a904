package runner

import "time"

const (
	// TestDirEnvVar points test binaries at the shared test-data directory.
	TestDirEnvVar = "TEST_DIR"

	// ProfileEnvVar tells instrumented binaries where to write raw profile data.
	// Binaries built without instrumentation ignore it.
	ProfileEnvVar = "LLVM_PROFILE_FILE"

	// ProfileExt is the extension of raw profile files.
	ProfileExt = ".profraw"

	// WindowsExeSuffix is appended to test stems on Windows.
	WindowsExeSuffix = ".exe"

	// defaultOutputTailBytes is how much of a test's output is kept in memory
	// for the failure report.
	defaultOutputTailBytes = 64 * 1024

	// maxReasonableConcurrency triggers a warning when exceeded.
	maxReasonableConcurrency = 32

	// timeoutGrace is added to the per-test timeout before the child is killed
	// so that a binary's own timeout handling can report first.
	timeoutGrace = 200 * time.Millisecond
)
