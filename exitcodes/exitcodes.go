// Package exitcodes defines the standard exit codes used by mach-test.
package exitcodes

// Exit code constants used by mach-test.
//
// * Success (0): every selected test passed and every requested report was produced
// * Failure (1): anything else, including a missing build, a missing test
// binary, an unknown language binding, a failing test or a failing coverage stage
const (
	Success = 0 // All tests pass
	Failure = 1 // Test failures and runtime errors
)
