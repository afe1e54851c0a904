// Package runner selects tests from the registry and executes the compiled
// test binaries.
//
// The main components are:
//   - Locator: resolves a test stem to the platform specific executable in the build directory
//   - Environment / WorkingContext: the explicit environment and working directory handed to every child process
//   - TestExecutor: runs one test binary and turns its exit status into a types.TestOutcome
//   - Orchestrator: walks the registry in declaration order, applies the filter, runs tests
//     (sequentially or over a bounded worker pool), invokes the coverage reporter and the
//     final aggregate step, and applies the fail-fast or continue policy
//
// Nothing in this package changes the process working directory or environment.
package runner
