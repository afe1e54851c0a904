package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/cryspen/mach-test/command"
	"github.com/cryspen/mach-test/metrics"
	"github.com/cryspen/mach-test/types"
)

var _ TestExecutor = (*testExecutor)(nil)

// TestExecutor runs a single test binary.
type TestExecutor interface {
	// Execute locates and runs the binary for test inside wc. The returned
	// outcome is never nil. The error is nil only if the test passed; it is a
	// *MissingBinaryError, *TestFailureError, *TestTimedOutError or the
	// cancellation cause of ctx otherwise.
	Execute(ctx context.Context, wc WorkingContext, test types.TestSpec) (*types.TestOutcome, error)
}

// ExecutorConfig configures a TestExecutor.
type ExecutorConfig struct {
	Runner    command.Runner
	Log       log.Logger
	GOOS      string        // Target platform for binary naming, defaults to runtime.GOOS
	Timeout   time.Duration // Per-test timeout, 0 disables it
	ExtraArgs []string      // Appended after the binary path
	Output    OutputSink    // Optional full-output sink
	Stream    io.Writer     // Optional live output, e.g. os.Stdout in verbose mode
}

type testExecutor struct {
	runner    command.Runner
	log       log.Logger
	goos      string
	timeout   time.Duration
	extraArgs []string
	output    OutputSink
	stream    io.Writer
}

// NewTestExecutor creates a new test executor
func NewTestExecutor(cfg ExecutorConfig) (TestExecutor, error) {
	if cfg.Runner == nil {
		return nil, errors.New("command runner cannot be nil")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative: %v", cfg.Timeout)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	return &testExecutor{
		runner:    cfg.Runner,
		log:       cfg.Log,
		goos:      cfg.GOOS,
		timeout:   cfg.Timeout,
		extraArgs: append([]string(nil), cfg.ExtraArgs...),
		output:    cfg.Output,
		stream:    cfg.Stream,
	}, nil
}

// Execute implements TestExecutor
func (e *testExecutor) Execute(ctx context.Context, wc WorkingContext, test types.TestSpec) (*types.TestOutcome, error) {
	outcome := &types.TestOutcome{Test: test, Status: types.TestStatusError}

	binary, err := Locator{BuildRoot: wc.BuildRoot, GOOS: e.goos}.Locate(test.Stem)
	if err != nil {
		outcome.Error = err
		return outcome, err
	}
	outcome.Binary = binary

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout+timeoutGrace)
		defer cancel()
	}

	tail := newTailBuffer(defaultOutputTailBytes)
	writers := []io.Writer{tail}
	if e.output != nil {
		logFile, path, err := e.output.OpenTestLog(test)
		if err != nil {
			e.log.Warn("Failed to open test log, output is only kept in memory", "test", test.Stem, "err", err)
		} else {
			defer logFile.Close()
			writers = append(writers, logFile)
			outcome.LogPath = path
		}
	}
	if e.stream != nil {
		writers = append(writers, e.stream)
	}
	out := lockedWriter{mu: new(sync.Mutex), w: io.MultiWriter(writers...)}

	cmd := &command.Cmd{
		Name:   binary,
		Args:   e.extraArgs,
		Dir:    wc.BuildRoot,
		Env:    wc.Env.ForTest(test.Stem).Environ(),
		Stdout: out,
		Stderr: out,
	}

	e.log.Info("Running test", "test", test.Stem, "algorithm", test.Algorithm)
	e.log.Debug("Running test command", "command", cmd.String(), "dir", cmd.Dir, "timeout", e.timeout)

	start := time.Now()
	runErr := e.runner.Run(runCtx, cmd)
	outcome.Duration = time.Since(start)

	err = e.classify(ctx, runCtx, outcome, runErr)
	if err != nil {
		outcome.Output = tail.String()
		outcome.OutputTruncated = tail.Truncated()
		outcome.Error = err
	}
	metrics.RecordTest(test.Algorithm, test.Stem, outcome.Status, outcome.Duration)
	return outcome, err
}

// classify turns the result of running the binary into a status and error.
func (e *testExecutor) classify(parent, runCtx context.Context, outcome *types.TestOutcome, runErr error) error {
	test := outcome.Test.Stem
	switch {
	case runErr == nil:
		outcome.Status = types.TestStatusPass
		return nil
	case parent.Err() != nil:
		// The whole run was cancelled, not just this test.
		outcome.Status = types.TestStatusError
		return fmt.Errorf("test %s interrupted: %w", test, parent.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		outcome.Status = types.TestStatusTimeout
		outcome.TimedOut = true
		return &TestTimedOutError{Test: test, Timeout: e.timeout}
	}

	outcome.Status = types.TestStatusFail
	if code, ok := command.ExitCode(runErr); ok {
		outcome.ExitCode = code
		return &TestFailureError{Test: test, ExitCode: code, Err: runErr}
	}
	outcome.ExitCode = -1
	return &TestFailureError{Test: test, ExitCode: -1, Err: runErr}
}
