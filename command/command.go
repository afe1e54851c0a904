// Package command wraps subprocess invocation behind a small interface so the
// test runner, the coverage pipeline and the language delegates share one way
// of starting processes, and tests can observe every invocation.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

// Cmd describes one subprocess invocation.
type Cmd struct {
	Name   string
	Args   []string
	Dir    string    // Working directory of the child, never the parent's
	Env    []string  // Full child environment; nil inherits the parent's
	Stdout io.Writer // nil discards
	Stderr io.Writer // nil discards
}

// String renders the command line for logging.
func (c *Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, cmd *Cmd) error
}

// exitCoder is implemented by *exec.ExitError and by fakes.
type exitCoder interface {
	ExitCode() int
}

// ExitCode extracts the exit status of a finished process from err.
// ok is false if err does not carry one (e.g. the binary could not start).
func ExitCode(err error) (code int, ok bool) {
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode(), true
	}
	return 0, false
}

var _ Runner = (*ExecRunner)(nil)

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Log log.Logger
	// WaitDelay bounds how long Run waits for output pipes after the
	// process was killed on context cancellation.
	WaitDelay time.Duration
}

// NewExecRunner returns an ExecRunner logging to logger.
func NewExecRunner(logger log.Logger) *ExecRunner {
	if logger == nil {
		logger = log.New()
	}
	return &ExecRunner{Log: logger, WaitDelay: 5 * time.Second}
}

// Run starts cmd and waits for it. The child is killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, c *Cmd) error {
	if c == nil || c.Name == "" {
		return errors.New("command name cannot be empty")
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		// Propagate the active trace to instrumented children.
		cmd.Env = telemetry.InstrumentEnvironment(ctx, c.Env)
	}
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.WaitDelay = r.WaitDelay

	r.Log.Debug("Running command", "command", c.String(), "dir", c.Dir)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", c.Name, errors.Join(ctxErr, err))
		}
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}
