// Package commandtest provides a recording command.Runner for tests.
package commandtest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/cryspen/mach-test/command"
)

// Call is a snapshot of one command invocation.
type Call struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// ExitError simulates a process that exited with a nonzero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode implements the interface used by command.ExitCode.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Recorder records every command it is asked to run. Handler, if set, decides
// the result and may write to the command's Stdout/Stderr.
type Recorder struct {
	Handler func(ctx context.Context, cmd *command.Cmd) error

	mu    sync.Mutex
	calls []Call
}

var _ command.Runner = (*Recorder)(nil)

// Run implements command.Runner.
func (r *Recorder) Run(ctx context.Context, cmd *command.Cmd) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{
		Name: cmd.Name,
		Args: slices.Clone(cmd.Args),
		Dir:  cmd.Dir,
		Env:  slices.Clone(cmd.Env),
	})
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Handler != nil {
		return r.Handler(ctx, cmd)
	}
	return nil
}

// Calls returns a copy of the recorded invocations in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Names returns the program names of the recorded invocations in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		names = append(names, c.Name)
	}
	return names
}

// Lookup returns the value of key in a recorded environment.
func (c Call) Lookup(key string) (string, bool) {
	prefix := key + "="
	for _, kv := range c.Env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			return kv[len(prefix):], true
		}
	}
	return "", false
}
