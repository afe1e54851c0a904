package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It is re-executed as a child process
// by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	wd, _ := os.Getwd()
	fmt.Fprintf(os.Stdout, "cwd=%s\n", wd)
	fmt.Fprintf(os.Stdout, "marker=%s\n", os.Getenv("HELPER_MARKER"))
	fmt.Fprintln(os.Stderr, "to stderr")
	if d := os.Getenv("HELPER_SLEEP"); d != "" {
		dur, _ := time.ParseDuration(d)
		time.Sleep(dur)
	}
	code, _ := strconv.Atoi(os.Getenv("HELPER_EXIT"))
	os.Exit(code)
}

func helperCmd(dir string, env ...string) *Cmd {
	return &Cmd{
		Name: os.Args[0],
		Args: []string{"-test.run=^TestHelperProcess$"},
		Dir:  dir,
		Env:  append([]string{"GO_WANT_HELPER_PROCESS=1"}, env...),
	}
}

func TestExecRunner(t *testing.T) {
	r := NewExecRunner(log.NewLogger(log.DiscardHandler()))

	t.Run("passes env and dir", func(t *testing.T) {
		dir := t.TempDir()
		var stdout, stderr bytes.Buffer
		cmd := helperCmd(dir, "HELPER_MARKER=hello")
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		require.NoError(t, r.Run(context.Background(), cmd))
		assert.Contains(t, stdout.String(), "marker=hello")
		assert.Contains(t, stdout.String(), "cwd=")
		assert.Contains(t, stderr.String(), "to stderr")
	})

	t.Run("reports exit code", func(t *testing.T) {
		err := r.Run(context.Background(), helperCmd(t.TempDir(), "HELPER_EXIT=3"))
		require.Error(t, err)
		code, ok := ExitCode(err)
		require.True(t, ok)
		assert.Equal(t, 3, code)
	})

	t.Run("kills child on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := r.Run(ctx, helperCmd(t.TempDir(), "HELPER_SLEEP=10s"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("missing binary", func(t *testing.T) {
		err := r.Run(context.Background(), &Cmd{Name: "/nonexistent/binary"})
		require.Error(t, err)
		_, ok := ExitCode(err)
		assert.False(t, ok)
	})

	t.Run("empty name", func(t *testing.T) {
		require.Error(t, r.Run(context.Background(), &Cmd{}))
	})
}

func TestCmdString(t *testing.T) {
	c := &Cmd{Name: "llvm-profdata", Args: []string{"merge", "-sparse"}}
	assert.Equal(t, "llvm-profdata merge -sparse", c.String())
}
