// Package delegate runs the test suites of the language bindings. Those
// suites ignore the test registry and the algorithm filter: each binding is
// tested by its own toolchain, as configured in toolchain.Config.Languages.
package delegate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/cryspen/mach-test/command"
	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/toolchain"
)

// UnknownLanguageError is returned for a language without a configured
// test command.
type UnknownLanguageError struct {
	Language string
	Known    []string
}

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("unknown language binding %q, supported bindings: %s", e.Language, strings.Join(e.Known, ", "))
}

// FailedError is returned when a binding's test command fails.
type FailedError struct {
	Language string
	Err      error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%s binding tests failed: %v", e.Language, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

type Config struct {
	Runner      command.Runner
	Languages   map[string]toolchain.LanguageConfig
	ProjectRoot string
	Environ     []string // Ambient environment, defaults to os.Environ()
	Stdout      io.Writer
	Stderr      io.Writer
	Log         log.Logger
}

// Delegates runs language-binding test commands.
type Delegates struct {
	runner      command.Runner
	languages   map[string]toolchain.LanguageConfig
	projectRoot string
	environ     []string
	stdout      io.Writer
	stderr      io.Writer
	log         log.Logger
}

func New(cfg Config) (*Delegates, error) {
	if cfg.Runner == nil {
		return nil, errors.New("command runner cannot be nil")
	}
	if cfg.ProjectRoot == "" {
		return nil, errors.New("project root is required")
	}
	if cfg.Languages == nil {
		cfg.Languages = toolchain.Default().Languages
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Delegates{
		runner:      cfg.Runner,
		languages:   maps.Clone(cfg.Languages),
		projectRoot: cfg.ProjectRoot,
		environ:     cfg.Environ,
		stdout:      cfg.Stdout,
		stderr:      cfg.Stderr,
		log:         cfg.Log,
	}, nil
}

// Languages returns the supported language names, sorted.
func (d *Delegates) Languages() []string {
	return slices.Sorted(maps.Keys(d.languages))
}

// Run runs the test command of language.
func (d *Delegates) Run(ctx context.Context, language string) error {
	lang, ok := d.languages[language]
	if !ok {
		return &UnknownLanguageError{Language: language, Known: d.Languages()}
	}
	if len(lang.Command) == 0 {
		return fmt.Errorf("no test command configured for %s", language)
	}

	env := runner.NewEnvironment(d.environ)
	for _, k := range slices.Sorted(maps.Keys(lang.Env)) {
		env = env.With(k, lang.Env[k])
	}

	dir := d.projectRoot
	if lang.Dir != "" {
		dir = filepath.Join(d.projectRoot, lang.Dir)
	}

	cmd := &command.Cmd{
		Name:   lang.Command[0],
		Args:   lang.Command[1:],
		Dir:    dir,
		Env:    env.Environ(),
		Stdout: d.stdout,
		Stderr: d.stderr,
	}
	d.log.Info("Running language binding tests", "language", language, "command", cmd.String(), "dir", dir)
	if err := d.runner.Run(ctx, cmd); err != nil {
		return &FailedError{Language: language, Err: err}
	}
	d.log.Info("Language binding tests passed", "language", language)
	return nil
}
