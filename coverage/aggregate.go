package coverage

import (
	"context"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/cryspen/mach-test/command"
	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/toolchain"
)

var _ runner.Aggregator = (*Aggregator)(nil)

// AggregatorConfig configures the project-wide coverage step.
type AggregatorConfig struct {
	Runner      command.Runner
	Script      string    // Defaults to toolchain.DefaultAggregateScript
	ProjectRoot string    // Working directory of the script
	Env         []string  // nil inherits the parent environment
	Output      io.Writer // Script output, discarded when nil
	Log         log.Logger
}

// Aggregator runs the coverage script that combines the per-test reports.
type Aggregator struct {
	runner      command.Runner
	script      string
	projectRoot string
	env         []string
	output      io.Writer
	log         log.Logger
}

func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Runner == nil {
		return nil, errors.New("command runner cannot be nil")
	}
	if cfg.ProjectRoot == "" {
		return nil, errors.New("project root is required")
	}
	if cfg.Script == "" {
		cfg.Script = toolchain.DefaultAggregateScript
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Aggregator{
		runner:      cfg.Runner,
		script:      cfg.Script,
		projectRoot: cfg.ProjectRoot,
		env:         cfg.Env,
		output:      cfg.Output,
		log:         cfg.Log,
	}, nil
}

// Aggregate implements runner.Aggregator.
func (a *Aggregator) Aggregate(ctx context.Context) error {
	a.log.Info("Running aggregate coverage script", "script", a.script, "dir", a.projectRoot)
	return a.runner.Run(ctx, &command.Cmd{
		Name:   a.script,
		Dir:    a.projectRoot,
		Env:    a.env,
		Stdout: a.output,
		Stderr: a.output,
	})
}
