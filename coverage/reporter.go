package coverage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cryspen/mach-test/command"
	"github.com/cryspen/mach-test/metrics"
	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/toolchain"
	"github.com/cryspen/mach-test/types"
)

var _ runner.CoverageReporter = (*Reporter)(nil)

// Config holds configuration for creating a new Reporter
type Config struct {
	Runner command.Runner
	Tools  toolchain.CoverageConfig
	Log    log.Logger
}

// Reporter runs the coverage pipeline for one test at a time. It keeps no
// state between calls, so it is safe to use from several goroutines.
type Reporter struct {
	runner       command.Runner
	tools        toolchain.CoverageConfig
	stageTimeout time.Duration
	log          log.Logger
	tracer       trace.Tracer
}

// NewReporter creates a new coverage reporter
func NewReporter(cfg Config) (*Reporter, error) {
	if cfg.Runner == nil {
		return nil, errors.New("command runner cannot be nil")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	tools := cfg.Tools
	defaults := toolchain.Default().Coverage
	if tools.Profdata == "" {
		tools.Profdata = defaults.Profdata
	}
	if tools.Cov == "" {
		tools.Cov = defaults.Cov
	}
	if tools.Genhtml == "" {
		tools.Genhtml = defaults.Genhtml
	}
	if tools.SourceDir == "" {
		tools.SourceDir = defaults.SourceDir
	}
	return &Reporter{
		runner:       cfg.Runner,
		tools:        tools,
		stageTimeout: time.Duration(tools.StageTimeout),
		log:          cfg.Log.New("component", "coverage"),
		tracer:       otel.Tracer("coverage"),
	}, nil
}

// Report runs every stage for the test of outcome, which must have passed.
// It returns the produced artifacts, or a *StageFailedError naming the first
// stage that failed.
func (r *Reporter) Report(ctx context.Context, wc runner.WorkingContext, outcome *types.TestOutcome) (*types.CoverageArtifacts, error) {
	if !outcome.Passed() {
		return nil, fmt.Errorf("no coverage for test %s: it did not pass", outcome.Test.Stem)
	}
	stem := outcome.Test.Stem
	artifacts := Artifacts(stem)

	binary := outcome.Binary
	if binary == "" {
		binary = runner.NewLocator(wc.BuildRoot).Path(stem)
	}

	run := map[Stage]func(context.Context) (string, error){
		StagePrepare: func(context.Context) (string, error) {
			return "", r.prepare(wc, artifacts)
		},
		StageMerge: func(ctx context.Context) (string, error) {
			return r.merge(ctx, wc, artifacts)
		},
		StageExport: func(ctx context.Context) (string, error) {
			return r.export(ctx, wc, artifacts, binary)
		},
		StageRender: func(ctx context.Context) (string, error) {
			return r.render(ctx, wc, artifacts)
		},
	}

	r.log.Info("Generating coverage report", "test", stem, "dir", artifacts.Dir)
	for _, stage := range Stages {
		if err := r.runStage(ctx, stem, stage, run[stage]); err != nil {
			return nil, err
		}
	}
	r.log.Debug("Coverage report generated", "test", stem, "html", artifacts.HTMLDir)
	return artifacts, nil
}

func (r *Reporter) runStage(ctx context.Context, stem string, stage Stage, run func(context.Context) (string, error)) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("coverage %s %s", stage, stem))
	defer span.End()

	if r.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		defer cancel()
	}

	output, err := run(ctx)
	metrics.RecordCoverageStage(string(stage), err)
	if err != nil {
		span.RecordError(err)
		return &StageFailedError{Test: stem, Stage: stage, Err: err, Output: output}
	}
	return nil
}

// prepare creates the per-test output tree. It is idempotent.
func (r *Reporter) prepare(wc runner.WorkingContext, a *types.CoverageArtifacts) error {
	return os.MkdirAll(filepath.Join(wc.BuildRoot, a.HTMLDir), 0755)
}

func (r *Reporter) merge(ctx context.Context, wc runner.WorkingContext, a *types.CoverageArtifacts) (string, error) {
	raw := filepath.Join(wc.BuildRoot, a.RawProfile)
	if _, err := os.Stat(raw); err != nil {
		return "", fmt.Errorf("raw profile %s not found, was the test built with coverage instrumentation?", raw)
	}
	return r.run(ctx, wc, nil, r.tools.Profdata,
		"merge", "-sparse", a.RawProfile, "-o", a.MergedProfile)
}

func (r *Reporter) export(ctx context.Context, wc runner.WorkingContext, a *types.CoverageArtifacts, binary string) (string, error) {
	lcovPath := filepath.Join(wc.BuildRoot, a.LCOV)
	f, err := os.Create(lcovPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", lcovPath, err)
	}

	args := []string{"export", "-format", "lcov", "--instr-profile", a.MergedProfile}
	if r.tools.IgnoreFilenameRegex != "" {
		args = append(args, "-ignore-filename-regex", r.tools.IgnoreFilenameRegex)
	}
	args = append(args, binary, r.tools.SourceDir)

	output, err := r.run(ctx, wc, f, r.tools.Cov, args...)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to write %s: %w", lcovPath, closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(lcovPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			r.log.Warn("Failed to remove partial lcov export", "path", lcovPath, "err", rmErr)
		}
		return output, err
	}
	return output, nil
}

func (r *Reporter) render(ctx context.Context, wc runner.WorkingContext, a *types.CoverageArtifacts) (string, error) {
	return r.run(ctx, wc, nil, r.tools.Genhtml, a.LCOV, "-o", a.HTMLDir)
}

// run invokes a tool in the build root. Diagnostics go to the debug log and
// are returned for the error report.
func (r *Reporter) run(ctx context.Context, wc runner.WorkingContext, stdout *os.File, name string, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := &command.Cmd{
		Name:   name,
		Args:   args,
		Dir:    wc.BuildRoot,
		Env:    wc.Env.Environ(),
		Stderr: &stderr,
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	err := r.runner.Run(ctx, cmd)
	output := strings.TrimSpace(stripansi.Strip(stderr.String()))
	if output != "" {
		r.log.Debug("Coverage tool output", "tool", name, "output", output)
	}
	return output, err
}
