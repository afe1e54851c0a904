package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cryspen/mach-test/filter"
	"github.com/cryspen/mach-test/metrics"
	"github.com/cryspen/mach-test/types"
)

// CoverageReporter turns the raw profile of a passed test into coverage
// artifacts.
type CoverageReporter interface {
	Report(ctx context.Context, wc WorkingContext, outcome *types.TestOutcome) (*types.CoverageArtifacts, error)
}

// Aggregator runs the project-wide coverage step once all tests passed.
type Aggregator interface {
	Aggregate(ctx context.Context) error
}

// SuiteRunner runs the selected tests of a registry.
type SuiteRunner interface {
	// RunSuite returns the report of the run and, if the run failed, the
	// error that stopped it. The report is non-nil whenever the build
	// directory exists.
	RunSuite(ctx context.Context) (*SuiteReport, error)
}

// Config holds configuration for creating a new orchestrator
type Config struct {
	Registry        *types.TestRegistry
	Filter          *filter.Filter // nil selects everything
	UnmatchedPolicy filter.UnmatchedPolicy
	BuildDir        string   // Directory containing the test binaries
	TestDataDir     string   // Exported to tests as TEST_DIR
	Environ         []string // Ambient environment, defaults to os.Environ()
	Executor        TestExecutor
	Coverage        CoverageReporter // nil disables coverage
	Aggregator      Aggregator       // Only used when Coverage is set
	FailFast        bool
	Concurrency     int    // Tests run at once, values below 2 run sequentially
	RunID           string // Generated when empty
	Log             log.Logger
}

type orchestrator struct {
	registry    *types.TestRegistry
	filter      *filter.Filter
	policy      filter.UnmatchedPolicy
	buildDir    string
	testDataDir string
	environ     []string
	executor    TestExecutor
	coverage    CoverageReporter
	aggregator  Aggregator
	failFast    bool
	concurrency int
	runID       string
	log         log.Logger
	tracer      trace.Tracer
}

// NewOrchestrator creates a new suite runner
func NewOrchestrator(cfg Config) (SuiteRunner, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.BuildDir == "" {
		return nil, errors.New("build directory is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("test executor is required")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative: %d", cfg.Concurrency)
	}
	if cfg.UnmatchedPolicy == "" {
		cfg.UnmatchedPolicy = filter.UnmatchedIgnore
	}
	if !cfg.UnmatchedPolicy.IsValid() {
		return nil, fmt.Errorf("invalid unmatched filter policy %q", cfg.UnmatchedPolicy)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ()
	}
	if cfg.Concurrency > maxReasonableConcurrency {
		cfg.Log.Warn("Very high concurrency requested", "concurrency", cfg.Concurrency,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}

	cfg.Log.Debug("NewOrchestrator()", "buildDir", cfg.BuildDir, "testDataDir", cfg.TestDataDir,
		"filter", cfg.Filter.String(), "coverage", cfg.Coverage != nil, "failFast", cfg.FailFast,
		"concurrency", cfg.Concurrency)

	return &orchestrator{
		registry:    cfg.Registry,
		filter:      cfg.Filter,
		policy:      cfg.UnmatchedPolicy,
		buildDir:    cfg.BuildDir,
		testDataDir: cfg.TestDataDir,
		environ:     cfg.Environ,
		executor:    cfg.Executor,
		coverage:    cfg.Coverage,
		aggregator:  cfg.Aggregator,
		failFast:    cfg.FailFast,
		concurrency: cfg.Concurrency,
		runID:       cfg.RunID,
		log:         cfg.Log,
		tracer:      otel.Tracer("test orchestrator"),
	}, nil
}

// RunSuite implements SuiteRunner
func (o *orchestrator) RunSuite(ctx context.Context) (*SuiteReport, error) {
	if info, err := os.Stat(o.buildDir); err != nil || !info.IsDir() {
		return nil, &BuildMissingError{Dir: o.buildDir}
	}

	unmatched, err := o.filter.Check(o.registry, o.policy)
	if err != nil {
		return nil, err
	}
	if len(unmatched) > 0 && o.policy == filter.UnmatchedWarn {
		o.log.Warn("Filter tokens match no algorithm or test", "tokens", unmatched)
	}

	runID := o.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("suite %s", runID))
	defer span.End()

	selected := o.filter.Select(o.registry)
	wc := WorkingContext{
		BuildRoot: o.buildDir,
		Env:       SharedEnvironment(o.environ, o.testDataDir),
	}

	start := time.Now()
	report := &SuiteReport{
		RunID:  runID,
		Filter: o.filter.String(),
		Stats:  ResultStats{StartTime: start},
	}
	o.log.Info("Running tests", "run_id", runID, "selected", len(selected), "filter", report.Filter)

	var runErr error
	if o.concurrency > 1 && len(selected) > 1 {
		report.Outcomes, runErr = o.runParallel(ctx, wc, selected)
	} else {
		report.Outcomes, runErr = o.runSequential(ctx, wc, selected)
	}

	if runErr == nil && o.coverage != nil && o.aggregator != nil {
		if err := o.aggregate(ctx); err != nil {
			runErr = err
		} else {
			report.AggregateCoverage = true
		}
	}

	report.Duration = time.Since(start)
	report.Stats.EndTime = time.Now()
	report.updateStats()
	report.Status = determineSuiteStatus(report)
	metrics.RecordSuite(runID, string(report.Status), report.Stats.Total, report.Stats.Passed,
		report.Stats.Failed+report.Stats.TimedOut+report.Stats.Errored, report.Stats.NotRun, report.Duration)

	if runErr != nil {
		span.RecordError(runErr)
		o.log.Error("Test run failed", "run_id", runID, "err", runErr)
	}
	return report, runErr
}

// runSequential runs tests one at a time in registry order.
func (o *orchestrator) runSequential(ctx context.Context, wc WorkingContext, selected []types.TestSpec) ([]*types.TestOutcome, error) {
	outcomes := make([]*types.TestOutcome, len(selected))
	var failures []error
	for i, test := range selected {
		if err := ctx.Err(); err != nil {
			markNotRun(outcomes, selected)
			return outcomes, fmt.Errorf("test run interrupted: %w", err)
		}
		outcome, err := o.runTest(ctx, wc, test)
		outcomes[i] = outcome
		if err == nil {
			continue
		}
		if o.halts(err) {
			markNotRun(outcomes, selected)
			return outcomes, err
		}
		failures = append(failures, err)
	}
	return outcomes, suiteError(outcomes, failures)
}

// runTest executes one test and, if it passed, its coverage pipeline. The
// error is the first thing that went wrong for this test.
func (o *orchestrator) runTest(ctx context.Context, wc WorkingContext, test types.TestSpec) (*types.TestOutcome, error) {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("test %s", test.Stem))
	defer span.End()

	outcome, err := o.executor.Execute(ctx, wc, test)
	if outcome == nil {
		outcome = &types.TestOutcome{Test: test, Status: types.TestStatusError, Error: err}
	}
	if err != nil {
		span.RecordError(err)
		o.log.Error("Test failed", "test", test.Stem, "status", outcome.Status, "err", err)
		return outcome, err
	}
	o.log.Info("Test passed", "test", test.Stem, "duration", outcome.Duration)

	if o.coverage == nil {
		return outcome, nil
	}
	artifacts, err := o.coverage.Report(ctx, wc, outcome)
	if err != nil {
		span.RecordError(err)
		outcome.Error = err
		o.log.Error("Coverage report failed", "test", test.Stem, "err", err)
		return outcome, err
	}
	outcome.Coverage = artifacts
	return outcome, nil
}

func (o *orchestrator) aggregate(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "aggregate coverage")
	defer span.End()

	o.log.Info("Generating aggregate coverage report")
	if err := o.aggregator.Aggregate(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("aggregate coverage failed: %w", err)
	}
	return nil
}

// halts reports whether err stops the run under the configured policy.
func (o *orchestrator) halts(err error) bool {
	return o.failFast || IsAlwaysFatal(err)
}

// markNotRun fills the outcomes of tests that never started.
func markNotRun(outcomes []*types.TestOutcome, selected []types.TestSpec) {
	for i := range outcomes {
		if outcomes[i] == nil {
			outcomes[i] = &types.TestOutcome{Test: selected[i], Status: types.TestStatusNotRun}
		}
	}
}

// suiteError summarizes the failures of a run in continue mode.
func suiteError(outcomes []*types.TestOutcome, failures []error) error {
	if len(failures) == 0 {
		return nil
	}
	report := &SuiteReport{Outcomes: outcomes}
	return &SuiteFailedError{Failed: report.Failed(), Errs: failures}
}
