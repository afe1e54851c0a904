package machtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cryspen/mach-test/command"
	"github.com/cryspen/mach-test/coverage"
	"github.com/cryspen/mach-test/delegate"
	"github.com/cryspen/mach-test/filter"
	"github.com/cryspen/mach-test/logging"
	"github.com/cryspen/mach-test/metrics"
	"github.com/cryspen/mach-test/registry"
	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/service"
	"github.com/cryspen/mach-test/types"
)

// Suite runs the test binaries, or a language binding's tests, once. It
// implements the cliapp.Lifecycle interface.
type Suite struct {
	config           *Config
	version          string
	registry         *registry.Registry
	cmdRunner        command.Runner
	stdout           io.Writer
	stderr           io.Writer
	formatter        *ConsoleResultFormatter
	shutdownCallback func(error)

	running atomic.Bool
	mu      sync.Mutex
	report  *runner.SuiteReport
	runErr  error // Reported by Stop when the run is followed by serving
	server  *service.Service
}

func New(config *Config, version string, shutdownCallback func(error)) (*Suite, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("config.Log is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating test suite with config",
		"projectRoot", config.ProjectRoot,
		"config", config.ConfigFile,
		"buildDir", config.BuildDir,
		"filter", config.Filter.String(),
		"language", config.Language,
		"coverage", config.Coverage)

	s := &Suite{
		config:           config,
		version:          version,
		cmdRunner:        config.Runner,
		stdout:           config.Stdout,
		shutdownCallback: shutdownCallback,
	}
	if s.cmdRunner == nil {
		s.cmdRunner = command.NewExecRunner(config.Log)
	}
	s.stderr = config.Stdout
	if s.stdout == nil {
		s.stdout = os.Stdout
		s.stderr = os.Stderr
	}
	s.formatter = NewConsoleResultFormatter(config.Log, s.stdout)

	if config.Language == "" {
		reg, err := registry.NewRegistry(registry.Config{
			Log:        config.Log,
			ConfigFile: config.ConfigFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load test registry: %w", err)
		}
		s.registry = reg
	}
	return s, nil
}

// Start runs the tests. Unless a report server was requested, the
// application is asked to shut down once the run succeeded.
func (s *Suite) Start(ctx context.Context) error {
	s.running.Store(true)

	var err error
	if s.config.Language != "" {
		err = s.runLanguage(ctx)
	} else {
		err = s.runTests(ctx)
	}

	if s.config.ServeAddr != "" {
		if serveErr := s.serve(ctx); serveErr != nil {
			return errors.Join(err, serveErr)
		}
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
		s.config.Log.Info("Serving reports until interrupted", "addr", s.server.Addr())
		return nil
	}

	if err != nil {
		return err
	}
	go s.shutdownCallback(nil)
	return nil
}

// Stop shuts down the report server, if any, and returns the error of the
// run when the server kept the process alive after it.
func (s *Suite) Stop(ctx context.Context) error {
	if !s.running.Load() {
		s.config.Log.Debug("Suite already stopped, nothing to do")
		return nil
	}
	s.running.Store(false)

	s.mu.Lock()
	server, runErr := s.server, s.runErr
	s.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	return errors.Join(runErr, err)
}

func (s *Suite) Stopped() bool {
	return !s.running.Load()
}

// Report returns the report of the last run, or nil.
func (s *Suite) Report() *runner.SuiteReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

func (s *Suite) runLanguage(ctx context.Context) error {
	d, err := delegate.New(delegate.Config{
		Runner:      s.cmdRunner,
		Languages:   s.config.Toolchain.Languages,
		ProjectRoot: s.config.ProjectRoot,
		Environ:     s.config.Environ,
		Stdout:      s.stdout,
		Stderr:      s.stderr,
		Log:         s.config.Log,
	})
	if err != nil {
		return NewRuntimeError(err)
	}
	if err := d.Run(ctx, s.config.Language); err != nil {
		var unknown *delegate.UnknownLanguageError
		if errors.As(err, &unknown) {
			return NewRuntimeError(err)
		}
		return NewTestFailureError(err)
	}
	return nil
}

func (s *Suite) runTests(ctx context.Context) error {
	cfg := s.config
	runID := uuid.New().String()

	var fileLogger *logging.FileLogger
	var sink runner.OutputSink
	if cfg.LogDir != "" {
		var err error
		fileLogger, err = logging.NewFileLogger(cfg.LogDir, runID)
		if err != nil {
			return NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
		}
		sink = fileLogger
	}

	var stream io.Writer
	if cfg.Verbose {
		stream = s.stdout
	}

	executor, err := runner.NewTestExecutor(runner.ExecutorConfig{
		Runner:    s.cmdRunner,
		Log:       cfg.Log,
		Timeout:   cfg.Timeout,
		ExtraArgs: cfg.TestArgs,
		Output:    sink,
		Stream:    stream,
	})
	if err != nil {
		return NewRuntimeError(err)
	}

	orchCfg := runner.Config{
		Registry:        s.registry.Tests(),
		Filter:          cfg.Filter,
		UnmatchedPolicy: cfg.UnmatchedPolicy,
		BuildDir:        cfg.BuildDir,
		TestDataDir:     cfg.TestDataDir,
		Environ:         cfg.Environ,
		Executor:        executor,
		FailFast:        cfg.FailFast,
		Concurrency:     cfg.Concurrency,
		RunID:           runID,
		Log:             cfg.Log,
	}
	if cfg.Coverage {
		reporter, err := coverage.NewReporter(coverage.Config{
			Runner: s.cmdRunner,
			Tools:  cfg.Toolchain.Coverage,
			Log:    cfg.Log,
		})
		if err != nil {
			return NewRuntimeError(err)
		}
		aggregator, err := coverage.NewAggregator(coverage.AggregatorConfig{
			Runner:      s.cmdRunner,
			Script:      cfg.Toolchain.Coverage.AggregateScript,
			ProjectRoot: cfg.ProjectRoot,
			Env:         cfg.Environ,
			Output:      stream,
			Log:         cfg.Log,
		})
		if err != nil {
			return NewRuntimeError(err)
		}
		orchCfg.Coverage = reporter
		orchCfg.Aggregator = aggregator
	}

	orchestrator, err := runner.NewOrchestrator(orchCfg)
	if err != nil {
		return NewRuntimeError(err)
	}

	report, runErr := orchestrator.RunSuite(ctx)
	if report != nil {
		s.mu.Lock()
		s.report = report
		s.mu.Unlock()
		s.publish(report, fileLogger)
	}
	if runErr != nil {
		metrics.RecordErrorDetails("run", runErr)
		if isSetupError(runErr) {
			return NewRuntimeError(runErr)
		}
		return NewTestFailureError(runErr)
	}
	return nil
}

// publish prints the results and writes the optional log and metrics files.
// Failures here are logged but do not fail the run.
func (s *Suite) publish(report *runner.SuiteReport, fileLogger *logging.FileLogger) {
	cfg := s.config
	if err := s.formatter.FormatResults(report); err != nil {
		cfg.Log.Error("Failed to print results", "err", err)
	}

	if fileLogger != nil {
		if err := fileLogger.LogReport(report, s.formatter.Summary(report)); err != nil {
			cfg.Log.Error("Failed to write test logs", "err", err)
		} else if err := fileLogger.Complete(); err != nil {
			cfg.Log.Warn("Failed to clean up test logs", "err", err)
		}
		cfg.Log.Info("Test logs written", "dir", fileLogger.GetBaseDir())
	}

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			cfg.Log.Error("Failed to write metrics", "err", err)
		}
	}

	for _, o := range report.Outcomes {
		if o.Status == types.TestStatusNotRun || (o.Passed() && o.Error == nil) {
			continue
		}
		if o.Output != "" && !cfg.Verbose {
			cfg.Log.Info("Output of failed test", "test", o.Test.Stem, "log", o.LogPath)
			fmt.Fprintf(s.stdout, "--- %s ---\n%s\n", o.Test.Stem, o.Output)
			if o.OutputTruncated {
				fmt.Fprintln(s.stdout, truncationNote(o))
			}
		}
	}
}

func (s *Suite) serve(ctx context.Context) error {
	server := service.New(service.Config{
		Addr:        s.config.ServeAddr,
		CoverageDir: filepath.Join(s.config.BuildDir, coverage.RootDir),
		Log:         s.config.Log,
	})
	if err := server.Start(ctx); err != nil {
		return NewRuntimeError(err)
	}
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()
	return nil
}

func truncationNote(o *types.TestOutcome) string {
	if o.LogPath == "" {
		return "(output truncated, run with --logdir to keep the full output)"
	}
	return fmt.Sprintf("(output truncated, see %s)", o.LogPath)
}

// isSetupError reports whether err means the tests could not be run at all,
// rather than that a test failed.
func isSetupError(err error) bool {
	var buildErr *runner.BuildMissingError
	var binErr *runner.MissingBinaryError
	var filterErr *filter.UnmatchedTokensError
	return errors.As(err, &buildErr) || errors.As(err, &binErr) || errors.As(err, &filterErr) ||
		errors.Is(err, context.Canceled)
}
