package machtest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/cryspen/mach-test/command"
	"github.com/cryspen/mach-test/filter"
	"github.com/cryspen/mach-test/flags"
	"github.com/cryspen/mach-test/toolchain"
)

// Config holds the application configuration
type Config struct {
	ProjectRoot     string // Absolute; every relative path below is resolved against it
	ConfigFile      string // Test registry
	BuildDir        string
	TestDataDir     string
	Filter          *filter.Filter
	Language        string // When set, only the language binding's tests run
	Coverage        bool
	Verbose         bool // Stream test output to Stdout
	TestArgs        []string
	Timeout         time.Duration // Per test binary, 0 disables it
	FailFast        bool
	Concurrency     int
	UnmatchedPolicy filter.UnmatchedPolicy
	Toolchain       toolchain.Config
	LogDir          string // Empty disables per-test log files
	MetricsTextfile string
	ServeAddr       string
	Log             log.Logger

	// Overridable for tests.
	Runner  command.Runner // Defaults to a command.ExecRunner
	Stdout  io.Writer      // Defaults to os.Stdout
	Environ []string       // Defaults to os.Environ()
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	projectRoot := ctx.String(flags.ProjectRoot.Name)
	if projectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		projectRoot = wd
	}
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for project root '%s': %w", projectRoot, err)
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(projectRoot, p)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}
	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative: %v", timeout)
	}
	policy := filter.UnmatchedPolicy(ctx.String(flags.UnmatchedFilter.Name))
	if !policy.IsValid() {
		return nil, fmt.Errorf("invalid unmatched filter policy %q, must be one of %v", policy, filter.UnmatchedPolicies)
	}

	toolchainFile := resolve(ctx.String(flags.Toolchain.Name))
	tools, err := toolchain.Load(log, toolchainFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectRoot:     projectRoot,
		ConfigFile:      resolve(ctx.String(flags.ConfigFile.Name)),
		BuildDir:        resolve(ctx.String(flags.BuildDir.Name)),
		TestDataDir:     resolve(ctx.String(flags.TestDir.Name)),
		Filter:          filter.Parse(ctx.String(flags.Algorithms.Name)),
		Language:        ctx.String(flags.Language.Name),
		Coverage:        ctx.Bool(flags.Coverage.Name),
		Verbose:         ctx.Bool(flags.Verbose.Name),
		TestArgs:        ctx.StringSlice(flags.TestArgs.Name),
		Timeout:         timeout,
		FailFast:        ctx.Bool(flags.FailFast.Name),
		Concurrency:     concurrency,
		UnmatchedPolicy: policy,
		Toolchain:       tools,
		LogDir:          resolve(ctx.String(flags.LogDir.Name)),
		MetricsTextfile: resolve(ctx.String(flags.MetricsTextfile.Name)),
		ServeAddr:       ctx.String(flags.Serve.Name),
		Log:             log,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates the configuration.
func (c *Config) Check() error {
	if c.ProjectRoot == "" {
		return errors.New("project root is required")
	}
	if c.Language != "" {
		// Language bindings bring their own tests.
		return nil
	}
	if c.ConfigFile == "" {
		return errors.New("test registry path is required")
	}
	if c.BuildDir == "" {
		return errors.New("build directory is required")
	}
	return nil
}
