package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/cryspen/mach-test/filter"
)

const EnvVarPrefix = "MACH_TEST"

var (
	Algorithms = &cli.StringFlag{
		Name:    "algorithms",
		Aliases: []string{"a"},
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALGORITHMS"),
		Usage:   "Algorithms or test names to run, separated by any non-word character (eg. 'chacha20,aes_gcm_test'). Empty runs everything.",
	}
	Language = &cli.StringFlag{
		Name:    "language",
		Aliases: []string{"l"},
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LANGUAGE"),
		Usage:   "Run the tests of a language binding (eg. 'rust', 'ocaml') instead of the C test binaries",
	}
	Coverage = &cli.BoolFlag{
		Name:    "coverage",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COVERAGE"),
		Usage:   "Generate coverage reports for binaries built with coverage instrumentation",
	}
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VERBOSE"),
		Usage:   "Stream test output to the console and log at debug level",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "config/default_config.json",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to the test registry (JSON or YAML) listing the tests of each algorithm",
	}
	ProjectRoot = &cli.StringFlag{
		Name:    "project-root",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROJECT_ROOT"),
		Usage:   "Root of the source tree; relative paths are resolved against it. Defaults to the working directory.",
	}
	BuildDir = &cli.StringFlag{
		Name:    "build-dir",
		Value:   "build/Debug",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BUILD_DIR"),
		Usage:   "Directory containing the built test binaries",
	}
	TestDir = &cli.StringFlag{
		Name:    "test-dir",
		Value:   "tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_DIR"),
		Usage:   "Test-data directory exported to the tests as TEST_DIR",
	}
	TestArgs = &cli.StringSliceFlag{
		Name:    "test-arg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_ARGS"),
		Usage:   "Extra argument passed to every test binary, can be repeated (eg. '--gtest_brief=1')",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for each test binary (eg. '5m'). 0 disables it.",
	}
	FailFast = &cli.BoolFlag{
		Name:    "fail-fast",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAIL_FAST"),
		Usage:   "Stop at the first failing test. Use --fail-fast=false to run every selected test and report all failures.",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of test binaries to run at once",
	}
	UnmatchedFilter = &cli.StringFlag{
		Name:    "unmatched-filter",
		Value:   string(filter.UnmatchedIgnore),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "UNMATCHED_FILTER"),
		Usage:   fmt.Sprintf("What to do with --algorithms entries that match no algorithm or test: %v", filter.UnmatchedPolicies),
		Action: func(_ *cli.Context, v string) error {
			if !filter.UnmatchedPolicy(v).IsValid() {
				return fmt.Errorf("invalid unmatched filter policy %q, must be one of %v", v, filter.UnmatchedPolicies)
			}
			return nil
		},
	}
	Toolchain = &cli.StringFlag{
		Name:    "toolchain",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TOOLCHAIN"),
		Usage:   "Path to a TOML file overriding the coverage tools and language-binding test commands",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-test logs in. Empty disables test logs.",
	}
	MetricsTextfile = &cli.StringFlag{
		Name:    "metrics-textfile",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_TEXTFILE"),
		Usage:   "Write run metrics to this file in the node_exporter textfile format",
	}
	Serve = &cli.StringFlag{
		Name:    "serve",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVE"),
		Usage:   "After the run, serve health, metrics and coverage reports on this address (eg. '127.0.0.1:8080') until interrupted",
	}
)

var optionalFlags = []cli.Flag{
	Algorithms,
	Language,
	Coverage,
	Verbose,
	ConfigFile,
	ProjectRoot,
	BuildDir,
	TestDir,
	TestArgs,
	Timeout,
	FailFast,
	Concurrency,
	UnmatchedFilter,
	Toolchain,
	LogDir,
	MetricsTextfile,
	Serve,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}
