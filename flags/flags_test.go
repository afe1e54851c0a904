package flags

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		for _, name := range flag.Names() {
			if _, ok := seenCLI[name]; ok {
				t.Errorf("duplicate flag %s", name)
				continue
			}
			seenCLI[name] = struct{}{}
		}
	}
}

func TestHasEnvVar(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
		})
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Len(t, envFlags, 1)
			assert.True(t, strings.HasPrefix(envFlags[0], EnvVarPrefix+"_"), "env var %s must carry the %s prefix", envFlags[0], EnvVarPrefix)
			assert.Equal(t, strings.ToUpper(envFlags[0]), envFlags[0])
		})
	}
}

func TestDefaults(t *testing.T) {
	app := cli.NewApp()
	app.Flags = Flags
	var got *cli.Context
	app.Action = func(ctx *cli.Context) error {
		got = ctx
		return nil
	}
	require.NoError(t, app.Run([]string{"mach-test"}))

	assert.Equal(t, "config/default_config.json", got.String(ConfigFile.Name))
	assert.Equal(t, "build/Debug", got.String(BuildDir.Name))
	assert.Equal(t, "tests", got.String(TestDir.Name))
	assert.True(t, got.Bool(FailFast.Name))
	assert.Equal(t, 1, got.Int(Concurrency.Name))
	assert.Equal(t, "ignore", got.String(UnmatchedFilter.Name))
	assert.False(t, got.Bool(Coverage.Name))
}

func TestShortAliases(t *testing.T) {
	app := cli.NewApp()
	app.Flags = Flags
	var got *cli.Context
	app.Action = func(ctx *cli.Context) error {
		got = ctx
		return nil
	}
	require.NoError(t, app.Run([]string{"mach-test", "-a", "chacha20", "-v", "--test-arg", "--gtest_brief=1", "--test-arg", "--gtest_repeat=2"}))

	assert.Equal(t, "chacha20", got.String(Algorithms.Name))
	assert.True(t, got.Bool(Verbose.Name))
	assert.Equal(t, []string{"--gtest_brief=1", "--gtest_repeat=2"}, got.StringSlice(TestArgs.Name))
}

func TestUnmatchedFilterValidation(t *testing.T) {
	app := cli.NewApp()
	app.Flags = Flags
	app.Action = func(*cli.Context) error { return nil }
	app.Writer = &strings.Builder{}
	app.ErrWriter = &strings.Builder{}

	require.Error(t, app.Run([]string{"mach-test", "--unmatched-filter", "explode"}))
	require.NoError(t, app.Run([]string{"mach-test", "--unmatched-filter", "error"}))
}
