package coverage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryspen/mach-test/command"
	"github.com/cryspen/mach-test/command/commandtest"
	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/toolchain"
	"github.com/cryspen/mach-test/types"
)

// fakeTools simulates the coverage tools: each writes the file named after
// its -o flag, and llvm-cov writes lcov data to stdout.
func fakeTools(failOn string) func(context.Context, *command.Cmd) error {
	return func(_ context.Context, cmd *command.Cmd) error {
		if cmd.Name == failOn {
			if cmd.Stdout != nil {
				_, _ = io.WriteString(cmd.Stdout, "SF:partial\n")
			}
			_, _ = io.WriteString(cmd.Stderr, "error: \x1b[31mboom\x1b[0m\n")
			return &commandtest.ExitError{Code: 1}
		}
		if cmd.Name == toolchain.DefaultCov {
			_, err := io.WriteString(cmd.Stdout, "SF:src/chacha20.c\nend_of_record\n")
			return err
		}
		out := ""
		for i, arg := range cmd.Args {
			if arg == "-o" && i+1 < len(cmd.Args) {
				out = filepath.Join(cmd.Dir, cmd.Args[i+1])
			}
		}
		switch {
		case out == "":
			return nil
		case cmd.Name == toolchain.DefaultGenhtml:
			return os.WriteFile(filepath.Join(out, "index.html"), []byte("<html/>"), 0644)
		default:
			return os.WriteFile(out, []byte("indexed"), 0644)
		}
	}
}

func setup(t *testing.T, stem string, withProfile bool) (runner.WorkingContext, *types.TestOutcome) {
	t.Helper()
	buildRoot := t.TempDir()
	if withProfile {
		require.NoError(t, os.WriteFile(filepath.Join(buildRoot, stem+".profraw"), []byte("raw"), 0644))
	}
	wc := runner.WorkingContext{
		BuildRoot: buildRoot,
		Env:       runner.SharedEnvironment([]string{"PATH=/usr/bin"}, "/tests"),
	}
	outcome := &types.TestOutcome{
		Test:   types.NewTestSpec("chacha20", stem+".cc"),
		Binary: filepath.Join(buildRoot, stem),
		Status: types.TestStatusPass,
	}
	return wc, outcome
}

func newReporter(t *testing.T, rec *commandtest.Recorder, tools toolchain.CoverageConfig) *Reporter {
	t.Helper()
	r, err := NewReporter(Config{Runner: rec, Tools: tools, Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)
	return r
}

func TestArtifacts(t *testing.T) {
	a := Artifacts("chacha20_test")
	assert.Equal(t, "chacha20_test.profraw", a.RawProfile)
	assert.Equal(t, filepath.Join("coverage", "chacha20_test"), a.Dir)
	assert.Equal(t, filepath.Join("coverage", "chacha20_test", "chacha20_test.profdata"), a.MergedProfile)
	assert.Equal(t, filepath.Join("coverage", "chacha20_test", "chacha20_test.lcov"), a.LCOV)
	assert.Equal(t, filepath.Join("coverage", "chacha20_test", "html"), a.HTMLDir)
}

func TestReportRunsStagesInOrder(t *testing.T) {
	const stem = "chacha20_test"
	wc, outcome := setup(t, stem, true)
	rec := &commandtest.Recorder{}
	rec.Handler = func(ctx context.Context, cmd *command.Cmd) error {
		if cmd.Name == toolchain.DefaultCov {
			_, err := io.WriteString(cmd.Stdout, "SF:src/chacha20.c\nend_of_record\n")
			return err
		}
		return nil
	}

	artifacts, err := newReporter(t, rec, toolchain.Default().Coverage).Report(context.Background(), wc, outcome)
	require.NoError(t, err)
	assert.Equal(t, Artifacts(stem), artifacts)

	assert.Equal(t, []string{"llvm-profdata", "llvm-cov", "genhtml"}, rec.Names())
	calls := rec.Calls()
	a := Artifacts(stem)

	merge, export, render := calls[0], calls[1], calls[2]
	assert.Equal(t, []string{"merge", "-sparse", a.RawProfile, "-o", a.MergedProfile}, merge.Args)
	assert.Equal(t, []string{"export", "-format", "lcov", "--instr-profile", a.MergedProfile, outcome.Binary, "../../src"}, export.Args)
	assert.Equal(t, []string{a.LCOV, "-o", a.HTMLDir}, render.Args)

	// Each stage consumes what the previous one produced.
	assert.Equal(t, merge.Args[4], export.Args[4])
	assert.Equal(t, a.LCOV, render.Args[0])
	lcov, err := os.ReadFile(filepath.Join(wc.BuildRoot, a.LCOV))
	require.NoError(t, err)
	assert.Contains(t, string(lcov), "SF:src/chacha20.c")

	for _, c := range calls {
		assert.Equal(t, wc.BuildRoot, c.Dir)
		testDir, ok := c.Lookup(runner.TestDirEnvVar)
		assert.True(t, ok)
		assert.Equal(t, "/tests", testDir)
	}
	assert.DirExists(t, filepath.Join(wc.BuildRoot, a.HTMLDir))
}

func TestReportIsIdempotent(t *testing.T) {
	wc, outcome := setup(t, "aes_gcm_test", true)
	rec := &commandtest.Recorder{Handler: fakeTools("")}
	r := newReporter(t, rec, toolchain.Default().Coverage)

	_, err := r.Report(context.Background(), wc, outcome)
	require.NoError(t, err)
	_, err = r.Report(context.Background(), wc, outcome)
	require.NoError(t, err)
	assert.Len(t, rec.Calls(), 6)
}

func TestReportMissingRawProfile(t *testing.T) {
	wc, outcome := setup(t, "chacha20_test", false)
	rec := &commandtest.Recorder{}

	_, err := newReporter(t, rec, toolchain.Default().Coverage).Report(context.Background(), wc, outcome)
	var stageErr *StageFailedError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageMerge, stageErr.Stage)
	assert.Equal(t, "chacha20_test", stageErr.Test)
	assert.Empty(t, rec.Calls(), "no tool runs without a raw profile")
}

func TestReportStageFailure(t *testing.T) {
	tests := []struct {
		name      string
		failOn    string
		stage     Stage
		wantCalls []string
	}{
		{
			name:      "merge fails",
			failOn:    toolchain.DefaultProfdata,
			stage:     StageMerge,
			wantCalls: []string{"llvm-profdata"},
		},
		{
			name:      "export fails",
			failOn:    toolchain.DefaultCov,
			stage:     StageExport,
			wantCalls: []string{"llvm-profdata", "llvm-cov"},
		},
		{
			name:      "render fails",
			failOn:    toolchain.DefaultGenhtml,
			stage:     StageRender,
			wantCalls: []string{"llvm-profdata", "llvm-cov", "genhtml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc, outcome := setup(t, "chacha20_test", true)
			rec := &commandtest.Recorder{Handler: fakeTools(tt.failOn)}

			artifacts, err := newReporter(t, rec, toolchain.Default().Coverage).Report(context.Background(), wc, outcome)
			assert.Nil(t, artifacts)

			var stageErr *StageFailedError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.Equal(t, "error: boom", stageErr.Output)
			code, ok := command.ExitCode(err)
			assert.True(t, ok)
			assert.Equal(t, 1, code)
			assert.Equal(t, tt.wantCalls, rec.Names())

			if tt.stage == StageExport {
				assert.NoFileExists(t, filepath.Join(wc.BuildRoot, Artifacts("chacha20_test").LCOV),
					"partial lcov export is removed")
			}
		})
	}
}

func TestReportPrepareFailure(t *testing.T) {
	wc, outcome := setup(t, "chacha20_test", true)
	// A file where the coverage tree should go makes every later stage impossible.
	require.NoError(t, os.WriteFile(filepath.Join(wc.BuildRoot, RootDir), nil, 0644))
	rec := &commandtest.Recorder{Handler: fakeTools("")}

	_, err := newReporter(t, rec, toolchain.Default().Coverage).Report(context.Background(), wc, outcome)
	var stageErr *StageFailedError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, Stages[0], stageErr.Stage)
	assert.Empty(t, rec.Calls())
}

func TestStagesOrder(t *testing.T) {
	assert.Equal(t, []Stage{StagePrepare, StageMerge, StageExport, StageRender}, Stages)
}

func TestReportIgnoreRegexAndTools(t *testing.T) {
	wc, outcome := setup(t, "chacha20_test", true)
	rec := &commandtest.Recorder{Handler: fakeTools("")}
	tools := toolchain.CoverageConfig{
		Profdata:            "llvm-profdata-18",
		Cov:                 "llvm-cov-18",
		SourceDir:           "/src/hacl",
		IgnoreFilenameRegex: "vale/.*",
	}

	_, err := newReporter(t, rec, tools).Report(context.Background(), wc, outcome)
	// The fake only knows the default llvm-cov name, so nothing is exported.
	require.NoError(t, err)

	calls := rec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "llvm-profdata-18", calls[0].Name)
	assert.Equal(t, "llvm-cov-18", calls[1].Name)
	assert.Equal(t, "genhtml", calls[2].Name)
	assert.Equal(t, []string{"export", "-format", "lcov", "--instr-profile", Artifacts("chacha20_test").MergedProfile,
		"-ignore-filename-regex", "vale/.*", outcome.Binary, "/src/hacl"}, calls[1].Args)
}

func TestReportRejectsFailedTest(t *testing.T) {
	wc, outcome := setup(t, "chacha20_test", true)
	outcome.Status = types.TestStatusFail
	rec := &commandtest.Recorder{}

	_, err := newReporter(t, rec, toolchain.Default().Coverage).Report(context.Background(), wc, outcome)
	require.Error(t, err)
	assert.Empty(t, rec.Calls())
}

func TestReportCancelled(t *testing.T) {
	wc, outcome := setup(t, "chacha20_test", true)
	rec := &commandtest.Recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newReporter(t, rec, toolchain.Default().Coverage).Report(ctx, wc, outcome)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"llvm-profdata"}, rec.Names())
}

func TestAggregator(t *testing.T) {
	rec := &commandtest.Recorder{}
	agg, err := NewAggregator(AggregatorConfig{
		Runner:      rec,
		ProjectRoot: "/work/hacl-packages",
		Log:         log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)
	require.NoError(t, agg.Aggregate(context.Background()))

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "./tools/coverage.sh", calls[0].Name)
	assert.Equal(t, "/work/hacl-packages", calls[0].Dir)

	rec.Handler = func(context.Context, *command.Cmd) error { return errors.New("script failed") }
	require.Error(t, agg.Aggregate(context.Background()))

	_, err = NewAggregator(AggregatorConfig{Runner: rec})
	require.Error(t, err)
}
