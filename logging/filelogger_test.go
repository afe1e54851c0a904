package logging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/types"
)

func TestNewFileLogger(t *testing.T) {
	_, err := NewFileLogger(t.TempDir(), "")
	require.Error(t, err)
	_, err = NewFileLogger("", "run")
	require.Error(t, err)

	base := t.TempDir()
	l, err := NewFileLogger(base, "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "testrun-abc"), l.GetBaseDir())
	assert.DirExists(t, filepath.Join(l.GetBaseDir(), passedDirName))
	assert.DirExists(t, filepath.Join(l.GetBaseDir(), failedDirName))
	assert.DirExists(t, filepath.Join(l.GetBaseDir(), runningDirName))
}

func capture(t *testing.T, l *FileLogger, test types.TestSpec, output string) string {
	t.Helper()
	w, path, err := l.OpenTestLog(test)
	require.NoError(t, err)
	_, err = io.WriteString(w, output)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return path
}

func TestLogOutcome(t *testing.T) {
	l, err := NewFileLogger(t.TempDir(), "run1")
	require.NoError(t, err)

	pass := &types.TestOutcome{
		Test:     types.NewTestSpec("chacha20", "chacha20_test.cc"),
		Status:   types.TestStatusPass,
		Duration: 1500 * time.Millisecond,
	}
	pass.LogPath = capture(t, l, pass.Test, "\x1b[0;32m[       OK ]\x1b[m Chacha20.Vectors\n")

	fail := &types.TestOutcome{
		Test:     types.NewTestSpec("aes", "aes_gcm_test.cc"),
		Status:   types.TestStatusFail,
		ExitCode: 1,
		Error:    errors.New("test aes_gcm_test failed with exit code 1"),
	}
	fail.LogPath = capture(t, l, fail.Test, "[  FAILED  ] AesGcm.Decrypt\n")

	require.NoError(t, l.LogOutcome(pass))
	require.NoError(t, l.LogOutcome(fail))

	assert.Equal(t, filepath.Join(l.GetBaseDir(), passedDirName, "chacha20_test.log"), pass.LogPath)
	assert.Equal(t, filepath.Join(l.GetBaseDir(), failedDirName, "aes_gcm_test.log"), fail.LogPath)

	data, err := os.ReadFile(pass.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Status:    pass")
	assert.Contains(t, string(data), "Duration:  1.50s")
	assert.Contains(t, string(data), "[       OK ] Chacha20.Vectors")
	assert.NotContains(t, string(data), "\x1b[")

	data, err = os.ReadFile(fail.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Exit code: 1")
	assert.Contains(t, string(data), "AesGcm.Decrypt")

	all, err := os.ReadFile(filepath.Join(l.GetBaseDir(), AllLogsFilename))
	require.NoError(t, err)
	assert.Contains(t, string(all), "chacha20_test")
	assert.Contains(t, string(all), "aes_gcm_test")

	require.NoError(t, l.Complete())
	assert.NoDirExists(t, filepath.Join(l.GetBaseDir(), "running"))
}

func TestLogOutcomeWithoutCapture(t *testing.T) {
	l, err := NewFileLogger(t.TempDir(), "run2")
	require.NoError(t, err)

	missing := &types.TestOutcome{
		Test:   types.NewTestSpec("ed25519", "ed25519_test.cc"),
		Status: types.TestStatusError,
		Error:  &runner.MissingBinaryError{Test: "ed25519_test", Path: "build/Debug/ed25519_test"},
	}
	require.NoError(t, l.LogOutcome(missing))
	data, err := os.ReadFile(filepath.Join(l.GetBaseDir(), failedDirName, "ed25519_test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "does not exist")

	notRun := &types.TestOutcome{Test: types.NewTestSpec("sha3", "sha3_test.cc"), Status: types.TestStatusNotRun}
	require.NoError(t, l.LogOutcome(notRun))
	assert.NoFileExists(t, filepath.Join(l.GetBaseDir(), failedDirName, "sha3_test.log"))
	assert.NoFileExists(t, filepath.Join(l.GetBaseDir(), passedDirName, "sha3_test.log"))
}

func TestLogReport(t *testing.T) {
	l, err := NewFileLogger(t.TempDir(), "run3")
	require.NoError(t, err)

	o := &types.TestOutcome{Test: types.NewTestSpec("chacha20", "chacha20_test.cc"), Status: types.TestStatusPass}
	o.LogPath = capture(t, l, o.Test, "ok\n")
	report := &runner.SuiteReport{RunID: "run3", Outcomes: []*types.TestOutcome{o}}

	require.NoError(t, l.LogReport(report, "\x1b[1mTotal: 1\x1b[0m\n"))
	summary, err := os.ReadFile(filepath.Join(l.GetBaseDir(), SummaryFilename))
	require.NoError(t, err)
	assert.Equal(t, "Total: 1\n", string(summary))
	assert.FileExists(t, filepath.Join(l.GetBaseDir(), passedDirName, "chacha20_test.log"))
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c_d", safeFilename("a/b c:d"))
	assert.Equal(t, "chacha20_test", safeFilename("chacha20_test"))
}
