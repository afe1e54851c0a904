package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
	AllLogsFilename    = "all.log"

	passedDirName  = "passed"
	failedDirName  = "failed"
	runningDirName = "running"
)

var _ runner.OutputSink = (*FileLogger)(nil)

// FileLogger stores the output of every test of a run on disk:
//
//	<baseDir>/testrun-<runID>/passed/<stem>.log
//	<baseDir>/testrun-<runID>/failed/<stem>.log
//	<baseDir>/testrun-<runID>/all.log
//	<baseDir>/testrun-<runID>/summary.log
//
// Output is captured under running/ while a test executes and filed by
// LogOutcome once its status is known.
type FileLogger struct {
	logDir      string // Directory of this run
	passedDir   string
	failedDir   string
	runningDir  string
	summaryFile string
	allLogsFile string
	mu          sync.Mutex // Serializes writes to all.log
}

// NewFileLogger creates a new FileLogger with given configuration
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	l := &FileLogger{
		logDir:      logDir,
		passedDir:   filepath.Join(logDir, passedDirName),
		failedDir:   filepath.Join(logDir, failedDirName),
		runningDir:  filepath.Join(logDir, runningDirName),
		summaryFile: filepath.Join(logDir, SummaryFilename),
		allLogsFile: filepath.Join(logDir, AllLogsFilename),
	}

	for _, dir := range []string{l.passedDir, l.failedDir, l.runningDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return l, nil
}

// OpenTestLog implements runner.OutputSink.
func (l *FileLogger) OpenTestLog(test types.TestSpec) (io.WriteCloser, string, error) {
	path := filepath.Join(l.runningDir, safeFilename(test.Stem)+".log")
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create test log %s: %w", path, err)
	}
	return f, path, nil
}

// LogOutcome files the captured output of outcome under passed/ or failed/,
// with escape sequences removed and a header describing the result, and
// appends it to all.log. outcome.LogPath is updated to the new location.
func (l *FileLogger) LogOutcome(outcome *types.TestOutcome) error {
	if outcome.Status == types.TestStatusNotRun {
		return nil
	}

	output := outcome.Output
	captured := outcome.LogPath
	if captured != "" {
		data, err := os.ReadFile(captured)
		if err != nil {
			return fmt.Errorf("failed to read test log %s: %w", captured, err)
		}
		output = stripansi.Strip(string(data))
	}

	dir := l.passedDir
	if !outcome.Passed() || outcome.Error != nil {
		dir = l.failedDir
	}
	path := filepath.Join(dir, safeFilename(outcome.Test.Stem)+".log")

	var b strings.Builder
	writeHeader(&b, outcome)
	b.WriteString(output)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write test log %s: %w", path, err)
	}
	if captured != "" && captured != path {
		if err := os.Remove(captured); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", captured, err)
		}
	}
	outcome.LogPath = path

	return l.appendAllLogs(b.String())
}

// LogReport files every outcome of report and writes its summary.
func (l *FileLogger) LogReport(report *runner.SuiteReport, summary string) error {
	for _, outcome := range report.Outcomes {
		if err := l.LogOutcome(outcome); err != nil {
			return err
		}
	}
	return l.LogSummary(summary)
}

// LogSummary writes a summary of the test run to summary.log
func (l *FileLogger) LogSummary(summary string) error {
	if err := os.WriteFile(l.summaryFile, []byte(stripansi.Strip(summary)), 0644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", l.summaryFile, err)
	}
	return nil
}

// Complete removes the capture directory once every outcome was filed.
func (l *FileLogger) Complete() error {
	entries, err := os.ReadDir(l.runningDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	return os.Remove(l.runningDir)
}

func (l *FileLogger) appendAllLogs(entry string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.allLogsFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", l.allLogsFile, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n%s\n", strings.Repeat("=", 80), entry); err != nil {
		return fmt.Errorf("failed to write %s: %w", l.allLogsFile, err)
	}
	return nil
}

// GetBaseDir returns the directory of this test run
func (l *FileLogger) GetBaseDir() string {
	return l.logDir
}

func writeHeader(b *strings.Builder, o *types.TestOutcome) {
	fmt.Fprintf(b, "Test:      %s\n", o.Test.Stem)
	fmt.Fprintf(b, "Algorithm: %s\n", o.Test.Algorithm)
	fmt.Fprintf(b, "Status:    %s\n", o.Status)
	fmt.Fprintf(b, "Duration:  %s\n", formatDuration(o.Duration))
	if o.Binary != "" {
		fmt.Fprintf(b, "Binary:    %s\n", o.Binary)
	}
	if o.Status == types.TestStatusFail {
		fmt.Fprintf(b, "Exit code: %d\n", o.ExitCode)
	}
	if o.Error != nil {
		fmt.Fprintf(b, "Error:     %s\n", o.Error)
	}
	if o.Coverage != nil {
		fmt.Fprintf(b, "Coverage:  %s\n", o.Coverage.HTMLDir)
	}
	b.WriteString("\n")
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
