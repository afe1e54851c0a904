package machtest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/types"
)

const maxErrorWidth = 80

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(report *runner.SuiteReport) error
}

// ConsoleResultFormatter renders a run as a table.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
	plain  bool // No colors, for files
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatResults formats and displays the test results.
func (f *ConsoleResultFormatter) FormatResults(report *runner.SuiteReport) error {
	f.logger.Info("Printing results...")
	_, err := io.WriteString(f.out, f.Render(report)+"\n")
	return err
}

// Render returns the results table.
func (f *ConsoleResultFormatter) Render(report *runner.SuiteReport) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(report.Duration)))

	t.AppendHeader(table.Row{
		"Algorithm", "Test", "Duration", "Status", "Exit", "Coverage", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Algorithm", AutoMerge: true},
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Error", WidthMax: maxErrorWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, o := range report.Outcomes {
		if i > 0 && o.Test.Algorithm != report.Outcomes[i-1].Test.Algorithm {
			t.AppendSeparator()
		}
		exit := ""
		if o.Status == types.TestStatusFail {
			exit = fmt.Sprint(o.ExitCode)
		}
		coverage := ""
		if o.Coverage != nil {
			coverage = o.Coverage.HTMLDir
		}
		t.AppendRow(table.Row{
			o.Test.Algorithm,
			o.Test.Stem,
			formatDuration(o.Duration),
			getResultString(o),
			exit,
			coverage,
			extractKeyErrorMessage(o.Error),
		})
	}

	aggregate := ""
	if report.AggregateCoverage {
		aggregate = "aggregated"
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d/%d passed", report.Stats.Passed-report.Stats.CoverageFailed, report.Stats.Total),
		formatDuration(report.Duration),
		string(report.Status),
		"",
		aggregate,
		"",
	})

	switch {
	case f.plain:
		t.SetStyle(table.StyleLight)
	case report.Status == types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case report.Status == types.TestStatusNotRun:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Style().Format.Footer = text.FormatDefault
	return t.Render()
}

// Summary renders the results without colors, followed by the per-test details.
func (f *ConsoleResultFormatter) Summary(report *runner.SuiteReport) string {
	plain := *f
	plain.plain = true
	return fmt.Sprintf("Run ID: %s\nFilter: %s\n\n%s\n\n%s", report.RunID, report.Filter, plain.Render(report), report.String())
}

// extractKeyErrorMessage keeps the first line of an error, shortened for a
// table cell.
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return text.Snip(msg, maxErrorWidth*2, "...")
}

// getResultString returns a marker and the status of a test
func getResultString(o *types.TestOutcome) string {
	switch o.Status {
	case types.TestStatusPass:
		if o.Error != nil {
			return "✗ coverage"
		}
		return "✓ pass"
	case types.TestStatusNotRun:
		return "- not run"
	case types.TestStatusTimeout:
		return "✗ timeout"
	case types.TestStatusError:
		return "✗ error"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
