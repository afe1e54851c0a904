package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/cryspen/mach-test/types"
)

// ResultStats tracks test statistics for a run
type ResultStats struct {
	Total          int // Selected tests
	Passed         int
	Failed         int // Nonzero exit or could not start
	TimedOut       int
	Errored        int // Missing binary or interrupted
	NotRun         int
	CoverageFailed int
	StartTime      time.Time
	EndTime        time.Time
}

// SuiteReport captures the complete result of a run. Outcomes are in
// registry order regardless of the concurrency used.
type SuiteReport struct {
	RunID             string
	Filter            string
	Outcomes          []*types.TestOutcome
	Status            types.TestStatus
	Duration          time.Duration
	Stats             ResultStats
	AggregateCoverage bool // The aggregate coverage step ran and succeeded
}

// Failed returns the stems of tests that did not pass, including those whose
// coverage pipeline failed.
func (r *SuiteReport) Failed() []string {
	var failed []string
	for _, o := range r.Outcomes {
		switch {
		case o.Status == types.TestStatusNotRun:
		case !o.Passed(), o.Error != nil:
			failed = append(failed, o.Test.Stem)
		}
	}
	return failed
}

// Outcome returns the outcome for stem, or nil if it was not selected.
func (r *SuiteReport) Outcome(stem string) *types.TestOutcome {
	for _, o := range r.Outcomes {
		if o.Test.Stem == stem {
			return o
		}
	}
	return nil
}

func (r *SuiteReport) updateStats() {
	stats := ResultStats{
		Total:     len(r.Outcomes),
		StartTime: r.Stats.StartTime,
		EndTime:   r.Stats.EndTime,
	}
	for _, o := range r.Outcomes {
		switch o.Status {
		case types.TestStatusPass:
			stats.Passed++
			if o.Error != nil {
				stats.CoverageFailed++
			}
		case types.TestStatusFail:
			stats.Failed++
		case types.TestStatusTimeout:
			stats.TimedOut++
		case types.TestStatusError:
			stats.Errored++
		case types.TestStatusNotRun:
			stats.NotRun++
		}
	}
	r.Stats = stats
}

func determineSuiteStatus(r *SuiteReport) types.TestStatus {
	s := r.Stats
	switch {
	case s.Errored > 0:
		return types.TestStatusError
	case s.Failed > 0, s.TimedOut > 0, s.CoverageFailed > 0:
		return types.TestStatusFail
	case s.NotRun > 0:
		return types.TestStatusNotRun
	default:
		return types.TestStatusPass
	}
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// String returns a formatted string representation of the run, grouped by
// algorithm.
func (r *SuiteReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Test Run Results (%s):\n", formatDuration(r.Duration))
	fmt.Fprintf(&b, "Total: %d, Passed: %d, Failed: %d, Timed out: %d, Errors: %d, Not run: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.TimedOut, r.Stats.Errored, r.Stats.NotRun)

	current := ""
	for _, o := range r.Outcomes {
		if o.Test.Algorithm != current {
			current = o.Test.Algorithm
			fmt.Fprintf(&b, "\nAlgorithm: %s\n", current)
		}
		fmt.Fprintf(&b, "├── Test: %s (%s) [status=%s]\n", o.Test.Stem, formatDuration(o.Duration), o.Status)
		if o.Error != nil {
			fmt.Fprintf(&b, "│       └── Error: %s\n", o.Error.Error())
		}
		if o.Coverage != nil {
			fmt.Fprintf(&b, "│       └── Coverage: %s\n", o.Coverage.HTMLDir)
		}
	}
	if r.AggregateCoverage {
		b.WriteString("\nAggregate coverage report generated\n")
	}
	return b.String()
}
