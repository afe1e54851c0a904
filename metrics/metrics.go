package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cryspen/mach-test/types"
)

const (
	MetricsNamespace = "mach_test"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusTimeout, types.TestStatusError, types.TestStatusNotRun}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of executed test binaries",
	}, []string{
		"algorithm",
		"test",
		"result",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Wall-clock duration of test binaries",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{
		"algorithm",
	})

	coverageStagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "coverage_stages_total",
		Help:      "Count of coverage pipeline stages by outcome",
	}, []string{
		"stage",
		"result",
	})

	suiteResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Result of test suite runs",
	}, []string{
		"run_id",
		"result",
	})

	suiteTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_tests",
		Help:      "Number of tests in a suite run by outcome",
	}, []string{
		"run_id",
		"outcome",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration_seconds",
		Help:      "Duration of test suite runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTest records the result of one test binary.
func RecordTest(algorithm string, test string, result types.TestStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"algorithm", algorithm,
			"test", test,
			"result", result)
	}
	testsTotal.WithLabelValues(algorithm, test, string(result)).Inc()
	testDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// RecordCoverageStage records the outcome of one coverage pipeline stage.
func RecordCoverageStage(stage string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	coverageStagesTotal.WithLabelValues(stage, result).Inc()
}

func RecordSuite(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	notRun int,
	duration time.Duration,
) {
	suiteResults.WithLabelValues(runID, result).Set(1)
	suiteTests.WithLabelValues(runID, "total").Set(float64(total))
	suiteTests.WithLabelValues(runID, "passed").Set(float64(passed))
	suiteTests.WithLabelValues(runID, "failed").Set(float64(failed))
	suiteTests.WithLabelValues(runID, "not_run").Set(float64(notRun))
	suiteDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// WriteTextfile writes the current state of the default registry to path in
// the node_exporter textfile-collector format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
