package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testtree"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	nodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "nodes_total",
		Help:      "Count of executed nodes",
	}, []string{
		"plan",
		"run_id",
		"type",
		"status",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of runs",
	}, []string{
		"plan",
		"run_id",
		"result",
	})

	runNodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_nodes_total",
		Help:      "Total number of nodes in a run",
	}, []string{
		"plan",
		"run_id",
	})

	runNodesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_nodes_failed",
		Help:      "Number of failed nodes in a run",
	}, []string{
		"plan",
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration",
		Help:      "Duration of runs in seconds",
	}, []string{
		"plan",
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

// RecordNode counts one executed node with its terminal status.
func RecordNode(plan string, runID string, nodeType string, status string) {
	if Debug {
		log.Debug("metric inc",
			"m", "nodes_total",
			"plan", plan,
			"run_id", runID,
			"type", nodeType,
			"status", status)
	}
	nodesTotal.WithLabelValues(plan, runID, nodeType, status).Inc()
}

// RecordRun records the aggregate outcome of one run.
func RecordRun(
	plan string,
	runID string,
	result string,
	total int,
	failed int,
	duration time.Duration,
) {
	runResults.WithLabelValues(plan, runID, result).Set(1)
	runNodesTotal.WithLabelValues(plan, runID).Add(float64(total))
	runNodesFailed.WithLabelValues(plan, runID).Add(float64(failed))
	runDuration.WithLabelValues(plan, runID).Set(duration.Seconds())
}
