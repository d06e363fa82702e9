package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finagent"

type moduleMetrics struct {
	agentRunTotal     *prometheus.CounterVec
	agentRunDuration  prometheus.Histogram
	agentSteps        prometheus.Histogram
	modelCallDuration *prometheus.HistogramVec
	modelErrorsTotal  *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	voteTotal      *prometheus.CounterVec
	voteAgreement  prometheus.Histogram
	voteRunsFailed prometheus.Counter

	classificationTotal *prometheus.CounterVec

	searchDuration prometheus.Histogram
	searchHits     *prometheus.CounterVec

	ingestRowsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "agent_run_total",
					Help:      "Agent loop runs by outcome (answered, no_answer, failed, cancelled).",
				},
				[]string{"outcome"},
			),
			agentRunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "agent_run_duration_seconds",
					Help:      "Agent loop run duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			agentSteps: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "agent_steps",
					Help:      "Model invocations per agent run.",
					Buckets:   []float64{1, 2, 3, 4, 5, 8, 12, 20},
				},
			),
			modelCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "model_call_duration_seconds",
					Help:      "Language model call duration in seconds by provider.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			modelErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "model_errors_total",
					Help:      "Language model call failures by provider.",
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Tool invocations by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool invocation duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			voteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "vote_total",
					Help:      "Consensus votes by result (answered, no_answer).",
				},
				[]string{"result"},
			),
			voteAgreement: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "vote_agreement_ratio",
					Help:      "Share of voting runs that agreed with the winner.",
					Buckets:   []float64{0.2, 0.4, 0.5, 0.6, 0.8, 1},
				},
			),
			voteRunsFailed: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "vote_runs_failed_total",
					Help:      "Consensus runs that ended in an error and did not vote.",
				},
			),
			classificationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "classification_total",
					Help:      "Transaction classifications by outcome (ok, model_error, parse_error, invalid).",
				},
				[]string{"outcome"},
			),
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "search_duration_seconds",
					Help:      "Transaction search duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			searchHits: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "search_hits_total",
					Help:      "Vector index hits kept or dropped by the distance threshold.",
				},
				[]string{"result"},
			),
			ingestRowsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "ingest_rows_total",
					Help:      "Ingested CSV rows by status (stored, skipped, unclassified).",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentSteps,
			m.modelCallDuration,
			m.modelErrorsTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.voteTotal,
			m.voteAgreement,
			m.voteRunsFailed,
			m.classificationTotal,
			m.searchDuration,
			m.searchHits,
			m.ingestRowsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordAgentRun(outcome string, duration time.Duration, steps int) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(outcome).Inc()
	m.agentRunDuration.Observe(duration.Seconds())
	m.agentSteps.Observe(float64(steps))
}

func RecordModelCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.modelCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if !success {
		m.modelErrorsTotal.WithLabelValues(provider).Inc()
	}
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordVote records a finished consensus vote. agreement is ignored when
// nothing was answered.
func RecordVote(answered bool, agreement float64, failedRuns int) {
	m := getMetrics()
	if answered {
		m.voteTotal.WithLabelValues("answered").Inc()
		m.voteAgreement.Observe(agreement)
	} else {
		m.voteTotal.WithLabelValues("no_answer").Inc()
	}
	if failedRuns > 0 {
		m.voteRunsFailed.Add(float64(failedRuns))
	}
}

func RecordClassification(outcome string) {
	getMetrics().classificationTotal.WithLabelValues(outcome).Inc()
}

func RecordSearch(duration time.Duration, kept, dropped int) {
	m := getMetrics()
	m.searchDuration.Observe(duration.Seconds())
	m.searchHits.WithLabelValues("kept").Add(float64(kept))
	m.searchHits.WithLabelValues("dropped").Add(float64(dropped))
}

func RecordIngestRows(status string, count int) {
	if count <= 0 {
		return
	}
	getMetrics().ingestRowsTotal.WithLabelValues(status).Add(float64(count))
}
