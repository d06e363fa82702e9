package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRegistered(t *testing.T) {
	assert.NotPanics(t, func() {
		EnsureRegistered()
		EnsureRegistered()
	})
}

func TestRecordVote(t *testing.T) {
	m := getMetrics()
	answered := testutil.ToFloat64(m.voteTotal.WithLabelValues("answered"))
	noAnswer := testutil.ToFloat64(m.voteTotal.WithLabelValues("no_answer"))
	failed := testutil.ToFloat64(m.voteRunsFailed)

	RecordVote(true, 0.6, 1)
	RecordVote(false, 0, 0)

	assert.Equal(t, answered+1, testutil.ToFloat64(m.voteTotal.WithLabelValues("answered")))
	assert.Equal(t, noAnswer+1, testutil.ToFloat64(m.voteTotal.WithLabelValues("no_answer")))
	assert.Equal(t, failed+1, testutil.ToFloat64(m.voteRunsFailed))
}

func TestRecordToolExecution(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.toolExecutionTotal.WithLabelValues("calculator", "error"))

	RecordToolExecution("calculator", 5*time.Millisecond, false)

	assert.Equal(t, before+1, testutil.ToFloat64(m.toolExecutionTotal.WithLabelValues("calculator", "error")))
}

func TestRecordSearchAndIngest(t *testing.T) {
	m := getMetrics()
	kept := testutil.ToFloat64(m.searchHits.WithLabelValues("kept"))
	dropped := testutil.ToFloat64(m.searchHits.WithLabelValues("dropped"))
	stored := testutil.ToFloat64(m.ingestRowsTotal.WithLabelValues("stored"))

	RecordSearch(time.Millisecond, 2, 3)
	RecordIngestRows("stored", 4)
	RecordIngestRows("stored", 0)

	assert.Equal(t, kept+2, testutil.ToFloat64(m.searchHits.WithLabelValues("kept")))
	assert.Equal(t, dropped+3, testutil.ToFloat64(m.searchHits.WithLabelValues("dropped")))
	assert.Equal(t, stored+4, testutil.ToFloat64(m.ingestRowsTotal.WithLabelValues("stored")))
}

func TestMetricsHandler(t *testing.T) {
	RecordClassification("ok")
	RecordAgentRun("answered", time.Second, 2)
	RecordModelCall("openai", time.Second, true)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finagent_classification_total")
	assert.Contains(t, rec.Body.String(), "finagent_agent_run_total")
}
