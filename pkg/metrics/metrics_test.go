package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.RecordTransition("immediate")
	m.RecordTransition("immediate")
	m.RecordStepDispatch("email", "success")
	m.RecordQueueMessage("deleted")
	m.RecordScan(150*time.Millisecond, 3, errors.New("boom"))

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `journeys_transitions_total{trigger_type="immediate"} 2`)
	assert.Contains(t, string(body), `journeys_step_dispatches_total{outcome="success",step_type="email"} 1`)
	assert.Contains(t, string(body), `journeys_scan_transitions_total 3`)
	assert.Contains(t, string(body), `journeys_scan_failures_total 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.RecordTransition("delay")
		m.RecordScan(time.Second, 1, nil)
		m.RecordHTTPRequest("GET", "/", "200")
	})
}
