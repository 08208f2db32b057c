package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(JobsProcessedTotal.WithLabelValues("completed"))
	JobsProcessedTotal.WithLabelValues("completed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(JobsProcessedTotal.WithLabelValues("completed")))

	ScanDuration.WithLabelValues("silence").Observe(1.5)
	assert.Equal(t, 1, testutil.CollectAndCount(ScanDuration, "cinescript_scan_duration_seconds"))
}

func TestHandlerServesMetrics(t *testing.T) {
	ExclusionsFoundTotal.WithLabelValues("manual").Add(2)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cinescript_exclusions_found_total{method="manual"}`)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
