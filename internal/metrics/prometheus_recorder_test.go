package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveTaskDuration("scripts", 150*time.Millisecond)
	pr.IncTaskResult("scripts", ResultSuccess)
	pr.IncUnitResult("styles:modules", ResultFailed)
	pr.IncUnitResult("styles:modules", ResultSuccess)
	pr.AddFilesWritten("images", 3)
	pr.AddFilesWritten("images", 0)
	pr.SetLiveReloadClients(2)
	pr.IncLiveReloadBroadcast("css")

	assert.Equal(t, 1.0, testutil.ToFloat64(pr.taskResults.WithLabelValues("scripts", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.unitResults.WithLabelValues("styles:modules", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pr.filesWritten.WithLabelValues("images")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pr.liveReloadConns))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.ObserveTaskDuration("x", time.Second)
		pr.IncTaskResult("x", ResultFailed)
		pr.SetLiveReloadClients(1)
	})
}

func TestHTTPHandlerServesMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncTaskResult("fonts", ResultSuccess)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "assetpipe_task_results_total")
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveTaskDuration("x", time.Second)
	r.IncLiveReloadBroadcast("reload")
}
