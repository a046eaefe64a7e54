package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration     *prom.HistogramVec
	taskResults      *prom.CounterVec
	unitResults      *prom.CounterVec
	filesWritten     *prom.CounterVec
	liveReloadConns  prom.Gauge
	liveReloadEvents *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assetpipe",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual task runs",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "task_results_total",
			Help:      "Task run counts by outcome",
		}, []string{"task", "result"}),
		unitResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "unit_results_total",
			Help:      "Build unit counts (stylesheets, images, fonts) by outcome",
		}, []string{"task", "result"}),
		filesWritten: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "files_written_total",
			Help:      "Files written to the build directory",
		}, []string{"task"}),
		liveReloadConns: prom.NewGauge(prom.GaugeOpts{
			Namespace: "assetpipe",
			Name:      "livereload_clients",
			Help:      "Connected live-reload clients",
		}),
		liveReloadEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "livereload_broadcasts_total",
			Help:      "Live-reload broadcasts by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.unitResults, pr.filesWritten, pr.liveReloadConns, pr.liveReloadEvents)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) IncUnitResult(task string, result ResultLabel) {
	if p == nil {
		return
	}
	p.unitResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) AddFilesWritten(task string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.filesWritten.WithLabelValues(task).Add(float64(n))
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil {
		return
	}
	p.liveReloadConns.Set(float64(n))
}

func (p *PrometheusRecorder) IncLiveReloadBroadcast(kind string) {
	if p == nil {
		return
	}
	p.liveReloadEvents.WithLabelValues(kind).Inc()
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
