// Package metrics provides task and live-reload metrics for assetpipe.
//
// Components receive a Recorder through their options. NoopRecorder is the
// default, so callers never need nil checks. PrometheusRecorder is wired in
// by the dev server, which also exposes it over HTTP:
//
//	reg := prometheus.NewRegistry()
//	recorder := metrics.NewPrometheusRecorder(reg)
//	mux.Handle("/__assetpipe/metrics", metrics.HTTPHandler(reg))
package metrics
