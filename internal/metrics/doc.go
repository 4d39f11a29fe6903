// Package metrics provides build metrics for assetforge.
//
// Components receive a Recorder through dependency injection. NoopRecorder is the default so
// no call site needs a nil check; PrometheusRecorder backs the --metrics-file flag and writes
// its registry in the node-exporter textfile format at the end of a build.
//
//	rec := metrics.NewPrometheusRecorder(nil)
//	seq := pipeline.NewSequencer(cfg, pipeline.WithRecorder(rec))
//	...
//	_ = rec.WriteTextfile("build/assetforge.prom")
package metrics
