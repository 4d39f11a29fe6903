package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "assetforge"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry       *prom.Registry
	stageDuration  *prom.HistogramVec
	buildDuration  *prom.HistogramVec
	stageResults   *prom.CounterVec
	buildOutcome   *prom.CounterVec
	artifactBytes  *prom.GaugeVec
	skippedLocales prom.Counter
}

// NewPrometheusRecorder constructs the metrics and registers them with reg (a fresh registry
// when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of individual build stages",
		Buckets:   prom.DefBuckets,
	}, []string{"stage"})
	pr.buildDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "build_duration_seconds",
		Help:      "Total build duration per target",
		Buckets:   prom.DefBuckets,
	}, []string{"target"})
	pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "stage_results_total",
		Help:      "Stage result counts by outcome",
	}, []string{"stage", "result"})
	pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "build_outcomes_total",
		Help:      "Target build outcomes by final status",
	}, []string{"target", "outcome"})
	pr.artifactBytes = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "artifact_bytes",
		Help:      "Size of the last written artifact",
	}, []string{"target", "artifact"})
	pr.skippedLocales = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_locales_total",
		Help:      "Locale directories skipped because of an invalid name",
	})
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome, pr.artifactBytes, pr.skippedLocales)
	return pr
}

// Registry exposes the underlying registry.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.registry }

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(target string, d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(target string, outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(target, string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetArtifactBytes(target, artifact string, n int) {
	if p == nil || p.artifactBytes == nil {
		return
	}
	p.artifactBytes.WithLabelValues(target, artifact).Set(float64(n))
}

func (p *PrometheusRecorder) IncSkippedLocales(n int) {
	if p == nil || p.skippedLocales == nil || n <= 0 {
		return
	}
	p.skippedLocales.Add(float64(n))
}

// WriteTextfile writes the registry to path in the node-exporter textfile format.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, p.registry)
}
