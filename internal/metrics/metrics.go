// Package metrics exposes Prometheus instrumentation for LLM calls, pipeline
// stages, refinement and compilation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/pipeline"
)

var latencyBuckets = []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160}

// Metrics holds every collector on a private registry so several instances
// can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	LLMCalls             *prometheus.CounterVec
	LLMLatency           *prometheus.HistogramVec
	StageDuration        *prometheus.HistogramVec
	Runs                 *prometheus.CounterVec
	RefinementIterations prometheus.Histogram
	FinalSeverity        *prometheus.CounterVec
	Compilations         *prometheus.CounterVec
	QualityOverall       prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LLMCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sctran_llm_calls_total",
			Help: "LLM completion calls by stage and outcome",
		}, []string{"stage", "outcome"}),
		LLMLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sctran_llm_call_duration_seconds",
			Help:    "Latency of single LLM completion calls",
			Buckets: latencyBuckets,
		}, []string{"stage"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sctran_stage_duration_seconds",
			Help:    "Duration of pipeline stages including retries",
			Buckets: latencyBuckets,
		}, []string{"stage"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sctran_runs_total",
			Help: "Translation runs by outcome (completed, cached, failed)",
		}, []string{"outcome"}),
		RefinementIterations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sctran_refinement_iterations",
			Help:    "Refinement passes per completed run",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
		FinalSeverity: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sctran_final_severity_total",
			Help: "Severity of the last audit of completed runs",
		}, []string{"severity"}),
		Compilations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sctran_compilations_total",
			Help: "Compilation checks by result (success, failure, unavailable)",
		}, []string{"result"}),
		QualityOverall: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sctran_quality_overall_score",
			Help:    "Overall quality score against reference implementations",
			Buckets: []float64{2, 4, 5, 6, 7, 8, 9, 10},
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLLM matches llm.ObserveFunc.
func (m *Metrics) ObserveLLM(stage string, latency time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.LLMCalls.WithLabelValues(stage, outcome).Inc()
	m.LLMLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

// OnStage implements pipeline.Observer.
func (m *Metrics) OnStage(e pipeline.Event) {
	if e.Phase != pipeline.PhaseFinished {
		return
	}
	m.StageDuration.WithLabelValues(string(e.Stage)).Observe(e.Duration.Seconds())
}

// OnFailure implements pipeline.Observer.
func (m *Metrics) OnFailure(string, error) {
	m.Runs.WithLabelValues("failed").Inc()
}

// OnResult implements pipeline.Observer.
func (m *Metrics) OnResult(res *pipeline.Result) {
	if res.Cached {
		m.Runs.WithLabelValues("cached").Inc()
		return
	}
	m.Runs.WithLabelValues("completed").Inc()
	m.RefinementIterations.Observe(float64(res.Iterations))
	m.FinalSeverity.WithLabelValues(string(res.Audit.SeverityLevel)).Inc()
	if res.Compilation != nil {
		m.ObserveCompilation(*res.Compilation)
	}
	if res.Quality != nil {
		m.QualityOverall.Observe(res.Quality.Overall)
	}
}

func (m *Metrics) ObserveCompilation(r compiler.Result) {
	switch {
	case r.Compiles == nil:
		m.Compilations.WithLabelValues("unavailable").Inc()
	case *r.Compiles:
		m.Compilations.WithLabelValues("success").Inc()
	default:
		m.Compilations.WithLabelValues("failure").Inc()
	}
}
