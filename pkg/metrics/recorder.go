// Package metrics provides Prometheus-based recording and querying for
// pipeline runs and stage calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records pipeline metrics for a run.
type Recorder interface {
	ObserveStage(agentType, model, status, errorType string, promptTokens, completionTokens int, cost float64, duration time.Duration)
	ObserveRun(status string, duration time.Duration, totalTokens int)
	ObserveTool(tool, status string, duration time.Duration)
	IncBreakerOpen(agentType string)
	IncDegradation(agentType string)
}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stagesTotal   *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	costsTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runTokens     prometheus.Histogram
	toolsTotal    *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	breakerOpens  *prometheus.CounterVec
	degradations  *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder registered on the default
// Prometheus registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		stagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stages_total",
				Help: "Total number of stage executions by agent type, model, and status",
			},
			[]string{"agent_type", "model", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_tokens_total",
				Help: "Total number of tokens consumed by stage executions",
			},
			[]string{"agent_type", "model", "type"},
		),
		costsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_costs_total",
				Help: "Total cost in USD for stage executions",
			},
			[]string{"agent_type", "model"},
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Duration of stage executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_type", "model"},
		),
		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline runs by terminal status",
			},
			[]string{"status"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "End-to-end duration of pipeline runs in seconds",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
			},
			[]string{"status"},
		),
		runTokens: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_tokens",
				Help:    "Total tokens consumed per run",
				Buckets: prometheus.ExponentialBuckets(256, 2, 12),
			},
		),
		toolsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_tools_total",
				Help: "Total number of tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_tool_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		breakerOpens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_breaker_open_total",
				Help: "Total number of stage calls rejected by an open circuit breaker",
			},
			[]string{"agent_type"},
		),
		degradations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_degradations_total",
				Help: "Total number of graceful degradations by failed agent type",
			},
			[]string{"agent_type"},
		),
	}
}

// ObserveStage records metrics for one completed stage execution.
func (p *PrometheusRecorder) ObserveStage(agentType, model, status, errorType string, promptTokens, completionTokens int, cost float64, duration time.Duration) {
	p.stagesTotal.WithLabelValues(agentType, model, status, errorType).Inc()
	if status == "success" {
		p.tokensTotal.WithLabelValues(agentType, model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(agentType, model, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(agentType, model).Add(cost)
	}
	p.stageDuration.WithLabelValues(agentType, model).Observe(duration.Seconds())
}

// ObserveRun records the terminal outcome of one pipeline run.
func (p *PrometheusRecorder) ObserveRun(status string, duration time.Duration, totalTokens int) {
	p.runsTotal.WithLabelValues(status).Inc()
	p.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	p.runTokens.Observe(float64(totalTokens))
}

// ObserveTool records one tool invocation.
func (p *PrometheusRecorder) ObserveTool(tool, status string, duration time.Duration) {
	p.toolsTotal.WithLabelValues(tool, status).Inc()
	p.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// IncBreakerOpen counts a stage call rejected by an open breaker.
func (p *PrometheusRecorder) IncBreakerOpen(agentType string) {
	p.breakerOpens.WithLabelValues(agentType).Inc()
}

// IncDegradation counts a graceful degradation taken for a failed stage.
func (p *PrometheusRecorder) IncDegradation(agentType string) {
	p.degradations.WithLabelValues(agentType).Inc()
}

// NopRecorder discards all observations. Used when metrics are disabled and
// in tests.
type NopRecorder struct{}

// ObserveStage implements Recorder.
func (NopRecorder) ObserveStage(_, _, _, _ string, _, _ int, _ float64, _ time.Duration) {}

// ObserveRun implements Recorder.
func (NopRecorder) ObserveRun(_ string, _ time.Duration, _ int) {}

// ObserveTool implements Recorder.
func (NopRecorder) ObserveTool(_, _ string, _ time.Duration) {}

// IncBreakerOpen implements Recorder.
func (NopRecorder) IncBreakerOpen(_ string) {}

// IncDegradation implements Recorder.
func (NopRecorder) IncDegradation(_ string) {}
