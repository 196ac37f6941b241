// Package observability exposes orchestration metrics as Prometheus
// collectors, driven by the domain lifecycle hooks.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/roam/pkg/domain"
)

// Metrics holds the orchestration collectors.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	planChanges   *prometheus.CounterVec
	thoughts      *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roam_stage_duration_seconds",
			Help:    "Duration of graph stage executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roam_stage_errors_total",
			Help: "Stage executions that returned an error.",
		}, []string{"stage"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roam_tool_calls_total",
			Help: "Tool call executions by outcome.",
		}, []string{"tool", "status"}),
		planChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roam_plan_changes_total",
			Help: "Plan replacements, split by replans.",
		}, []string{"replan"}),
		thoughts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roam_thoughts_total",
			Help: "Reasoning entries recorded per stage.",
		}, []string{"stage"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roam_model_fallbacks_total",
			Help: "Inference calls that fell back to the secondary model.",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.stageDuration, m.stageErrors, m.toolCalls,
		m.planChanges, m.thoughts, m.fallbacks,
	)
	return m
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnStageLeave: func(_ context.Context, e *domain.StageEvent) {
			m.stageDuration.WithLabelValues(e.Stage).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.stageErrors.WithLabelValues(e.Stage).Inc()
			}
		},
		OnPlanChanged: func(_ context.Context, e *domain.PlanEvent) {
			replan := "false"
			if e.Replan {
				replan = "true"
			}
			m.planChanges.WithLabelValues(replan).Inc()
		},
		OnThought: func(_ context.Context, e *domain.ThoughtEvent) {
			m.thoughts.WithLabelValues(e.Stage).Inc()
		},
		OnToolResult: func(_ context.Context, e *domain.ToolEvent) {
			status := "success"
			switch {
			case e.Aborted:
				status = "aborted"
			case e.IsError:
				status = "error"
			}
			m.toolCalls.WithLabelValues(e.Tool, status).Inc()
		},
		OnFallback: func(_ context.Context, stage string) {
			m.fallbacks.WithLabelValues(stage).Inc()
		},
	}
}

// Handler serves the collectors over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that aggregate
// multiple metric sources.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
