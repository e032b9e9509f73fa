// Package metrics exposes the process's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the engine's metric vectors. A nil *Collector is a
// valid no-op so callers never need to guard instrumentation sites.
type Collector struct {
	stageExecutions *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	routeDecisions  *prometheus.CounterVec
	checkpointSaves prometheus.Counter
	llmRequests     *prometheus.CounterVec
	searchRequests  *prometheus.CounterVec
}

// NewCollector registers the metric vectors on reg (default registerer
// when nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	const ns = "stagecraft"

	return &Collector{
		stageExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stage_executions_total",
			Help:      "Stage executions by workflow, stage and status.",
		}, []string{"workflow", "stage", "status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "stage_duration_seconds",
			Help:      "Stage execution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"workflow", "stage"}),
		routeDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "route_decisions_total",
			Help:      "Conditional edge decisions by label.",
		}, []string{"workflow", "stage", "label"}),
		checkpointSaves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "checkpoint_saves_total",
			Help:      "Checkpoints written.",
		}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "llm_requests_total",
			Help:      "LLM completions by model and status.",
		}, []string{"model", "status"}),
		searchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "search_requests_total",
			Help:      "Search provider calls by provider and status.",
		}, []string{"provider", "status"}),
	}
}

func (c *Collector) ObserveStage(workflow, stage, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageExecutions.WithLabelValues(workflow, stage, status).Inc()
	c.stageDuration.WithLabelValues(workflow, stage).Observe(d.Seconds())
}

func (c *Collector) RecordRoute(workflow, stage, label string) {
	if c == nil {
		return
	}
	c.routeDecisions.WithLabelValues(workflow, stage, label).Inc()
}

func (c *Collector) RecordCheckpoint() {
	if c == nil {
		return
	}
	c.checkpointSaves.Inc()
}

func (c *Collector) RecordLLM(model, status string) {
	if c == nil {
		return
	}
	c.llmRequests.WithLabelValues(model, status).Inc()
}

func (c *Collector) RecordSearch(provider, status string) {
	if c == nil {
		return
	}
	c.searchRequests.WithLabelValues(provider, status).Inc()
}
