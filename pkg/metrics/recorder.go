// Package metrics provides Prometheus-based metrics recording and querying
// for siteforge runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records phase, patch, and LLM metrics for a run.
type Recorder struct {
	phaseTransitions *prometheus.CounterVec
	iterations       prometheus.Counter
	patchOps         *prometheus.CounterVec
	plansApplied     *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	llmCosts         *prometheus.CounterVec
	llmDuration      *prometheus.HistogramVec
}

// NewRecorder creates a recorder registered on the default registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith creates a recorder registered on reg. Tests pass a fresh
// registry to avoid duplicate registration.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		phaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_phase_transitions_total",
				Help: "Total number of project phase transitions by source and target state",
			},
			[]string{"from", "to"},
		),
		iterations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "siteforge_iterations_total",
				Help: "Total number of improvement iterations started",
			},
		),
		patchOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_patch_ops_total",
				Help: "Total number of patch operations by type and outcome",
			},
			[]string{"type", "status", "reason"},
		),
		plansApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_plans_applied_total",
				Help: "Total number of implementation plans applied by run",
			},
			[]string{"run_id"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_llm_requests_total",
				Help: "Total number of LLM requests by model, worker, and status",
			},
			[]string{"model", "worker", "run_id", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "worker", "run_id", "type"},
		),
		llmCosts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteforge_llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"model", "worker", "run_id"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteforge_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "worker"},
		),
	}
}

// ObservePhaseTransition records one project state transition.
func (r *Recorder) ObservePhaseTransition(from, to string) {
	r.phaseTransitions.WithLabelValues(from, to).Inc()
}

// ObserveIteration records the start of an improvement iteration.
func (r *Recorder) ObserveIteration() {
	r.iterations.Inc()
}

// ObservePatchOp records one patch operation outcome. Reason is empty for
// applied ops.
func (r *Recorder) ObservePatchOp(opType, status, reason string) {
	r.patchOps.WithLabelValues(opType, status, reason).Inc()
}

// ObservePlanApplied records one applied plan for the run.
func (r *Recorder) ObservePlanApplied(runID string) {
	r.plansApplied.WithLabelValues(runID).Inc()
}

// ObserveLLMRequest records a completed LLM request with token usage.
func (r *Recorder) ObserveLLMRequest(model, worker, runID string, promptTokens, completionTokens int, costUSD float64, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.llmRequests.WithLabelValues(model, worker, runID, status).Inc()
	if promptTokens > 0 {
		r.llmTokens.WithLabelValues(model, worker, runID, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		r.llmTokens.WithLabelValues(model, worker, runID, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		r.llmCosts.WithLabelValues(model, worker, runID).Add(costUSD)
	}
	r.llmDuration.WithLabelValues(model, worker).Observe(duration.Seconds())
}
