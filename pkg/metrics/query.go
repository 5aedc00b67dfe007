package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"siteforge/pkg/logx"
)

// RunMetrics represents aggregated metrics for one run.
type RunMetrics struct {
	RunID            string  `json:"run_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
	PlansApplied     int64   `json:"plans_applied"`
}

// QueryService queries run metrics back out of a Prometheus server.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
	logger   *logx.Logger
}

// NewQueryService creates a metrics query service for the given Prometheus
// server URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
		logger:   logx.NewLogger("metrics-query"),
	}, nil
}

// GetRunMetrics retrieves aggregated token, cost, and plan counts for a run,
// summed across all workers.
func (q *QueryService) GetRunMetrics(ctx context.Context, runID string) (*RunMetrics, error) {
	metrics := &RunMetrics{RunID: runID}

	promptQuery := fmt.Sprintf(`sum(siteforge_llm_tokens_total{run_id=%q, type="prompt"})`, runID)
	prompt, err := q.queryScalar(ctx, promptQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = int64(prompt)

	completionQuery := fmt.Sprintf(`sum(siteforge_llm_tokens_total{run_id=%q, type="completion"})`, runID)
	completion, err := q.queryScalar(ctx, completionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.CompletionTokens = int64(completion)
	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	costQuery := fmt.Sprintf(`sum(siteforge_llm_costs_total{run_id=%q})`, runID)
	cost, err := q.queryScalar(ctx, costQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query costs: %w", err)
	}
	metrics.TotalCost = cost

	plansQuery := fmt.Sprintf(`sum(siteforge_plans_applied_total{run_id=%q})`, runID)
	plans, err := q.queryScalar(ctx, plansQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans applied: %w", err)
	}
	metrics.PlansApplied = int64(plans)

	return metrics, nil
}

// queryScalar runs an instant query and returns the first vector sample, or
// zero when the series does not exist yet.
func (q *QueryService) queryScalar(ctx context.Context, query string) (float64, error) {
	result, warnings, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	for _, w := range warnings {
		q.logger.Warn("⚠️ Prometheus warning for %q: %s", query, w)
	}

	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
