package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePhaseTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorderWith(reg)

	r.ObservePhaseTransition("planning", "crawling")
	r.ObservePhaseTransition("planning", "crawling")

	got := testutil.ToFloat64(r.phaseTransitions.WithLabelValues("planning", "crawling"))
	assert.Equal(t, 2.0, got)
}

func TestObservePatchOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorderWith(reg)

	r.ObservePatchOp("replace", "applied", "")
	r.ObservePatchOp("replace", "skipped", "original_not_found")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.patchOps.WithLabelValues("replace", "applied", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.patchOps.WithLabelValues("replace", "skipped", "original_not_found")))
}

func TestObserveLLMRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorderWith(reg)

	r.ObserveLLMRequest("claude-sonnet", "implementation", "run-1", 120, 40, 0.0123, true, 2*time.Second)

	assert.Equal(t, 120.0, testutil.ToFloat64(r.llmTokens.WithLabelValues("claude-sonnet", "implementation", "run-1", "prompt")))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.llmTokens.WithLabelValues("claude-sonnet", "implementation", "run-1", "completion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.llmRequests.WithLabelValues("claude-sonnet", "implementation", "run-1", "success")))
	assert.InDelta(t, 0.0123, testutil.ToFloat64(r.llmCosts.WithLabelValues("claude-sonnet", "implementation", "run-1")), 1e-9)
}

func TestRecorderMetricsAreScrapeable(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorderWith(reg)

	r.ObservePlanApplied("run-1")
	r.ObserveLLMRequest("claude-sonnet", "implementation", "run-1", 120, 40, 0.0123, true, time.Second)

	server := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `siteforge_plans_applied_total{run_id="run-1"} 1`)
	assert.Contains(t, string(body), "siteforge_llm_tokens_total")
	assert.Contains(t, string(body), "siteforge_llm_costs_total")
}
