package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrometheus serves instant query responses, picking the sample value by
// substring match on the PromQL expression.
func fakePrometheus(t *testing.T, values map[string]float64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		query := r.FormValue("query")
		value := 0.0
		for needle, v := range values {
			if strings.Contains(query, needle) {
				value = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","warnings":["results may be truncated"],`+
			`"data":{"resultType":"vector","result":[{"metric":{},"value":[%d,"%g"]}]}}`,
			time.Now().Unix(), value)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetRunMetrics(t *testing.T) {
	server := fakePrometheus(t, map[string]float64{
		`type="prompt"`:     120,
		`type="completion"`: 40,
		"llm_costs":         0.0123,
		"plans_applied":     3,
	})

	query, err := NewQueryService(server.URL)
	require.NoError(t, err)

	got, err := query.GetRunMetrics(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(120), got.PromptTokens)
	assert.Equal(t, int64(40), got.CompletionTokens)
	assert.Equal(t, int64(160), got.TotalTokens)
	assert.InDelta(t, 0.0123, got.TotalCost, 1e-9)
	assert.Equal(t, int64(3), got.PlansApplied)
}

func TestGetRunMetricsMissingSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
	t.Cleanup(server.Close)

	query, err := NewQueryService(server.URL)
	require.NoError(t, err)

	// A run that was never scraped reads back as all zeros, not an error.
	got, err := query.GetRunMetrics(context.Background(), "run-missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalTokens)
	assert.Equal(t, 0.0, got.TotalCost)
}
