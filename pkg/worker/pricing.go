package worker

import "strings"

// modelPricing maps model name prefixes to USD per million tokens. Prices
// are approximate list prices; unknown models (local Ollama models
// included) cost zero.
//
//nolint:gochecknoglobals // Static pricing table
var modelPricing = []struct {
	prefix       string
	promptPerM   float64
	completePerM float64
}{
	{"claude-opus", 15.0, 75.0},
	{"claude-sonnet", 3.0, 15.0},
	{"claude-haiku", 0.80, 4.0},
	{"gpt-5", 1.25, 10.0},
	{"gpt-4o", 2.50, 10.0},
	{"o3", 2.0, 8.0},
	{"gemini-2.5-pro", 1.25, 10.0},
	{"gemini-2.5-flash", 0.30, 2.50},
}

// EstimateCostUSD estimates the cost of one request from token usage.
func EstimateCostUSD(model string, promptTokens, completionTokens int) float64 {
	for _, p := range modelPricing {
		if strings.HasPrefix(model, p.prefix) {
			return float64(promptTokens)/1e6*p.promptPerM +
				float64(completionTokens)/1e6*p.completePerM
		}
	}
	return 0
}
