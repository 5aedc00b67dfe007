package limiter

import (
	"context"
	"errors"

	"siteforge/pkg/llm"
)

// CostFunc estimates the dollar cost of one completion from its token
// counts.
type CostFunc func(model string, promptTokens, completionTokens int) float64

// GuardedClient wraps an llm.Client with token-rate and daily-budget
// enforcement. Limit violations surface as classified errors so the retry
// layer backs off on rate limits and gives up on blown budgets.
type GuardedClient struct {
	client  llm.Client
	limiter *Limiter
	costFn  CostFunc
}

// NewGuardedClient wraps client with the limiter. costFn may be nil when no
// budget cap is configured.
func NewGuardedClient(client llm.Client, l *Limiter, costFn CostFunc) *GuardedClient {
	return &GuardedClient{client: client, limiter: l, costFn: costFn}
}

// Complete reserves tokens before the call and records realized spend after.
func (g *GuardedClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	model := g.client.GetModelName()

	if err := g.limiter.Reserve(model, reservationFor(in)); err != nil {
		return llm.CompletionResponse{}, classifyLimit(err)
	}

	resp, err := g.client.Complete(ctx, in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	if g.costFn != nil {
		cost := g.costFn(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		if spendErr := g.limiter.RecordSpend(model, cost); spendErr != nil {
			// The response already arrived; the cap bites on the next call.
			return resp, nil
		}
	}
	return resp, nil
}

// GetModelName returns the wrapped client's model name.
func (g *GuardedClient) GetModelName() string {
	return g.client.GetModelName()
}

// reservationFor estimates the token cost of a request: the response cap
// plus a rough character-count estimate of the prompt.
func reservationFor(in llm.CompletionRequest) int {
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	promptChars := 0
	for _, msg := range in.Messages {
		promptChars += len(msg.Content)
	}
	return maxTokens + promptChars/4
}

// classifyLimit maps limiter errors onto the LLM error taxonomy.
func classifyLimit(err error) error {
	switch {
	case errors.Is(err, ErrBudgetExceeded):
		return &llm.Error{Type: llm.ErrorTypeBudget, Err: err}
	case errors.Is(err, ErrRateLimit):
		return &llm.Error{Type: llm.ErrorTypeRateLimit, Err: err}
	default:
		return err
	}
}
