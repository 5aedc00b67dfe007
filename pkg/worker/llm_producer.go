package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"siteforge/pkg/llm"
	"siteforge/pkg/logx"
	"siteforge/pkg/metrics"
	"siteforge/pkg/persistence"
	"siteforge/pkg/plan"
	"siteforge/pkg/proto"
	"siteforge/pkg/utils"
)

// DefaultPromptBudget caps the user prompt when no budget is configured.
const DefaultPromptBudget = 6000

// LLMProducer backs every producer capability with one LLM client.
// Plan and feedback replies are parsed leniently: unusable output degrades
// to an empty result, never a fatal error.
type LLMProducer struct {
	client    llm.Client
	logger    *logx.Logger
	counter   *utils.TokenCounter
	recorder  *metrics.Recorder
	persistCh chan<- *persistence.Request
	runID     string
	budget    int
}

// NewLLMProducer creates a producer over client. budget caps user prompt
// tokens (0 means DefaultPromptBudget). recorder and persistCh may be nil.
func NewLLMProducer(client llm.Client, runID string, budget int, recorder *metrics.Recorder, persistCh chan<- *persistence.Request) *LLMProducer {
	if budget <= 0 {
		budget = DefaultPromptBudget
	}

	logger := logx.NewLogger("producer")
	counter, err := utils.NewTokenCounter(client.GetModelName())
	if err != nil {
		logger.Warn("⚠️ Tokenizer unavailable, falling back to character estimation: %v", err)
		counter = nil
	}

	return &LLMProducer{
		client:    client,
		logger:    logger,
		counter:   counter,
		recorder:  recorder,
		persistCh: persistCh,
		runID:     runID,
		budget:    budget,
	}
}

// ProduceCrawl captures the target site through the model. Malformed output
// degrades to a raw-HTML artifact instead of failing the phase.
func (p *LLMProducer) ProduceCrawl(ctx context.Context, targetURL string) (*CrawlArtifact, error) {
	prompt := fmt.Sprintf("Capture the website at %s.", targetURL)
	content, err := p.complete(ctx, proto.WorkerCrawler, crawlSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("crawl producer failed: %w", err)
	}

	artifact := CrawlArtifact{URL: targetURL, FetchedAt: time.Now().UTC()}
	if err := json.Unmarshal(plan.ExtractJSON([]byte(content)), &artifact); err != nil || artifact.PageHTML == "" {
		p.logger.Warn("⚠️ Crawl reply was not structured, keeping raw content")
		artifact.PageHTML = content
	}
	artifact.URL = targetURL
	if artifact.FetchedAt.IsZero() {
		artifact.FetchedAt = time.Now().UTC()
	}
	return &artifact, nil
}

// ProduceAnalysis assesses a crawl snapshot.
func (p *LLMProducer) ProduceAnalysis(ctx context.Context, crawl *CrawlArtifact) (*AnalysisArtifact, error) {
	prompt := fmt.Sprintf("Analyze this captured site (%s):\n\n%s", crawl.URL, crawl.PageHTML)
	content, err := p.complete(ctx, proto.WorkerAnalysis, analysisSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("analysis producer failed: %w", err)
	}

	var artifact AnalysisArtifact
	if err := json.Unmarshal(plan.ExtractJSON([]byte(content)), &artifact); err != nil || artifact.Summary == "" {
		p.logger.Warn("⚠️ Analysis reply was not structured, keeping raw summary")
		artifact.Summary = content
	}
	return &artifact, nil
}

// ProducePlan proposes edits for one iteration.
func (p *LLMProducer) ProducePlan(ctx context.Context, in *PlanInput) (*plan.ImplementationPlan, error) {
	content, err := p.complete(ctx, proto.WorkerImplementation, planSystemPrompt, buildPlanPrompt(in))
	if err != nil {
		return nil, fmt.Errorf("plan producer failed: %w", err)
	}

	parsed, ok := plan.ParsePlan([]byte(content))
	if !ok {
		p.logger.Warn("⚠️ Plan reply unusable, continuing with empty plan (iteration %d)", in.Iteration)
	}
	return parsed, nil
}

// ProduceFeedback reviews the current working copy against the capture.
func (p *LLMProducer) ProduceFeedback(ctx context.Context, in *FeedbackInput) (*plan.FeedbackRecord, error) {
	content, err := p.complete(ctx, proto.WorkerFeedback, feedbackSystemPrompt, buildFeedbackPrompt(in))
	if err != nil {
		return nil, fmt.Errorf("feedback producer failed: %w", err)
	}

	record, ok := plan.ParseFeedback([]byte(content))
	if !ok {
		p.logger.Warn("⚠️ Feedback reply unusable, recording empty analysis (iteration %d)", in.Iteration)
	}
	return record, nil
}

// complete sends one budgeted request and records metrics plus a cost
// ledger entry.
func (p *LLMProducer) complete(ctx context.Context, worker proto.Worker, system, user string) (string, error) {
	user = p.truncate(user)

	req := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureDefault,
	}

	start := time.Now()
	resp, err := p.client.Complete(ctx, req)
	duration := time.Since(start)

	model := p.client.GetModelName()
	cost := EstimateCostUSD(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if p.recorder != nil {
		p.recorder.ObserveLLMRequest(model, string(worker), p.runID,
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost, err == nil, duration)
	}
	if err != nil {
		return "", err
	}

	persistence.PersistLLMCost(&persistence.LLMCost{
		ID:               persistence.GenerateCostID(),
		RunID:            p.runID,
		Worker:           string(worker),
		Model:            model,
		PromptTokens:     int64(resp.Usage.PromptTokens),
		CompletionTokens: int64(resp.Usage.CompletionTokens),
		CostUSD:          cost,
		CreatedAt:        time.Now().UTC(),
	}, p.persistCh)

	return resp.Content, nil
}

func (p *LLMProducer) truncate(text string) string {
	if p.counter == nil {
		limit := p.budget * 4 // 4 chars ≈ 1 token
		if len(text) > limit {
			return text[:limit] + "..."
		}
		return text
	}
	return p.counter.TruncateToTokenLimit(text, p.budget)
}

func buildPlanPrompt(in *PlanInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Iteration %d.\n\n", in.Iteration)
	if in.Crawl != nil {
		fmt.Fprintf(&b, "Captured site (%s):\n%s\n\n", in.Crawl.URL, in.Crawl.PageHTML)
	}
	if in.Analysis != nil {
		fmt.Fprintf(&b, "Analysis: %s\n", in.Analysis.Summary)
		for _, area := range in.Analysis.ImprovementAreas {
			fmt.Fprintf(&b, "- improve: %s\n", area)
		}
		b.WriteString("\n")
	}
	for _, fb := range in.Feedback {
		fmt.Fprintf(&b, "Prior feedback (%s): %s\n", fb.Timestamp.Format(time.RFC3339), fb.Analysis.Differences)
		for _, s := range fb.Analysis.Suggestions {
			fmt.Fprintf(&b, "- suggestion: %s\n", s)
		}
	}
	b.WriteString("\nPropose the next set of edits.")
	return b.String()
}

func buildFeedbackPrompt(in *FeedbackInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Iteration %d.\n\n", in.Iteration)
	if in.Crawl != nil {
		fmt.Fprintf(&b, "Original capture (%s):\n%s\n\n", in.Crawl.URL, in.Crawl.PageHTML)
	}
	fmt.Fprintf(&b, "Current working copy:\n%s\n", in.CurrentHTML)
	b.WriteString("\nReport differences and what to improve next.")
	return b.String()
}
