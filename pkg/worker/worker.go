// Package worker defines the producer capabilities behind the pipeline
// workers. The controller owns phase movement; producers own the actual
// crawl, analysis, plan, and feedback content.
package worker

import (
	"context"
	"time"

	"siteforge/pkg/plan"
)

// CrawlArtifact is the captured snapshot of the target site.
type CrawlArtifact struct {
	FetchedAt time.Time `json:"fetched_at"`
	URL       string    `json:"url"`
	PageHTML  string    `json:"page_html"`
	Structure []string  `json:"structure"`
	Assets    []string  `json:"assets"`
}

// AnalysisArtifact is the structural assessment of a crawl snapshot.
type AnalysisArtifact struct {
	Summary          string   `json:"summary"`
	Technologies     []string `json:"technologies"`
	Sections         []string `json:"sections"`
	ImprovementAreas []string `json:"improvement_areas"`
}

// PlanInput carries everything the plan producer sees for one iteration.
type PlanInput struct {
	Crawl     *CrawlArtifact
	Analysis  *AnalysisArtifact
	Feedback  []*plan.FeedbackRecord
	Iteration int
}

// FeedbackInput carries the comparison material for the feedback producer.
type FeedbackInput struct {
	Crawl       *CrawlArtifact
	CurrentHTML string
	Iteration   int
}

// Producer supplies the content for each pipeline phase. Implementations
// must be safe for sequential reuse across iterations.
type Producer interface {
	ProduceCrawl(ctx context.Context, targetURL string) (*CrawlArtifact, error)
	ProduceAnalysis(ctx context.Context, crawl *CrawlArtifact) (*AnalysisArtifact, error)
	ProducePlan(ctx context.Context, in *PlanInput) (*plan.ImplementationPlan, error)
	ProduceFeedback(ctx context.Context, in *FeedbackInput) (*plan.FeedbackRecord, error)
}
