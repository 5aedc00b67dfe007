package worker

import (
	"context"
	"fmt"
	"time"

	"siteforge/pkg/patch"
	"siteforge/pkg/plan"
)

// CannedProducer serves fixed demo content so the full pipeline runs
// without API keys. Also the test double for controller tests.
type CannedProducer struct{}

// NewCannedProducer creates a producer with built-in demo content.
func NewCannedProducer() *CannedProducer {
	return &CannedProducer{}
}

const demoPageHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Example Site</title>
  <link rel="stylesheet" href="styles.css">
</head>
<body>
  <header><h1>Example Site</h1></header>
  <nav><a href="/">Home</a> <a href="/about">About</a></nav>
  <main>
    <p>Welcome to the example site.</p>
  </main>
  <footer></footer>
</body>
</html>`

// ProduceCrawl returns the demo capture for any URL.
func (c *CannedProducer) ProduceCrawl(_ context.Context, targetURL string) (*CrawlArtifact, error) {
	return &CrawlArtifact{
		URL:       targetURL,
		PageHTML:  demoPageHTML,
		Structure: []string{"header", "nav", "main", "footer"},
		Assets:    []string{"styles.css"},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// ProduceAnalysis returns the demo assessment.
func (c *CannedProducer) ProduceAnalysis(_ context.Context, crawl *CrawlArtifact) (*AnalysisArtifact, error) {
	return &AnalysisArtifact{
		Summary:      fmt.Sprintf("Static single-page site at %s with a standard header/nav/main/footer layout.", crawl.URL),
		Technologies: []string{"html", "css"},
		Sections:     crawl.Structure,
		ImprovementAreas: []string{
			"footer is empty",
			"main content is thin",
			"no meta description",
		},
	}, nil
}

// ProducePlan returns one edit per demo improvement area, shrinking as
// iterations progress.
func (c *CannedProducer) ProducePlan(_ context.Context, in *PlanInput) (*plan.ImplementationPlan, error) {
	switch in.Iteration {
	case 0, 1:
		return &plan.ImplementationPlan{
			Summary: "fill the empty footer and add a meta description",
			FileChanges: []plan.FileChange{{
				File: "index.html",
				Changes: []patch.ChangeOp{
					{Type: patch.OpReplace, Original: "<footer></footer>", New: "<footer><p>© Example Site</p></footer>"},
					{Type: patch.OpAdd, Selector: "<title>Example Site</title>", New: `  <meta name="description" content="Example site demo">`},
				},
			}},
		}, nil
	case 2:
		return &plan.ImplementationPlan{
			Summary: "expand the main content",
			FileChanges: []plan.FileChange{{
				File: "index.html",
				Changes: []patch.ChangeOp{
					{Type: patch.OpAdd, Selector: "<p>Welcome to the example site.</p>", New: "    <p>We publish weekly articles and demos.</p>"},
				},
			}},
		}, nil
	default:
		// Nothing left to improve.
		return &plan.ImplementationPlan{Summary: "no further changes"}, nil
	}
}

// ProduceFeedback reports done once the footer fix landed.
func (c *CannedProducer) ProduceFeedback(_ context.Context, in *FeedbackInput) (*plan.FeedbackRecord, error) {
	analysis := plan.FeedbackAnalysis{
		Differences: "working copy closely matches the captured site",
	}
	if in.Iteration <= 1 {
		analysis.Differences = "footer still empty compared to planned improvements"
		analysis.Improvements = []string{"footer content added"}
		analysis.Suggestions = []string{"expand main content next iteration"}
	}
	return &plan.FeedbackRecord{
		Timestamp: time.Now().UTC(),
		Analysis:  analysis,
	}, nil
}
