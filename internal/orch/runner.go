// Package orch wires configuration, storage, producers, and the phase
// controller into a runnable pipeline.
package orch

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"siteforge/pkg/config"
	"siteforge/pkg/eventlog"
	"siteforge/pkg/limiter"
	"siteforge/pkg/llm"
	"siteforge/pkg/llm/anthropic"
	"siteforge/pkg/llm/google"
	"siteforge/pkg/llm/ollama"
	"siteforge/pkg/llm/openai"
	"siteforge/pkg/logx"
	"siteforge/pkg/metrics"
	"siteforge/pkg/persistence"
	"siteforge/pkg/phase"
	"siteforge/pkg/plan"
	"siteforge/pkg/proto"
	"siteforge/pkg/state"
	"siteforge/pkg/worker"
)

// persistQueueSize bounds the fire-and-forget persistence channel.
const persistQueueSize = 256

// Runner owns the lifecycle of a single pipeline run: storage, producers,
// event log, persistence worker, and the phase controller.
type Runner struct {
	cfg     *config.Config
	logger  *logx.Logger
	runID   string
	store   state.Store
	events  *eventlog.Writer
	persist chan *persistence.Request
	guard   *limiter.Limiter
	cancel  context.CancelFunc
}

// NewRunner prepares a runner for the given configuration. Resources are
// opened lazily in Run.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logx.NewLogger("runner"),
		runID:  persistence.GenerateRunID(),
	}
}

// RunID returns the identifier assigned to this run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the full pipeline: open resources, drive the phase
// controller to a terminal state, and record the outcome.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	defer cancel()

	mode := persistence.ModeDemo
	if r.cfg.Live {
		mode = persistence.ModeLive
	}
	r.logger.Info("🚀 Starting run %s (%s mode) against %s", r.runID, mode, r.cfg.TargetURL)

	store, err := state.NewFileStore(filepath.Join(r.cfg.WorkDir, config.ProjectConfigDir, state.DefaultDocumentName))
	if err != nil {
		return fmt.Errorf("failed to open protocol document store: %w", err)
	}
	r.store = store

	events, err := eventlog.NewWriter(r.cfg.LogDir, r.cfg.EventLogRotationHours)
	if err != nil {
		return fmt.Errorf("failed to create event log: %w", err)
	}
	r.events = events
	defer func() {
		if closeErr := events.Close(); closeErr != nil {
			r.logger.Warn("⚠️ Failed to close event log: %v", closeErr)
		}
	}()

	if err := persistence.Initialize(r.cfg.DatabasePath, r.runID); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if closeErr := persistence.Close(); closeErr != nil {
			r.logger.Warn("⚠️ Failed to close database: %v", closeErr)
		}
	}()

	ops := persistence.Ops()
	if err := ops.InsertRun(&persistence.Run{
		ID:        r.runID,
		TargetURL: r.cfg.TargetURL,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	r.persist = make(chan *persistence.Request, persistQueueSize)
	go persistence.Worker(ctx, ops, r.persist)

	// Each run gets its own registry so repeated runs in one process never
	// collide on collector registration.
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorderWith(registry)
	if r.cfg.MetricsAddr != "" {
		r.serveMetrics(ctx, registry)
	}

	producer, err := r.buildProducer(recorder)
	if err != nil {
		return fmt.Errorf("failed to build producers: %w", err)
	}
	if r.guard != nil {
		defer r.guard.Close()
	}

	applier := plan.NewApplier(r.cfg.BackupDir, r.cfg.LogDir, r.runID, recorder)

	controller := phase.NewController(phase.Config{
		TargetURL:     r.cfg.TargetURL,
		BaseDir:       r.cfg.WorkDir,
		MaxIterations: r.cfg.MaxIterations,
		StallTimeout:  r.cfg.StallTimeout(),
	}, phase.Deps{
		Store:     r.store,
		Producer:  producer,
		Applier:   applier,
		Recorder:  recorder,
		Events:    events,
		PersistCh: r.persist,
	}, r.runID)

	runErr := controller.Run(ctx)

	finalState := string(proto.ProjectComplete)
	if runErr != nil {
		finalState = string(proto.ProjectError)
	}
	if err := ops.CompleteRun(r.runID, finalState, time.Now().UTC()); err != nil {
		r.logger.Warn("⚠️ Failed to record run completion: %v", err)
	}

	r.logSummary(ops)

	if runErr != nil {
		return fmt.Errorf("run %s failed: %w", r.runID, runErr)
	}
	r.logger.Info("✅ Run %s complete", r.runID)
	return nil
}

// serveMetrics exposes the run's registry for Prometheus scraping until the
// run context ends.
func (r *Runner) serveMetrics(ctx context.Context, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              r.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		r.logger.Info("📊 Serving metrics at http://%s/metrics", r.cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Warn("⚠️ Metrics server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// Stop cancels a running pipeline.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// buildProducer returns the canned producer in demo mode, or runbook-driven
// LLM producers routed per capability in live mode.
func (r *Runner) buildProducer(recorder *metrics.Recorder) (worker.Producer, error) {
	if !r.cfg.Live {
		r.logger.Info("📦 Demo mode: using canned producers")
		return worker.NewCannedProducer(), nil
	}

	runbook := config.DefaultRunbook()
	if r.cfg.RunbookPath != "" {
		loaded, err := config.LoadRunbook(r.cfg.RunbookPath)
		if err != nil {
			return nil, err
		}
		runbook = loaded
	}

	retryCfg := llm.DefaultRetryConfig
	if r.cfg.MaxRetryAttempts > 0 {
		retryCfg.MaxRetries = r.cfg.MaxRetryAttempts
	}
	if r.cfg.RetryBackoffMultiplier > 0 {
		retryCfg.BackoffFactor = r.cfg.RetryBackoffMultiplier
	}

	if r.cfg.MaxTokensPerMinute > 0 || r.cfg.DailyBudgetUSD > 0 {
		r.guard = limiter.NewLimiter()
	}

	routed := &routedProducer{}
	targets := []struct {
		dest **worker.LLMProducer
		w    proto.Worker
	}{
		{&routed.crawl, proto.WorkerCrawler},
		{&routed.analysis, proto.WorkerAnalysis},
		{&routed.implementation, proto.WorkerImplementation},
		{&routed.feedback, proto.WorkerFeedback},
	}
	for _, t := range targets {
		spec := runbook.SpecFor(t.w)
		client, err := newProviderClient(spec)
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", t.w, err)
		}
		if r.guard != nil {
			r.guard.AddModel(spec.Model, r.cfg.MaxTokensPerMinute, r.cfg.DailyBudgetUSD)
			client = limiter.NewGuardedClient(client, r.guard, worker.EstimateCostUSD)
		}
		retryable := llm.NewRetryableClient(client, retryCfg)
		*t.dest = worker.NewLLMProducer(retryable, r.runID, spec.PromptBudget, recorder, r.persist)
		r.logger.Info("🔧 Worker %s using %s/%s", t.w, spec.Provider, spec.Model)
	}
	return routed, nil
}

// newProviderClient builds the raw LLM client for one runbook entry. API
// keys resolve through the secrets file first, then the environment.
func newProviderClient(spec config.WorkerSpec) (llm.Client, error) {
	switch spec.Provider {
	case config.ProviderAnthropic:
		key, err := config.GetSecret(config.APIKeyEnv[config.ProviderAnthropic])
		if err != nil {
			return nil, err
		}
		return anthropic.NewClaudeClient(key, spec.Model), nil
	case config.ProviderOpenAI:
		key, err := config.GetSecret(config.APIKeyEnv[config.ProviderOpenAI])
		if err != nil {
			return nil, err
		}
		return openai.NewClient(key, spec.Model), nil
	case config.ProviderGoogle:
		key, err := config.GetSecret(config.APIKeyEnv[config.ProviderGoogle])
		if err != nil {
			return nil, err
		}
		return google.NewGeminiClient(key, spec.Model), nil
	case config.ProviderOllama:
		return ollama.NewClient(spec.HostURL, spec.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", spec.Provider)
	}
}

// routedProducer fans each capability out to the producer configured for
// the worker that owns it.
type routedProducer struct {
	crawl          *worker.LLMProducer
	analysis       *worker.LLMProducer
	implementation *worker.LLMProducer
	feedback       *worker.LLMProducer
}

func (p *routedProducer) ProduceCrawl(ctx context.Context, targetURL string) (*worker.CrawlArtifact, error) {
	return p.crawl.ProduceCrawl(ctx, targetURL)
}

func (p *routedProducer) ProduceAnalysis(ctx context.Context, crawl *worker.CrawlArtifact) (*worker.AnalysisArtifact, error) {
	return p.analysis.ProduceAnalysis(ctx, crawl)
}

func (p *routedProducer) ProducePlan(ctx context.Context, in *worker.PlanInput) (*plan.ImplementationPlan, error) {
	return p.implementation.ProducePlan(ctx, in)
}

func (p *routedProducer) ProduceFeedback(ctx context.Context, in *worker.FeedbackInput) (*plan.FeedbackRecord, error) {
	return p.feedback.ProduceFeedback(ctx, in)
}

// logSummary prints the cost ledger totals for this run.
func (r *Runner) logSummary(ops *persistence.DatabaseOperations) {
	summary, err := ops.GetRunSummary(r.runID)
	if err != nil {
		r.logger.Warn("⚠️ Failed to load run summary: %v", err)
		return
	}
	r.logger.Info("📋 Run summary: %d iterations, %d plans applied, %d prompt + %d completion tokens, $%.4f",
		summary.Iterations, summary.PlansApplied,
		summary.TotalPromptTok, summary.TotalCompleteTok, summary.TotalCostUSD)
}
