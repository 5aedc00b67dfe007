// Package phase drives the project through its ordered phase sequence. The
// controller is the only component that moves project_state; workers only
// ever mark their own agent state, and a worker error flips the whole
// project to error on the controller's next check.
package phase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"siteforge/pkg/eventlog"
	"siteforge/pkg/logx"
	"siteforge/pkg/metrics"
	"siteforge/pkg/persistence"
	"siteforge/pkg/plan"
	"siteforge/pkg/proto"
	"siteforge/pkg/state"
	"siteforge/pkg/worker"
)

// ErrWorkerStalled signals that a producer did not finish its phase within
// the configured stall timeout.
var ErrWorkerStalled = errors.New("worker did not complete before stall timeout")

// ErrProjectHalted signals that the run stopped in the error state. The
// document stays in error until it is manually reset.
var ErrProjectHalted = errors.New("project halted in error state")

// DefaultStallTimeout is the per-phase producer timeout when none is
// configured explicitly.
const DefaultStallTimeout = 10 * time.Minute

// Config controls one controller run.
type Config struct {
	TargetURL     string
	BaseDir       string
	MaxIterations int
	// StallTimeout bounds each producer call. Zero means wait
	// indefinitely, matching the patience of the original scripts.
	StallTimeout time.Duration
}

// Deps carries the controller's collaborators. Recorder, Events, and
// PersistCh are optional.
type Deps struct {
	Store     state.Store
	Producer  worker.Producer
	Applier   *plan.Applier
	Recorder  *metrics.Recorder
	Events    *eventlog.Writer
	PersistCh chan<- *persistence.Request
}

// Controller advances the protocol document phase by phase, invoking the
// producer at each working phase and the applier at implement.
type Controller struct {
	cfg    Config
	deps   Deps
	logger *logx.Logger
	runID  string

	// Per-run artifacts handed from phase to phase.
	crawl    *worker.CrawlArtifact
	analysis *worker.AnalysisArtifact
	feedback []*plan.FeedbackRecord
}

// phaseWorker maps each phase to the worker that owns it.
//
//nolint:gochecknoglobals // Static phase table
var phaseWorker = map[proto.ProjectState]proto.Worker{
	proto.ProjectInitializing: proto.WorkerOrchestrator,
	proto.ProjectPlanning:     proto.WorkerOrchestrator,
	proto.ProjectCrawling:     proto.WorkerCrawler,
	proto.ProjectAnalyzing:    proto.WorkerAnalysis,
	proto.ProjectImplementing: proto.WorkerImplementation,
	proto.ProjectEvaluating:   proto.WorkerFeedback,
	proto.ProjectFinalizing:   proto.WorkerOrchestrator,
	proto.ProjectIterating:    proto.WorkerOrchestrator,
}

// phaseCheckpoints are the monotonic completion percentages reached on
// entering each phase.
//
//nolint:gochecknoglobals // Static phase table
var phaseCheckpoints = map[proto.ProjectState]int{
	proto.ProjectPlanning:     5,
	proto.ProjectCrawling:     10,
	proto.ProjectAnalyzing:    30,
	proto.ProjectImplementing: 60,
	proto.ProjectEvaluating:   80,
	proto.ProjectFinalizing:   90,
	proto.ProjectIterating:    90,
	proto.ProjectComplete:     100,
}

// NewController creates a controller for one run.
func NewController(cfg Config, deps Deps, runID string) *Controller {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1
	}
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		logger: logx.NewLogger("phase-controller"),
		runID:  runID,
	}
}

// Run advances phases until the document is terminal. It returns nil when
// the project completes and ErrProjectHalted (wrapped) when it errors.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("🚀 Starting run %s against %s (max %d iterations)", c.runID, c.cfg.TargetURL, c.cfg.MaxIterations)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("controller canceled: %w", err)
		}

		doc, err := c.deps.Store.Read()
		if err != nil {
			return fmt.Errorf("failed to read protocol document: %w", err)
		}

		switch {
		case doc.ProjectState == proto.ProjectComplete:
			c.logger.Info("✅ Run %s complete after %d iterations", c.runID, doc.CurrentIteration)
			return nil
		case doc.ProjectState == proto.ProjectError:
			return fmt.Errorf("%w: workers %v", ErrProjectHalted, doc.ErroredWorkers())
		case len(doc.ErroredWorkers()) > 0:
			c.haltOnWorkerErrors(doc)
			continue
		}

		if err := c.step(ctx, doc); err != nil {
			return err
		}
	}
}

// step executes the body of the current phase then transitions forward.
// Producer failures mark the owning worker errored and return nil: the
// next loop pass surfaces them through the error-state check.
func (c *Controller) step(ctx context.Context, doc *proto.ProtocolDocument) error {
	current := doc.ProjectState
	w := phaseWorker[current]

	switch current {
	case proto.ProjectInitializing:
		return c.advance(current, proto.ProjectPlanning)

	case proto.ProjectPlanning:
		// Fresh iteration artifacts for the run.
		c.crawl = nil
		c.analysis = nil
		return c.advance(current, proto.ProjectCrawling)

	case proto.ProjectCrawling:
		if err := c.runCrawl(ctx); err != nil {
			return c.failWorker(w, err)
		}
		c.persistIteration(doc.CurrentIteration)
		return c.advance(current, proto.ProjectAnalyzing)

	case proto.ProjectAnalyzing:
		if err := c.runAnalysis(ctx); err != nil {
			return c.failWorker(w, err)
		}
		return c.advance(current, proto.ProjectImplementing)

	case proto.ProjectImplementing:
		if err := c.runImplement(ctx, doc.CurrentIteration); err != nil {
			return c.failWorker(w, err)
		}
		return c.advance(current, proto.ProjectEvaluating)

	case proto.ProjectEvaluating:
		if err := c.runEvaluate(ctx, doc.CurrentIteration); err != nil {
			return c.failWorker(w, err)
		}
		return c.advance(current, proto.ProjectFinalizing)

	case proto.ProjectFinalizing:
		if doc.CurrentIteration < c.cfg.MaxIterations {
			return c.advance(current, proto.ProjectIterating)
		}
		return c.complete()

	case proto.ProjectIterating:
		return c.advance(current, proto.ProjectCrawling)

	default:
		return fmt.Errorf("unexpected project state: %s", current)
	}
}

// advance marks the current phase's worker complete and enters the next
// phase with its worker active and its completion checkpoint applied.
func (c *Controller) advance(from, to proto.ProjectState) error {
	var iteration int
	_, err := c.deps.Store.Update(func(d *proto.ProtocolDocument) {
		d.SetAgentState(phaseWorker[from], proto.AgentComplete)
		d.SetAgentState(phaseWorker[to], proto.AgentActive)
		d.ProjectState = to

		if to == proto.ProjectCrawling {
			d.CurrentIteration++
		}
		if cp, ok := phaseCheckpoints[to]; ok && cp > d.CompletionPercentage {
			d.CompletionPercentage = cp
		}
		iteration = d.CurrentIteration
	})
	if err != nil {
		return fmt.Errorf("failed to enter phase %s: %w", to, err)
	}

	if to == proto.ProjectCrawling && c.deps.Recorder != nil {
		c.deps.Recorder.ObserveIteration()
	}
	c.observeTransition(from, to)
	c.emitPhaseEvent(to, iteration)
	c.logger.Info("📋 Phase %s → %s (iteration %d)", from, to, iteration)
	return nil
}

// complete drives the terminal transition: every worker complete, 100%.
func (c *Controller) complete() error {
	_, err := c.deps.Store.Update(func(d *proto.ProtocolDocument) {
		for _, w := range proto.Workers {
			d.SetAgentState(w, proto.AgentComplete)
		}
		d.ProjectState = proto.ProjectComplete
		d.CompletionPercentage = 100
	})
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	c.observeTransition(proto.ProjectFinalizing, proto.ProjectComplete)
	c.emitPhaseEvent(proto.ProjectComplete, c.cfg.MaxIterations)
	return nil
}

// failWorker records a worker error in the document. The project moves to
// error on the controller's next check, not here.
func (c *Controller) failWorker(w proto.Worker, cause error) error {
	c.logger.Error("Worker %s failed: %v", w, cause)

	_, err := c.deps.Store.Update(func(d *proto.ProtocolDocument) {
		d.SetAgentError(w, cause.Error())
	})
	if err != nil {
		return fmt.Errorf("failed to record %s error: %w", w, err)
	}
	return nil
}

// haltOnWorkerErrors flips the project to error because of errored workers.
func (c *Controller) haltOnWorkerErrors(doc *proto.ProtocolDocument) {
	errored := doc.ErroredWorkers()
	from := doc.ProjectState

	_, err := c.deps.Store.Update(func(d *proto.ProtocolDocument) {
		d.ProjectState = proto.ProjectError
	})
	if err != nil {
		c.logger.Error("Failed to record project error state: %v", err)
		return
	}

	c.observeTransition(from, proto.ProjectError)
	for _, w := range errored {
		msg := proto.NewMessage(proto.MsgTypeError, w, proto.WorkerOrchestrator)
		msg.SetPayload("error", doc.ErrorStates[w])
		c.emit(msg)
	}
	c.logger.Error("Project halted: workers %v reported errors", errored)
}

// runCrawl captures the target site.
func (c *Controller) runCrawl(ctx context.Context) error {
	phaseCtx, cancel := c.phaseContext(ctx)
	defer cancel()

	crawl, err := c.deps.Producer.ProduceCrawl(phaseCtx, c.cfg.TargetURL)
	if err != nil {
		return c.classifyStall(phaseCtx, err)
	}
	c.crawl = crawl
	return c.materializeCrawl(crawl)
}

// materializeCrawl writes the captured page into the working copy so the
// implement phase has a file to patch. The working copy is never
// overwritten: later iterations re-crawl the target but keep the improved
// local page.
func (c *Controller) materializeCrawl(crawl *worker.CrawlArtifact) error {
	if crawl == nil || crawl.PageHTML == "" {
		return nil
	}
	path := filepath.Join(c.cfg.BaseDir, "index.html")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(c.cfg.BaseDir, 0755); err != nil {
		return fmt.Errorf("failed to create working copy directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(crawl.PageHTML), 0644); err != nil {
		return fmt.Errorf("failed to materialize crawled page: %w", err)
	}
	c.logger.Info("📦 Materialized crawled page at %s", path)
	return nil
}

// runAnalysis assesses the capture.
func (c *Controller) runAnalysis(ctx context.Context) error {
	phaseCtx, cancel := c.phaseContext(ctx)
	defer cancel()

	analysis, err := c.deps.Producer.ProduceAnalysis(phaseCtx, c.crawl)
	if err != nil {
		return c.classifyStall(phaseCtx, err)
	}
	c.analysis = analysis
	return nil
}

// runImplement obtains a plan and hands it to the applier. An empty plan is
// a valid no-op iteration.
func (c *Controller) runImplement(ctx context.Context, iteration int) error {
	phaseCtx, cancel := c.phaseContext(ctx)
	defer cancel()

	p, err := c.deps.Producer.ProducePlan(phaseCtx, &worker.PlanInput{
		Crawl:     c.crawl,
		Analysis:  c.analysis,
		Feedback:  c.feedback,
		Iteration: iteration,
	})
	if err != nil {
		return c.classifyStall(phaseCtx, err)
	}

	report, err := c.deps.Applier.Apply(phaseCtx, p, c.cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("plan application failed: %w", err)
	}
	c.persistPlan(p, report, iteration)
	return nil
}

// runEvaluate obtains feedback and folds it into the next iteration's input.
func (c *Controller) runEvaluate(ctx context.Context, iteration int) error {
	phaseCtx, cancel := c.phaseContext(ctx)
	defer cancel()

	currentHTML := ""
	if c.crawl != nil {
		currentHTML = c.crawl.PageHTML
	}
	record, err := c.deps.Producer.ProduceFeedback(phaseCtx, &worker.FeedbackInput{
		Crawl:       c.crawl,
		CurrentHTML: currentHTML,
		Iteration:   iteration,
	})
	if err != nil {
		return c.classifyStall(phaseCtx, err)
	}
	c.feedback = append(c.feedback, record)
	return nil
}

// phaseContext bounds a producer call by the stall timeout, when fail-fast
// is configured.
func (c *Controller) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.StallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.StallTimeout)
}

// classifyStall converts a deadline expiry into the explicit stall error.
func (c *Controller) classifyStall(phaseCtx context.Context, err error) error {
	if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %v", ErrWorkerStalled, c.cfg.StallTimeout, err)
	}
	return err
}

func (c *Controller) observeTransition(from, to proto.ProjectState) {
	if c.deps.Recorder != nil {
		c.deps.Recorder.ObservePhaseTransition(string(from), string(to))
	}
}

// emitPhaseEvent logs a phase-entry notification to the event log.
func (c *Controller) emitPhaseEvent(to proto.ProjectState, iteration int) {
	dest, ok := phaseWorker[to]
	if !ok {
		dest = proto.WorkerOrchestrator
	}
	msg := proto.NewMessage(proto.MsgTypeNotification, proto.WorkerOrchestrator, dest)
	msg.SetPayload("phase", string(to))
	msg.SetPayload("iteration", iteration)
	msg.SetPayload("run_id", c.runID)
	c.emit(msg)
}

func (c *Controller) emit(msg *proto.Message) {
	if c.deps.Events == nil {
		return
	}
	if err := c.deps.Events.WriteMessage(msg); err != nil {
		c.logger.Warn("⚠️ Event log write failed: %v", err)
	}
}

func (c *Controller) persistIteration(iteration int) {
	persistence.PersistIteration(&persistence.Iteration{
		RunID:     c.runID,
		Iteration: iteration,
		StartedAt: time.Now().UTC(),
	}, c.deps.PersistCh)
}

func (c *Controller) persistPlan(p *plan.ImplementationPlan, report *plan.ApplyReport, iteration int) {
	if c.deps.PersistCh == nil || p.IsEmpty() {
		return
	}

	record := &persistence.PlanRecord{
		ID:           persistence.GeneratePlanID(),
		RunID:        c.runID,
		Iteration:    iteration,
		Summary:      p.Summary,
		FilesPatched: len(report.FileResults),
		OpsApplied:   report.Applied,
		OpsSkipped:   report.Skipped,
		BackupPath:   report.BackupDir,
		AppliedAt:    time.Now().UTC(),
	}
	persistence.PersistPlan(record, c.deps.PersistCh)

	for _, fileResult := range report.FileResults {
		for i := range fileResult.Outcomes {
			o := &fileResult.Outcomes[i]
			persistence.PersistPatchOp(&persistence.PatchOpRecord{
				PlanID: record.ID,
				File:   fileResult.File,
				OpType: string(o.Type),
				Status: string(o.Status),
				Reason: o.Reason,
			}, c.deps.PersistCh)
		}
	}
}
