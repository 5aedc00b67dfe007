package phase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteforge/pkg/plan"
	"siteforge/pkg/proto"
	"siteforge/pkg/state"
	"siteforge/pkg/worker"
)

func newTestController(t *testing.T, cfg Config, producer worker.Producer) (*Controller, state.Store, string) {
	t.Helper()

	baseDir := t.TempDir()
	demoHTML := `<html><body><header></header><title>Example Site</title>` +
		`<p>Welcome to the example site.</p><footer></footer></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "index.html"), []byte(demoHTML), 0644))

	if cfg.BaseDir == "" {
		cfg.BaseDir = baseDir
	}
	if cfg.TargetURL == "" {
		cfg.TargetURL = "https://example.com"
	}

	store := state.NewMemStore()
	applier := plan.NewApplier(filepath.Join(baseDir, "backups"), baseDir, "test-run", nil)
	ctrl := NewController(cfg, Deps{
		Store:    store,
		Producer: producer,
		Applier:  applier,
	}, "test-run")
	return ctrl, store, baseDir
}

func TestRunCompletesThroughAllPhases(t *testing.T) {
	ctrl, store, baseDir := newTestController(t, Config{MaxIterations: 2}, worker.NewCannedProducer())

	require.NoError(t, ctrl.Run(context.Background()))

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, proto.ProjectComplete, doc.ProjectState)
	assert.Equal(t, 100, doc.CompletionPercentage)
	assert.Equal(t, 2, doc.CurrentIteration)
	for _, w := range proto.Workers {
		assert.Equal(t, proto.AgentComplete, doc.AgentStates[w], "worker %s", w)
	}
	require.NoError(t, doc.Validate())

	// The demo plan's footer fix landed in the working copy.
	content, err := os.ReadFile(filepath.Join(baseDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "<footer><p>© Example Site</p></footer>")
}

func TestWorkerErrorHaltsBeforeFinalizing(t *testing.T) {
	ctrl, store, _ := newTestController(t, Config{MaxIterations: 1}, worker.NewCannedProducer())

	// A feedback worker error written by another process.
	_, err := store.Update(func(d *proto.ProtocolDocument) {
		d.ProjectState = proto.ProjectEvaluating
		d.SetAgentError(proto.WorkerFeedback, "vision model unavailable")
	})
	require.NoError(t, err)

	err = ctrl.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectHalted)

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, proto.ProjectError, doc.ProjectState)
	assert.NotEqual(t, proto.ProjectFinalizing, doc.ProjectState)
	assert.Equal(t, "vision model unavailable", doc.ErrorStates[proto.WorkerFeedback])
}

// failingProducer errors on the configured capability.
type failingProducer struct {
	worker.Producer
	failPlan bool
}

func (f *failingProducer) ProducePlan(ctx context.Context, in *worker.PlanInput) (*plan.ImplementationPlan, error) {
	if f.failPlan {
		return nil, errors.New("producer exploded")
	}
	return f.Producer.ProducePlan(ctx, in)
}

func TestProducerFailureBecomesWorkerError(t *testing.T) {
	producer := &failingProducer{Producer: worker.NewCannedProducer(), failPlan: true}
	ctrl, store, _ := newTestController(t, Config{MaxIterations: 1}, producer)

	err := ctrl.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectHalted)

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, proto.ProjectError, doc.ProjectState)
	assert.Equal(t, proto.AgentError, doc.AgentStates[proto.WorkerImplementation])
	assert.Contains(t, doc.ErrorStates[proto.WorkerImplementation], "producer exploded")
}

// stalledProducer blocks in ProduceCrawl until the context ends.
type stalledProducer struct {
	worker.Producer
}

func (s *stalledProducer) ProduceCrawl(ctx context.Context, targetURL string) (*worker.CrawlArtifact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStallTimeoutFailsFast(t *testing.T) {
	producer := &stalledProducer{Producer: worker.NewCannedProducer()}
	ctrl, store, _ := newTestController(t, Config{MaxIterations: 1, StallTimeout: 50 * time.Millisecond}, producer)

	start := time.Now()
	err := ctrl.Run(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	doc, err2 := store.Read()
	require.NoError(t, err2)
	assert.Equal(t, proto.ProjectError, doc.ProjectState)
	assert.Contains(t, doc.ErrorStates[proto.WorkerCrawler], "stall")
}

func TestCompletionPercentageMonotonic(t *testing.T) {
	ctrl, store, _ := newTestController(t, Config{MaxIterations: 3}, worker.NewCannedProducer())

	// Observe every write through a wrapper store.
	var percentages []int
	observing := &observingStore{Store: store, onWrite: func(doc *proto.ProtocolDocument) {
		percentages = append(percentages, doc.CompletionPercentage)
	}}
	ctrl.deps.Store = observing

	require.NoError(t, ctrl.Run(context.Background()))

	last := 0
	for _, pct := range percentages {
		assert.GreaterOrEqual(t, pct, last, "completion percentage must never decrease")
		last = pct
	}
	assert.Equal(t, 100, last)
}

type observingStore struct {
	state.Store
	onWrite func(doc *proto.ProtocolDocument)
}

func (s *observingStore) Update(mutate func(doc *proto.ProtocolDocument)) (*proto.ProtocolDocument, error) {
	doc, err := s.Store.Update(mutate)
	if err == nil && s.onWrite != nil {
		s.onWrite(doc)
	}
	return doc, err
}

func TestResetTerminalDocumentBeginsNewRun(t *testing.T) {
	ctrl, store, _ := newTestController(t, Config{MaxIterations: 1}, worker.NewCannedProducer())
	require.NoError(t, ctrl.Run(context.Background()))

	doc, err := store.Read()
	require.NoError(t, err)
	require.Equal(t, proto.ProjectComplete, doc.ProjectState)

	// A terminal document reset back to idle states begins a new run.
	_, err = store.Update(func(d *proto.ProtocolDocument) {
		d.ResetForNewRun()
	})
	require.NoError(t, err)

	again := NewController(Config{
		MaxIterations: 1,
		TargetURL:     "https://example.com",
		BaseDir:       ctrl.cfg.BaseDir,
	}, ctrl.deps, "test-run-2")
	require.NoError(t, again.Run(context.Background()))

	doc, err = store.Read()
	require.NoError(t, err)
	assert.Equal(t, proto.ProjectComplete, doc.ProjectState)
	assert.Equal(t, 1, doc.CurrentIteration)
}

func TestCanceledContextStopsRun(t *testing.T) {
	ctrl, _, _ := newTestController(t, Config{MaxIterations: 1}, worker.NewCannedProducer())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ctrl.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
