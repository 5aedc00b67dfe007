package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// Helper function to create a new database for each test.
func createTestDB(t *testing.T) *DatabaseOperations {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewDatabaseOperations(db, "test-run")
}

func startTestRun(t *testing.T, ops *DatabaseOperations) string {
	t.Helper()

	runID := GenerateRunID()
	err := ops.InsertRun(&Run{
		ID:        runID,
		TargetURL: "https://example.com",
		Mode:      ModeDemo,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to insert run: %v", err)
	}
	return runID
}

func TestRunLifecycle(t *testing.T) {
	ops := createTestDB(t)
	runID := startTestRun(t, ops)

	run, err := ops.GetRunByID(runID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if run.TargetURL != "https://example.com" {
		t.Errorf("Expected target URL %q, got %q", "https://example.com", run.TargetURL)
	}
	if run.CompletedAt != nil {
		t.Error("New run should not have a completion time")
	}

	if err := ops.CompleteRun(runID, "complete", time.Now().UTC()); err != nil {
		t.Fatalf("Failed to complete run: %v", err)
	}

	run, err = ops.GetRunByID(runID)
	if err != nil {
		t.Fatalf("Failed to get run after completion: %v", err)
	}
	if run.FinalState != "complete" {
		t.Errorf("Expected final state %q, got %q", "complete", run.FinalState)
	}
	if run.CompletedAt == nil {
		t.Error("Completed run should have a completion time")
	}
}

func TestCompleteRunMissing(t *testing.T) {
	ops := createTestDB(t)

	if err := ops.CompleteRun("no-such-run", "complete", time.Now().UTC()); err == nil {
		t.Error("Completing a missing run should fail")
	}
}

func TestIterationUpsert(t *testing.T) {
	ops := createTestDB(t)
	runID := startTestRun(t, ops)

	it := &Iteration{RunID: runID, Iteration: 1, CompletionPct: 10, StartedAt: time.Now().UTC()}
	if err := ops.InsertIteration(it); err != nil {
		t.Fatalf("Failed to insert iteration: %v", err)
	}

	// Re-inserting the same iteration updates rather than fails.
	it.CompletionPct = 30
	if err := ops.InsertIteration(it); err != nil {
		t.Fatalf("Failed to upsert iteration: %v", err)
	}

	if err := ops.CompleteIteration(runID, 1, 60, time.Now().UTC()); err != nil {
		t.Fatalf("Failed to complete iteration: %v", err)
	}

	summary, err := ops.GetRunSummary(runID)
	if err != nil {
		t.Fatalf("Failed to get run summary: %v", err)
	}
	if summary.Iterations != 1 {
		t.Errorf("Expected 1 iteration, got %d", summary.Iterations)
	}
}

func TestPlanAndPatchOps(t *testing.T) {
	ops := createTestDB(t)
	runID := startTestRun(t, ops)

	planID := GeneratePlanID()
	err := ops.InsertPlan(&PlanRecord{
		ID:           planID,
		RunID:        runID,
		Iteration:    1,
		Summary:      "fix footer",
		FilesPatched: 1,
		OpsApplied:   2,
		OpsSkipped:   1,
		BackupPath:   "/tmp/backups/20260830-120000",
		AppliedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to insert plan: %v", err)
	}

	outcomes := []*PatchOpRecord{
		{PlanID: planID, File: "index.html", OpType: "replace", Status: "applied"},
		{PlanID: planID, File: "index.html", OpType: "add", Status: "applied"},
		{PlanID: planID, File: "index.html", OpType: "remove", Status: "skipped", Reason: "original_not_found"},
	}
	for _, op := range outcomes {
		if err := ops.InsertPatchOp(op); err != nil {
			t.Fatalf("Failed to insert patch op: %v", err)
		}
	}

	summary, err := ops.GetRunSummary(runID)
	if err != nil {
		t.Fatalf("Failed to get run summary: %v", err)
	}
	if summary.PlansApplied != 1 {
		t.Errorf("Expected 1 plan, got %d", summary.PlansApplied)
	}
}

func TestCostLedger(t *testing.T) {
	ops := createTestDB(t)
	runID := startTestRun(t, ops)

	costs := []*LLMCost{
		{ID: GenerateCostID(), RunID: runID, Worker: "implementation", Model: "claude-sonnet-4-20250514",
			PromptTokens: 1200, CompletionTokens: 400, CostUSD: 0.0096, CreatedAt: time.Now().UTC()},
		{ID: GenerateCostID(), RunID: runID, Worker: "feedback", Model: "claude-sonnet-4-20250514",
			PromptTokens: 800, CompletionTokens: 200, CostUSD: 0.0054, CreatedAt: time.Now().UTC()},
	}
	for _, c := range costs {
		if err := ops.InsertLLMCost(c); err != nil {
			t.Fatalf("Failed to insert llm cost: %v", err)
		}
	}

	summary, err := ops.GetRunSummary(runID)
	if err != nil {
		t.Fatalf("Failed to get run summary: %v", err)
	}
	if summary.TotalPromptTok != 2000 {
		t.Errorf("Expected 2000 prompt tokens, got %d", summary.TotalPromptTok)
	}
	if summary.TotalCompleteTok != 600 {
		t.Errorf("Expected 600 completion tokens, got %d", summary.TotalCompleteTok)
	}
	if summary.TotalCostUSD < 0.014 || summary.TotalCostUSD > 0.016 {
		t.Errorf("Expected total cost around 0.015, got %f", summary.TotalCostUSD)
	}
}

func TestGetCostsByWorker(t *testing.T) {
	ops := createTestDB(t)
	runID := startTestRun(t, ops)
	ops.runID = runID

	cost := &LLMCost{
		ID: GenerateCostID(), RunID: runID, Worker: "implementation",
		Model: "llama3", PromptTokens: 100, CompletionTokens: 50, CostUSD: 0, CreatedAt: time.Now().UTC(),
	}
	if err := ops.InsertLLMCost(cost); err != nil {
		t.Fatalf("Failed to insert llm cost: %v", err)
	}

	got, err := ops.GetCostsByWorker("implementation")
	if err != nil {
		t.Fatalf("Failed to query costs: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 cost entry, got %d", len(got))
	}
	if got[0].Model != "llama3" {
		t.Errorf("Expected model llama3, got %s", got[0].Model)
	}

	empty, err := ops.GetCostsByWorker("crawler")
	if err != nil {
		t.Fatalf("Failed to query costs: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no entries for crawler, got %d", len(empty))
	}
}

func TestWorkerFireAndForget(t *testing.T) {
	ops := createTestDB(t)
	runID := startTestRun(t, ops)

	requests := make(chan *Request, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Worker(ctx, ops, requests)
		close(done)
	}()

	PersistLLMCost(&LLMCost{
		ID: GenerateCostID(), RunID: runID, Worker: "feedback",
		Model: "gpt-5", PromptTokens: 10, CompletionTokens: 5, CreatedAt: time.Now().UTC(),
	}, requests)

	// Query through the worker to observe the prior write.
	response := make(chan interface{}, 1)
	requests <- &Request{Operation: OpGetRunSummary, Data: runID, Response: response}

	select {
	case result := <-response:
		summary, ok := result.(*RunSummary)
		if !ok || summary == nil {
			t.Fatal("Expected a run summary from the worker")
		}
		if summary.TotalPromptTok != 10 {
			t.Errorf("Expected 10 prompt tokens, got %d", summary.TotalPromptTok)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for worker response")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not stop on context cancel")
	}
}

func TestInitializeAfterClose(t *testing.T) {
	if err := Reset(); err != nil {
		t.Fatalf("Failed to reset singleton: %v", err)
	}
	t.Cleanup(func() { _ = Reset() })

	dbPath := filepath.Join(t.TempDir(), "state.db")
	if err := Initialize(dbPath, "run-a"); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	if got := GetRunID(); got != "run-a" {
		t.Errorf("Expected run ID run-a, got %q", got)
	}
	if err := Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	// A second Initialize in the same process must reopen the database
	// rather than leave the singleton dead.
	if err := Initialize(dbPath, "run-b"); err != nil {
		t.Fatalf("Failed to reinitialize database: %v", err)
	}
	if got := GetRunID(); got != "run-b" {
		t.Errorf("Expected run ID run-b, got %q", got)
	}
	err := Ops().InsertRun(&Run{
		ID:        "run-b",
		TargetURL: "https://example.com",
		Mode:      ModeDemo,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to use reopened database: %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("Failed to close reopened database: %v", err)
	}
}

func TestGetRecentRuns(t *testing.T) {
	ops := createTestDB(t)

	startTestRun(t, ops)
	startTestRun(t, ops)

	runs, err := ops.GetRecentRuns(1)
	if err != nil {
		t.Fatalf("Failed to query recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
}
