package limiter

import (
	"context"
	"errors"
	"testing"

	"siteforge/pkg/llm"
)

func TestReserveWithinLimit(t *testing.T) {
	l := NewLimiter()
	defer l.Close()
	l.AddModel("test-model", 1000, 0)

	if err := l.Reserve("test-model", 400); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	if err := l.Reserve("test-model", 400); err != nil {
		t.Fatalf("second reserve failed: %v", err)
	}
	if err := l.Reserve("test-model", 400); !errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	tokens, _, err := l.GetStatus("test-model")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if tokens != 200 {
		t.Errorf("expected 200 tokens left, got %d", tokens)
	}
}

func TestUnregisteredModelIsUnlimited(t *testing.T) {
	l := NewLimiter()
	defer l.Close()

	if err := l.Reserve("anything", 1_000_000); err != nil {
		t.Fatalf("unregistered model should not be limited: %v", err)
	}
	if err := l.RecordSpend("anything", 9999); err != nil {
		t.Fatalf("unregistered model should not be budgeted: %v", err)
	}
}

func TestBudgetCapBlocksNextReserve(t *testing.T) {
	l := NewLimiter()
	defer l.Close()
	l.AddModel("test-model", 0, 1.00)

	if err := l.Reserve("test-model", 100); err != nil {
		t.Fatalf("reserve under budget failed: %v", err)
	}
	if err := l.RecordSpend("test-model", 1.50); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected budget error from overspend, got %v", err)
	}
	if err := l.Reserve("test-model", 100); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected budget error on next reserve, got %v", err)
	}
}

func TestResetDailyRestoresLimits(t *testing.T) {
	l := NewLimiter()
	defer l.Close()
	l.AddModel("test-model", 500, 1.00)

	_ = l.Reserve("test-model", 500)
	_ = l.RecordSpend("test-model", 2.00)

	l.ResetDaily()

	if err := l.Reserve("test-model", 500); err != nil {
		t.Fatalf("reserve after reset failed: %v", err)
	}
}

func TestAddModelKeepsFirstEntry(t *testing.T) {
	l := NewLimiter()
	defer l.Close()
	l.AddModel("shared", 100, 0)
	l.AddModel("shared", 1_000_000, 0)

	if err := l.Reserve("shared", 500); !errors.Is(err, ErrRateLimit) {
		t.Fatalf("second AddModel should not widen the bucket, got %v", err)
	}
}

type fakeClient struct {
	resp  llm.CompletionResponse
	err   error
	calls int
}

func (f *fakeClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	f.calls++
	return f.resp, f.err
}

func (f *fakeClient) GetModelName() string { return "fake-model" }

func TestGuardedClientReservesAndRecords(t *testing.T) {
	l := NewLimiter()
	defer l.Close()
	l.AddModel("fake-model", 100_000, 10.00)

	inner := &fakeClient{resp: llm.CompletionResponse{
		Content: "ok",
		Usage:   llm.Usage{PromptTokens: 1000, CompletionTokens: 500},
	}}
	costFn := func(_ string, promptTok, completionTok int) float64 {
		return float64(promptTok+completionTok) / 1000 // $1 per 1k tokens
	}
	guard := NewGuardedClient(inner, l, costFn)

	req := llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{{Role: llm.RoleUser, Content: "hello"}},
		MaxTokens: 500,
	}
	if _, err := guard.Complete(context.Background(), req); err != nil {
		t.Fatalf("guarded call failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}

	_, budget, err := l.GetStatus("fake-model")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if budget != 1.5 {
		t.Errorf("expected $1.50 recorded, got $%.2f", budget)
	}
}

func TestGuardedClientRateLimitIsClassified(t *testing.T) {
	l := NewLimiter()
	defer l.Close()
	l.AddModel("fake-model", 10, 0)

	guard := NewGuardedClient(&fakeClient{}, l, nil)
	req := llm.CompletionRequest{MaxTokens: 500}

	_, err := guard.Complete(context.Background(), req)
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if llm.TypeOf(err) != llm.ErrorTypeRateLimit {
		t.Errorf("expected rate_limit classification, got %s", llm.TypeOf(err))
	}
}

func TestGuardedClientBudgetIsFatal(t *testing.T) {
	l := NewLimiter()
	defer l.Close()
	l.AddModel("fake-model", 0, 0.01)
	_ = l.RecordSpend("fake-model", 0.02)

	guard := NewGuardedClient(&fakeClient{}, l, nil)
	_, err := guard.Complete(context.Background(), llm.CompletionRequest{MaxTokens: 10})
	if err == nil {
		t.Fatal("expected budget error")
	}
	if llm.TypeOf(err) != llm.ErrorTypeBudget {
		t.Errorf("expected budget classification, got %s", llm.TypeOf(err))
	}

	var classified *llm.Error
	if !errors.As(err, &classified) || classified.IsRetryable() {
		t.Error("budget errors must not be retryable")
	}
}
