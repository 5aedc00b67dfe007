package persistence

import (
	"time"

	"github.com/google/uuid"
)

// Run represents one pipeline run against a target site.
type Run struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ID          string     `json:"id"`
	TargetURL   string     `json:"target_url"`
	Mode        string     `json:"mode"`
	FinalState  string     `json:"final_state,omitempty"`
}

// Run mode constants.
const (
	ModeDemo = "demo"
	ModeLive = "live"
)

// Iteration represents one improve/evaluate cycle inside a run.
type Iteration struct {
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RunID         string     `json:"run_id"`
	Iteration     int        `json:"iteration"`
	CompletionPct int        `json:"completion_pct"`
}

// PlanRecord summarizes one applied implementation plan.
type PlanRecord struct {
	AppliedAt    time.Time `json:"applied_at"`
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Summary      string    `json:"summary"`
	BackupPath   string    `json:"backup_path,omitempty"`
	Iteration    int       `json:"iteration"`
	FilesPatched int       `json:"files_patched"`
	OpsApplied   int       `json:"ops_applied"`
	OpsSkipped   int       `json:"ops_skipped"`
}

// PatchOpRecord is one change operation outcome tied to a plan.
type PatchOpRecord struct {
	PlanID string `json:"plan_id"`
	File   string `json:"file"`
	OpType string `json:"op_type"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// LLMCost is one cost ledger entry for a producer LLM request.
type LLMCost struct {
	CreatedAt        time.Time `json:"created_at"`
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	Worker           string    `json:"worker"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
}

// RunSummary aggregates metrics for one run.
type RunSummary struct {
	RunID            string  `json:"run_id"`
	Iterations       int     `json:"iterations"`
	PlansApplied     int     `json:"plans_applied"`
	TotalPromptTok   int64   `json:"total_prompt_tokens"`
	TotalCompleteTok int64   `json:"total_completion_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

// GenerateRunID generates a new UUID for a run.
func GenerateRunID() string {
	return uuid.New().String()
}

// GeneratePlanID generates a new UUID for an applied plan.
func GeneratePlanID() string {
	return uuid.New().String()
}

// GenerateCostID generates a new UUID for a cost ledger entry.
func GenerateCostID() string {
	return uuid.New().String()
}
