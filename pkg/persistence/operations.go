package persistence

import (
	"database/sql"
	"fmt"
	"time"
)

// DatabaseOperations provides methods for database operations.
// This is used by the persistence worker goroutine.
type DatabaseOperations struct {
	db    *sql.DB
	runID string
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB, runID string) *DatabaseOperations {
	return &DatabaseOperations{db: db, runID: runID}
}

// InsertRun records the start of a new run.
func (ops *DatabaseOperations) InsertRun(run *Run) error {
	query := `
		INSERT INTO runs (id, target_url, mode, final_state, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target_url = excluded.target_url,
			mode = excluded.mode
	`

	_, err := ops.db.Exec(query, run.ID, run.TargetURL, run.Mode, nullable(run.FinalState), run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun records the terminal state and completion time of a run.
func (ops *DatabaseOperations) CompleteRun(runID, finalState string, completedAt time.Time) error {
	query := `UPDATE runs SET final_state = ?, completed_at = ? WHERE id = ?`

	result, err := ops.db.Exec(query, finalState, completedAt, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", runID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRunByID returns a single run record.
func (ops *DatabaseOperations) GetRunByID(runID string) (*Run, error) {
	query := `SELECT id, target_url, mode, COALESCE(final_state, ''), started_at, completed_at FROM runs WHERE id = ?`

	var run Run
	var completedAt sql.NullTime
	err := ops.db.QueryRow(query, runID).Scan(
		&run.ID, &run.TargetURL, &run.Mode, &run.FinalState, &run.StartedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// InsertIteration records the start of an iteration.
func (ops *DatabaseOperations) InsertIteration(it *Iteration) error {
	query := `
		INSERT INTO iterations (run_id, iteration, completion_pct, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, iteration) DO UPDATE SET
			completion_pct = excluded.completion_pct
	`

	_, err := ops.db.Exec(query, it.RunID, it.Iteration, it.CompletionPct, it.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert iteration %d for run %s: %w", it.Iteration, it.RunID, err)
	}
	return nil
}

// CompleteIteration records the final completion percentage of an iteration.
func (ops *DatabaseOperations) CompleteIteration(runID string, iteration, completionPct int, completedAt time.Time) error {
	query := `
		UPDATE iterations SET completion_pct = ?, completed_at = ?
		WHERE run_id = ? AND iteration = ?
	`

	_, err := ops.db.Exec(query, completionPct, completedAt, runID, iteration)
	if err != nil {
		return fmt.Errorf("failed to complete iteration %d for run %s: %w", iteration, runID, err)
	}
	return nil
}

// InsertPlan records one applied implementation plan.
func (ops *DatabaseOperations) InsertPlan(p *PlanRecord) error {
	query := `
		INSERT INTO plans (id, run_id, iteration, summary, files_patched, ops_applied, ops_skipped, backup_path, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := ops.db.Exec(query, p.ID, p.RunID, p.Iteration, p.Summary,
		p.FilesPatched, p.OpsApplied, p.OpsSkipped, nullable(p.BackupPath), p.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to insert plan %s: %w", p.ID, err)
	}
	return nil
}

// InsertPatchOp records one change operation outcome.
func (ops *DatabaseOperations) InsertPatchOp(op *PatchOpRecord) error {
	query := `
		INSERT INTO patch_ops (plan_id, file, op_type, status, reason)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := ops.db.Exec(query, op.PlanID, op.File, op.OpType, op.Status, nullable(op.Reason))
	if err != nil {
		return fmt.Errorf("failed to insert patch op for plan %s: %w", op.PlanID, err)
	}
	return nil
}

// InsertLLMCost records one cost ledger entry.
func (ops *DatabaseOperations) InsertLLMCost(c *LLMCost) error {
	query := `
		INSERT INTO llm_costs (id, run_id, worker, model, prompt_tokens, completion_tokens, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := ops.db.Exec(query, c.ID, c.RunID, c.Worker, c.Model,
		c.PromptTokens, c.CompletionTokens, c.CostUSD, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert llm cost %s: %w", c.ID, err)
	}
	return nil
}

// GetRunSummary aggregates iteration, plan, and cost figures for a run.
func (ops *DatabaseOperations) GetRunSummary(runID string) (*RunSummary, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM iterations WHERE run_id = ?),
			(SELECT COUNT(*) FROM plans WHERE run_id = ?),
			(SELECT COALESCE(SUM(prompt_tokens), 0) FROM llm_costs WHERE run_id = ?),
			(SELECT COALESCE(SUM(completion_tokens), 0) FROM llm_costs WHERE run_id = ?),
			(SELECT COALESCE(SUM(cost_usd), 0.0) FROM llm_costs WHERE run_id = ?)
	`

	summary := RunSummary{RunID: runID}
	err := ops.db.QueryRow(query, runID, runID, runID, runID, runID).Scan(
		&summary.Iterations, &summary.PlansApplied,
		&summary.TotalPromptTok, &summary.TotalCompleteTok, &summary.TotalCostUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to get run summary for %s: %w", runID, err)
	}
	return &summary, nil
}

// GetCostsByWorker returns cost ledger entries for one worker in the
// operations' run, newest first.
func (ops *DatabaseOperations) GetCostsByWorker(worker string) ([]*LLMCost, error) {
	query := `
		SELECT id, run_id, worker, model, prompt_tokens, completion_tokens, cost_usd, created_at
		FROM llm_costs
		WHERE run_id = ? AND worker = ?
		ORDER BY created_at DESC
	`

	rows, err := ops.db.Query(query, ops.runID, worker)
	if err != nil {
		return nil, fmt.Errorf("failed to query llm costs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var costs []*LLMCost
	for rows.Next() {
		var c LLMCost
		if err := rows.Scan(&c.ID, &c.RunID, &c.Worker, &c.Model,
			&c.PromptTokens, &c.CompletionTokens, &c.CostUSD, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan llm cost: %w", err)
		}
		costs = append(costs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("llm cost rows error: %w", err)
	}
	return costs, nil
}

// GetRecentRuns returns the most recent runs, newest first.
func (ops *DatabaseOperations) GetRecentRuns(limit int) ([]*Run, error) {
	query := `
		SELECT id, target_url, mode, COALESCE(final_state, ''), started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`

	rows, err := ops.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		var run Run
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.TargetURL, &run.Mode, &run.FinalState, &run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run rows error: %w", err)
	}
	return runs, nil
}

// nullable converts an empty string to a SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
