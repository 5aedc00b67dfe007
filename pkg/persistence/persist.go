package persistence

import (
	"context"
	"time"

	"siteforge/pkg/logx"
)

// Request represents a database operation request.
// This is the interface between the pipeline and the persistence worker.
type Request struct {
	Data      interface{}        `json:"data"`      // Operation-specific data payload
	Response  chan<- interface{} `json:"-"`         // Response channel for queries (nil for fire-and-forget writes)
	Operation string             `json:"operation"` // Operation type
}

// Operation constants for Request.
const (
	// Write operations (fire-and-forget).
	OpInsertRun       = "insert_run"
	OpCompleteRun     = "complete_run"
	OpInsertIteration = "insert_iteration"
	OpInsertPlan      = "insert_plan"
	OpInsertPatchOp   = "insert_patch_op"
	OpInsertLLMCost   = "insert_llm_cost"

	// Query operations (with response).
	OpGetRunSummary = "get_run_summary"
)

// CompleteRunRequest carries a run completion update.
type CompleteRunRequest struct {
	CompletedAt time.Time `json:"completed_at"`
	RunID       string    `json:"run_id"`
	FinalState  string    `json:"final_state"`
}

// Worker processes persistence requests until the channel closes or the
// context is canceled. Write failures are logged, never fatal: losing a
// history row must not stop the pipeline.
func Worker(ctx context.Context, ops *DatabaseOperations, requests <-chan *Request) {
	logger := logx.NewLogger("persistence-worker")

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			handleRequest(ops, req, logger)
		}
	}
}

func handleRequest(ops *DatabaseOperations, req *Request, logger *logx.Logger) {
	var err error

	switch req.Operation {
	case OpInsertRun:
		if run, ok := req.Data.(*Run); ok {
			err = ops.InsertRun(run)
		}
	case OpCompleteRun:
		if cr, ok := req.Data.(*CompleteRunRequest); ok {
			err = ops.CompleteRun(cr.RunID, cr.FinalState, cr.CompletedAt)
		}
	case OpInsertIteration:
		if it, ok := req.Data.(*Iteration); ok {
			err = ops.InsertIteration(it)
		}
	case OpInsertPlan:
		if p, ok := req.Data.(*PlanRecord); ok {
			err = ops.InsertPlan(p)
		}
	case OpInsertPatchOp:
		if op, ok := req.Data.(*PatchOpRecord); ok {
			err = ops.InsertPatchOp(op)
		}
	case OpInsertLLMCost:
		if c, ok := req.Data.(*LLMCost); ok {
			err = ops.InsertLLMCost(c)
		}
	case OpGetRunSummary:
		if runID, ok := req.Data.(string); ok && req.Response != nil {
			summary, sumErr := ops.GetRunSummary(runID)
			if sumErr != nil {
				logger.Warn("⚠️ Run summary query failed: %v", sumErr)
			}
			req.Response <- summary
			return
		}
	default:
		logger.Warn("⚠️ Unknown persistence operation: %s", req.Operation)
		return
	}

	if err != nil {
		logger.Warn("⚠️ Persistence write failed (%s): %v", req.Operation, err)
	}
}

// PersistLLMCost sends a cost ledger entry to the persistence worker.
// This is a fire-and-forget operation.
func PersistLLMCost(cost *LLMCost, requests chan<- *Request) {
	if requests == nil || cost == nil {
		return
	}

	requests <- &Request{
		Operation: OpInsertLLMCost,
		Data:      cost,
		Response:  nil, // Fire-and-forget
	}
}

// PersistPlan sends an applied plan record to the persistence worker.
func PersistPlan(p *PlanRecord, requests chan<- *Request) {
	if requests == nil || p == nil {
		return
	}

	requests <- &Request{
		Operation: OpInsertPlan,
		Data:      p,
		Response:  nil, // Fire-and-forget
	}
}

// PersistPatchOp sends a change operation outcome to the persistence worker.
func PersistPatchOp(op *PatchOpRecord, requests chan<- *Request) {
	if requests == nil || op == nil {
		return
	}

	requests <- &Request{
		Operation: OpInsertPatchOp,
		Data:      op,
		Response:  nil, // Fire-and-forget
	}
}

// PersistIteration sends an iteration record to the persistence worker.
func PersistIteration(it *Iteration, requests chan<- *Request) {
	if requests == nil || it == nil {
		return
	}

	requests <- &Request{
		Operation: OpInsertIteration,
		Data:      it,
		Response:  nil, // Fire-and-forget
	}
}
