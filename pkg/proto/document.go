// Package proto defines the shared coordination document and message types
// exchanged between siteforge workers. The protocol document is the sole
// coordination primitive: every worker reads and rewrites it, last writer
// wins.
package proto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Worker identifies one of the five cooperating roles.
type Worker string

const (
	WorkerCrawler        Worker = "crawler"
	WorkerAnalysis       Worker = "analysis"
	WorkerImplementation Worker = "implementation"
	WorkerFeedback       Worker = "feedback"
	WorkerOrchestrator   Worker = "orchestrator"
)

// Workers lists every worker in a stable order.
//
//nolint:gochecknoglobals // Fixed enumeration of the five roles
var Workers = []Worker{
	WorkerCrawler,
	WorkerAnalysis,
	WorkerImplementation,
	WorkerFeedback,
	WorkerOrchestrator,
}

// ValidateWorker validates a worker name string.
func ValidateWorker(name string) (Worker, bool) {
	switch Worker(name) {
	case WorkerCrawler, WorkerAnalysis, WorkerImplementation, WorkerFeedback, WorkerOrchestrator:
		return Worker(name), true
	default:
		return "", false
	}
}

// AgentState is the per-worker state recorded in the protocol document.
type AgentState string

const (
	AgentIdle     AgentState = "idle"
	AgentActive   AgentState = "active"
	AgentComplete AgentState = "complete"
	AgentError    AgentState = "error"
)

// ProjectState is the overall phase of the run.
type ProjectState string

const (
	ProjectInitializing ProjectState = "initializing"
	ProjectPlanning     ProjectState = "planning"
	ProjectCrawling     ProjectState = "crawling"
	ProjectAnalyzing    ProjectState = "analyzing"
	ProjectImplementing ProjectState = "implementing"
	ProjectEvaluating   ProjectState = "evaluating"
	ProjectFinalizing   ProjectState = "finalizing"
	ProjectIterating    ProjectState = "iterating"
	ProjectComplete     ProjectState = "complete"
	ProjectError        ProjectState = "error"
)

// IsTerminal reports whether the project state ends phase advancement.
func (s ProjectState) IsTerminal() bool {
	return s == ProjectComplete || s == ProjectError
}

// ProtocolDocument is the singleton shared-state document. Field names match
// the on-disk communication_protocol.json wire format.
//
//nolint:govet // Field order follows the wire format, not alignment
type ProtocolDocument struct {
	AgentStates          map[Worker]AgentState `json:"agent_states"`
	ProjectState         ProjectState          `json:"project_state"`
	CurrentIteration     int                   `json:"current_iteration"`
	CompletionPercentage int                   `json:"completion_percentage"`
	ErrorStates          map[Worker]string     `json:"error_states"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// NewProtocolDocument creates a fresh document with all workers idle.
func NewProtocolDocument() *ProtocolDocument {
	states := make(map[Worker]AgentState, len(Workers))
	for _, w := range Workers {
		states[w] = AgentIdle
	}
	return &ProtocolDocument{
		AgentStates:          states,
		ProjectState:         ProjectInitializing,
		CurrentIteration:     0,
		CompletionPercentage: 0,
		ErrorStates:          make(map[Worker]string),
		UpdatedAt:            time.Now().UTC(),
	}
}

// Clone returns a deep copy of the document.
func (d *ProtocolDocument) Clone() *ProtocolDocument {
	clone := &ProtocolDocument{
		ProjectState:         d.ProjectState,
		CurrentIteration:     d.CurrentIteration,
		CompletionPercentage: d.CompletionPercentage,
		UpdatedAt:            d.UpdatedAt,
		AgentStates:          make(map[Worker]AgentState, len(d.AgentStates)),
		ErrorStates:          make(map[Worker]string, len(d.ErrorStates)),
	}
	for w, s := range d.AgentStates {
		clone.AgentStates[w] = s
	}
	for w, e := range d.ErrorStates {
		clone.ErrorStates[w] = e
	}
	return clone
}

// SetAgentState records a worker's state, initializing the map if needed.
func (d *ProtocolDocument) SetAgentState(w Worker, s AgentState) {
	if d.AgentStates == nil {
		d.AgentStates = make(map[Worker]AgentState)
	}
	d.AgentStates[w] = s
	d.UpdatedAt = time.Now().UTC()
}

// SetAgentError marks a worker as errored with a descriptor.
func (d *ProtocolDocument) SetAgentError(w Worker, desc string) {
	d.SetAgentState(w, AgentError)
	if d.ErrorStates == nil {
		d.ErrorStates = make(map[Worker]string)
	}
	d.ErrorStates[w] = desc
}

// ErroredWorkers returns the workers currently reporting error state.
func (d *ProtocolDocument) ErroredWorkers() []Worker {
	var errored []Worker
	for _, w := range Workers {
		if d.AgentStates[w] == AgentError {
			errored = append(errored, w)
		}
	}
	return errored
}

// ResetForNewRun returns the document to its run-start shape: all workers
// idle, project initializing, completion back to zero. A terminal document
// reset this way begins a new run.
func (d *ProtocolDocument) ResetForNewRun() {
	for _, w := range Workers {
		d.SetAgentState(w, AgentIdle)
	}
	d.ProjectState = ProjectInitializing
	d.CurrentIteration = 0
	d.CompletionPercentage = 0
	d.ErrorStates = make(map[Worker]string)
	d.UpdatedAt = time.Now().UTC()
}

// Validate checks structural invariants. A complete project requires every
// worker complete and completion_percentage == 100.
func (d *ProtocolDocument) Validate() error {
	if d.CurrentIteration < 0 {
		return fmt.Errorf("current_iteration must be non-negative, got %d", d.CurrentIteration)
	}
	if d.CompletionPercentage < 0 || d.CompletionPercentage > 100 {
		return fmt.Errorf("completion_percentage must be 0-100, got %d", d.CompletionPercentage)
	}
	for w := range d.AgentStates {
		if _, ok := ValidateWorker(string(w)); !ok {
			return fmt.Errorf("unknown worker in agent_states: %s", w)
		}
	}
	if d.ProjectState == ProjectComplete {
		if d.CompletionPercentage != 100 {
			return fmt.Errorf("complete project requires completion_percentage 100, got %d", d.CompletionPercentage)
		}
		for _, w := range Workers {
			if d.AgentStates[w] != AgentComplete {
				return fmt.Errorf("complete project requires worker %s complete, got %s", w, d.AgentStates[w])
			}
		}
	}
	return nil
}

// ToJSON serializes the document for the shared store.
func (d *ProtocolDocument) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// DocumentFromJSON deserializes a protocol document.
func DocumentFromJSON(data []byte) (*ProtocolDocument, error) {
	var doc ProtocolDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protocol document: %w", err)
	}
	if doc.AgentStates == nil {
		doc.AgentStates = make(map[Worker]AgentState)
	}
	if doc.ErrorStates == nil {
		doc.ErrorStates = make(map[Worker]string)
	}
	return &doc, nil
}
