// Package patch applies selector-based text edits to on-disk files. Edits
// are sequential: each operation sees the result of the previous one, and
// every match uses first-occurrence semantics. The engine is best-effort: an
// operation whose precondition fails is skipped with a recorded reason and
// never aborts the rest of the batch.
package patch

import "fmt"

// OpType identifies one kind of change operation.
type OpType string

const (
	OpReplace OpType = "replace"
	OpAdd     OpType = "add"
	OpRemove  OpType = "remove"
)

// Selector tokens with special meaning for add operations.
const (
	SelectorStart = "start"
	SelectorEnd   = "end"
)

// ChangeOp is one atomic text edit instruction within a plan.
type ChangeOp struct {
	Type     OpType `json:"type"`
	Selector string `json:"selector,omitempty"`
	Original string `json:"original,omitempty"`
	New      string `json:"new,omitempty"`
}

// Validate checks that the op carries the fields its type needs.
func (op *ChangeOp) Validate() error {
	switch op.Type {
	case OpReplace:
		if op.Original == "" {
			return fmt.Errorf("replace op requires original text")
		}
	case OpAdd:
		if op.Selector == "" {
			return fmt.Errorf("add op requires a selector")
		}
	case OpRemove:
		if op.Selector == "" {
			return fmt.Errorf("remove op requires a selector")
		}
	default:
		return fmt.Errorf("unknown op type: %s", op.Type)
	}
	return nil
}

// OpStatus is the outcome classification of one applied operation.
type OpStatus string

const (
	StatusApplied OpStatus = "applied"
	StatusSkipped OpStatus = "skipped"
)

// Skip reasons recorded on per-op outcomes.
const (
	ReasonOriginalNotFound = "original_not_found"
	ReasonSelectorNotFound = "selector_not_found"
	ReasonInvalidOp        = "invalid_op"
)

// OpOutcome reports what happened to a single operation.
type OpOutcome struct {
	Index  int      `json:"index"`
	Type   OpType   `json:"type"`
	Status OpStatus `json:"status"`
	Reason string   `json:"reason,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

// Result reports the outcome of applying a change list to one file.
type Result struct {
	File       string      `json:"file"`
	BackupPath string      `json:"backup_path,omitempty"`
	Outcomes   []OpOutcome `json:"outcomes"`
	Applied    int         `json:"applied"`
	Skipped    int         `json:"skipped"`
}
