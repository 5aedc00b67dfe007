package patch

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"siteforge/pkg/logx"
)

// ErrFileNotFound signals that a target file listed in a plan does not
// exist. The caller skips the file and continues with the rest of the plan.
var ErrFileNotFound = errors.New("target file not found")

// Engine applies ordered change lists to files.
type Engine struct {
	logger *logx.Logger
}

// NewEngine creates a patch engine.
func NewEngine() *Engine {
	return &Engine{logger: logx.NewLogger("patch")}
}

// ApplyChanges applies ops to the file at path, in list order, each op
// operating on the result of the previous one. When backup is non-nil the
// pre-change content is copied into it first, keyed relative to baseDir.
// A missing target file returns ErrFileNotFound (wrapped); individual op
// failures are recorded as skipped outcomes and never abort the batch.
func (e *Engine) ApplyChanges(baseDir, path string, ops []ChangeOp, backup *BackupSet) (*Result, error) {
	result := &Result{File: path}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		e.logger.Warn("⚠️ Skipping %s: %v", path, ErrFileNotFound)
		return result, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	if backup != nil {
		backupPath, err := backup.Add(baseDir, path)
		if err != nil {
			return result, err
		}
		result.BackupPath = backupPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(data)

	for i := range ops {
		op := &ops[i]
		outcome := OpOutcome{Index: i, Type: op.Type, Status: StatusApplied}

		if err := op.Validate(); err != nil {
			outcome.Status = StatusSkipped
			outcome.Reason = ReasonInvalidOp
			outcome.Detail = err.Error()
			e.logger.Warn("⚠️ %s op %d invalid: %v", path, i, err)
			result.Outcomes = append(result.Outcomes, outcome)
			result.Skipped++
			continue
		}

		next, skipReason, detail := applyOp(content, op)
		if skipReason != "" {
			outcome.Status = StatusSkipped
			outcome.Reason = skipReason
			outcome.Detail = detail
			e.logger.Warn("⚠️ %s op %d (%s) skipped: %s %q", path, i, op.Type, skipReason, detail)
			result.Skipped++
		} else {
			content = next
			result.Applied++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	if err := os.WriteFile(path, []byte(content), info.Mode().Perm()); err != nil {
		return result, fmt.Errorf("failed to write %s: %w", path, err)
	}

	e.logger.Info("🔧 Patched %s: %d applied, %d skipped", path, result.Applied, result.Skipped)
	return result, nil
}

// applyOp applies one op to content. It returns the new content, or a skip
// reason plus the text that failed to match.
func applyOp(content string, op *ChangeOp) (next, skipReason, detail string) {
	switch op.Type {
	case OpReplace:
		if !strings.Contains(content, op.Original) {
			return content, ReasonOriginalNotFound, op.Original
		}
		// First occurrence only; repeated identical strings stay intact.
		return strings.Replace(content, op.Original, op.New, 1), "", ""

	case OpAdd:
		switch op.Selector {
		case SelectorEnd:
			return content + "\n" + op.New, "", ""
		case SelectorStart:
			return op.New + "\n" + content, "", ""
		default:
			idx := strings.Index(content, op.Selector)
			if idx < 0 {
				return content, ReasonSelectorNotFound, op.Selector
			}
			insertAt := idx + len(op.Selector)
			return content[:insertAt] + op.New + content[insertAt:], "", ""
		}

	case OpRemove:
		if !strings.Contains(content, op.Selector) {
			return content, ReasonSelectorNotFound, op.Selector
		}
		return strings.Replace(content, op.Selector, "", 1), "", ""

	default:
		return content, ReasonInvalidOp, string(op.Type)
	}
}
