package plan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"siteforge/pkg/logx"
	"siteforge/pkg/metrics"
	"siteforge/pkg/patch"
	"siteforge/pkg/utils"
)

// IterationLogName is the append-only human-readable log of applied plans.
const IterationLogName = "iteration_log.txt"

// ApplyReport summarizes one plan application.
type ApplyReport struct {
	Summary      string          `json:"summary"`
	BackupDir    string          `json:"backup_dir"`
	FileResults  []*patch.Result `json:"file_results"`
	FilesSkipped []string        `json:"files_skipped"`
	Applied      int             `json:"applied"`
	Skipped      int             `json:"skipped"`
}

// Applier applies implementation plans to a working tree. It never rolls
// back a partially applied plan; the shared backup set is the revert path.
type Applier struct {
	engine     *patch.Engine
	logger     *logx.Logger
	recorder   *metrics.Recorder
	backupRoot string
	logDir     string
	runID      string
}

// NewApplier creates a plan applier. Backups land under backupRoot, one
// timestamped directory per plan application; the iteration log is appended
// under logDir. recorder may be nil.
func NewApplier(backupRoot, logDir, runID string, recorder *metrics.Recorder) *Applier {
	return &Applier{
		engine:     patch.NewEngine(),
		logger:     logx.NewLogger("plan-applier"),
		recorder:   recorder,
		backupRoot: backupRoot,
		logDir:     logDir,
		runID:      runID,
	}
}

// Apply applies the plan's file changes to baseDir in list order. Every file
// in the plan shares one backup directory. A missing file or failed op skips
// that file or op and continues; only infrastructure failures (backup dir
// creation, log append) return an error.
func (a *Applier) Apply(ctx context.Context, p *ImplementationPlan, baseDir string) (*ApplyReport, error) {
	report := &ApplyReport{Summary: p.Summary}

	if p.IsEmpty() {
		a.logger.Info("📋 Plan %q has no file changes, nothing to apply", p.Summary)
		return report, nil
	}

	backup, err := patch.NewBackupSet(a.backupRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup set: %w", err)
	}
	report.BackupDir = backup.Dir()

	for i := range p.FileChanges {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("plan application canceled: %w", err)
		}

		fc := &p.FileChanges[i]
		target := filepath.Join(baseDir, fc.File)

		result, err := a.engine.ApplyChanges(baseDir, target, fc.Changes, backup)
		if err != nil {
			if errors.Is(err, patch.ErrFileNotFound) {
				a.logger.Warn("⚠️ Plan lists missing file %s, skipping", fc.File)
				report.FilesSkipped = append(report.FilesSkipped, fc.File)
				continue
			}
			return report, fmt.Errorf("failed to patch %s: %w", fc.File, err)
		}

		report.FileResults = append(report.FileResults, result)
		report.Applied += result.Applied
		report.Skipped += result.Skipped
		a.recordOutcomes(result)
	}

	if a.recorder != nil {
		a.recorder.ObservePlanApplied(a.runID)
	}

	if err := a.appendIterationLog(p, report); err != nil {
		return report, err
	}

	a.logger.Info("✅ Applied plan %q: %d ops applied, %d skipped, %d files missing",
		p.Summary, report.Applied, report.Skipped, len(report.FilesSkipped))
	return report, nil
}

func (a *Applier) recordOutcomes(result *patch.Result) {
	if a.recorder == nil {
		return
	}
	for i := range result.Outcomes {
		o := &result.Outcomes[i]
		a.recorder.ObservePatchOp(string(o.Type), string(o.Status), o.Reason)
	}
}

// appendIterationLog appends one human-readable section per applied plan:
// the summary plus a per-file change count. Informational only, never parsed
// back in.
func (a *Applier) appendIterationLog(p *ImplementationPlan, report *ApplyReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Summary: %s\n", p.Summary)
	fmt.Fprintf(&b, "Backup: %s\n", report.BackupDir)
	for _, result := range report.FileResults {
		fmt.Fprintf(&b, "  %s: %d applied, %d skipped\n", result.File, result.Applied, result.Skipped)
	}
	for _, file := range report.FilesSkipped {
		fmt.Fprintf(&b, "  %s: file not found, skipped\n", file)
	}
	b.WriteString("\n")

	logPath := filepath.Join(a.logDir, IterationLogName)
	if err := utils.AppendToFile(logPath, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to append iteration log: %w", err)
	}
	return nil
}
