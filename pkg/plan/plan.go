// Package plan defines implementation plans and feedback records produced by
// the external plan/feedback producer, and applies plans to a working tree
// through the patch engine.
package plan

import (
	"encoding/json"
	"strings"
	"time"

	"siteforge/pkg/patch"
)

// ImplementationPlan is a structured set of file-level edits proposed for
// one iteration.
type ImplementationPlan struct {
	Summary     string       `json:"summary"`
	FileChanges []FileChange `json:"fileChanges"`
}

// FileChange groups the ordered change operations for one file.
type FileChange struct {
	File    string           `json:"file"`
	Changes []patch.ChangeOp `json:"changes"`
}

// IsEmpty reports whether the plan carries no edits.
func (p *ImplementationPlan) IsEmpty() bool {
	return len(p.FileChanges) == 0
}

// TotalChanges returns the number of change operations across all files.
func (p *ImplementationPlan) TotalChanges() int {
	total := 0
	for i := range p.FileChanges {
		total += len(p.FileChanges[i].Changes)
	}
	return total
}

// FeedbackAnalysis is the structured assessment of the current
// implementation against the original site.
type FeedbackAnalysis struct {
	Differences  string   `json:"differences"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
	Issues       []string `json:"issues"`
}

// FeedbackRecord is one appended entry of the ever-growing feedback log.
type FeedbackRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Analysis  FeedbackAnalysis `json:"analysis"`
}

// ParsePlan parses producer output into a plan. Producer output is untrusted:
// unparsable JSON or a missing fileChanges list yields an empty plan with
// ok=false, never an error. Markdown code fences around the JSON are
// tolerated.
func ParsePlan(data []byte) (*ImplementationPlan, bool) {
	payload := ExtractJSON(data)

	var p ImplementationPlan
	if err := json.Unmarshal(payload, &p); err != nil {
		return &ImplementationPlan{}, false
	}
	if p.FileChanges == nil {
		return &ImplementationPlan{Summary: p.Summary}, false
	}
	return &p, true
}

// ParseFeedback parses producer output into a feedback record. Malformed
// output yields an empty record with ok=false.
func ParseFeedback(data []byte) (*FeedbackRecord, bool) {
	payload := ExtractJSON(data)

	var rec FeedbackRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return &FeedbackRecord{Timestamp: time.Now().UTC()}, false
	}

	if isEmptyAnalysis(&rec.Analysis) {
		// Tolerate a bare analysis object without the record envelope.
		var analysis FeedbackAnalysis
		if err := json.Unmarshal(payload, &analysis); err == nil {
			rec.Analysis = analysis
		}
	}

	if isEmptyAnalysis(&rec.Analysis) {
		return &FeedbackRecord{Timestamp: time.Now().UTC()}, false
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return &rec, true
}

func isEmptyAnalysis(a *FeedbackAnalysis) bool {
	return a.Differences == "" && len(a.Improvements) == 0 && len(a.Suggestions) == 0 && len(a.Issues) == 0
}

// ExtractJSON strips markdown fences and leading/trailing prose around a
// JSON object, returning the braced region when one exists.
func ExtractJSON(data []byte) []byte {
	text := strings.TrimSpace(string(data))

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return []byte(text)
}
