package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteforge/pkg/patch"
)

func TestParsePlanValid(t *testing.T) {
	data := []byte(`{
		"summary": "fix footer",
		"fileChanges": [
			{"file": "index.html", "changes": [
				{"type": "replace", "original": "<footer></footer>", "new": "<footer>ok</footer>"}
			]}
		]
	}`)

	p, ok := ParsePlan(data)
	require.True(t, ok)
	assert.Equal(t, "fix footer", p.Summary)
	require.Len(t, p.FileChanges, 1)
	assert.Equal(t, "index.html", p.FileChanges[0].File)
	assert.Equal(t, patch.OpReplace, p.FileChanges[0].Changes[0].Type)
	assert.Equal(t, 1, p.TotalChanges())
}

func TestParsePlanMalformedJSON(t *testing.T) {
	p, ok := ParsePlan([]byte("I'm sorry, I can't produce a plan right now."))
	assert.False(t, ok)
	assert.True(t, p.IsEmpty(), "malformed producer output must become an empty plan")
}

func TestParsePlanMissingFileChanges(t *testing.T) {
	p, ok := ParsePlan([]byte(`{"summary": "nothing to do"}`))
	assert.False(t, ok)
	assert.True(t, p.IsEmpty())
	assert.Equal(t, "nothing to do", p.Summary)
}

func TestParsePlanWithMarkdownFences(t *testing.T) {
	data := []byte("Here is the plan:\n```json\n{\"summary\": \"s\", \"fileChanges\": []}\n```\n")
	p, ok := ParsePlan(data)
	require.True(t, ok)
	assert.Equal(t, "s", p.Summary)
	assert.True(t, p.IsEmpty())
}

func TestParseFeedback(t *testing.T) {
	data := []byte(`{
		"analysis": {
			"differences": "footer missing",
			"improvements": ["added nav"],
			"suggestions": ["add footer"],
			"issues": ["broken link"]
		}
	}`)

	rec, ok := ParseFeedback(data)
	require.True(t, ok)
	assert.False(t, rec.Timestamp.IsZero())
	assert.Equal(t, "footer missing", rec.Analysis.Differences)
	assert.Equal(t, []string{"add footer"}, rec.Analysis.Suggestions)
}

func TestParseFeedbackBareAnalysis(t *testing.T) {
	data := []byte(`{"differences": "colors off", "suggestions": ["fix palette"]}`)

	rec, ok := ParseFeedback(data)
	require.True(t, ok)
	assert.Equal(t, "colors off", rec.Analysis.Differences)
}

func TestParseFeedbackMalformed(t *testing.T) {
	rec, ok := ParseFeedback([]byte("no feedback"))
	assert.False(t, ok)
	assert.Empty(t, rec.Analysis.Suggestions)
}
