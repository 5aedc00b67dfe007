package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteforge/pkg/llm"
)

func TestEnsureAlternationExtractsSystem(t *testing.T) {
	system, out, err := ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "you are a crawler"},
		{Role: llm.RoleUser, Content: "fetch the site"},
	})
	require.NoError(t, err)
	assert.Equal(t, "you are a crawler", system)
	require.Len(t, out, 1)
	assert.Equal(t, llm.RoleUser, out[0].Role)
}

func TestEnsureAlternationJoinsMultipleSystem(t *testing.T) {
	system, _, err := ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "first"},
		{Role: llm.RoleSystem, Content: "second"},
		{Role: llm.RoleUser, Content: "go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", system)
}

func TestEnsureAlternationMergesConsecutiveUser(t *testing.T) {
	_, out, err := ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "page content"},
		{Role: llm.RoleUser, Content: "analysis notes"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "page content\n\nanalysis notes", out[0].Content)
}

func TestEnsureAlternationPreservesAssistantTurns(t *testing.T) {
	_, out, err := ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "plan this"},
		{Role: llm.RoleAssistant, Content: "here is a plan"},
		{Role: llm.RoleUser, Content: "refine it"},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, llm.RoleUser, out[0].Role)
	assert.Equal(t, llm.RoleAssistant, out[1].Role)
	assert.Equal(t, llm.RoleUser, out[2].Role)
}

func TestEnsureAlternationRejectsBadSequences(t *testing.T) {
	_, _, err := ensureAlternation(nil)
	assert.Error(t, err)

	// System-only conversations have nothing to send.
	_, _, err = ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "just rules"},
	})
	assert.Error(t, err)

	// Must end with a user message.
	_, _, err = ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	assert.Error(t, err)

	// Must start with a user message.
	_, _, err = ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "hi"},
	})
	assert.Error(t, err)
}

func TestGetModelName(t *testing.T) {
	client := NewClaudeClient("test-key", "claude-sonnet-4-20250514")
	assert.Equal(t, "claude-sonnet-4-20250514", client.GetModelName())
}
