package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProtocolDocument(t *testing.T) {
	doc := NewProtocolDocument()

	assert.Equal(t, ProjectInitializing, doc.ProjectState)
	assert.Equal(t, 0, doc.CurrentIteration)
	assert.Equal(t, 0, doc.CompletionPercentage)
	assert.Len(t, doc.AgentStates, 5)
	for _, w := range Workers {
		assert.Equal(t, AgentIdle, doc.AgentStates[w], "worker %s should start idle", w)
	}
	assert.Empty(t, doc.ErrorStates)
	require.NoError(t, doc.Validate())
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := NewProtocolDocument()
	doc.ProjectState = ProjectImplementing
	doc.CurrentIteration = 3
	doc.CompletionPercentage = 60
	doc.SetAgentState(WorkerImplementation, AgentActive)
	doc.SetAgentError(WorkerFeedback, "vision model unavailable")

	data, err := doc.ToJSON()
	require.NoError(t, err)

	parsed, err := DocumentFromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, doc.ProjectState, parsed.ProjectState)
	assert.Equal(t, doc.CurrentIteration, parsed.CurrentIteration)
	assert.Equal(t, doc.CompletionPercentage, parsed.CompletionPercentage)
	assert.Equal(t, doc.AgentStates, parsed.AgentStates)
	assert.Equal(t, doc.ErrorStates, parsed.ErrorStates)
}

func TestValidateCompleteRequiresAllWorkersComplete(t *testing.T) {
	doc := NewProtocolDocument()
	doc.ProjectState = ProjectComplete
	doc.CompletionPercentage = 100

	// One worker still idle: invalid.
	err := doc.Validate()
	require.Error(t, err)

	for _, w := range Workers {
		doc.SetAgentState(w, AgentComplete)
	}
	require.NoError(t, doc.Validate())

	// Completion below 100: invalid again.
	doc.CompletionPercentage = 90
	require.Error(t, doc.Validate())
}

func TestErroredWorkers(t *testing.T) {
	doc := NewProtocolDocument()
	assert.Empty(t, doc.ErroredWorkers())

	doc.SetAgentError(WorkerCrawler, "connection refused")
	doc.SetAgentError(WorkerFeedback, "timeout")

	errored := doc.ErroredWorkers()
	assert.ElementsMatch(t, []Worker{WorkerCrawler, WorkerFeedback}, errored)
	assert.Equal(t, "connection refused", doc.ErrorStates[WorkerCrawler])
}

func TestResetForNewRun(t *testing.T) {
	doc := NewProtocolDocument()
	for _, w := range Workers {
		doc.SetAgentState(w, AgentComplete)
	}
	doc.ProjectState = ProjectComplete
	doc.CurrentIteration = 5
	doc.CompletionPercentage = 100

	doc.ResetForNewRun()

	assert.Equal(t, ProjectInitializing, doc.ProjectState)
	assert.Equal(t, 0, doc.CurrentIteration)
	assert.Equal(t, 0, doc.CompletionPercentage)
	for _, w := range Workers {
		assert.Equal(t, AgentIdle, doc.AgentStates[w])
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := NewProtocolDocument()
	clone := doc.Clone()

	clone.SetAgentState(WorkerCrawler, AgentActive)
	clone.ErrorStates[WorkerCrawler] = "boom"

	assert.Equal(t, AgentIdle, doc.AgentStates[WorkerCrawler])
	assert.Empty(t, doc.ErrorStates)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, ProjectComplete.IsTerminal())
	assert.True(t, ProjectError.IsTerminal())
	assert.False(t, ProjectImplementing.IsTerminal())
	assert.False(t, ProjectIterating.IsTerminal())
}
