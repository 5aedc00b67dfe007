// Package llm defines the client interface for the external language model
// providers that produce implementation plans and feedback.
package llm

import (
	"context"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens bounds producer responses; plans are compact JSON.
	DefaultMaxTokens = 8192

	// TemperatureDefault is used for plan and feedback generation. Low
	// enough to keep selector text verbatim, with some room to explore.
	TemperatureDefault = 0.3
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// Usage carries token accounting for a completed request when the provider
// reports it; zero values mean "unknown".
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string
	StopReason string
	Usage      Usage
}

// Client defines the interface for language model interactions.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model identifier used by this client.
	GetModelName() string
}
