// Package google provides the Google Gemini client implementation for
// the llm.Client interface.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"siteforge/pkg/llm"
)

// GeminiClient wraps the Google GenAI client to implement llm.Client.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGeminiClient creates a new Gemini client for the given model.
func NewGeminiClient(apiKey, model string) llm.Client {
	// Client creation requires a context, so it is deferred to Complete().
	return &GeminiClient{
		client: nil,
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements the llm.Client interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeAuth, fmt.Sprintf("failed to create Gemini client: %v", err))
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	//nolint:gosec // MaxTokens validated at higher layer, overflow acceptable
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: int32(maxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, llm.WrapError(fmt.Errorf("Gemini API call failed: %w", err))
	}
	if result == nil || result.Text() == "" {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	resp := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: "end_turn",
	}
	if result.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	return resp, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessagesToGemini converts messages to Gemini's Content format.
// System messages are extracted into a separate system instruction string.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model" // Gemini uses "model" instead of "assistant"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	return contents, systemInstruction, nil
}
