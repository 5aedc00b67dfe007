// Package ollama provides the Ollama client implementation for the
// llm.Client interface. Ollama is a local LLM runtime for open-source
// models.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"siteforge/pkg/llm"
)

// DefaultHostURL is the standard local Ollama server address.
const DefaultHostURL = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.Client.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewClient creates a new Ollama client. hostURL may be empty for the
// default local server.
func NewClient(hostURL, model string) llm.Client {
	if hostURL == "" {
		hostURL = DefaultHostURL
	}
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse(DefaultHostURL)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

// Complete implements the llm.Client interface.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		messages = append(messages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	stream := false // Plans are consumed whole, no streaming.
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": maxTokens,
		},
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, llm.WrapError(fmt.Errorf("ollama chat request failed: %w", err))
	}

	if response.Message.Content == "" {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "empty response from Ollama")
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: response.DoneReason,
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}
