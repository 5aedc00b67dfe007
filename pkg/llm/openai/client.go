// Package openai provides the OpenAI client implementation using the
// official OpenAI Go package.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"siteforge/pkg/llm"
)

// Client wraps the official OpenAI Go client to implement llm.Client.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a new OpenAI client with the given model.
func NewClient(apiKey, model string) llm.Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements the llm.Client interface using the Responses API.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	// The Responses API takes a single input string; fold the conversation
	// into one prompt with role prefixes.
	var inputText string
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			inputText += fmt.Sprintf("System: %s\n\n", msg.Content)
		case llm.RoleUser:
			inputText += msg.Content + "\n\n"
		case llm.RoleAssistant:
			inputText += fmt.Sprintf("Assistant: %s\n\n", msg.Content)
		}
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llm.WrapError(fmt.Errorf("OpenAI Responses API failed: %w", err))
	}
	if resp == nil {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "no text output in OpenAI response")
	}

	return llm.CompletionResponse{
		Content: content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}
