// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/leseb/websearch-gw/pkg/core/upstream"
)

const openAIBackend = "openai"

// OpenAIClient implements ChatCompletionClient using the official OpenAI Go SDK
// Supports OpenAI, Ollama, vLLM, and other OpenAI-compatible backends
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI-compatible client using the official SDK.
// An empty baseURL targets api.openai.com. The SDK's automatic retries are
// turned off: a failed call is reported to the caller as-is.
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
	}

	// Set custom base URL if provided (for Ollama, vLLM, etc.)
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	// Set API key if provided (optional for local backends like Ollama)
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		opts = append(opts, option.WithAPIKey("dummy"))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
	}
}

// convertMessages converts our Message types to OpenAI SDK message params
func convertMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case RoleUser:
			result = append(result, openai.UserMessage(msg.Content))
		case RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	return result, nil
}

// buildParams constructs OpenAI SDK ChatCompletionNewParams from our ChatCompletionRequest
func buildParams(req *ChatCompletionRequest, messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}

	// Token limits: prefer MaxCompletionTokens, fall back to MaxTokens
	if req.MaxCompletionTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxCompletionTokens))
	} else if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}

	return params
}

// CreateChatCompletion implements ChatCompletionClient.CreateChatCompletion
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("chat completion request has no messages")
	}
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	completion, err := c.client.Chat.Completions.New(ctx, buildParams(req, messages))
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, upstream.Decode(upstream.ProviderCompletion, openAIBackend, errors.New("response contained no choices"))
	}

	choices := make([]Choice, 0, len(completion.Choices))
	for _, choice := range completion.Choices {
		choices = append(choices, Choice{
			Index: int(choice.Index),
			Message: Message{
				Role:    string(choice.Message.Role),
				Content: choice.Message.Content,
			},
			FinishReason: string(choice.FinishReason),
		})
	}

	resp := &ChatCompletionResponse{
		ID:      completion.ID,
		Object:  string(completion.Object),
		Created: completion.Created,
		Model:   completion.Model,
		Choices: choices,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if raw := completion.RawJSON(); raw != "" && json.Valid([]byte(raw)) {
		resp.Raw = json.RawMessage(raw)
	}
	return resp, nil
}

// classifyOpenAIError maps an SDK error onto the upstream error taxonomy.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return upstream.Status(upstream.ProviderCompletion, openAIBackend, apiErr.StatusCode, apiErr.Message)
	}
	if upstream.IsTransport(err) {
		return upstream.Transport(upstream.ProviderCompletion, openAIBackend, err)
	}
	return upstream.Decode(upstream.ProviderCompletion, openAIBackend, err)
}
