// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
)

// ChatCompletionClient interface for calling chat completion backends
type ChatCompletionClient interface {
	// CreateChatCompletion calls the backend with a chat completion request.
	// Failures are returned as *upstream.Error.
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	TopP                *float64  `json:"top_p,omitempty"`
	MaxTokens           *int      `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int      `json:"max_completion_tokens,omitempty"`
	Stream              bool      `json:"stream,omitempty"`
}

// ChatCompletionResponse represents a chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`      // Unique completion ID
	Object  string   `json:"object"`  // "chat.completion"
	Created int64    `json:"created"` // Unix timestamp
	Model   string   `json:"model"`   // Model used
	Choices []Choice `json:"choices"` // Generated completions
	Usage   Usage    `json:"usage"`   // Token usage statistics

	// Raw is the upstream response body exactly as received. When set it is
	// what gets written back to the caller, so fields this type does not model
	// survive the round trip.
	Raw json.RawMessage `json:"-"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`         // Choice index (usually 0)
	Message      Message `json:"message"`       // Generated message
	FinishReason string  `json:"finish_reason"` // "stop", "length", "content_filter", etc.
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TopMessage returns the message of the first choice.
func (r *ChatCompletionResponse) TopMessage() (Message, bool) {
	if r == nil || len(r.Choices) == 0 {
		return Message{}, false
	}
	return r.Choices[0].Message, true
}

// Payload returns the JSON body to send to the caller: the raw upstream body
// when available, otherwise the marshalled struct.
func (r *ChatCompletionResponse) Payload() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(r)
}
