// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"time"
)

// MockChatCompletionClient is an offline backend for local runs.
// It answers every request with a predictable echo of the last message.
type MockChatCompletionClient struct {
	now func() time.Time
}

// NewMockChatCompletionClient creates a new mock client
func NewMockChatCompletionClient() *MockChatCompletionClient {
	return &MockChatCompletionClient{now: time.Now}
}

// CreateChatCompletion implements ChatCompletionClient.CreateChatCompletion
func (m *MockChatCompletionClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lastMessage := ""
	if n := len(req.Messages); n > 0 {
		lastMessage = req.Messages[n-1].Content
	}
	mockContent := fmt.Sprintf("Mock response to: %s", lastMessage)
	created := m.now().Unix()

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-mock-%d", created),
		Object:  "chat.completion",
		Created: created,
		Model:   req.Model,
		Choices: []Choice{
			{
				Index: 0,
				Message: Message{
					Role:    RoleAssistant,
					Content: mockContent,
				},
				FinishReason: "stop",
			},
		},
		Usage: Usage{
			PromptTokens:     estimateTokens(lastMessage),
			CompletionTokens: estimateTokens(mockContent),
			TotalTokens:      estimateTokens(lastMessage) + estimateTokens(mockContent),
		},
	}, nil
}

// estimateTokens provides a rough token count estimate
// Using ~4 characters per token as a simple heuristic
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text) / 4
}
