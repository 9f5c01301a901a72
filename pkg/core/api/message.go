// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

// Message roles accepted by the gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // Message text content
}

// SystemMessage builds a system message carrying text.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// ValidRole reports whether role is one of the supported message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
