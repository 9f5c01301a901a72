// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt assembles the message sequence sent to the completion
// backend. A Conversation is a request-local value: every operation returns
// the updated Conversation and callers must use the returned value.
package prompt

import (
	"errors"
	"fmt"
	"time"

	"github.com/leseb/websearch-gw/pkg/core/api"
)

// ErrEmptyConversation is returned when a conversation has no messages.
var ErrEmptyConversation = errors.New("conversation has no messages")

// Conversation is an ordered sequence of chat messages.
type Conversation []api.Message

// New copies msgs into a fresh Conversation so later mutations never reach
// the caller's slice.
func New(msgs []api.Message) Conversation {
	conv := make(Conversation, len(msgs))
	copy(conv, msgs)
	return conv
}

// PrependSystem inserts a system message at position 0. Successive prepends
// read in reverse call order: the last text prepended comes first.
func PrependSystem(conv Conversation, text string) Conversation {
	out := make(Conversation, 0, len(conv)+1)
	out = append(out, api.SystemMessage(text))
	return append(out, conv...)
}

// AppendSystem adds a system message at the end.
func AppendSystem(conv Conversation, text string) Conversation {
	return append(conv, api.SystemMessage(text))
}

// Append pushes msg to the end, even if an equal message is already present.
func Append(conv Conversation, msg api.Message) Conversation {
	return append(conv, msg)
}

// LastMessage returns a copy of the last message without removing it.
func LastMessage(conv Conversation) (api.Message, error) {
	if len(conv) == 0 {
		return api.Message{}, ErrEmptyConversation
	}
	return conv[len(conv)-1], nil
}

// Messages returns a copy of the conversation suitable for a request body.
func (c Conversation) Messages() []api.Message {
	out := make([]api.Message, len(c))
	copy(out, c)
	return out
}

// TimestampText renders the wall-clock message injected ahead of the
// conversation.
func TimestampText(now time.Time) string {
	return fmt.Sprintf("The current date and time is %s.", now.UTC().Format(time.RFC1123))
}
