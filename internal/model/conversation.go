// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Append validation failures.
var (
	ErrDuplicateID     = errors.New("duplicate message id")
	ErrMisplacedSystem = errors.New("system message must be the first message")
	ErrUnknownParent   = errors.New("in_response_to does not name a user message")
	ErrInvalidRole     = errors.New("invalid message role")
)

// maxTitleLen bounds the title derived from the first user message.
const maxTitleLen = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered, append-only log of one session. Insertion
// order is display order is chronological order. A Conversation is not safe
// for concurrent use; its owner serializes access.
type Conversation struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	messages []Message
	index    map[string]int
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		index:     make(map[string]int),
	}
}

// NewConversationWithPreamble creates a conversation whose first message is
// the given system prompt. A blank prompt yields an empty conversation.
func NewConversationWithPreamble(systemPrompt string) *Conversation {
	c := NewConversation()
	if strings.TrimSpace(systemPrompt) != "" {
		// Cannot fail on an empty conversation.
		_ = c.Append(NewSystemMessage(systemPrompt))
	}
	return c
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds msg to the end of the log after checking the conversation
// invariants: unique identities, at most one leading system message, and
// InResponseTo naming an existing user message. The zero Conversation is
// ready to use.
func (c *Conversation) Append(msg Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if _, dup := c.index[msg.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateID, msg.ID)
	}
	if msg.Role == RoleSystem && len(c.messages) > 0 {
		return ErrMisplacedSystem
	}
	if msg.InResponseTo != "" {
		i, ok := c.index[msg.InResponseTo]
		if !ok || c.messages[i].Role != RoleUser {
			return fmt.Errorf("%w: %s", ErrUnknownParent, msg.InResponseTo)
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.index[msg.ID] = len(c.messages)
	c.messages = append(c.messages, msg)
	c.UpdatedAt = time.Now()
	return nil
}

// All returns a copy of every message in insertion order.
func (c *Conversation) All() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Preamble returns the leading system message, if there is one.
func (c *Conversation) Preamble() (Message, bool) {
	if len(c.messages) > 0 && c.messages[0].Role == RoleSystem {
		return c.messages[0], true
	}
	return Message{}, false
}

// ResetToSystemPreamble discards every message except the leading system
// message.
func (c *Conversation) ResetToSystemPreamble() {
	preamble, ok := c.Preamble()
	c.messages = c.messages[:0:0]
	c.index = make(map[string]int)
	if ok {
		c.index[preamble.ID] = 0
		c.messages = append(c.messages, preamble)
	}
	c.UpdatedAt = time.Now()
}

// LastAssistant returns the most recent assistant message.
func (c *Conversation) LastAssistant() (Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// Wire returns the outbound payload: role/content pairs only, in order.
func (c *Conversation) Wire() []WireMessage {
	out := make([]WireMessage, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Wire())
	}
	return out
}

// =============================================================================
// TITLE
// =============================================================================

// Title derives a short title from the first user message.
func (c *Conversation) Title() string {
	for _, m := range c.messages {
		if m.Role != RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		runes := []rune(title)
		if len(runes) > maxTitleLen {
			title = string(runes[:maxTitleLen-3]) + "..."
		}
		return title
	}
	return "New Conversation"
}
