// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single committed turn. Messages are passed by value; once
// appended to a Conversation they are never modified.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// InResponseTo names the user message an assistant reply answers.
	InResponseTo string `json:"in_response_to,omitempty"`
}

// NewMessage creates a message with a fresh identity and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates the configuration preamble message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an assistant reply to the user message parentID.
func NewAssistantMessage(content, parentID string) Message {
	msg := NewMessage(RoleAssistant, content)
	msg.InResponseTo = parentID
	return msg
}

// NewID returns an opaque message identity.
func NewID() string {
	return "msg_" + uuid.NewString()
}

// Wire strips identity and timestamps, leaving what the completion endpoint
// sees.
func (m Message) Wire() WireMessage {
	return WireMessage{Role: string(m.Role), Content: m.Content}
}

// WireMessage is the role/content pair sent upstream.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
