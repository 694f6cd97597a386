// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation log and message types.
//
// # Key Types
//
//   - Message: one committed turn with role, content, identity and timestamp
//   - Conversation: ordered append-only log with a single leading system preamble
//   - WireMessage: the role/content pair sent to the completion endpoint
//   - Statistics: per-response timing (time to first delta, total duration)
//
// # Usage
//
//	conv := model.NewConversationWithPreamble("You must always answer in English.")
//	user := model.NewUserMessage("What is 2+2?")
//	if err := conv.Append(user); err != nil {
//	    return err
//	}
//	_ = conv.Append(model.NewAssistantMessage("4", user.ID))
//	payload := conv.Wire()
package model
