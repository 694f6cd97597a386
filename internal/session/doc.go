// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives the request/response cycle of one chat session.
//
// A Controller owns its Conversation exclusively; nothing is shared between
// controllers. Each Submit walks the state machine
//
//	Idle -> AwaitingInput -> BuildingRequest -> Streaming -> Committing -> Idle
//
// with BuildingRequest and Streaming falling through Failed back to Idle on a
// transport error, or straight to Idle when the turn is canceled.
//
// # Inactivity Reset
//
// When the gap between two submissions exceeds Options.InactivityThreshold,
// the conversation is truncated to its system preamble before the new user
// message is sent. The surface is told through ResetHistory and a notice.
//
// # Usage
//
//	ctl := session.New(session.DefaultOptions(), client, surface)
//	go func() {
//	    if err := ctl.Submit(ctx, "What is 2+2?"); err != nil {
//	        log.Debug("turn ended", "err", err)
//	    }
//	}()
package session
