// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/mimochat/internal/model"
	"github.com/jeranaias/mimochat/internal/session"
)

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// MessageCommittedMsg carries a message the controller recorded.
type MessageCommittedMsg struct {
	Message model.Message
}

// HistoryResetMsg replaces the message list.
type HistoryResetMsg struct {
	Messages []model.Message
}

// LiveUpdateMsg overwrites the live region with display text.
type LiveUpdateMsg struct {
	Display string
}

// LiveClearMsg empties the live region.
type LiveClearMsg struct{}

// StateMsg reports a controller state change.
type StateMsg struct {
	State session.State
}

// TurnDoneMsg is returned when a Submit call finishes.
type TurnDoneMsg struct {
	Err error
}

// =============================================================================
// NOTICES
// =============================================================================

// NoticeLevel picks the styling of a notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// NoticeMsg adds a notice line to the transcript.
type NoticeMsg struct {
	Level NoticeLevel
	Text  string
}

// =============================================================================
// COMMAND RESULTS
// =============================================================================

// ExportDoneMsg reports the result of /export.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// CopyDoneMsg reports the result of /copy.
type CopyDoneMsg struct {
	Chars int
	Err   error
}
