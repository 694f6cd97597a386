// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import "github.com/jeranaias/mimochat/internal/model"

// Request is the chat-completions request body. MaxTokens is always sent;
// -1 asks the server for no limit.
type Request struct {
	Model       string              `json:"model"`
	Messages    []model.WireMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
	Stream      bool                `json:"stream"`
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind discriminates decoder events.
type EventKind int

const (
	// EventDelta carries a non-empty fragment of generated text.
	EventDelta EventKind = iota + 1
	// EventDone marks the terminal [DONE] payload.
	EventDone
	// EventMalformed carries a line whose payload was not valid JSON.
	EventMalformed
	// EventWarning carries a recoverable per-line processing error.
	EventWarning
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventMalformed:
		return "malformed"
	case EventWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Event is one decoded stream event. Events are ephemeral and never stored.
type Event struct {
	Kind EventKind

	// Text is the delta content for EventDelta.
	Text string

	// Raw is the offending line for EventMalformed and EventWarning.
	Raw string

	// Err describes the problem for EventWarning.
	Err error
}

// Delta builds an EventDelta.
func Delta(text string) Event { return Event{Kind: EventDelta, Text: text} }

// Done builds an EventDone.
func Done() Event { return Event{Kind: EventDone} }

// Malformed builds an EventMalformed.
func Malformed(raw string) Event { return Event{Kind: EventMalformed, Raw: raw} }
