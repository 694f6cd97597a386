// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"io"

	"github.com/jeranaias/mimochat/internal/completion"
	"github.com/jeranaias/mimochat/internal/model"
)

// Surface is the presentation collaborator. The controller calls it from the
// goroutine running Submit; implementations marshal onto their own rendering
// context as needed.
type Surface interface {
	// AppendMessage adds a committed message to the message list.
	AppendMessage(msg model.Message)

	// ResetHistory replaces the message list after the conversation was
	// truncated.
	ResetHistory(msgs []model.Message)

	// UpdateLive overwrites the live region with display text, the pipeline
	// output for the response so far.
	UpdateLive(display string)

	// ClearLive empties the live region.
	ClearLive()

	// Warn shows a non-fatal notice.
	Warn(text string)

	// Error shows a fatal turn error.
	Error(text string)
}

// Completer opens a streaming completion. *completion.Client satisfies it.
type Completer interface {
	Stream(ctx context.Context, req completion.Request) (io.ReadCloser, error)
}

// NopSurface discards everything.
type NopSurface struct{}

func (NopSurface) AppendMessage(model.Message)  {}
func (NopSurface) ResetHistory([]model.Message) {}
func (NopSurface) UpdateLive(string)            {}
func (NopSurface) ClearLive()                   {}
func (NopSurface) Warn(string)                  {}
func (NopSurface) Error(string)                 {}
