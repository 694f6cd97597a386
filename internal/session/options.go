// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"log/slog"
	"time"

	"github.com/jeranaias/mimochat/internal/completion"
)

const (
	// DefaultSystemPrompt is the preamble of every conversation.
	DefaultSystemPrompt = "You must always answer in English."

	// DefaultInactivityThreshold is the gap after which context is dropped.
	DefaultInactivityThreshold = 30 * time.Minute

	// DefaultMaxFPS caps live-region redraws per second.
	DefaultMaxFPS = 30

	// ReinforcementPrefix starts the synthetic instruction appended to the
	// outbound messages when reinforcement is enabled.
	ReinforcementPrefix = "Answer only the latest user message, not earlier ones. The latest message is: "

	// EmptyResponseWarning is shown when a stream produced no text.
	EmptyResponseWarning = "Assistant did not generate any content."

	// PreviewWidth bounds how much of a bad stream line is echoed back.
	PreviewWidth = 100

	// RawLinesHeader starts the dump of received lines shown when a turn
	// produced nothing usable.
	RawLinesHeader = "Raw response lines received:"

	// RawTailLines is how many recent stream lines are kept for that dump.
	RawTailLines = 10
)

// Options configures a Controller.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int

	// SystemPrompt becomes the conversation preamble. Blank means none.
	SystemPrompt string

	// InactivityThreshold drops prior turns when the gap between two
	// submissions exceeds it. Zero disables the reset.
	InactivityThreshold time.Duration

	// Reinforce appends a synthetic instruction naming the current prompt to
	// the outbound messages. It is never stored.
	Reinforce bool

	// MaxFPS caps UpdateLive calls per second. Zero or less means no cap.
	// The final frame of a response is always delivered.
	MaxFPS float64
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Model:               completion.DefaultModel,
		Temperature:         completion.DefaultTemperature,
		MaxTokens:           completion.NoTokenLimit,
		SystemPrompt:        DefaultSystemPrompt,
		InactivityThreshold: DefaultInactivityThreshold,
		MaxFPS:              DefaultMaxFPS,
	}
}

// Option customizes a Controller beyond Options.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStateHook registers fn to run after every state change.
func WithStateHook(fn func(State)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.hooks = append(c.hooks, fn)
		}
	}
}
