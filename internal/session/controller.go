// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/jeranaias/mimochat/internal/completion"
	"github.com/jeranaias/mimochat/internal/model"
	"github.com/jeranaias/mimochat/internal/render"
	"github.com/jeranaias/mimochat/internal/util"
)

// Sentinel errors for easy checking.
var (
	// ErrBusy rejects a submission or reset while a turn is in flight.
	ErrBusy = errors.New("response in progress")

	// ErrEmptyInput rejects a blank submission.
	ErrEmptyInput = errors.New("empty input")

	// ErrEmptyResponse reports a stream that ended without any text.
	ErrEmptyResponse = errors.New("assistant did not generate any content")

	// ErrIllegalTransition reports a state change the machine does not allow.
	ErrIllegalTransition = errors.New("illegal state transition")
)

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs one interactive session: it owns the conversation, drives
// one request/response cycle at a time, and reports progress to a Surface.
//
// Submit blocks for the whole turn and should run off the surface's event
// loop. Every other method is safe to call concurrently with it.
type Controller struct {
	opts      Options
	completer Completer
	surface   Surface
	logger    *slog.Logger
	now       func() time.Time
	hooks     []func(State)

	mu         sync.Mutex
	state      State
	conv       *model.Conversation
	lastSubmit time.Time
	cancel     context.CancelFunc
	turns      int
}

// New creates a controller in StateIdle whose conversation holds only the
// system preamble.
func New(opts Options, completer Completer, surface Surface, options ...Option) *Controller {
	if surface == nil {
		surface = NopSurface{}
	}
	c := &Controller{
		opts:      opts,
		completer: completer,
		surface:   surface,
		logger:    slog.Default(),
		now:       time.Now,
		state:     StateIdle,
		conv:      model.NewConversationWithPreamble(opts.SystemPrompt),
	}
	for _, o := range options {
		o(c)
	}
	c.logger = c.logger.With("conversation", c.conv.ID)
	return c
}

// OnState registers fn to run after every state change.
func (c *Controller) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of the conversation for redraws and export.
func (c *Controller) History() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.All()
}

// LastResponse returns the newest committed assistant reply.
func (c *Controller) LastResponse() (model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.LastAssistant()
}

// ID returns the conversation ID.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.ID
}

// Title returns the conversation title.
func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Title()
}

// Options returns the controller configuration.
func (c *Controller) Options() Options {
	return c.opts
}

// Cancel aborts the in-flight turn, if any. Nothing from it is committed.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// Reset truncates the conversation to its system preamble.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.state.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	before := c.conv.Len()
	c.conv.ResetToSystemPreamble()
	c.lastSubmit = time.Time{}
	msgs := c.conv.All()
	c.mu.Unlock()

	c.logger.Info("conversation reset", "reason", "manual", "dropped", before-len(msgs))
	c.surface.ResetHistory(msgs)
	return nil
}

// =============================================================================
// TURN
// =============================================================================

// Submit runs one full turn for input: record the user message, build and
// send the request, stream the reply into the live region, and commit it.
// It returns ErrBusy when a turn is already running, ErrEmptyInput for blank
// input, ErrEmptyResponse when nothing was generated, the context error when
// canceled, or the transport error that failed the turn.
func (c *Controller) Submit(ctx context.Context, input string) error {
	text := norm.NFC.String(strings.TrimSpace(input))
	if text == "" {
		return ErrEmptyInput
	}

	// Idle -> AwaitingInput claims the controller under one lock.
	c.mu.Lock()
	if c.state.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.setStateLocked(StateAwaitingInput); err != nil {
		c.mu.Unlock()
		return err
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.turns++
	turn := c.turns
	hooks := c.hooksLocked()
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()
	runHooks(hooks, StateAwaitingInput)

	log := c.logger.With("turn", turn)

	user := model.NewUserMessage(text)
	user.CreatedAt = c.now()
	c.mu.Lock()
	gap := time.Duration(0)
	if !c.lastSubmit.IsZero() {
		gap = user.CreatedAt.Sub(c.lastSubmit)
	}
	c.lastSubmit = user.CreatedAt
	err := c.conv.Append(user)
	c.mu.Unlock()
	if err != nil {
		c.transition(StateIdle)
		return fmt.Errorf("record user message: %w", err)
	}

	c.transition(StateBuildingRequest)
	req, reset, err := c.buildRequest(user, gap)
	if err != nil {
		return c.fail(log, err, nil)
	}
	if reset {
		log.Info("conversation reset", "reason", "inactivity", "gap", gap.Round(time.Second))
		c.surface.ResetHistory(c.History())
		c.surface.Warn(fmt.Sprintf("Earlier messages were cleared after %s of inactivity.", humanDuration(gap)))
	} else {
		c.surface.AppendMessage(user)
	}
	if turnCtx.Err() != nil {
		return c.abort(log, turnCtx.Err())
	}

	c.transition(StateStreaming)
	tail := newRawTail(RawTailLines)
	content, stats, err := c.stream(turnCtx, log, req, tail)
	if err != nil {
		if turnCtx.Err() != nil || completion.IsCanceled(err) {
			return c.abort(log, context.Canceled)
		}
		return c.fail(log, err, tail)
	}

	c.transition(StateCommitting)
	c.surface.ClearLive()
	if content == "" {
		log.Warn("empty response", "stats", stats.Format())
		c.surface.Warn(EmptyResponseWarning)
		c.reportRaw(log, tail)
		c.transition(StateIdle)
		return ErrEmptyResponse
	}

	reply := model.NewAssistantMessage(content, user.ID)
	reply.CreatedAt = c.now()
	c.mu.Lock()
	err = c.conv.Append(reply)
	c.mu.Unlock()
	if err != nil {
		c.transition(StateIdle)
		return fmt.Errorf("record assistant message: %w", err)
	}
	c.surface.AppendMessage(reply)
	c.mu.Lock()
	size := c.conv.Len()
	c.mu.Unlock()
	log.Info("turn complete",
		"messages", size,
		"deltas", stats.Deltas,
		"bytes", stats.Bytes,
		"ttft", stats.TTFT,
		"duration", stats.TotalDuration)

	c.transition(StateIdle)
	return nil
}

// buildRequest applies the inactivity reset and assembles the outbound
// payload. reset reports whether prior turns were dropped.
func (c *Controller) buildRequest(user model.Message, gap time.Duration) (completion.Request, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reset := false
	if c.opts.InactivityThreshold > 0 && gap > c.opts.InactivityThreshold {
		c.logger.Debug("dropping prior turns", "messages", c.conv.Len()-1)
		c.conv.ResetToSystemPreamble()
		if err := c.conv.Append(user); err != nil {
			return completion.Request{}, false, fmt.Errorf("re-record user message: %w", err)
		}
		reset = true
	}

	messages := c.conv.Wire()
	if c.opts.Reinforce {
		// Sent as a user turn so the preamble stays the only system entry.
		messages = append(messages, model.WireMessage{
			Role:    string(model.RoleUser),
			Content: ReinforcementPrefix + user.Content,
		})
	}

	return completion.Request{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      true,
	}, reset, nil
}

// stream issues the request and feeds every delta through the incremental
// renderer into the live region. It returns the raw accumulated text. Every
// line read from the body is also recorded in tail.
func (c *Controller) stream(ctx context.Context, log *slog.Logger, req completion.Request, tail *rawTail) (string, *model.Statistics, error) {
	stats := model.NewStatistics()
	defer stats.Finalize()

	body, err := c.completer.Stream(ctx, req)
	if err != nil {
		return "", stats, err
	}
	defer body.Close()
	// Unblock a pending read when the turn is canceled.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	limiter := newFrameLimiter(c.opts.MaxFPS)
	buf := render.NewIncremental()
	dirty := false

	for ev, err := range completion.Decode(io.TeeReader(body, tail)) {
		if err != nil {
			return "", stats, completion.WrapReadError(ctx, err)
		}
		switch ev.Kind {
		case completion.EventDelta:
			stats.RecordDelta(ev.Text)
			display := buf.Append(ev.Text)
			if limiter.Allow() {
				c.surface.UpdateLive(display)
				dirty = false
			} else {
				dirty = true
			}
		case completion.EventMalformed:
			log.Warn("malformed stream line", "line", util.Preview(ev.Raw, PreviewWidth))
			c.surface.Warn("Skipping non-JSON line: " + util.Preview(ev.Raw, PreviewWidth))
		case completion.EventWarning:
			log.Warn("stream line error", "err", ev.Err, "line", util.Preview(ev.Raw, PreviewWidth))
			c.surface.Warn(fmt.Sprintf("Error processing line: %v - Line: %s", ev.Err, util.Preview(ev.Raw, PreviewWidth)))
		case completion.EventDone:
			log.Debug("stream done")
		}
	}
	if ctx.Err() != nil {
		return "", stats, ctx.Err()
	}
	if dirty {
		c.surface.UpdateLive(buf.Output())
	}
	return buf.String(), stats, nil
}

// fail moves through Failed back to Idle, surfacing err verbatim followed by
// whatever the server sent before the failure. tail may be nil.
func (c *Controller) fail(log *slog.Logger, err error, tail *rawTail) error {
	log.Error("turn failed", "err", err)
	c.transition(StateFailed)
	c.surface.ClearLive()
	c.surface.Error(err.Error())
	c.reportRaw(log, tail)
	c.transition(StateIdle)
	return err
}

// reportRaw shows the recently received stream lines, if any.
func (c *Controller) reportRaw(log *slog.Logger, tail *rawTail) {
	lines := tail.Lines()
	if len(lines) == 0 {
		return
	}
	log.Warn("raw response", "lines", lines, "dropped", tail.Dropped())
	c.surface.Warn(RawLinesHeader + "\n" + strings.Join(lines, "\n"))
}

// abort returns to Idle after cancellation without committing anything.
func (c *Controller) abort(log *slog.Logger, err error) error {
	log.Info("turn canceled")
	c.surface.ClearLive()
	c.transition(StateIdle)
	return err
}

// transition moves to next and runs the state hooks. An illegal move is a
// programming error; it is logged and refused.
func (c *Controller) transition(next State) {
	c.mu.Lock()
	prev := c.state
	err := c.setStateLocked(next)
	hooks := c.hooksLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("refused state change", "err", err)
		return
	}
	c.logger.Debug("state", "from", prev, "to", next)
	runHooks(hooks, next)
}

// setStateLocked validates and applies a state change. c.mu must be held.
func (c *Controller) setStateLocked(next State) error {
	if !CanTransition(c.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.state, next)
	}
	c.state = next
	return nil
}

func (c *Controller) hooksLocked() []func(State) {
	return append([]func(State){}, c.hooks...)
}

func runHooks(hooks []func(State), s State) {
	for _, fn := range hooks {
		fn(s)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// newFrameLimiter allows maxFPS redraws per second with a burst of one.
func newFrameLimiter(maxFPS float64) *rate.Limiter {
	if maxFPS <= 0 || math.IsInf(maxFPS, 1) {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(maxFPS), 1)
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%.1f hours", d.Hours())
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
}
