// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mimochat/internal/model"
	"github.com/jeranaias/mimochat/internal/session"
)

// Sender delivers messages into a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Surface implements session.Surface for the terminal. Calls made before
// Attach are dropped.
type Surface struct {
	mu     sync.RWMutex
	sender Sender
}

var _ session.Surface = (*Surface)(nil)

// NewSurface returns an unattached surface.
func NewSurface() *Surface {
	return &Surface{}
}

// Attach routes subsequent calls to s.
func (s *Surface) Attach(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Surface) send(msg tea.Msg) {
	s.mu.RLock()
	sender := s.sender
	s.mu.RUnlock()
	if sender != nil {
		sender.Send(msg)
	}
}

// AppendMessage implements session.Surface.
func (s *Surface) AppendMessage(msg model.Message) {
	s.send(MessageCommittedMsg{Message: msg})
}

// ResetHistory implements session.Surface.
func (s *Surface) ResetHistory(msgs []model.Message) {
	s.send(HistoryResetMsg{Messages: append([]model.Message(nil), msgs...)})
}

// UpdateLive implements session.Surface.
func (s *Surface) UpdateLive(display string) {
	s.send(LiveUpdateMsg{Display: display})
}

// ClearLive implements session.Surface.
func (s *Surface) ClearLive() {
	s.send(LiveClearMsg{})
}

// Warn implements session.Surface.
func (s *Surface) Warn(text string) {
	s.send(NoticeMsg{Level: NoticeWarning, Text: text})
}

// Error implements session.Surface.
func (s *Surface) Error(text string) {
	s.send(NoticeMsg{Level: NoticeError, Text: text})
}

// State forwards a state change. Register it with session.WithStateHook.
func (s *Surface) State(state session.State) {
	s.send(StateMsg{State: state})
}
