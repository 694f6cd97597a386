// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mimochat/internal/export"
	"github.com/jeranaias/mimochat/internal/session"
)

// =============================================================================
// COMMAND HANDLER REGISTRY
// =============================================================================

// CommandHandler handles one slash command.
type CommandHandler func(m Model, args []string) (tea.Model, tea.Cmd)

// commandInfo documents a command for /help.
type commandInfo struct {
	Name  string
	Usage string
	Desc  string
}

var commandList = []commandInfo{
	{"help", "/help", "Show available commands"},
	{"reset", "/reset", "Start over, keeping only the system prompt"},
	{"copy", "/copy", "Copy the last response to the clipboard"},
	{"export", "/export [markdown|json|html]", "Write the conversation to a file"},
	{"quit", "/quit", "Leave the chat"},
}

var commandHandlers = map[string]CommandHandler{
	"help":   handleHelpCommand,
	"h":      handleHelpCommand,
	"?":      handleHelpCommand,
	"reset":  handleResetCommand,
	"clear":  handleResetCommand,
	"new":    handleResetCommand,
	"copy":   handleCopyCommand,
	"export": handleExportCommand,
	"e":      handleExportCommand,
	"quit":   handleQuitCommand,
	"q":      handleQuitCommand,
	"exit":   handleQuitCommand,
}

// ErrNothingToCopy is reported by /copy before the first response.
var ErrNothingToCopy = errors.New("no response to copy")

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

// runCommand parses and dispatches a slash command.
func (m Model) runCommand(content string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(content)
	if len(parts) == 0 {
		return m, nil
	}
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	handler, ok := commandHandlers[name]
	if !ok {
		return m.notice(NoticeError, fmt.Sprintf("Unknown command: /%s (try /help)", name)), nil
	}
	return handler(m, parts[1:])
}

// =============================================================================
// HANDLERS
// =============================================================================

func handleHelpCommand(m Model, _ []string) (tea.Model, tea.Cmd) {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range commandList {
		fmt.Fprintf(&b, "\n  %-30s %s", c.Usage, c.Desc)
	}
	return m.notice(NoticeInfo, b.String()), nil
}

func handleQuitCommand(m Model, _ []string) (tea.Model, tea.Cmd) {
	m.ctrl.Cancel()
	return m, tea.Quit
}

// handleResetCommand runs off the event loop because the controller reports
// the new history through the Surface.
func handleResetCommand(m Model, _ []string) (tea.Model, tea.Cmd) {
	if m.state.Busy() {
		return m.notice(NoticeWarning, session.ErrBusy.Error()), nil
	}
	ctrl := m.ctrl
	return m, func() tea.Msg {
		if err := ctrl.Reset(); err != nil {
			return NoticeMsg{Level: NoticeWarning, Text: err.Error()}
		}
		return NoticeMsg{Level: NoticeInfo, Text: "Conversation reset."}
	}
}

func handleCopyCommand(m Model, _ []string) (tea.Model, tea.Cmd) {
	last, ok := m.ctrl.LastResponse()
	if !ok {
		return m, func() tea.Msg { return CopyDoneMsg{Err: ErrNothingToCopy} }
	}
	text := last.Content
	return m, func() tea.Msg {
		if err := writeClipboard(text); err != nil {
			return CopyDoneMsg{Err: err}
		}
		return CopyDoneMsg{Chars: len([]rune(text))}
	}
}

func handleExportCommand(m Model, args []string) (tea.Model, tea.Cmd) {
	format := "markdown"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}
	if _, err := export.ForFormat(format, m.opts.Export); err != nil {
		return m.notice(NoticeError, fmt.Sprintf("%v (choose %s)", err, strings.Join(export.Formats, ", "))), nil
	}

	t := export.NewTranscript(m.ctrl.ID(), m.ctrl.Title(), m.opts.ModelName, m.ctrl.History())
	opts := m.opts.Export
	return m, func() tea.Msg {
		path, err := export.Export(t, format, opts)
		return ExportDoneMsg{Path: path, Err: err}
	}
}
