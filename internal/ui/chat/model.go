// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mimochat/internal/export"
	"github.com/jeranaias/mimochat/internal/model"
	"github.com/jeranaias/mimochat/internal/render"
	"github.com/jeranaias/mimochat/internal/session"
	"github.com/jeranaias/mimochat/internal/ui/styles"
)

// InputCharLimit bounds a single prompt.
const InputCharLimit = 4096

// Options configures the chat view.
type Options struct {
	// ModelName is shown in the header and stamped on exports.
	ModelName string

	// Style is the glamour style for markdown. Blank means auto.
	Style string

	// Plain disables markdown rendering.
	Plain bool

	// Export controls /export. Nil means export.DefaultOptions.
	Export *export.Options

	// Context bounds every turn. Nil means context.Background.
	Context context.Context
}

// entryKind tells transcript entries apart.
type entryKind int

const (
	entryMessage entryKind = iota
	entryNotice
)

// entry is one block of the transcript with its cached rendering.
type entry struct {
	kind     entryKind
	message  model.Message
	level    NoticeLevel
	text     string
	rendered string
}

// Model is the Bubble Tea model of the terminal chat.
type Model struct {
	ctrl  *session.Controller
	theme *styles.Theme
	keys  KeyMap
	opts  Options
	ctx   context.Context

	typesetter render.Typesetter

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	entries  []entry
	live     string
	state    session.State
	spinning bool

	width  int
	height int
	ready  bool
}

// New creates the chat model around ctrl. The history ctrl already holds is
// shown immediately.
func New(ctrl *session.Controller, theme *styles.Theme, opts Options) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Export == nil {
		opts.Export = export.DefaultOptions()
	}
	if opts.ModelName == "" {
		opts.ModelName = ctrl.Options().Model
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = theme.InputPrompt
	ti.Placeholder = "Type a message..."
	ti.CharLimit = InputCharLimit
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    spinner.Line.FPS,
	}
	sp.Style = theme.StateBusy

	m := Model{
		ctrl:     ctrl,
		theme:    theme,
		keys:     DefaultKeyMap(),
		opts:     opts,
		ctx:      ctx,
		input:    ti,
		viewport: viewport.New(render.DefaultWidth, 20),
		spinner:  sp,
		state:    ctrl.State(),
		width:    render.DefaultWidth,
	}
	m.typesetter = m.newTypesetter(m.contentWidth())
	m.entries = messageEntries(ctrl.History())
	return m
}

func messageEntries(msgs []model.Message) []entry {
	entries := make([]entry, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == model.RoleSystem {
			continue
		}
		entries = append(entries, entry{kind: entryMessage, message: msg})
	}
	return entries
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg.Width, msg.Height), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case MessageCommittedMsg:
		if msg.Message.Role != model.RoleSystem {
			m.entries = append(m.entries, entry{kind: entryMessage, message: msg.Message})
		}
		return m.refresh(), nil

	case HistoryResetMsg:
		m.entries = messageEntries(msg.Messages)
		return m.refresh(), nil

	case LiveUpdateMsg:
		m.live = msg.Display
		return m.refresh(), nil

	case LiveClearMsg:
		m.live = ""
		return m.refresh(), nil

	case NoticeMsg:
		return m.notice(msg.Level, msg.Text), nil

	case StateMsg:
		m.state = msg.State
		if m.state.Busy() && !m.spinning {
			m.spinning = true
			return m, m.spinner.Tick
		}
		return m, nil

	case TurnDoneMsg:
		if errors.Is(msg.Err, session.ErrBusy) {
			return m.notice(NoticeWarning, msg.Err.Error()), nil
		}
		return m, nil

	case ExportDoneMsg:
		if msg.Err != nil {
			return m.notice(NoticeError, "Export failed: "+msg.Err.Error()), nil
		}
		return m.notice(NoticeSuccess, "Exported to "+msg.Path), nil

	case CopyDoneMsg:
		if msg.Err != nil {
			return m.notice(NoticeError, "Copy failed: "+msg.Err.Error()), nil
		}
		return m.notice(NoticeSuccess, "Copied last response to clipboard"), nil

	case spinner.TickMsg:
		if !m.state.Busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.state.Busy() {
			m.ctrl.Cancel()
			return m, nil
		}
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil

	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reset):
		return m.runCommand("/reset")

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input line to the controller, or runs it as a command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		m.input.Reset()
		return m.runCommand(strings.TrimSpace(text))
	}
	if m.state.Busy() {
		return m.notice(NoticeWarning, session.ErrBusy.Error()), nil
	}
	m.input.Reset()
	return m, submitCmd(m.ctx, m.ctrl, text)
}

// submitCmd runs a turn off the event loop. Progress arrives through the
// Surface.
func submitCmd(ctx context.Context, ctrl *session.Controller, text string) tea.Cmd {
	return func() tea.Msg {
		return TurnDoneMsg{Err: ctrl.Submit(ctx, text)}
	}
}

func (m Model) notice(level NoticeLevel, text string) Model {
	m.entries = append(m.entries, entry{kind: entryNotice, level: level, text: text})
	return m.refresh()
}

// resize lays the view out for a new terminal size.
func (m Model) resize(width, height int) Model {
	widthChanged := width != m.width
	m.width, m.height = width, height
	m.theme.SetSize(width, height)
	m.input.Width = max(width-inputChrome, 10)

	if widthChanged || !m.ready {
		m.typesetter = m.newTypesetter(m.contentWidth())
		for i := range m.entries {
			m.entries[i].rendered = ""
		}
	}

	m.viewport.Width = width
	m.viewport.Height = max(height-m.chromeHeight(), 1)
	m.ready = true
	return m.refresh()
}

// inputChrome is the prompt plus the input container padding.
const inputChrome = 6

// refresh re-renders the transcript into the viewport, following the bottom
// when the user has not scrolled away from it.
func (m Model) refresh() Model {
	follow := m.viewport.AtBottom() || m.viewport.TotalLineCount() <= m.viewport.Height
	m.viewport.SetContent(m.transcript())
	if follow {
		m.viewport.GotoBottom()
	}
	return m
}

// State returns the controller state the view last saw.
func (m Model) State() session.State {
	return m.state
}

// Live returns the display text of the live region.
func (m Model) Live() string {
	return m.live
}
