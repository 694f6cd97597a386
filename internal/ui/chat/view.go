// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mimochat/internal/model"
	"github.com/jeranaias/mimochat/internal/render"
	"github.com/jeranaias/mimochat/internal/ui/styles"
)

// Title is the header text.
const Title = "Mimo-7b-rl Chatbot"

// bodyIndent is the border plus padding in front of message bodies.
const bodyIndent = 2

// =============================================================================
// TYPESETTING
// =============================================================================

func (m Model) newTypesetter(width int) render.Typesetter {
	if m.opts.Plain {
		return plainTypesetter{}
	}
	return render.NewTerminalTypesetter(m.opts.Style, width)
}

func (m Model) contentWidth() int {
	return max(m.width-bodyIndent-1, 20)
}

// plainTypesetter leaves markdown alone and prints math as its TeX source.
type plainTypesetter struct{}

var detailsTags = strings.NewReplacer(
	"<details>", "",
	"</details>", "",
	"<summary>", "",
	"</summary>", "",
)

func (plainTypesetter) Markdown(src string) (string, error) {
	return strings.Trim(detailsTags.Replace(src), "\n"), nil
}

func (plainTypesetter) Math(tex string, display bool) string {
	if display {
		return "\n$$" + strings.TrimSpace(tex) + "$$\n"
	}
	return "$" + tex + "$"
}

func (plainTypesetter) Raw(text string) string {
	return text
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// transcript renders every entry plus the live region. Entry renderings are
// cached until the width changes.
func (m Model) transcript() string {
	blocks := make([]string, 0, len(m.entries)+1)
	for i := range m.entries {
		if m.entries[i].rendered == "" {
			m.entries[i].rendered = m.renderEntry(m.entries[i])
		}
		blocks = append(blocks, m.entries[i].rendered)
	}
	if m.live != "" || m.state.Busy() {
		blocks = append(blocks, m.renderLive())
	}
	if len(blocks) == 0 {
		return m.theme.ShortcutDesc.Render("Ask anything. Type /help for commands.")
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderEntry(e entry) string {
	if e.kind == entryNotice {
		return renderNotice(e.level, e.text)
	}

	msg := e.message
	stamp := m.theme.ShortcutDesc.Render(msg.CreatedAt.Format("15:04"))
	switch msg.Role {
	case model.RoleUser:
		label := m.theme.UserLabel.Render(msg.Role.DisplayName())
		body := m.theme.UserBody.Width(m.contentWidth()).Render(msg.Content)
		return label + " " + stamp + "\n" + body
	default:
		label := m.theme.AssistantLabel.Render(msg.Role.DisplayName())
		body := m.theme.AssistantBody.Render(render.Compose(msg.Content, m.typesetter))
		return label + " " + stamp + "\n" + body
	}
}

func (m Model) renderLive() string {
	label := m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName())
	if m.live == "" {
		return label + " " + m.theme.ShortcutDesc.Render("...")
	}
	return label + "\n" + m.theme.LiveBody.Render(render.Typeset(m.live, m.typesetter))
}

func renderNotice(level NoticeLevel, text string) string {
	switch level {
	case NoticeSuccess:
		return styles.RenderSuccess(text)
	case NoticeWarning:
		return styles.RenderWarning(text)
	case NoticeError:
		return styles.RenderError(text)
	default:
		return styles.RenderInfo(text)
	}
}

// =============================================================================
// LAYOUT
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.inputView(),
		m.statusView(),
	)
}

// chromeHeight is everything around the viewport.
func (m Model) chromeHeight() int {
	return lipgloss.Height(m.headerView()) + lipgloss.Height(m.inputView()) + lipgloss.Height(m.statusView())
}

func (m Model) headerView() string {
	title := m.theme.HeaderTitle.Render("💬 " + Title)
	name := m.theme.HeaderModel.Render(m.opts.ModelName)
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(name) - 2
	if gap < 1 {
		return m.theme.Header.Width(m.width).Render(title)
	}
	return m.theme.Header.Width(m.width).Render(title + strings.Repeat(" ", gap) + name)
}

func (m Model) inputView() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) statusView() string {
	var state string
	if m.state.Busy() {
		state = m.spinner.View() + " " + m.theme.StateBusy.Render(m.state.String())
	} else {
		state = m.theme.StateIdle.Render(m.state.String())
	}

	parts := []string{state}
	if m.theme.GetLayoutMode() != styles.LayoutNarrow {
		for _, b := range m.keys.ShortHelp() {
			h := b.Help()
			parts = append(parts, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
		}
	}
	return m.theme.StatusBar.MaxWidth(max(m.width, 1)).Render(strings.Join(parts, "  "))
}
