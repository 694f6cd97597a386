// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat interface built on Bubble Tea.

A session.Controller drives the conversation; the package supplies the
Surface it reports to and the Model that draws it.

# Key Components

## Model (model.go)

The Bubble Tea model. It owns the text input, the scrolling viewport and the
spinner, and mirrors the committed history the controller reports.

## Surface (surface.go)

Implements session.Surface by forwarding every call to the running program
as a tea.Msg, so the controller never touches the model directly.

## Commands (commands.go)

Slash commands typed into the input:
  - /help - Show available commands
  - /reset - Drop everything except the system preamble
  - /copy - Copy the last response to the clipboard
  - /export [markdown|json|html] - Write the conversation to a file
  - /quit - Leave

# Usage

	surface := chat.NewSurface()
	ctrl := session.New(opts, client, surface, session.WithStateHook(surface.State))
	m := chat.New(ctrl, styles.NewTheme(), chat.Options{ModelName: opts.Model})
	p := tea.NewProgram(m, tea.WithAltScreen())
	surface.Attach(p)
	_, err := p.Run()
*/
package chat
