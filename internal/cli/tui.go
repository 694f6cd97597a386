// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/mimochat/internal/completion"
	"github.com/jeranaias/mimochat/internal/config"
	"github.com/jeranaias/mimochat/internal/logging"
	"github.com/jeranaias/mimochat/internal/session"
	"github.com/jeranaias/mimochat/internal/ui/chat"
	"github.com/jeranaias/mimochat/internal/ui/styles"
)

func newTUICmd(g *globalFlags) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Full-screen terminal chat",
		Long: `Open a full-screen chat in the terminal.

Enter sends, Ctrl+C stops a response in progress and quits when idle.
Type /help inside the chat for commands. Logs go to log.file when set and
are discarded otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			if plain {
				cfg.UI.RenderMode = config.RenderPlain
			}
			if !IsTTY() {
				return errNeedsTTY("tui")
			}

			logger, closeLog, err := logging.Setup(cfg.Log, io.Discard)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			client := completion.NewClient(cfg.ClientConfig())
			surface := chat.NewSurface()
			ctrl := session.New(cfg.SessionOptions(), client, surface,
				session.WithLogger(logger),
				session.WithStateHook(surface.State))

			m := chat.New(ctrl, styles.NewTheme(), chat.Options{
				ModelName: cfg.Endpoint.Model,
				Style:     cfg.UI.Theme,
				Plain:     cfg.UI.RenderMode == config.RenderPlain,
				Context:   ctx,
			})
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
			surface.Attach(p)

			_, err = p.Run()
			ctrl.Cancel()
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Show responses as plain text")
	return cmd
}

// ttyError reports a command that needs an interactive terminal.
type ttyError struct {
	command string
}

func (e ttyError) Error() string {
	return e.command + " needs an interactive terminal; try 'mimochat serve'"
}

func errNeedsTTY(command string) error {
	return ttyError{command: command}
}

// stdinIsPipe reports whether stdin is redirected.
func stdinIsPipe() bool {
	stat, err := os.Stdin.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice == 0
}
