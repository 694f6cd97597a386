// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/mimochat/internal/completion"
	"github.com/jeranaias/mimochat/internal/config"
	"github.com/jeranaias/mimochat/internal/export"
	"github.com/jeranaias/mimochat/internal/logging"
	"github.com/jeranaias/mimochat/internal/model"
	"github.com/jeranaias/mimochat/internal/render"
	"github.com/jeranaias/mimochat/internal/session"
)

// historyFileName holds line-editor history inside the config directory.
const historyFileName = "chat_history"

func newChatCmd(g *globalFlags) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Line-oriented terminal chat",
		Long: `Chat one line at a time with arrow-key history.

Ctrl+C stops a response in progress; at the prompt it leaves, as does
Ctrl+D. When stdin is not a terminal its whole content is sent as a single
message and the reply is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			if plain || !IsStdoutTTY() {
				cfg.UI.RenderMode = config.RenderPlain
			}

			logger, closeLog, err := logging.Setup(cfg.Log, io.Discard)
			if err != nil {
				return err
			}
			defer closeLog()

			out := cmd.OutOrStdout()
			surface := newPrintSurface(out, cfg.UI.RenderMode == config.RenderRich,
				render.NewTerminalTypesetter(cfg.UI.Theme, GetTerminalWidth()))
			ctrl := session.New(cfg.SessionOptions(), completion.NewClient(cfg.ClientConfig()), surface,
				session.WithLogger(logger))

			if stdinIsPipe() {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				if err := ctrl.Submit(cmd.Context(), string(data)); err != nil {
					// Already printed by the surface.
					return silentError{err}
				}
				return nil
			}

			line := liner.NewLiner()
			line.SetCtrlCAborts(true)
			historyFile := chatHistoryPath()
			loadHistory(line, historyFile)
			defer func() {
				saveHistory(line, historyFile)
				line.Close()
			}()

			r := &repl{
				in:        line,
				out:       out,
				ctrl:      ctrl,
				modelName: cfg.Endpoint.Model,
				export:    export.DefaultOptions(),
				copy:      clipboard.WriteAll,
			}
			return r.run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Stream plain text instead of rendering markdown")
	return cmd
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

func chatHistoryPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, historyFileName)
}

func loadHistory(line *liner.State, path string) {
	if f, err := os.Open(path); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
}

// saveHistory writes history owner-only.
func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

// =============================================================================
// REPL
// =============================================================================

// lineReader is the part of *liner.State the loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

type repl struct {
	in        lineReader
	out       io.Writer
	ctrl      *session.Controller
	modelName string
	export    *export.Options
	copy      func(string) error
}

// run reads prompts until EOF, Ctrl+C at the prompt, or /quit.
func (r *repl) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "%s %s\n", titleStyle.Render("Mimo-7b-rl Chatbot"), dimStyle.Render("("+r.modelName+")"))
	fmt.Fprintln(r.out, dimStyle.Render("Type /help for commands, Ctrl+D to quit."))

	for {
		input, err := r.in.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		text := strings.TrimSpace(input)
		if text == "" {
			continue
		}
		r.in.AppendHistory(input)

		if strings.HasPrefix(text, "/") {
			if quit := r.command(text); quit {
				return nil
			}
			continue
		}

		r.turn(ctx, text)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// turn runs one submission. Ctrl+C during the turn cancels it.
func (r *repl) turn(ctx context.Context, text string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := r.ctrl.Submit(turnCtx, text)
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		fmt.Fprintln(r.out, warningStyle.Render("[Canceled]"))
	}
}

// command runs a slash command and reports whether to leave.
func (r *repl) command(text string) bool {
	parts := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))

	switch name {
	case "quit", "exit", "q":
		return true

	case "help", "h", "?":
		fmt.Fprintln(r.out, "Commands:")
		fmt.Fprintln(r.out, "  /reset                        Start over, keeping only the system prompt")
		fmt.Fprintln(r.out, "  /copy                         Copy the last response to the clipboard")
		fmt.Fprintln(r.out, "  /export [markdown|json|html]  Write the conversation to a file")
		fmt.Fprintln(r.out, "  /quit                         Leave")

	case "reset", "clear", "new":
		if err := r.ctrl.Reset(); err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("[Error]"), err)
			break
		}
		fmt.Fprintln(r.out, successStyle.Render("Conversation reset."))

	case "copy":
		last, ok := r.ctrl.LastResponse()
		if !ok {
			fmt.Fprintln(r.out, warningStyle.Render("No response to copy."))
			break
		}
		if err := r.copy(last.Content); err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("[Error]"), "copy failed:", err)
			break
		}
		fmt.Fprintln(r.out, successStyle.Render("Copied last response to clipboard."))

	case "export":
		format := "markdown"
		if len(parts) > 1 {
			format = parts[1]
		}
		t := export.NewTranscript(r.ctrl.ID(), r.ctrl.Title(), r.modelName, r.ctrl.History())
		path, err := export.Export(t, format, r.export)
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("[Error]"), err)
			break
		}
		fmt.Fprintln(r.out, successStyle.Render("Exported to "+path))

	default:
		fmt.Fprintln(r.out, errorStyle.Render("[Error]"), "unknown command /"+name+" (try /help)")
	}
	return false
}

// =============================================================================
// PRINT SURFACE
// =============================================================================

// printSurface writes a session to a plain stream. Plain mode streams the
// display text as it grows; rich mode prints the typeset reply once it is
// committed. When streamed text is rewritten in place, such as a think
// block being folded, streaming stops and the full reply is printed at the
// end instead.
type printSurface struct {
	mu   sync.Mutex
	out  io.Writer
	rich bool
	ts   render.Typesetter

	printed  string
	diverged bool
	reprint  bool
}

var _ session.Surface = (*printSurface)(nil)

func newPrintSurface(out io.Writer, rich bool, ts render.Typesetter) *printSurface {
	return &printSurface{out: out, rich: rich, ts: ts}
}

func (s *printSurface) AppendMessage(msg model.Message) {
	if msg.Role != model.RoleAssistant {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.rich:
		fmt.Fprintln(s.out, render.Compose(msg.Content, s.ts))
	case s.reprint:
		fmt.Fprintln(s.out, render.Render(msg.Content))
	}
	s.reprint = false
}

func (s *printSurface) ResetHistory([]model.Message) {}

func (s *printSurface) UpdateLive(display string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.printed == "" && !s.diverged {
		s.reprint = false
		fmt.Fprintln(s.out, assistantStyle.Render("Assistant:"))
	}
	if s.rich || s.diverged {
		s.printed = display
		return
	}
	if !strings.HasPrefix(display, s.printed) {
		s.diverged = true
		return
	}
	io.WriteString(s.out, display[len(s.printed):])
	s.printed = display
}

func (s *printSurface) ClearLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rich && s.printed != "" && !s.diverged {
		fmt.Fprintln(s.out)
	}
	s.reprint = s.diverged
	s.printed = ""
	s.diverged = false
}

func (s *printSurface) Warn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, warningStyle.Render("[Warning] "+text))
}

func (s *printSurface) Error(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, errorStyle.Render("[Error] "+text))
}
