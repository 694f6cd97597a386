// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mimochat/internal/config"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalFlags are the persistent flags every command shares.
type globalFlags struct {
	configPath string
	logLevel   string
}

// load reads the configuration the flags point at and applies the flag
// overrides. It returns the file path to watch, which may not exist.
func (g *globalFlags) load() (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = g.configPath
		err  error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		path, _ = config.DefaultPath()
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}
	g.apply(cfg)
	config.SetGlobal(cfg)
	return cfg, path, nil
}

// apply layers flag values over cfg.
func (g *globalFlags) apply(cfg *config.Config) {
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	sf := &serveFlags{}

	root := &cobra.Command{
		Use:   "mimochat",
		Short: "Chat with a local Mimo-7b-rl model",
		Long: `mimochat is a chat client for a local model server that speaks the
OpenAI-style /v1/chat/completions streaming protocol.

Examples:
  mimochat                       Serve the browser chat on 127.0.0.1:8501
  mimochat serve --addr :9000    Serve on another address
  mimochat tui                   Full-screen terminal chat
  mimochat chat                  Line-oriented terminal chat
  mimochat config init           Write a default config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, sf)
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default ~/.mimochat/config.toml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	sf.register(root)

	root.AddCommand(newServeCmd(g))
	root.AddCommand(newTUICmd(g))
	root.AddCommand(newChatCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		var silent silentError
		if !errors.As(err, &silent) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		}
		return 1
	}
	return 0
}

// silentError fails the command without printing again.
type silentError struct {
	err error
}

func (e silentError) Error() string { return e.err.Error() }
func (e silentError) Unwrap() error { return e.err }

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mimochat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
