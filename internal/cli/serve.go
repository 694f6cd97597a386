// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mimochat/internal/config"
	"github.com/jeranaias/mimochat/internal/logging"
	"github.com/jeranaias/mimochat/internal/offline"
	"github.com/jeranaias/mimochat/internal/server"
)

type serveFlags struct {
	addr    string
	noWatch bool
}

func (sf *serveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sf.addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&sf.noWatch, "no-watch", false, "Do not reload the config file when it changes")
}

// apply layers the serve flags over cfg.
func (sf *serveFlags) apply(cfg *config.Config) {
	if sf.addr != "" {
		cfg.Server.Addr = sf.addr
	}
}

func newServeCmd(g *globalFlags) *cobra.Command {
	sf := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser chat",
		Long: `Serve the single-page chat UI and its websocket endpoint.

Each browser connection gets its own conversation. Edits to the config file
apply to connections opened after the change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, sf)
		},
	}
	sf.register(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, g *globalFlags, sf *serveFlags) error {
	cfg, path, err := g.load()
	if err != nil {
		return err
	}
	sf.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.Setup(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, server.WithLogger(logger), server.WithVersion(Version))
	if offline.ExposesNetwork(cfg.Server.Addr) {
		logger.Warn("chat is reachable from other machines and has no authentication", "addr", cfg.Server.Addr)
	}

	if !sf.noWatch && path != "" {
		go watchConfig(ctx, path, g, sf, srv, logger)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s serving on %s\n",
		titleStyle.Render("mimochat"), "http://"+cfg.Server.Addr)
	fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("model "+cfg.Endpoint.Model+" at "+cfg.Endpoint.URL))
	return srv.Run(ctx)
}

// watchConfig pushes every valid edit of path into srv.
func watchConfig(ctx context.Context, path string, g *globalFlags, sf *serveFlags, srv *server.Server, logger *slog.Logger) {
	err := config.Watch(ctx, path, config.DefaultDebounce, func(next *config.Config) {
		g.apply(next)
		sf.apply(next)
		if err := next.Validate(); err != nil {
			logger.Warn("ignoring config change", "path", path, "err", err)
			return
		}
		config.SetGlobal(next)
		srv.SetConfig(next)
	}, logger)
	if err != nil {
		logger.Warn("config watch disabled", "path", path, "err", err)
	}
}
