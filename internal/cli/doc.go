// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package cli implements the mimochat command-line interface.

# Commands

	mimochat [serve]        Serve the browser chat (default)
	mimochat tui            Full-screen terminal chat
	mimochat chat           Line-oriented chat with input history
	mimochat config ...     Show, create and query the configuration
	mimochat version        Print version information

# Global Flags

	-c, --config PATH   Config file (default ~/.mimochat/config.toml)
	    --log-level L   debug, info, warn or error

Colors follow the terminal: they are disabled when stdout is not a TTY or
NO_COLOR is set, and forced on by FORCE_COLOR.
*/
package cli
