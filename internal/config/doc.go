// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for mimochat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - EndpointConfig: Completion endpoint location and sampling
//   - SessionConfig: System prompt, inactivity reset and reinforcement
//   - ServerConfig: Browser surface listen address and origins
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MIMOCHAT_*)
//   - ~/.mimochat/config.toml
//   - ~/.mimochat/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Build a controller from it:
//
//	ctrl := session.New(cfg.SessionOptions(), completion.NewClient(cfg.ClientConfig()), surface)
package config
