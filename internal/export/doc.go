// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversation transcripts to files.
//
// Transcripts are exported on demand only; nothing is read back on start.
//
// # Supported Formats
//
//   - Markdown: Human-readable, replies folded and math normalized
//   - JSON: Every message including the system preamble
//   - HTML: Standalone page rendered like the browser surface
//
// # Usage
//
//	t := export.NewTranscript(ctrl.ID(), ctrl.Title(), cfg.Endpoint.Model, ctrl.History())
//	path, err := export.Export(t, "markdown", export.DefaultOptions())
package export
