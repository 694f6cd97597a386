// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the mimochat surfaces.
//
// # Key Functions
//
//   - TruncateWidth: display-width aware truncation (CJK and emoji safe)
//   - Preview: single-line, width-bounded preview of arbitrary text
//   - AtomicWriteFile: crash-safe file writes used by config and export
//
// # Usage
//
//	// Bound a malformed stream line before showing it as a warning
//	shown := util.Preview(rawLine, 100)
//
//	// Write an export without leaving a half-written file behind
//	err := util.AtomicWriteFile(path, data, 0600)
package util
