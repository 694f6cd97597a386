// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns raw assistant text into display text.
//
// The pipeline has two rewriting steps and one splitting step:
//
//  1. FoldThink: <think>...</think> becomes a collapsed <details> block
//  2. NormalizeLatex: \(..\) becomes $..$ and \[..\] becomes $$..$$
//  3. Segments: the result is split into markdown and math runs
//
// Render applies steps 1 and 2. Compose applies all three and hands each run
// to a Typesetter: HTMLTypesetter for the browser, TerminalTypesetter for the
// TUI and REPL.
//
// Incremental renders a streaming buffer, caching the prefix that later
// deltas cannot change.
//
// # Usage
//
//	inc := render.NewIncremental()
//	for delta := range deltas {
//	    live := inc.Append(delta)
//	    show(render.Typeset(live, ts))
//	}
package render
