// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
)

// Incremental renders a growing buffer without re-running the pipeline over
// text that can no longer change. The buffer is split at a line break behind
// which every reasoning block and LaTeX span is closed; that prefix is
// rendered once and cached. Output always equals Render of the whole buffer.
//
// An Incremental is not safe for concurrent use.
type Incremental struct {
	buf strings.Builder

	// stable is the byte length of the cached prefix of buf.
	stable    int
	stableOut strings.Builder
}

// NewIncremental returns an empty renderer.
func NewIncremental() *Incremental {
	return &Incremental{}
}

// Append adds delta to the buffer and returns the rendering of the whole
// buffer.
func (r *Incremental) Append(delta string) string {
	r.buf.WriteString(delta)
	r.advance()
	return r.Output()
}

// Output returns the rendering of the whole buffer.
func (r *Incremental) Output() string {
	tail := r.buf.String()[r.stable:]
	if tail == "" {
		return r.stableOut.String()
	}
	return r.stableOut.String() + Render(tail)
}

// String returns the raw accumulated text.
func (r *Incremental) String() string {
	return r.buf.String()
}

// Len returns the raw buffer length in bytes.
func (r *Incremental) Len() int {
	return r.buf.Len()
}

// Stable returns how many bytes of the buffer are cached.
func (r *Incremental) Stable() int {
	return r.stable
}

// Reset clears the buffer and cache.
func (r *Incremental) Reset() {
	r.buf.Reset()
	r.stableOut.Reset()
	r.stable = 0
}

// advance moves the cached boundary forward as far as it safely can. It tries
// the last line break in the pending tail, then the last one before the first
// opener in the tail.
func (r *Incremental) advance() {
	tail := r.buf.String()[r.stable:]

	last := strings.LastIndexByte(tail, '\n')
	if last < 0 {
		return
	}
	if r.commit(tail[:last+1]) {
		return
	}

	first := firstOpener(tail)
	if first <= 0 {
		return
	}
	if nl := strings.LastIndexByte(tail[:first], '\n'); nl >= 0 {
		r.commit(tail[:nl+1])
	}
}

func (r *Incremental) commit(chunk string) bool {
	if !selfContained(chunk) {
		return false
	}
	r.stableOut.WriteString(Render(chunk))
	r.stable += len(chunk)
	return true
}

func firstOpener(s string) int {
	first := -1
	for _, opener := range []string{ThinkOpen, inlineOpen, displayOpen} {
		if i := strings.Index(s, opener); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}
