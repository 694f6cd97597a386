// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"bytes"
	"strings"

	"github.com/jeranaias/mimochat/internal/util"
)

// maxPartialLine bounds how much of one unterminated line is buffered.
const maxPartialLine = 1024

// rawTail is an io.Writer that remembers the last few non-blank lines of a
// stream, each cut to a one-line preview. It is not safe for concurrent use.
type rawTail struct {
	ring    []string
	next    int
	full    bool
	dropped int

	partial []byte
	clipped bool
}

func newRawTail(n int) *rawTail {
	return &rawTail{ring: make([]string, max(n, 1))}
}

// Write records complete lines from p. It never fails.
func (t *rawTail) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			t.buffer(p)
			break
		}
		t.buffer(p[:i])
		t.flush()
		p = p[i+1:]
	}
	return n, nil
}

func (t *rawTail) buffer(p []byte) {
	room := maxPartialLine - len(t.partial)
	if len(p) > room {
		p = p[:room]
		t.clipped = true
	}
	t.partial = append(t.partial, p...)
}

func (t *rawTail) flush() {
	line := strings.TrimRight(string(t.partial), "\r")
	clipped := t.clipped
	t.partial = t.partial[:0]
	t.clipped = false
	if strings.TrimSpace(line) == "" {
		return
	}
	if clipped {
		line += util.Ellipsis
	}
	if t.full {
		t.dropped++
	}
	t.ring[t.next] = util.Preview(line, PreviewWidth)
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
}

// Lines returns the recorded lines oldest first, including a trailing line
// that never got its terminator. A nil tail has none.
func (t *rawTail) Lines() []string {
	if t == nil {
		return nil
	}
	var out []string
	if t.full {
		out = append(out, t.ring[t.next:]...)
	}
	out = append(out, t.ring[:t.next]...)
	if len(t.partial) > 0 && strings.TrimSpace(string(t.partial)) != "" {
		out = append(out, util.Preview(string(t.partial), PreviewWidth))
		if len(out) > len(t.ring) {
			out = out[1:]
		}
	}
	return out
}

// Dropped reports how many lines fell out of the ring.
func (t *rawTail) Dropped() int {
	if t == nil {
		return 0
	}
	return t.dropped
}
