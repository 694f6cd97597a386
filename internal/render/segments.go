// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
)

// SegmentKind classifies a piece of display text.
type SegmentKind int

const (
	SegmentMarkdown SegmentKind = iota
	SegmentInlineMath
	SegmentDisplayMath
)

// String returns the kind name.
func (k SegmentKind) String() string {
	switch k {
	case SegmentInlineMath:
		return "inline-math"
	case SegmentDisplayMath:
		return "display-math"
	default:
		return "markdown"
	}
}

// Segment is a run of display text. For math kinds Text is the TeX without
// its dollar delimiters; Source always holds the exact input span, so joining
// every Source reproduces the input.
type Segment struct {
	Kind   SegmentKind
	Text   string
	Source string
}

// IsMath reports whether the segment is typeset as math.
func (s Segment) IsMath() bool {
	return s.Kind != SegmentMarkdown
}

// =============================================================================
// EXTRACTION
// =============================================================================

// Segments splits display text into markdown and math runs. At each dollar
// sign the $$...$$ form is tried first, then $...$. A dollar that opens no
// valid span stays literal markdown. Fenced code blocks and inline code spans
// are never scanned.
func Segments(text string) []Segment {
	if text == "" {
		return nil
	}
	var sc segmentScanner
	for _, region := range splitFences(text) {
		if region.code {
			sc.markdown(region.text)
			continue
		}
		sc.scan(region.text)
	}
	return sc.flush()
}

type segmentScanner struct {
	out     []Segment
	pending strings.Builder
}

func (sc *segmentScanner) markdown(s string) {
	sc.pending.WriteString(s)
}

func (sc *segmentScanner) math(kind SegmentKind, tex, source string) {
	sc.flushPending()
	sc.out = append(sc.out, Segment{Kind: kind, Text: tex, Source: source})
}

func (sc *segmentScanner) flushPending() {
	if sc.pending.Len() == 0 {
		return
	}
	s := sc.pending.String()
	sc.out = append(sc.out, Segment{Kind: SegmentMarkdown, Text: s, Source: s})
	sc.pending.Reset()
}

func (sc *segmentScanner) flush() []Segment {
	sc.flushPending()
	return sc.out
}

func (sc *segmentScanner) scan(s string) {
	start := 0
	i := 0
	for i < len(s) {
		switch s[i] {
		case '\\':
			// Escaped character, including \$.
			i += 2
			continue
		case '`':
			i = skipCodeSpan(s, i)
			continue
		case '$':
		default:
			i++
			continue
		}

		if strings.HasPrefix(s[i:], "$$") {
			if end := strings.Index(s[i+2:], "$$"); end > 0 && strings.TrimSpace(s[i+2:i+2+end]) != "" {
				closeAt := i + 2 + end + 2
				sc.markdown(s[start:i])
				sc.math(SegmentDisplayMath, s[i+2:i+2+end], s[i:closeAt])
				i, start = closeAt, closeAt
				continue
			}
			// An unmatched $$ is literal.
			i += 2
			continue
		}

		if end := strings.IndexByte(s[i+1:], '$'); end > 0 {
			inner := s[i+1 : i+1+end]
			closeAt := i + 1 + end + 1
			if validInline(inner, s[closeAt:]) {
				sc.markdown(s[start:i])
				sc.math(SegmentInlineMath, inner, s[i:closeAt])
				i, start = closeAt, closeAt
				continue
			}
		}
		i++
	}
	if start < len(s) {
		sc.markdown(s[start:])
	}
}

// validInline rejects spans that are almost certainly prices or prose:
// whitespace-only bodies, bodies crossing a blank line, and a closing dollar
// followed directly by a digit ("$5 and $10").
func validInline(inner, after string) bool {
	if strings.TrimSpace(inner) == "" || strings.Contains(inner, "\n\n") {
		return false
	}
	if after != "" && after[0] >= '0' && after[0] <= '9' {
		return false
	}
	return true
}

// skipCodeSpan returns the index just past the inline code span opening at i,
// or i+run when the backtick run is never closed.
func skipCodeSpan(s string, i int) int {
	run := 0
	for i+run < len(s) && s[i+run] == '`' {
		run++
	}
	fence := s[i : i+run]
	rest := s[i+run:]
	for off := 0; off < len(rest); {
		j := strings.Index(rest[off:], fence)
		if j < 0 {
			break
		}
		j += off
		k := j + run
		// A closing run must be exactly as long as the opening one.
		if k < len(rest) && rest[k] == '`' {
			for k < len(rest) && rest[k] == '`' {
				k++
			}
			off = k
			continue
		}
		return i + run + k
	}
	return i + run
}

// =============================================================================
// FENCED CODE
// =============================================================================

type region struct {
	text string
	code bool
}

// splitFences separates fenced code blocks (``` or ~~~) from prose. An
// unclosed fence runs to the end of the text, as in CommonMark.
func splitFences(text string) []region {
	var regions []region
	var fence string
	start := 0
	pos := 0
	for pos < len(text) {
		nl := strings.IndexByte(text[pos:], '\n')
		lineEnd := len(text)
		if nl >= 0 {
			lineEnd = pos + nl + 1
		}
		trimmed := strings.TrimLeft(text[pos:lineEnd], " ")

		if fence == "" {
			if f := fenceMarker(trimmed); f != "" {
				if pos > start {
					regions = append(regions, region{text: text[start:pos]})
				}
				fence, start = f, pos
			}
		} else if closesFence(trimmed, fence) {
			regions = append(regions, region{text: text[start:lineEnd], code: true})
			fence, start = "", lineEnd
		}
		pos = lineEnd
	}
	if start < len(text) {
		regions = append(regions, region{text: text[start:], code: fence != ""})
	}
	return regions
}

func closesFence(line, fence string) bool {
	line = strings.TrimRight(line, " \t\r\n")
	return strings.HasPrefix(line, fence) && strings.Trim(line, fence[:1]) == ""
}

func fenceMarker(line string) string {
	for _, c := range []byte{'`', '~'} {
		n := 0
		for n < len(line) && line[n] == c {
			n++
		}
		if n >= 3 {
			return line[:n]
		}
	}
	return ""
}
