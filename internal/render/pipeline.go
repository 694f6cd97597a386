// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"regexp"
	"strings"
)

const (
	// ThinkOpen and ThinkClose delimit a reasoning block.
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"

	// ThinkLabel is the visible summary of a folded reasoning block.
	ThinkLabel = "🤔 Think"

	inlineOpen  = `\(`
	displayOpen = `\[`
)

var (
	// Non-greedy across blocks; a block may span lines.
	thinkRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

	inlineLatexRe  = regexp.MustCompile(`(?s)\\\((.*?)\\\)`)
	displayLatexRe = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)
)

// =============================================================================
// PIPELINE
// =============================================================================

// Render turns accumulated assistant text into display text: reasoning blocks
// are folded into disclosure widgets, then LaTeX delimiters are normalized to
// dollar form. It is pure and total; anything it does not recognize passes
// through unchanged.
func Render(text string) string {
	if text == "" {
		return ""
	}
	return NormalizeLatex(FoldThink(text))
}

// FoldThink replaces each <think>X</think> with a collapsed <details> block
// whose body is X byte for byte. An unterminated <think> is left as is.
func FoldThink(text string) string {
	return replaceSubmatch(thinkRe, text, foldedThink)
}

func foldedThink(inner string) string {
	return "\n\n<details><summary>" + ThinkLabel + "</summary>\n\n" + inner + "\n\n</details>\n\n"
}

// NormalizeLatex rewrites \(X\) to $X$ and then \[X\] to $$X$$.
func NormalizeLatex(text string) string {
	return normalizeDisplay(normalizeInline(text))
}

func normalizeInline(text string) string {
	return replaceSubmatch(inlineLatexRe, text, func(inner string) string {
		return "$" + inner + "$"
	})
}

func normalizeDisplay(text string) string {
	return replaceSubmatch(displayLatexRe, text, func(inner string) string {
		return "$$" + inner + "$$"
	})
}

// replaceSubmatch is ReplaceAllStringFunc with the first capture group handed
// to fn, so the replacement is literal and never template-expanded.
func replaceSubmatch(re *regexp.Regexp, s string, fn func(inner string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 64*len(matches))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		b.WriteString(fn(s[m[2]:m[3]]))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// unclosedAfterMatches reports whether s still holds opener after the end of
// the last re match, i.e. a span that text appended later could close.
func unclosedAfterMatches(re *regexp.Regexp, s, opener string) bool {
	tail := s
	if matches := re.FindAllStringIndex(s, -1); len(matches) > 0 {
		tail = s[matches[len(matches)-1][1]:]
	}
	return strings.Contains(tail, opener)
}

// selfContained reports whether Render(chunk + more) == Render(chunk) +
// Render(more) for any more. chunk must end in a line break so no delimiter
// can straddle the join.
func selfContained(chunk string) bool {
	if unclosedAfterMatches(thinkRe, chunk, ThinkOpen) {
		return false
	}
	folded := FoldThink(chunk)
	if unclosedAfterMatches(inlineLatexRe, folded, inlineOpen) {
		return false
	}
	return !unclosedAfterMatches(displayLatexRe, normalizeInline(folded), displayOpen)
}
