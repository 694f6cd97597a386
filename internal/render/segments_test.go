// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(segs []Segment) []SegmentKind {
	out := make([]SegmentKind, len(segs))
	for i, s := range segs {
		out[i] = s.Kind
	}
	return out
}

func joinSources(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Source)
	}
	return b.String()
}

func TestSegments_Empty(t *testing.T) {
	assert.Empty(t, Segments(""))
}

func TestSegments_InlineAndDisplay(t *testing.T) {
	segs := Segments("Area is $\\pi r^2$ and\n$$E=mc^2$$\ndone")

	require.Equal(t, []SegmentKind{
		SegmentMarkdown, SegmentInlineMath, SegmentMarkdown, SegmentDisplayMath, SegmentMarkdown,
	}, kinds(segs))
	assert.Equal(t, "Area is ", segs[0].Text)
	assert.Equal(t, `\pi r^2`, segs[1].Text)
	assert.Equal(t, "E=mc^2", segs[3].Text)
	assert.Equal(t, "\ndone", segs[4].Text)
}

func TestSegments_DoubleDollarWinsOverSingle(t *testing.T) {
	segs := Segments("$$a$$")

	require.Len(t, segs, 1)
	assert.Equal(t, SegmentDisplayMath, segs[0].Kind)
	assert.Equal(t, "a", segs[0].Text)
}

func TestSegments_LiteralDollars(t *testing.T) {
	tests := []string{
		"costs $5",
		"between $5 and $10 today",
		"a lone $ sign",
		"empty $$$$ pair",
		"blank $ $ span",
		`escaped \$x\$ dollars`,
		"unmatched $$ display",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			segs := Segments(in)
			require.Len(t, segs, 1)
			assert.Equal(t, SegmentMarkdown, segs[0].Kind)
			assert.Equal(t, in, segs[0].Text)
		})
	}
}

func TestSegments_InlineCannotCrossParagraphs(t *testing.T) {
	segs := Segments("price $3\n\nand later x$ here")
	require.Len(t, segs, 1)
	assert.Equal(t, SegmentMarkdown, segs[0].Kind)
}

func TestSegments_SkipsCode(t *testing.T) {
	in := "see `$HOME` and\n```sh\necho $PATH $x$\n```\nthen $y$"

	segs := Segments(in)

	require.Equal(t, []SegmentKind{SegmentMarkdown, SegmentInlineMath}, kinds(segs))
	assert.Equal(t, "y", segs[1].Text)
	assert.Equal(t, in, joinSources(segs))
}

func TestSegments_UnclosedFenceRunsToEnd(t *testing.T) {
	in := "~~~\n$x$\n"
	segs := Segments(in)
	require.Len(t, segs, 1)
	assert.Equal(t, SegmentMarkdown, segs[0].Kind)
}

func TestSegments_SourcesReassemble(t *testing.T) {
	inputs := []string{
		"plain",
		"$a$$$b$$c$d$",
		"x $$ y $ z",
		"```\n$a$\n```\n$b$ and `c $d$` $e$",
		"trailing $",
	}
	for _, in := range inputs {
		assert.Equal(t, in, joinSources(Segments(in)), "%q", in)
	}
}

func TestSplitFences(t *testing.T) {
	regions := splitFences("a\n```go\ncode\n```\nb\n")

	require.Len(t, regions, 3)
	assert.Equal(t, region{text: "a\n"}, regions[0])
	assert.Equal(t, region{text: "```go\ncode\n```\n", code: true}, regions[1])
	assert.Equal(t, region{text: "b\n"}, regions[2])
}

func TestSkipCodeSpan(t *testing.T) {
	s := "``a ` b`` rest"
	assert.Equal(t, strings.Index(s, " rest"), skipCodeSpan(s, 0))
	assert.Equal(t, 1, skipCodeSpan("`never closed", 0))
}
