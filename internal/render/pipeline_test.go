// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// RENDER TESTS
// =============================================================================

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, "", Render(""))
}

func TestRender_PlainTextIsIdempotent(t *testing.T) {
	inputs := []string{
		"hello",
		"# Title\n\nSome *markdown* with `code` and $5.",
		"line one\n\n\nline three\t",
		"日本語 and emoji 🎉",
		"a $x$ b $$y$$ c",
	}
	for _, in := range inputs {
		once := Render(in)
		assert.Equal(t, in, once, "plain text passes through")
		assert.Equal(t, once, Render(once))
	}
}

func TestFoldThink(t *testing.T) {
	in := "before<think>step 1\n\n  step 2\n</think>after"

	got := Render(in)

	want := "before\n\n<details><summary>🤔 Think</summary>\n\nstep 1\n\n  step 2\n\n\n</details>\n\nafter"
	assert.Equal(t, want, got)
}

func TestFoldThink_NonGreedyAcrossBlocks(t *testing.T) {
	got := FoldThink("<think>a</think> mid <think>b</think>")

	assert.Equal(t, 2, strings.Count(got, "<details>"))
	assert.Contains(t, got, "\n\na\n\n</details>")
	assert.Contains(t, got, " mid ")
	assert.Contains(t, got, "\n\nb\n\n</details>")
}

func TestFoldThink_Unterminated(t *testing.T) {
	in := "answer <think>still thinking\nabout it"
	assert.Equal(t, in, FoldThink(in))
}

func TestFoldThink_NestedClosesAtFirstEnd(t *testing.T) {
	got := FoldThink("<think>outer <think>inner</think> tail</think>")

	assert.Contains(t, got, "\n\nouter <think>inner\n\n</details>")
	assert.True(t, strings.HasSuffix(got, " tail</think>"))
}

func TestNormalizeLatex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"inline", `area \(\pi r^2\)`, `area $\pi r^2$`},
		{"display", `\[E = mc^2\]`, `$$E = mc^2$$`},
		{"multiline display", "\\[\na\n+ b\n\\]", "$$\na\n+ b\n$$"},
		{"two inline", `\(a\) and \(b\)`, `$a$ and $b$`},
		{"unterminated", `open \( x`, `open \( x`},
		{"dollar in replacement", `\(\$5\)`, `$\$5$`},
		{"group syntax is literal", `\($1\)`, `$$1$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLatex(tt.in))
		})
	}
}

func TestRender_MathInsideThinkIsNormalized(t *testing.T) {
	got := Render(`<think>so \(x=1\)</think>\[y\]`)

	assert.Contains(t, got, "<summary>"+ThinkLabel+"</summary>\n\nso $x=1$\n\n</details>")
	assert.True(t, strings.HasSuffix(got, "$$y$$"))
}

func TestSelfContained(t *testing.T) {
	tests := []struct {
		chunk string
		want  bool
	}{
		{"plain\n", true},
		{"<think>done</think>\n", true},
		{"<think>open\n", false},
		{"<think>a</think><think>b\n", false},
		{`\(x\) ok` + "\n", true},
		{`\(x` + "\n", false},
		{`\[x\]` + "\n", true},
		{`\[x` + "\n", false},
		{"<think>" + `\(` + "\n", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, selfContained(tt.chunk), "%q", tt.chunk)
	}
}
