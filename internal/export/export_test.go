// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mimochat/internal/model"
)

func sampleTranscript() *Transcript {
	at := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	sys := model.NewSystemMessage("You must always answer in English.")
	sys.CreatedAt = at
	user := model.NewUserMessage("What is 2+2?")
	user.CreatedAt = at.Add(time.Second)
	reply := model.NewAssistantMessage("<think>add them</think>It is \\(4\\).", user.ID)
	reply.CreatedAt = at.Add(3 * time.Second)

	t := NewTranscript("conv_1", "What is 2+2?", "mimo-7b-rl", []model.Message{sys, user, reply})
	t.ExportedAt = at.Add(time.Minute)
	return t
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestNewTranscript(t *testing.T) {
	tr := sampleTranscript()
	assert.Equal(t, tr.Messages[0].CreatedAt, tr.CreatedAt)
	assert.Equal(t, "You must always answer in English.", tr.SystemPrompt())
	assert.Len(t, tr.Visible(false), 2)
	assert.Len(t, tr.Visible(true), 3)

	empty := NewTranscript("c", "", "m", nil)
	assert.Equal(t, "New Conversation", empty.Title)
	assert.True(t, empty.CreatedAt.IsZero())
}

func TestNewTranscript_CopiesMessages(t *testing.T) {
	msgs := []model.Message{model.NewUserMessage("hi")}
	tr := NewTranscript("c", "t", "m", msgs)
	msgs[0].Content = "changed"
	assert.Equal(t, "hi", tr.Messages[0].Content)
}

func TestExporters_RejectEmpty(t *testing.T) {
	onlySystem := NewTranscript("c", "t", "m", []model.Message{model.NewSystemMessage("sys")})
	for _, format := range Formats {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err)

		_, err = exp.Export(onlySystem)
		assert.ErrorIs(t, err, ErrNoMessages, format)

		_, err = exp.Export(nil)
		assert.ErrorIs(t, err, ErrNilTranscript, format)
	}
}

func TestForFormat(t *testing.T) {
	tests := map[string]string{
		"markdown": ".md",
		"MD":       ".md",
		"json":     ".json",
		"html":     ".html",
		"htm":      ".html",
	}
	for name, ext := range tests {
		exp, err := ForFormat(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, ext, exp.FileExtension(), name)
	}

	_, err := ForFormat("pdf", nil)
	assert.ErrorContains(t, err, "unsupported export format")
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, `title: What is 2+2?`)
	assert.Contains(t, md, "model: mimo-7b-rl")
	assert.Contains(t, md, "system_prompt: You must always answer in English.")
	assert.Contains(t, md, "### [User] <sub>14:30:01</sub>")
	assert.Contains(t, md, "<details><summary>🤔 Think</summary>")
	assert.Contains(t, md, "It is $4$.")
	assert.NotContains(t, md, "### [System]")
}

func TestMarkdownExporter_IncludeSystem(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeSystem = true
	opts.IncludeTimestamps = false
	out, err := NewMarkdownExporter(opts).Export(sampleTranscript())
	require.NoError(t, err)
	assert.Contains(t, string(out), "### [System]\n\nYou must always answer in English.")
}

func TestMarkdownExporter_YAMLInjection(t *testing.T) {
	tr := sampleTranscript()
	tr.Title = "Test\nInjection: malicious"
	out, err := NewMarkdownExporter(nil).Export(tr)
	require.NoError(t, err)

	for _, line := range strings.Split(string(out), "\n") {
		assert.False(t, strings.HasPrefix(line, "Injection:"), "newline escaped in frontmatter")
	}
	assert.Contains(t, string(out), `title: "Test\nInjection: malicious"`)
	assert.Contains(t, string(out), "\n# Test Injection: malicious\n")
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello world", "Hello world"},
		{"markup", "# *bold* _x_ [y]", `\# \*bold\* \_x\_ \[y\]`},
		{"newlines", "a\n\nb\r\nc", "a b c"},
		{"padding", "  spaced\tout  ", "spaced out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeMarkdown(tt.in))
		})
	}
}

func TestJSONExporter(t *testing.T) {
	tr := sampleTranscript()
	out, err := NewJSONExporter(nil).Export(tr)
	require.NoError(t, err)

	var decoded Transcript
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "conv_1", decoded.ID)
	require.Len(t, decoded.Messages, 3)
	assert.Equal(t, model.RoleSystem, decoded.Messages[0].Role)
	assert.Equal(t, tr.Messages[1].ID, decoded.Messages[2].InResponseTo)
	assert.Equal(t, tr.Messages[2].Content, decoded.Messages[2].Content, "raw text kept")
}

func TestHTMLExporter(t *testing.T) {
	tr := sampleTranscript()
	tr.Messages[1].Content = "<b>bold?</b>"
	out, err := NewHTMLExporter(nil).Export(tr)
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<title>What is 2+2?</title>")
	assert.Contains(t, page, "&lt;b&gt;bold?&lt;/b&gt;", "user text escaped")
	assert.Contains(t, page, `<span class="math inline">\(4\)</span>`)
	assert.Contains(t, page, "<details>")
	assert.Contains(t, page, "renderMathInElement")
}

// =============================================================================
// FILE TESTS
// =============================================================================

func TestExport_WritesFile(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.OutputDir = filepath.Join(dir, "exports")

	path, err := Export(sampleTranscript(), "markdown", opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutputDir, "conversation_What_is_2+2-_20250301_143100.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# What is 2+2?")
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                      "conversation",
		"a/b\\c:d":              "a-b-c-d",
		"two words\tok":         "two_words_ok",
		"bell\x07":              "bell-",
		strings.Repeat("x", 80): strings.Repeat("x", 50),
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
