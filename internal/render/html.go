// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"html"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// DefaultCodeStyle is the chroma style for fenced code in HTML output.
const DefaultCodeStyle = "github-dark"

// HTMLTypesetter renders for the browser. Markdown goes through goldmark with
// GFM and raw HTML enabled; fenced code is highlighted by chroma. Math is left
// as escaped TeX inside \( \) or \[ \] wrapped in a span, for KaTeX
// auto-render to typeset client side.
//
// HTMLTypesetter is safe for concurrent use.
type HTMLTypesetter struct {
	md goldmark.Markdown
}

// NewHTMLTypesetter builds a typesetter using the named chroma style. An
// empty name selects DefaultCodeStyle.
func NewHTMLTypesetter(codeStyle string) *HTMLTypesetter {
	if codeStyle == "" {
		codeStyle = DefaultCodeStyle
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(codeStyle),
				highlighting.WithFormatOptions(
					chromahtml.TabWidth(4),
					chromahtml.WithLineNumbers(false),
				),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	return &HTMLTypesetter{md: md}
}

// Markdown implements Typesetter.
func (t *HTMLTypesetter) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := t.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Math implements Typesetter.
func (t *HTMLTypesetter) Math(tex string, display bool) string {
	if display {
		return `<span class="math display">\[` + html.EscapeString(tex) + `\]</span>`
	}
	return `<span class="math inline">\(` + html.EscapeString(tex) + `\)</span>`
}

// Raw implements Typesetter.
func (t *HTMLTypesetter) Raw(text string) string {
	return `<pre class="raw">` + html.EscapeString(text) + `</pre>`
}

// Escape returns text safe to embed as HTML character data.
func Escape(text string) string {
	return html.EscapeString(text)
}
