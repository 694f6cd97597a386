// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/mimochat/internal/model"
	"github.com/jeranaias/mimochat/internal/render"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports a standalone page rendered the same way the browser
// surface renders messages. Math is typeset by KaTeX when the page opens.
type HTMLExporter struct {
	options *Options
	ts      *render.HTMLTypesetter
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts, ts: render.NewHTMLTypesetter("")}
}

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", render.Escape(t.Title))
	sb.WriteString("<meta name=\"generator\" content=\"mimochat\">\n")
	sb.WriteString(htmlHead)
	sb.WriteString("</head>\n<body>\n")

	fmt.Fprintf(&sb, "<h1>%s</h1>\n", render.Escape(t.Title))
	if e.options.IncludeMetadata {
		sb.WriteString("<p class=\"meta\">")
		fmt.Fprintf(&sb, "<strong>Model:</strong> %s", render.Escape(t.Model))
		if !t.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, " &middot; <strong>Started:</strong> %s", formatTimestamp(t.CreatedAt))
		}
		fmt.Fprintf(&sb, " &middot; <strong>Exported:</strong> %s", formatTimestamp(t.ExportedAt))
		sb.WriteString("</p>\n")
	}

	sb.WriteString("<main>\n")
	for _, msg := range t.Visible(e.options.IncludeSystem) {
		e.renderMessage(&sb, msg)
	}
	sb.WriteString("</main>\n")

	fmt.Fprintf(&sb, "<footer>Exported from mimochat on %s</footer>\n",
		t.ExportedAt.Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String()), nil
}

func (e *HTMLExporter) renderMessage(sb *strings.Builder, msg model.Message) {
	fmt.Fprintf(sb, "<section class=\"message %s\">\n<div class=\"role\">%s", msg.Role, msg.Role.DisplayName())
	if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
		fmt.Fprintf(sb, " <time datetime=\"%s\">%s</time>", msg.CreatedAt.Format(time.RFC3339), formatShortTimestamp(msg.CreatedAt))
	}
	sb.WriteString("</div>\n")
	if msg.Role == model.RoleAssistant {
		sb.WriteString(render.Compose(msg.Content, e.ts))
	} else {
		fmt.Fprintf(sb, "<p class=\"plain\">%s</p>\n", strings.ReplaceAll(render.Escape(msg.Content), "\n", "<br>"))
	}
	sb.WriteString("</section>\n")
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

const htmlHead = `<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.css">
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.js"></script>
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/contrib/auto-render.min.js"
  onload="renderMathInElement(document.body,{delimiters:[{left:'\\[',right:'\\]',display:true},{left:'\\(',right:'\\)',display:false}],throwOnError:false})"></script>
<style>
body { max-width: 860px; margin: 2rem auto; padding: 0 1rem; font: 16px/1.55 system-ui, sans-serif; background: #0f1117; color: #e6e6e6; }
.meta, footer { color: #9aa0a6; font-size: .9rem; }
.message { padding: .75rem 1rem; margin: .75rem 0; border-radius: 8px; background: #161a22; overflow-x: auto; }
.message.user { background: #1f2430; }
.role { font-weight: 600; margin-bottom: .25rem; }
.role time { font-weight: 400; color: #9aa0a6; font-size: .85rem; }
.plain { white-space: pre-wrap; margin: 0; }
.math.display { display: block; text-align: center; }
pre { padding: .75rem; border-radius: 6px; overflow-x: auto; }
details { border-left: 3px solid #9aa0a6; padding-left: .75rem; color: #9aa0a6; }
</style>
`
