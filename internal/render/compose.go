// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strconv"
	"strings"
)

// Typesetter is a presentation target: a markdown renderer that accepts raw
// embedded markup and a dedicated math typesetter.
type Typesetter interface {
	// Markdown renders markdown source, passing embedded HTML through.
	Markdown(src string) (string, error)

	// Math typesets one TeX expression.
	Math(tex string, display bool) string

	// Raw presents text that could not be rendered.
	Raw(text string) string
}

// Placeholders stand in for math while markdown is rendered, so inline math
// never breaks a paragraph apart. Private-use runes survive markdown intact.
const (
	placeholderOpen  = "\uE000"
	placeholderClose = "\uE001"
)

func placeholder(i int) string {
	return placeholderOpen + strconv.Itoa(i) + placeholderClose
}

// Compose renders text for a rich surface: Render, then Segments, with one
// Math call per math segment and one Markdown call over the remaining text.
// When the markdown call fails the raw, untransformed text is shown instead.
func Compose(text string, ts Typesetter) string {
	return typeset(Render(text), text, ts)
}

// Typeset is Compose for text that already went through Render, such as the
// output of an Incremental.
func Typeset(display string, ts Typesetter) string {
	return typeset(display, display, ts)
}

func typeset(display, raw string, ts Typesetter) string {
	if display == "" {
		return ""
	}

	segments := Segments(display)

	var src strings.Builder
	var math []string
	for _, seg := range segments {
		if !seg.IsMath() {
			src.WriteString(seg.Text)
			continue
		}
		src.WriteString(placeholder(len(math)))
		math = append(math, ts.Math(seg.Text, seg.Kind == SegmentDisplayMath))
	}

	out, err := ts.Markdown(src.String())
	if err != nil {
		return ts.Raw(raw)
	}
	if len(math) == 0 {
		return out
	}

	pairs := make([]string, 0, 2*len(math))
	for i, m := range math {
		pairs = append(pairs, placeholder(i), m)
	}
	return strings.NewReplacer(pairs...).Replace(out)
}
