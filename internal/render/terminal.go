// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Terminal style names.
const (
	StyleAuto  = "auto"
	StyleDark  = styles.DarkStyle
	StyleLight = styles.LightStyle
	StyleNoTTY = styles.NoTTYStyle
)

// DefaultWidth is the wrap width used when the terminal size is unknown.
const DefaultWidth = 80

// TerminalTypesetter renders for a terminal. Markdown goes through glamour;
// math is printed as TeX, highlighted with lipgloss, since a terminal cannot
// typeset it.
//
// TerminalTypesetter is safe for concurrent use.
type TerminalTypesetter struct {
	style string
	width int

	inlineMath  lipgloss.Style
	displayMath lipgloss.Style
}

// NewTerminalTypesetter returns a typesetter for the given glamour style and
// wrap width. StyleAuto picks dark or light from the terminal background.
func NewTerminalTypesetter(style string, width int) *TerminalTypesetter {
	if style == "" || style == StyleAuto {
		style = DetectStyle()
	}
	if width <= 0 {
		width = DefaultWidth
	}
	mathColor := lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#C4B5FD"}
	return &TerminalTypesetter{
		style:       style,
		width:       width,
		inlineMath:  lipgloss.NewStyle().Foreground(mathColor).Italic(true),
		displayMath: lipgloss.NewStyle().Foreground(mathColor).PaddingLeft(4),
	}
}

// WithWidth returns a copy wrapping at width.
func (t *TerminalTypesetter) WithWidth(width int) *TerminalTypesetter {
	c := *t
	if width > 0 {
		c.width = width
	}
	return &c
}

// Style returns the glamour style in use.
func (t *TerminalTypesetter) Style() string {
	return t.style
}

// Markdown implements Typesetter.
func (t *TerminalTypesetter) Markdown(src string) (string, error) {
	r, err := pool.get(t.style, t.width)
	if err != nil {
		return "", err
	}
	defer pool.put(t.style, t.width, r)

	out, err := r.Render(src)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}

// Math implements Typesetter.
func (t *TerminalTypesetter) Math(tex string, display bool) string {
	if display {
		return "\n" + t.displayMath.Render(strings.TrimSpace(tex)) + "\n"
	}
	return t.inlineMath.Render(tex)
}

// Raw implements Typesetter.
func (t *TerminalTypesetter) Raw(text string) string {
	return text
}

// DetectStyle returns StyleDark or StyleLight from the terminal background,
// or StyleNoTTY when output is not a terminal.
func DetectStyle() string {
	if termenv.EnvColorProfile() == termenv.Ascii {
		return StyleNoTTY
	}
	if termenv.HasDarkBackground() {
		return StyleDark
	}
	return StyleLight
}

// =============================================================================
// RENDERER POOL
// =============================================================================

// glamour.TermRenderer is not safe for concurrent Render calls, so renderers
// are pooled per style and width rather than shared.
type rendererPool struct {
	mu    sync.RWMutex
	pools map[string]*sync.Pool
}

var pool = &rendererPool{pools: make(map[string]*sync.Pool)}

func poolKey(style string, width int) string {
	return fmt.Sprintf("%s:%d", style, width)
}

func (p *rendererPool) getPool(style string, width int) *sync.Pool {
	key := poolKey(style, width)

	p.mu.RLock()
	sp, ok := p.pools[key]
	p.mu.RUnlock()
	if ok {
		return sp
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok := p.pools[key]; ok {
		return sp
	}
	sp = &sync.Pool{
		New: func() any {
			r, err := newTermRenderer(style, width)
			if err != nil {
				return nil
			}
			return r
		},
	}
	p.pools[key] = sp
	return sp
}

func (p *rendererPool) get(style string, width int) (*glamour.TermRenderer, error) {
	if r, ok := p.getPool(style, width).Get().(*glamour.TermRenderer); ok && r != nil {
		return r, nil
	}
	return newTermRenderer(style, width)
}

func (p *rendererPool) put(style string, width int, r *glamour.TermRenderer) {
	if r != nil {
		p.getPool(style, width).Put(r)
	}
}

func newTermRenderer(style string, width int) (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
}

// PoolSize returns the number of style/width combinations seen.
func PoolSize() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return len(pool.pools)
}
