// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTypesetter wraps markdown in <md> and math in <m>/<M> and records
// every call.
type recordingTypesetter struct {
	markdownCalls []string
	mathCalls     []string
	fail          bool
}

func (r *recordingTypesetter) Markdown(src string) (string, error) {
	r.markdownCalls = append(r.markdownCalls, src)
	if r.fail {
		return "", errors.New("parser exploded")
	}
	return "<md>" + src + "</md>", nil
}

func (r *recordingTypesetter) Math(tex string, display bool) string {
	r.mathCalls = append(r.mathCalls, tex)
	if display {
		return "<M>" + tex + "</M>"
	}
	return "<m>" + tex + "</m>"
}

func (r *recordingTypesetter) Raw(text string) string {
	return "<raw>" + text + "</raw>"
}

func TestCompose_OneMathCallPerSegment(t *testing.T) {
	ts := &recordingTypesetter{}

	got := Compose(`Inline \(a+b\) then \[c\] end`, ts)

	assert.Equal(t, []string{"a+b", "c"}, ts.mathCalls)
	require.Len(t, ts.markdownCalls, 1)
	assert.NotContains(t, ts.markdownCalls[0], "$")
	assert.Equal(t, "<md>Inline <m>a+b</m> then <M>c</M> end</md>", got)
}

func TestCompose_ThinkBlockReachesMarkdown(t *testing.T) {
	ts := &recordingTypesetter{}

	got := Compose("<think>hmm</think>Answer", ts)

	assert.Contains(t, got, "<details><summary>"+ThinkLabel+"</summary>")
	assert.Contains(t, got, "hmm")
	assert.Empty(t, ts.mathCalls)
}

func TestCompose_FallsBackToRawText(t *testing.T) {
	ts := &recordingTypesetter{fail: true}
	in := `<think>x</think> \(y\)`

	assert.Equal(t, "<raw>"+in+"</raw>", Compose(in, ts))
}

func TestCompose_Empty(t *testing.T) {
	ts := &recordingTypesetter{}
	assert.Equal(t, "", Compose("", ts))
	assert.Empty(t, ts.markdownCalls)
}

func TestCompose_ManyPlaceholders(t *testing.T) {
	ts := &recordingTypesetter{}
	var in strings.Builder
	for i := 0; i < 12; i++ {
		in.WriteString("$x$ ")
	}

	got := Compose(in.String(), ts)

	assert.Equal(t, 12, strings.Count(got, "<m>x</m>"))
	assert.NotContains(t, got, placeholderOpen)
}

func TestTypeset_DoesNotRenderAgain(t *testing.T) {
	ts := &recordingTypesetter{}

	got := Typeset(`literal \(kept\)`, ts)

	assert.Empty(t, ts.mathCalls)
	assert.Equal(t, `<md>literal \(kept\)</md>`, got)
}
