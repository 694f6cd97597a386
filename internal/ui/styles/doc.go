// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling of the terminal chat.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. Status messages pair each color with an ASCII indicator so states
stay distinguishable without color:

	styles.RenderWarning("Assistant did not generate any content.")
	// [!] Assistant did not generate any content.

Theme bundles the styles the chat view uses and tracks the window size:

	theme := styles.NewTheme()
	theme.SetSize(width, height)
	if theme.GetLayoutMode() == styles.LayoutNarrow {
		// drop the shortcut hints
	}
*/
package styles
