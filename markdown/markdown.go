// Package markdown renders assistant replies and tool activity as
// ANSI-styled terminal output, using goldmark for parsing and lipgloss for
// styling.
package markdown

import "github.com/fwojciec/mcpbridge"

const defaultWidth = 80

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks are
// rendered without reflow. A non-positive width means 80 columns.
func Render(source string, width int, theme mcpbridge.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	return newRenderer(theme).render([]byte(source), width)
}
