package markdown

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/mcpbridge"
	"github.com/mattn/go-runewidth"
)

const ellipsis = "…"

// ToolCall renders a one-line summary of a tool call: the function name
// followed by its raw arguments, truncated to width display cells.
func ToolCall(call mcpbridge.ToolCallBlock, width int, theme mcpbridge.Theme) string {
	if width <= 0 {
		width = defaultWidth
	}
	name := "▸ " + call.Name
	args := flatten(string(call.Arguments))
	line := name
	if args != "" {
		line += " " + args
	}
	line = runewidth.Truncate(line, width, ellipsis)

	style := lipgloss.NewStyle().Foreground(ansiColor(theme.ToolCall)).Bold(true)
	if line == name || !strings.HasPrefix(line, name) {
		return style.Render(line)
	}
	return style.Render(name) + lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Render(strings.TrimPrefix(line, name))
}

// ToolResult renders a one-line preview of a tool result, marked as success
// or failure and truncated to width display cells.
func ToolResult(content string, isError bool, width int, theme mcpbridge.Theme) string {
	if width <= 0 {
		width = defaultWidth
	}
	mark, color := "✓", theme.Success
	if isError {
		mark, color = "✗", theme.Error
	}
	preview := flatten(content)
	if preview == "" {
		preview = "(empty)"
	}
	const indent = "  "
	prefix := indent + mark + " "
	preview = runewidth.Truncate(preview, max(width-runewidth.StringWidth(prefix), 1), ellipsis)

	body := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted))
	if isError {
		body = lipgloss.NewStyle().Foreground(ansiColor(theme.Error))
	}
	return indent + lipgloss.NewStyle().Foreground(ansiColor(color)).Render(mark) + " " + body.Render(preview)
}

// flatten collapses runs of whitespace, including newlines, into single
// spaces.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
