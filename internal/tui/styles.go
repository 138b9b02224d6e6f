// Package tui provides the terminal chat frontend for a single conversation.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#F472B6")
	colorAccent  = lipgloss.Color("#A78BFA")
	colorText    = lipgloss.Color("#E5E7EB")
	colorTextDim = lipgloss.Color("#9CA3AF")
	colorWarning = lipgloss.Color("#FBBF24")
	colorError   = lipgloss.Color("#F87171")
	colorBorder  = lipgloss.Color("#4B5563")
)

var (
	headerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)

	hintStyle = lipgloss.NewStyle().Foreground(colorTextDim)

	userLabelStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)

	userBubbleStyle = lipgloss.NewStyle().
			Foreground(colorText).
			PaddingLeft(2)

	assistantBubbleStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(colorBorder).
				PaddingLeft(1)

	inputPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(colorTextDim)

	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)

	errorStyle = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)
