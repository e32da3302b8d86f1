package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tapcraft-io/whisker/internal/env"
	"github.com/tapcraft-io/whisker/pkg/types"
)

// Color palette
var (
	colorPrimary   = lipgloss.Color("#7D56F4") // Purple
	colorSecondary = lipgloss.Color("#FF6B9D") // Pink
	colorAccent    = lipgloss.Color("#00D9FF") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#00D787") // Green
	colorWarning = lipgloss.Color("#FFB86C") // Orange
	colorError   = lipgloss.Color("#FF5555") // Red
	colorInfo    = lipgloss.Color("#8BE9FD") // Cyan

	// UI colors
	colorText    = lipgloss.Color("#F8F8F2") // White
	colorTextDim = lipgloss.Color("#6272A4") // Gray
	colorBorder  = lipgloss.Color("#44475A") // Dark gray
	colorBgAlt   = lipgloss.Color("#21222C") // Alt background
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true).
			Padding(0, 1)

	contextStyle = lipgloss.NewStyle().
			Foreground(colorInfo).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(colorTextDim).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(colorBgAlt).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1)

	// Selected cell in the env grid
	selectedStyle = lipgloss.NewStyle().
			Foreground(colorBgAlt).
			Background(colorPrimary).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(colorText)

	groupStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	referenceStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Italic(true)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorInfo)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	// Box style for dialogs
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(1, 2).
			Width(60)

	viewportStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)
)

// RenderTitle renders the title bar
func RenderTitle(context, namespace string) string {
	left := titleStyle.Render("Whisker")
	right := contextStyle.Render("[context: " + context + "  namespace: " + namespace + "]")
	return lipgloss.JoinHorizontal(lipgloss.Left, left, right)
}

// RenderTabs renders the top-level view switcher
func RenderTabs(active types.Tab) string {
	tabs := make([]string, len(types.Tabs))
	for i, t := range types.Tabs {
		if t == active {
			tabs[i] = activeTabStyle.Render(t.String())
		} else {
			tabs[i] = tabStyle.Render(t.String())
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, tabs...)
}

// RenderSuccess renders a success message
func RenderSuccess(msg string) string {
	return successStyle.Render("✓ " + msg)
}

// RenderError renders an error message
func RenderError(msg string) string {
	return errorStyle.Render("✗ " + msg)
}

// RenderWarning renders a warning message
func RenderWarning(msg string) string {
	return warningStyle.Render("⚠ " + msg)
}

// RenderInfo renders an info message
func RenderInfo(msg string) string {
	return infoStyle.Render("ℹ " + msg)
}

// RenderHelp renders help text
func RenderHelp(text string) string {
	return helpStyle.Render(text)
}

// RenderBox renders content in a bordered box
func RenderBox(title, content string) string {
	return boxStyle.Render(titleStyle.Render(title) + "\n\n" + content)
}

// RenderPhase renders the editor's clean/modified/saving badge
func RenderPhase(p env.Phase) string {
	switch p {
	case env.PhaseDirty:
		return warningStyle.Render("● " + p.String())
	case env.PhaseSaving:
		return infoStyle.Render("● " + p.String())
	default:
		return successStyle.Render("● " + p.String())
	}
}

// pad truncates or right-pads s to width cells
func pad(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := lipgloss.Width(s)
	if w > width {
		r := []rune(s)
		if width == 1 {
			return "…"
		}
		for lipgloss.Width(string(r)) > width-1 {
			r = r[:len(r)-1]
		}
		return string(r) + "…"
	}
	return s + strings.Repeat(" ", width-w)
}

// GetMaxWidth returns the maximum width for a given screen width
func GetMaxWidth(screenWidth int) int {
	maxWidth := screenWidth - 4 // Account for padding
	if maxWidth < 40 {
		maxWidth = 40
	}
	return maxWidth
}

// GetMaxHeight returns the maximum height for a given screen height
func GetMaxHeight(screenHeight int) int {
	maxHeight := screenHeight - 8 // Account for title, tabs, status, help
	if maxHeight < 10 {
		maxHeight = 10
	}
	return maxHeight
}
