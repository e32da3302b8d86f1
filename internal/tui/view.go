package tui

import (
	"strings"

	"github.com/tapcraft-io/whisker/pkg/types"
)

// View renders the entire UI
func (m Model) View() string {
	if m.quitting {
		return "Bye from Whisker 🐱\n"
	}

	// Show error if present
	if m.err != nil {
		return m.renderError()
	}

	// Show loading state if cache not ready
	if !m.ready {
		return m.renderLoading()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())

	switch m.mode {
	case types.ModeWorkloads:
		b.WriteString(m.workloadList.View())
	case types.ModeSelectingNamespace:
		b.WriteString(m.namespaceList.View())
	case types.ModeEditingEnv:
		b.WriteString(m.editor.view(GetMaxWidth(m.width)))
	case types.ModePreview:
		b.WriteString(m.viewport.View())
	case types.ModeBindings:
		b.WriteString(m.renderBindings())
	case types.ModeBindingForm:
		b.WriteString(m.form.view())
	case types.ModeQuotas:
		b.WriteString(m.renderQuotas())
	case types.ModeViewingJournal:
		b.WriteString(m.renderJournal())
	case types.ModeConfirming:
		b.WriteString(m.renderConfirmingMode())
	}
	b.WriteString("\n\n")

	// Show status message if present
	if m.statusMsg != "" {
		b.WriteString(RenderInfo(m.statusMsg))
		b.WriteString("\n")
	}
	if m.loading {
		b.WriteString(m.spinner.View() + " Loading...\n")
	}

	b.WriteString(m.renderHelpBar())
	return b.String()
}

// renderHeader renders the title bar and the tabs
func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(RenderTitle(m.context, m.namespaceLabel()))
	b.WriteString("\n")
	b.WriteString(RenderTabs(m.tab))
	b.WriteString("\n\n")
	return b.String()
}

// renderLoading renders the loading screen
func (m Model) renderLoading() string {
	var b strings.Builder

	b.WriteString(RenderTitle(m.context, m.namespaceLabel()))
	b.WriteString("\n\n")

	// Spinner
	b.WriteString(m.spinner.View())
	b.WriteString(" Initializing cache...\n\n")

	b.WriteString(RenderHelp("Please wait while we fetch resources from your cluster."))

	return b.String()
}

// renderError renders an error screen
func (m Model) renderError() string {
	var b strings.Builder

	b.WriteString(RenderTitle(m.context, m.namespaceLabel()))
	b.WriteString("\n\n")
	b.WriteString(RenderError("Error: " + m.err.Error()))
	b.WriteString("\n\n")
	b.WriteString(RenderHelp("[Enter] to continue  [Ctrl+C] quit"))

	return b.String()
}

func (m Model) renderBindings() string {
	var b strings.Builder

	b.WriteString(helpStyle.Render("Showing: " + m.bindingTypesLabel()))
	b.WriteString("\n")
	if m.filtering || m.bindingQuery != "" {
		b.WriteString(m.filterInput.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(m.bindingRows) == 0 {
		b.WriteString(RenderHelp("No bindings match"))
		return b.String()
	}
	b.WriteString(m.bindingTable.View())
	return b.String()
}

func (m Model) renderQuotas() string {
	var b strings.Builder

	b.WriteString(helpStyle.Render("Showing: " + m.quotaTypesLabel()))
	b.WriteString("\n\n")
	b.WriteString(m.quotaTable.View())
	b.WriteString("\n\n")
	b.WriteString(m.renderQuotaSummary())
	return b.String()
}

func (m Model) renderJournal() string {
	var b strings.Builder
	if m.journalFiltering || m.journalQuery != "" {
		b.WriteString(m.journalInput.View())
		b.WriteString("\n\n")
	}
	b.WriteString(m.journalList.View())
	return b.String()
}

// renderConfirmingMode renders the confirmation dialog
func (m Model) renderConfirmingMode() string {
	if m.confirm == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(RenderWarning("Please confirm"))
	b.WriteString("\n\n")
	b.WriteString(wrapText(m.confirm.prompt, GetMaxWidth(m.width)))
	b.WriteString("\n\n")
	b.WriteString(RenderHelp("[y] yes  [n] no"))
	return RenderBox("Confirm", b.String())
}

// renderHelpBar renders the help bar at the bottom
func (m Model) renderHelpBar() string {
	var items []string

	switch m.mode {
	case types.ModeWorkloads:
		items = []string{"[↑↓] navigate", "[Enter] edit env", "[/] search", "[n] namespace", "[r] refresh"}
	case types.ModeSelectingNamespace:
		items = []string{"[↑↓] navigate", "[Enter] select", "[/] search", "[Esc] cancel"}
	case types.ModeEditingEnv:
		return RenderHelp(m.editor.help())
	case types.ModePreview:
		items = []string{"[↑↓] scroll", "[Esc] back"}
	case types.ModeBindings:
		if m.filtering {
			return RenderHelp("[Enter] apply  [Esc] clear")
		}
		items = []string{"[/] filter", "[1/2/3] namespace/cluster/system", "[c] create", "[e] edit", "[u] duplicate", "[x] delete", "[n] namespace"}
	case types.ModeBindingForm:
		items = []string{"[Tab] next field", "[←→] change", "[Ctrl+S] save", "[Esc] cancel"}
	case types.ModeQuotas:
		items = []string{"[↑↓] navigate", "[f] quota types", "[n] namespace", "[r] refresh"}
	case types.ModeViewingJournal:
		if m.journalFiltering {
			return RenderHelp("[Enter] apply  [Esc] clear")
		}
		items = []string{"[↑↓] navigate", "[Enter] details", "[/] search", "[f] failed only", "[c] this context", "[X] clear"}
	case types.ModeConfirming:
		return ""
	}

	switch m.mode {
	case types.ModeWorkloads, types.ModeBindings, types.ModeQuotas, types.ModeViewingJournal:
		items = append(items, "[Tab] switch view")
	}
	items = append(items, "[Ctrl+C] quit")

	return RenderHelp(strings.Join(items, "  "))
}

// wrapText wraps text to fit within a given width
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		// If adding this word would exceed width, start a new line
		if currentLine.Len()+len(word)+1 > width {
			if currentLine.Len() > 0 {
				lines = append(lines, currentLine.String())
				currentLine.Reset()
			}
		}

		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}

	// Add the last line
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n")
}

