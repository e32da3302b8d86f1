package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-yaml"
	"github.com/tapcraft-io/whisker/internal/env"
	"github.com/tapcraft-io/whisker/internal/history"
	"github.com/tapcraft-io/whisker/internal/rbac"
	"github.com/tapcraft-io/whisker/pkg/types"
)

// Update handles all state updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 10
		for _, l := range []*list.Model{&m.workloadList, &m.namespaceList, &m.journalList} {
			l.SetWidth(msg.Width - 4)
			l.SetHeight(GetMaxHeight(msg.Height))
		}
		m.bindingTable.SetWidth(msg.Width - 4)
		m.bindingTable.SetHeight(GetMaxHeight(msg.Height) - 2)
		m.quotaTable.SetWidth(msg.Width - 4)
		m.quotaTable.SetHeight(GetMaxHeight(msg.Height) / 2)

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case cacheReadyMsg:
		m.ready = true
		m.reloadLists()
		m.statusMsg = "Cache ready"

	case cacheRefreshMsg:
		if msg.err != nil {
			m.statusMsg = "Refresh failed: " + msg.err.Error()
		} else {
			m.reloadLists()
		}

	case objectLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.statusMsg = "Cannot edit: " + msg.err.Error()
			break
		}
		m.editor = newEditorModel(msg.state)
		m.mode = types.ModeEditingEnv
		m.statusMsg = ""

	case saveResultMsg:
		m.recordSave(msg)
		if m.editor.state.Target == msg.target {
			m.editor = m.editor.saved(msg)
		}

	case bindingActionMsg:
		if msg.err != nil {
			if m.mode == types.ModeBindingForm {
				m.form.saving = false
				m.form.err = msg.err
			} else {
				m.statusMsg = "Failed: " + msg.err.Error()
			}
			break
		}
		m.statusMsg = msg.verb
		m.mode = types.ModeBindings
		cmds = append(cmds, refreshCache(m.cache))

	case journalClearedMsg:
		m.reloadJournal()
		if msg.err != nil {
			m.statusMsg = "Could not write journal: " + msg.err.Error()
		} else {
			m.statusMsg = "Journal cleared"
		}

	case errMsg:
		m.err = msg.err
		m.mode = types.ModeError

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Update active component based on mode
	switch m.mode {
	case types.ModeWorkloads:
		m.workloadList, cmd = m.workloadList.Update(msg)
		cmds = append(cmds, cmd)

	case types.ModeSelectingNamespace:
		m.namespaceList, cmd = m.namespaceList.Update(msg)
		cmds = append(cmds, cmd)

	case types.ModeViewingJournal:
		m.journalList, cmd = m.journalList.Update(msg)
		cmds = append(cmds, cmd)

	case types.ModePreview:
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// recordSave journals a submission that reached the patch step
func (m *Model) recordSave(msg saveResultMsg) {
	if m.journal == nil || msg.ops == nil {
		return
	}

	var err error
	if failed, ok := msg.edit.(env.SaveFailed); ok {
		err = failed.Err
	}
	m.journal.Add(history.NewEntry(msg.target, msg.ops, err, m.context))
	if serr := m.journal.Save(); serr != nil {
		m.statusMsg = "Could not write journal: " + serr.Error()
	}
	m.reloadJournal()
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		now := time.Now()
		// Reset counter if more than 1 second has passed since last Ctrl+C
		if now.Sub(m.ctrlCTime) > time.Second {
			m.ctrlCPressed = 0
		}

		m.ctrlCPressed++
		m.ctrlCTime = now

		// Require double Ctrl+C to quit
		if m.ctrlCPressed >= 2 {
			m.quitting = true
			return m, tea.Quit
		}

		m.statusMsg = "Press Ctrl+C again to quit"
		return m, nil
	}
	m.ctrlCPressed = 0

	if !m.ready && m.mode != types.ModeError {
		return m, nil
	}

	switch m.mode {
	case types.ModeWorkloads:
		return m.handleWorkloadsMode(msg)
	case types.ModeSelectingNamespace:
		return m.handleNamespaceMode(msg)
	case types.ModeEditingEnv:
		return m.handleEditingMode(msg)
	case types.ModePreview:
		return m.handlePreviewMode(msg)
	case types.ModeBindings:
		return m.handleBindingsMode(msg)
	case types.ModeBindingForm:
		return m.handleBindingFormMode(msg)
	case types.ModeQuotas:
		return m.handleQuotasMode(msg)
	case types.ModeViewingJournal:
		return m.handleJournalMode(msg)
	case types.ModeConfirming:
		return m.handleConfirmingMode(msg)
	case types.ModeError:
		if msg.String() == "enter" || msg.String() == "esc" {
			m.err = nil
			m.mode = m.tab.Mode()
			if !m.ready {
				// the cache timed out; keep waiting for it
				return m, checkCacheReady(m.cache)
			}
		}
	}

	return m, nil
}

// handleTopLevel handles keys shared by the tab views. handled is false
// when the key belongs to the view itself.
func (m Model) handleTopLevel(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "tab", "shift+tab":
		delta := 1
		if msg.String() == "shift+tab" {
			delta = len(types.Tabs) - 1
		}
		m.tab = types.Tabs[(int(m.tab)+delta)%len(types.Tabs)]
		m.mode = m.tab.Mode()
		m.statusMsg = ""
		return m, nil, true

	case "n":
		m.nsBack = m.mode
		m.mode = types.ModeSelectingNamespace
		return m, nil, true

	case "r":
		m.statusMsg = "Refreshing..."
		return m, refreshCache(m.cache), true
	}
	return m, nil, false
}

func (m Model) handleWorkloadsMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Let the list own every key while its filter is being typed
	if m.workloadList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.workloadList, cmd = m.workloadList.Update(msg)
		return m, cmd
	}

	if next, cmd, ok := m.handleTopLevel(msg); ok {
		return next, cmd
	}

	switch msg.String() {
	case "enter":
		selected, ok := m.workloadList.SelectedItem().(listItem)
		if !ok || m.loading {
			return m, nil
		}
		meta := selected.item.Metadata
		m.loading = true
		m.statusMsg = "Loading " + meta["kind"] + " " + meta["name"] + "..."
		return m, loadObject(m.ctx, m.getter, meta["kind"], meta["namespace"], meta["name"], m.readOnly)
	}

	var cmd tea.Cmd
	m.workloadList, cmd = m.workloadList.Update(msg)
	return m, cmd
}

func (m Model) handleNamespaceMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.namespaceList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.namespaceList, cmd = m.namespaceList.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "esc":
		m.mode = m.nsBack
		return m, nil

	case "enter":
		if selected, ok := m.namespaceList.SelectedItem().(listItem); ok {
			m.namespace = selected.item.Metadata["namespace"]
			m.reloadLists()
			m.statusMsg = "Namespace: " + m.namespaceLabel()
		}
		m.mode = m.nsBack
		return m, nil
	}

	var cmd tea.Cmd
	m.namespaceList, cmd = m.namespaceList.Update(msg)
	return m, cmd
}

func (m Model) handleEditingMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.editor.editing {
		switch msg.String() {
		case "esc":
			if m.editor.state.Modified {
				m.confirm = &confirmation{
					prompt: "Discard unsaved changes to " + m.editor.state.Target.String() + "?",
					onYes:  types.ModeWorkloads,
					onNo:   types.ModeEditingEnv,
				}
				m.mode = types.ModeConfirming
				return m, nil
			}
			m.mode = types.ModeWorkloads
			return m, nil

		case "p":
			out, err := env.PreviewYAML(m.editor.state)
			if err != nil {
				m.editor.notice = "Preview failed: " + err.Error()
				return m, nil
			}
			m.viewport.SetContent(out)
			m.viewport.GotoTop()
			m.previewBack = types.ModeEditingEnv
			m.mode = types.ModePreview
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.update(m.ctx, msg, m.patcher)
	return m, cmd
}

func (m Model) handlePreviewMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "p", "q":
		m.mode = m.previewBack
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleBindingsMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "enter", "esc":
			m.filtering = false
			m.filterInput.Blur()
			if msg.String() == "esc" {
				m.filterInput.SetValue("")
				m.bindingQuery = ""
				m.reloadBindings()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.bindingQuery = strings.TrimSpace(m.filterInput.Value())
		m.reloadBindings()
		return m, cmd
	}

	if next, cmd, ok := m.handleTopLevel(msg); ok {
		return next, cmd
	}

	switch msg.String() {
	case "/":
		m.filtering = true
		cmd := m.filterInput.Focus()
		return m, cmd

	case "1", "2", "3":
		t := map[string]rbac.Type{"1": rbac.TypeNamespace, "2": rbac.TypeCluster, "3": rbac.TypeSystem}[msg.String()]
		m.bindingTypes[t] = !m.bindingTypes[t]
		m.reloadBindings()
		return m, nil

	case "c", "e", "enter", "u":
		if m.readOnly {
			m.statusMsg = "Read-only mode: bindings cannot be changed"
			return m, nil
		}
		var f *rbac.Form
		title := "Create Role Binding"
		if msg.String() == "c" {
			ns := m.namespace
			if ns == "" {
				ns = "default"
			}
			f = rbac.NewForm(ns)
		} else {
			row, ok := m.selectedBinding()
			if !ok {
				return m, nil
			}
			if msg.String() == "u" {
				f = rbac.DuplicateForm(row)
				title = "Duplicate " + row.Binding.Kind()
			} else {
				f = rbac.EditForm(row)
				title = "Edit " + row.Binding.Kind() + " Subject"
			}
		}
		m.form = newBindingForm(f, title, m.cache.GetRoleNames(f.Namespace), m.cache.GetClusterRoleNames())
		m.mode = types.ModeBindingForm
		return m, textinput.Blink

	case "x", "delete":
		if m.readOnly {
			m.statusMsg = "Read-only mode: bindings cannot be changed"
			return m, nil
		}
		row, ok := m.selectedBinding()
		if !ok {
			return m, nil
		}
		run := deleteSubject(m.ctx, m.bindings, row)
		if !m.confirmDestructive {
			return m, run
		}
		prompt := fmt.Sprintf("Delete subject %s of type %s from %s?", row.Subject.Name, row.Subject.Kind, row.Binding.Name)
		if row.DeletesBinding() {
			prompt = fmt.Sprintf("Delete %s %s?", row.Binding.Kind(), row.Binding.Name)
		}
		m.confirm = &confirmation{prompt: prompt, run: run, onYes: types.ModeBindings, onNo: types.ModeBindings}
		m.mode = types.ModeConfirming
		return m, nil
	}

	var cmd tea.Cmd
	m.bindingTable, cmd = m.bindingTable.Update(msg)
	return m, cmd
}

func (m Model) handleBindingFormMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" && !m.form.saving {
		m.mode = types.ModeBindings
		return m, nil
	}

	var cmd tea.Cmd
	var submit bool
	m.form, cmd, submit = m.form.update(msg)
	if submit {
		return m, saveBinding(m.ctx, m.bindings, m.form.form)
	}
	return m, cmd
}

func (m Model) handleQuotasMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if next, cmd, ok := m.handleTopLevel(msg); ok {
		return next, cmd
	}

	if msg.String() == "f" {
		m.cycleQuotaTypes()
		return m, nil
	}

	var cmd tea.Cmd
	m.quotaTable, cmd = m.quotaTable.Update(msg)
	return m, cmd
}

func (m Model) handleJournalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.journalFiltering {
		switch msg.String() {
		case "enter", "esc":
			m.journalFiltering = false
			m.journalInput.Blur()
			if msg.String() == "esc" {
				m.journalInput.SetValue("")
				m.journalQuery = ""
				m.reloadJournal()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.journalInput, cmd = m.journalInput.Update(msg)
		m.journalQuery = strings.TrimSpace(m.journalInput.Value())
		m.reloadJournal()
		return m, cmd
	}

	if next, cmd, ok := m.handleTopLevel(msg); ok {
		return next, cmd
	}

	switch msg.String() {
	case "/":
		m.journalFiltering = true
		cmd := m.journalInput.Focus()
		return m, cmd

	case "f":
		m.journalFailedOnly = !m.journalFailedOnly
		m.reloadJournal()
		return m, nil

	case "c":
		m.journalThisContext = !m.journalThisContext
		m.reloadJournal()
		return m, nil

	case "enter":
		selected, ok := m.journalList.SelectedItem().(listItem)
		if !ok || m.journal == nil {
			return m, nil
		}
		entry, found := m.journal.Find(selected.item.Metadata["id"])
		if !found {
			return m, nil
		}
		m.viewport.SetContent(renderEntry(entry))
		m.viewport.GotoTop()
		m.previewBack = types.ModeViewingJournal
		m.mode = types.ModePreview
		return m, nil

	case "X":
		if m.journal == nil {
			return m, nil
		}
		m.confirm = &confirmation{
			prompt: "Clear the patch journal?",
			run:    clearJournal(m.journal),
			onYes:  types.ModeViewingJournal,
			onNo:   types.ModeViewingJournal,
		}
		m.mode = types.ModeConfirming
		return m, nil
	}

	var cmd tea.Cmd
	m.journalList, cmd = m.journalList.Update(msg)
	return m, cmd
}

func (m Model) handleConfirmingMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm == nil {
		m.mode = m.tab.Mode()
		return m, nil
	}

	switch msg.String() {
	case "y", "Y", "enter":
		c := m.confirm
		m.confirm = nil
		m.mode = c.onYes
		return m, c.run
	case "n", "N", "esc":
		m.mode = m.confirm.onNo
		m.confirm = nil
	}
	return m, nil
}

type journalClearedMsg struct{ err error }

func clearJournal(j *history.Journal) tea.Cmd {
	return func() tea.Msg {
		j.Clear()
		return journalClearedMsg{err: j.Save()}
	}
}

// renderEntry formats a journal entry for the viewport
func renderEntry(e history.Entry) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(e.Target))
	b.WriteString("\n\n")
	b.WriteString("Time:    " + e.Timestamp.Format(time.RFC1123) + "\n")
	if e.Context != "" {
		b.WriteString("Context: " + e.Context + "\n")
	}
	if e.Success {
		b.WriteString("Result:  " + RenderSuccess("applied") + "\n")
	} else {
		b.WriteString("Result:  " + RenderError(e.Error) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("Equivalent command:") + "\n")
	b.WriteString(e.Command + "\n")

	b.WriteString("\n" + helpStyle.Render("Patch:") + "\n")
	if out, err := yaml.JSONToYAML(e.Patch); err == nil {
		b.WriteString(string(out))
	} else {
		b.WriteString(string(e.Patch))
	}
	return b.String()
}
