package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tapcraft-io/whisker/internal/env"
)

type editorKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Column key.Binding
	Edit   key.Binding
	Add    key.Binding
	Remove key.Binding
	Save   key.Binding
	Clear  key.Binding
}

var editorKeys = editorKeyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Column: key.NewBinding(key.WithKeys("tab", "left", "right", "h", "l"), key.WithHelp("tab", "name/value")),
	Edit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
	Add:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add row")),
	Remove: key.NewBinding(key.WithKeys("d", "x"), key.WithHelp("d", "remove row")),
	Save:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
	Clear:  key.NewBinding(key.WithKeys("ctrl+z"), key.WithHelp("ctrl+z", "clear changes")),
}

const (
	colName = iota
	colValue
)

// rowRef addresses one grid line. row is -1 for the line standing in for
// a group whose rows were all removed.
type rowRef struct {
	group, row int
}

// saveResultMsg carries the outcome of an env submission
type saveResultMsg struct {
	target env.Target
	edit   env.Edit
	ops    []env.Operation
}

// submitEnv runs the patch off the UI loop
func submitEnv(ctx context.Context, p env.Patcher, s env.State) tea.Cmd {
	return func() tea.Msg {
		edit, ops := env.Submit(ctx, p, s)
		return saveResultMsg{target: s.Target, edit: edit, ops: ops}
	}
}

// editorModel is the env grid of one object
type editorModel struct {
	state   env.State
	cursor  int
	col     int
	input   textinput.Model
	editing bool
	notice  string
}

func newEditorModel(state env.State) editorModel {
	ti := textinput.New()
	ti.CharLimit = 4096
	ti.Width = 50
	ti.Prompt = ""
	return editorModel{state: state, input: ti}
}

func (e editorModel) rows() []rowRef {
	var refs []rowRef
	for g, grp := range e.state.Groups {
		if len(grp.Pairs) == 0 {
			refs = append(refs, rowRef{group: g, row: -1})
			continue
		}
		for r := range grp.Pairs {
			refs = append(refs, rowRef{group: g, row: r})
		}
	}
	return refs
}

func (e editorModel) current() (rowRef, bool) {
	refs := e.rows()
	if e.cursor < 0 || e.cursor >= len(refs) {
		return rowRef{}, false
	}
	return refs[e.cursor], true
}

func (e *editorModel) clampCursor() {
	n := len(e.rows())
	if e.cursor >= n {
		e.cursor = n - 1
	}
	if e.cursor < 0 {
		e.cursor = 0
	}
}

// moveTo puts the cursor on row r of group g
func (e *editorModel) moveTo(g, r int) {
	for i, ref := range e.rows() {
		if ref.group == g && ref.row == r {
			e.cursor = i
			return
		}
	}
}

func (e *editorModel) apply(edit env.Edit) {
	e.state = env.Reduce(e.state, edit)
	e.clampCursor()
}

// update handles a key while the editor is focused
func (e editorModel) update(ctx context.Context, msg tea.KeyMsg, patcher env.Patcher) (editorModel, tea.Cmd) {
	if e.editing {
		return e.updateEditing(msg)
	}

	e.notice = ""
	ref, ok := e.current()

	switch {
	case key.Matches(msg, editorKeys.Up):
		if e.cursor > 0 {
			e.cursor--
		}

	case key.Matches(msg, editorKeys.Down):
		if e.cursor < len(e.rows())-1 {
			e.cursor++
		}

	case key.Matches(msg, editorKeys.Column):
		e.col = 1 - e.col

	case key.Matches(msg, editorKeys.Edit):
		if !ok || ref.row < 0 {
			return e, nil
		}
		if e.state.Target.ReadOnly {
			e.notice = fmt.Sprintf("%s is read-only", e.state.Target)
			return e, nil
		}
		// Row add/remove stays available during a save; committing values does not
		if e.state.Saving {
			e.notice = "Values are locked while the save is in flight"
			return e, nil
		}
		pair := e.state.Groups[ref.group].Pairs[ref.row]
		e.input.Placeholder = ""
		if e.col == colName {
			e.input.SetValue(pair.Name)
		} else if pair.Value.IsReference() {
			e.input.SetValue("")
			e.input.Placeholder = pair.Value.String() + " (typing replaces the reference)"
		} else {
			e.input.SetValue(pair.Value.Text())
		}
		e.input.CursorEnd()
		e.editing = true
		cmd := e.input.Focus()
		return e, cmd

	case key.Matches(msg, editorKeys.Add):
		if !ok {
			return e, nil
		}
		if e.state.Target.ReadOnly {
			e.notice = fmt.Sprintf("%s is read-only", e.state.Target)
			return e, nil
		}
		e.apply(e.state.AddRow(ref.group))
		e.moveTo(ref.group, len(e.state.Groups[ref.group].Pairs)-1)
		e.col = colName

	case key.Matches(msg, editorKeys.Remove):
		if !ok || ref.row < 0 {
			return e, nil
		}
		if e.state.Target.ReadOnly {
			e.notice = fmt.Sprintf("%s is read-only", e.state.Target)
			return e, nil
		}
		e.apply(e.state.RemoveRow(ref.group, ref.row))

	case key.Matches(msg, editorKeys.Clear):
		e.apply(env.Cleared{})

	case key.Matches(msg, editorKeys.Save):
		if e.state.Target.ReadOnly {
			e.notice = fmt.Sprintf("%s is read-only", e.state.Target)
			return e, nil
		}
		if e.state.Saving {
			return e, nil
		}
		e.apply(env.SaveStarted{})
		return e, submitEnv(ctx, patcher, e.state)
	}

	return e, nil
}

func (e editorModel) updateEditing(msg tea.KeyMsg) (editorModel, tea.Cmd) {
	switch msg.String() {
	case "enter":
		e.editing = false
		e.input.Blur()
		ref, ok := e.current()
		if !ok || ref.row < 0 {
			return e, nil
		}
		if e.col == colName {
			e.apply(e.state.SetName(ref.group, ref.row, strings.TrimSpace(e.input.Value())))
		} else if !e.state.Saving {
			e.apply(e.state.SetValue(ref.group, ref.row, e.input.Value()))
		}
		return e, nil

	case "esc":
		e.editing = false
		e.input.Blur()
		return e, nil
	}

	var cmd tea.Cmd
	e.input, cmd = e.input.Update(msg)
	return e, cmd
}

// saved folds a submission result into the state
func (e editorModel) saved(msg saveResultMsg) editorModel {
	e.apply(msg.edit)
	return e
}

func (e editorModel) groupHeading(g env.Group) string {
	label := g.Label
	if label == "" {
		label = "(unnamed)"
	}
	if e.state.Target.Shape == env.ShapeObject {
		return "build from " + label
	}
	return "container " + label
}

func (e editorModel) view(width int) string {
	var b strings.Builder

	t := e.state.Target
	header := fmt.Sprintf("%s %s", t.Kind, t.Name)
	if t.Namespace != "" {
		header += " -n " + t.Namespace
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString(" ")
	b.WriteString(RenderPhase(e.state.Phase()))
	if t.ReadOnly {
		b.WriteString(" ")
		b.WriteString(warningStyle.Render("read-only"))
	}
	b.WriteString("\n\n")

	nameWidth := width / 3
	if nameWidth < 16 {
		nameWidth = 16
	}
	valueWidth := width - nameWidth - 6
	if valueWidth < 16 {
		valueWidth = 16
	}

	refs := e.rows()
	lastGroup := -1
	for i, ref := range refs {
		if ref.group != lastGroup {
			if lastGroup >= 0 {
				b.WriteString("\n")
			}
			b.WriteString(groupStyle.Render(e.groupHeading(e.state.Groups[ref.group])))
			b.WriteString("\n")
			b.WriteString(helpStyle.Render("  " + pad("NAME", nameWidth) + "  VALUE"))
			b.WriteString("\n")
			lastGroup = ref.group
		}

		marker := "  "
		if i == e.cursor {
			marker = "❯ "
		}

		if ref.row < 0 {
			b.WriteString(marker + helpStyle.Render("(no variables, press a to add)"))
			b.WriteString("\n")
			continue
		}

		pair := e.state.Groups[ref.group].Pairs[ref.row]
		name := pad(pair.Name, nameWidth)
		value := pad(pair.Value.Text(), valueWidth)

		nameCell := normalStyle.Render(name)
		valueCell := normalStyle.Render(value)
		if pair.Value.IsReference() {
			valueCell = referenceStyle.Render(pad(pair.Value.String(), valueWidth))
		}

		if i == e.cursor {
			switch {
			case e.editing && e.col == colName:
				nameCell = pad(e.input.View(), nameWidth)
			case e.editing:
				valueCell = e.input.View()
			case e.col == colName:
				nameCell = selectedStyle.Render(name)
			default:
				valueCell = selectedStyle.Render(pad(pair.Value.String(), valueWidth))
			}
		}

		b.WriteString(marker + nameCell + "  " + valueCell)
		b.WriteString("\n")
	}

	if dups := env.DuplicateNames(e.state.Groups); len(dups) > 0 {
		groups := make([]int, 0, len(dups))
		for g := range dups {
			groups = append(groups, g)
		}
		sort.Ints(groups)
		b.WriteString("\n")
		for _, g := range groups {
			msg := fmt.Sprintf("Duplicate names in %s: %s", e.state.Groups[g].Label, strings.Join(dups[g], ", "))
			b.WriteString(RenderWarning(msg))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case e.state.Err != nil:
		b.WriteString(RenderError(e.state.Err.Error()))
		b.WriteString("\n")
	case e.state.Success != "":
		b.WriteString(RenderSuccess(e.state.Success))
		b.WriteString("\n")
	}
	if e.notice != "" {
		b.WriteString(RenderInfo(e.notice))
		b.WriteString("\n")
	}

	return b.String()
}

func (e editorModel) help() string {
	if e.editing {
		return "[Enter] commit  [Esc] cancel"
	}
	if e.state.Target.ReadOnly {
		return "[↑↓] navigate  [p] preview  [Esc] back"
	}
	return "[↑↓] navigate  [Tab] name/value  [Enter] edit  [a] add  [d] remove  [Ctrl+S] save  [Ctrl+Z] clear  [p] preview  [Esc] back"
}
