package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tapcraft-io/whisker/internal/rbac"
	rbacv1 "k8s.io/api/rbac/v1"
)

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(colorBgAlt).
		Background(colorPrimary).
		Bold(false)
	return s
}

func newBindingTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 24},
			{Title: "Role Ref", Width: 28},
			{Title: "Subject Kind", Width: 14},
			{Title: "Subject Name", Width: 24},
			{Title: "Namespace", Width: 16},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	t.SetStyles(tableStyles())
	return t
}

func (m *Model) reloadBindings() {
	bindings := rbac.Bindings(m.cache.GetRoleBindings(m.namespace), m.cache.GetClusterRoleBindings())
	m.bindingRows = rbac.Filter(rbac.Rows(bindings), m.bindingTypes, m.bindingQuery)

	rows := make([]table.Row, len(m.bindingRows))
	for i, r := range m.bindingRows {
		kind, name, _ := r.Binding.RoleLink()
		ns := r.Binding.Namespace
		if ns == "" {
			ns = "all"
		}
		rows[i] = table.Row{r.Binding.Name, kind + "/" + name, r.Subject.Kind, r.Subject.Name, ns}
	}
	m.bindingTable.SetRows(rows)
	if m.bindingTable.Cursor() >= len(rows) {
		m.bindingTable.SetCursor(len(rows) - 1)
	}
}

func (m Model) selectedBinding() (rbac.Row, bool) {
	i := m.bindingTable.Cursor()
	if i < 0 || i >= len(m.bindingRows) {
		return rbac.Row{}, false
	}
	return m.bindingRows[i], true
}

func (m Model) bindingTypesLabel() string {
	var on []string
	for _, t := range []rbac.Type{rbac.TypeNamespace, rbac.TypeCluster, rbac.TypeSystem} {
		if m.bindingTypes[t] {
			on = append(on, string(t))
		}
	}
	if len(on) == 0 {
		return "none"
	}
	return strings.Join(on, ", ")
}

func deleteSubject(ctx context.Context, client *rbac.Client, r rbac.Row) tea.Cmd {
	return func() tea.Msg {
		verb := fmt.Sprintf("Deleted subject %s of %s", r.Subject.Name, r.Binding.Name)
		if r.DeletesBinding() {
			verb = "Deleted " + r.Binding.Kind() + " " + r.Binding.Name
		}
		return bindingActionMsg{verb: verb, err: client.DeleteSubject(ctx, r)}
	}
}

func saveBinding(ctx context.Context, client *rbac.Client, f *rbac.Form) tea.Cmd {
	return func() tea.Msg {
		verb := "Created " + f.Kind + " " + f.Name
		if f.Mode == rbac.FormEdit {
			verb = "Updated " + f.Kind + " " + f.Name
		}
		return bindingActionMsg{verb: verb, err: client.Save(ctx, f)}
	}
}

// Form fields in tab order
type formField int

const (
	fieldKind formField = iota
	fieldName
	fieldNamespace
	fieldRoleKind
	fieldRoleName
	fieldSubjectKind
	fieldSubjectName
	fieldSubjectNamespace
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Binding Kind", "Name", "Namespace", "Role Kind", "Role Name",
	"Subject Kind", "Subject Name", "Subject Namespace",
}

var (
	bindingKinds = []string{rbac.KindRoleBinding, rbac.KindClusterRoleBinding}
	roleKinds    = []string{"ClusterRole", "Role"}
	subjectKinds = []string{rbacv1.UserKind, rbacv1.GroupKind, rbacv1.ServiceAccountKind}
)

// bindingFormModel edits an rbac.Form. Kind fields cycle with left/right;
// text fields are textinputs.
type bindingFormModel struct {
	form         *rbac.Form
	focus        formField
	inputs       [fieldCount]textinput.Model
	saving       bool
	err          error
	title        string
	roles        []string
	clusterRoles []string
}

func newBindingForm(f *rbac.Form, title string, roles, clusterRoles []string) bindingFormModel {
	fm := bindingFormModel{form: f, title: title, roles: roles, clusterRoles: clusterRoles}
	for i := range fm.inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 253
		ti.Width = 40
		fm.inputs[i] = ti
	}
	fm.inputs[fieldName].SetValue(f.Name)
	fm.inputs[fieldNamespace].SetValue(f.Namespace)
	fm.inputs[fieldRoleName].SetValue(f.RoleName)
	fm.inputs[fieldRoleName].ShowSuggestions = true
	s := f.Subject()
	fm.inputs[fieldSubjectName].SetValue(s.Name)
	fm.inputs[fieldSubjectNamespace].SetValue(s.Namespace)
	if f.RoleKind == "" {
		f.SetRole("ClusterRole", f.RoleName)
	}
	fm.refreshSuggestions()

	fm.focus = fieldKind
	if f.Mode == rbac.FormEdit {
		fm.focus = fieldSubjectKind
	}
	fm.focusInput()
	return fm
}

// fixed reports whether a field is locked; editing only touches the subject
func (fm bindingFormModel) fixed(f formField) bool {
	if fm.form.Mode == rbac.FormEdit && f < fieldSubjectKind {
		return true
	}
	switch f {
	case fieldNamespace:
		return fm.form.Kind == rbac.KindClusterRoleBinding
	case fieldSubjectNamespace:
		return fm.form.Subject().Kind != rbacv1.ServiceAccountKind
	}
	return false
}

func (fm *bindingFormModel) refreshSuggestions() {
	if fm.form.RoleKind == "Role" {
		fm.inputs[fieldRoleName].SetSuggestions(rbac.AssignableRoles(fm.roles))
	} else {
		fm.inputs[fieldRoleName].SetSuggestions(rbac.AssignableRoles(fm.clusterRoles))
	}
}

func (fm *bindingFormModel) focusInput() {
	for i := range fm.inputs {
		fm.inputs[i].Blur()
	}
	fm.inputs[fm.focus].Focus()
}

func (fm *bindingFormModel) move(delta int) {
	for i := 0; i < int(fieldCount); i++ {
		fm.focus = formField((int(fm.focus) + delta + int(fieldCount)) % int(fieldCount))
		if !fm.fixed(fm.focus) {
			break
		}
	}
	fm.focusInput()
}

func cycle(options []string, current string, delta int) string {
	for i, o := range options {
		if o == current {
			return options[(i+delta+len(options))%len(options)]
		}
	}
	return options[0]
}

// sync copies the text inputs into the form
func (fm *bindingFormModel) sync() {
	f := fm.form
	f.Name = strings.TrimSpace(fm.inputs[fieldName].Value())
	if f.Kind == rbac.KindRoleBinding {
		f.Namespace = strings.TrimSpace(fm.inputs[fieldNamespace].Value())
	}
	f.SetRole(f.RoleKind, strings.TrimSpace(fm.inputs[fieldRoleName].Value()))
	f.SetSubjectName(strings.TrimSpace(fm.inputs[fieldSubjectName].Value()))
	if f.Subject().Kind == rbacv1.ServiceAccountKind {
		f.SetSubjectNamespace(strings.TrimSpace(fm.inputs[fieldSubjectNamespace].Value()))
	}
}

// update handles a key; submit is true when the user asked to save
func (fm bindingFormModel) update(msg tea.KeyMsg) (bindingFormModel, tea.Cmd, bool) {
	if fm.saving {
		return fm, nil, false
	}

	switch msg.String() {
	case "tab", "down":
		fm.move(1)
		return fm, nil, false
	case "shift+tab", "up":
		fm.move(-1)
		return fm, nil, false
	case "ctrl+s":
		fm.sync()
		if err := fm.form.Validate(); err != nil {
			fm.err = err
			return fm, nil, false
		}
		fm.err = nil
		fm.saving = true
		return fm, nil, true
	case "left", "right", " ":
		delta := 1
		if msg.String() == "left" {
			delta = -1
		}
		switch fm.focus {
		case fieldKind:
			fm.form.SetKind(cycle(bindingKinds, fm.form.Kind, delta))
			if fm.form.Kind == rbac.KindClusterRoleBinding {
				fm.inputs[fieldNamespace].SetValue("")
				if fm.form.RoleKind == "" {
					fm.form.SetRole("ClusterRole", "")
					fm.inputs[fieldRoleName].SetValue("")
				}
			}
			fm.refreshSuggestions()
			return fm, nil, false
		case fieldRoleKind:
			kind := cycle(roleKinds, fm.form.RoleKind, delta)
			if kind == "Role" && fm.form.Kind == rbac.KindClusterRoleBinding {
				kind = "ClusterRole"
			}
			fm.form.SetRole(kind, fm.form.RoleName)
			fm.refreshSuggestions()
			return fm, nil, false
		case fieldSubjectKind:
			fm.form.SetSubjectKind(cycle(subjectKinds, fm.form.Subject().Kind, delta))
			return fm, nil, false
		}
	}

	switch fm.focus {
	case fieldKind, fieldRoleKind, fieldSubjectKind:
		return fm, nil, false
	}

	var cmd tea.Cmd
	fm.inputs[fm.focus], cmd = fm.inputs[fm.focus].Update(msg)
	fm.sync()
	return fm, cmd, false
}

func (fm bindingFormModel) value(f formField) string {
	switch f {
	case fieldKind:
		return fm.form.Kind
	case fieldRoleKind:
		return fm.form.RoleKind
	case fieldSubjectKind:
		return fm.form.Subject().Kind
	}
	if fm.fixed(f) {
		return fm.inputs[f].Value()
	}
	return fm.inputs[f].View()
}

func (fm bindingFormModel) view() string {
	var b strings.Builder
	for i := formField(0); i < fieldCount; i++ {
		if (i == fieldNamespace && fm.form.Kind == rbac.KindClusterRoleBinding) ||
			(i == fieldSubjectNamespace && fm.form.Subject().Kind != rbacv1.ServiceAccountKind) {
			continue
		}

		label := pad(fieldLabels[i], 18)
		value := fm.value(i)
		switch {
		case i == fm.focus:
			label = selectedStyle.Render(label)
		case fm.fixed(i):
			label = helpStyle.Render(label)
			value = helpStyle.Render(value)
		default:
			label = normalStyle.Render(label)
		}
		if i == fieldKind || i == fieldRoleKind || i == fieldSubjectKind {
			value = "‹ " + value + " ›"
		}
		b.WriteString(label + "  " + value + "\n")
	}

	if fm.err != nil {
		b.WriteString("\n" + RenderError(fm.err.Error()) + "\n")
	}
	if fm.saving {
		b.WriteString("\n" + RenderInfo("Saving...") + "\n")
	}
	return RenderBox(fm.title, b.String())
}
