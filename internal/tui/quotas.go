package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/tapcraft-io/whisker/internal/ctxlog"
	"github.com/tapcraft-io/whisker/internal/quota"
)

func newQuotaTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 30},
			{Title: "Namespace", Width: 20},
			{Title: "Type", Width: 12},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(tableStyles())
	return t
}

func (m *Model) reloadQuotas() {
	if m.quotaTypes == nil {
		m.quotaTypes = quota.DefaultTypes(m.cache.HasClusterResourceQuotas())
	}

	all, errs := quota.Collect(m.cache.GetResourceQuotas(m.namespace), m.cache.GetClusterResourceQuotas())
	for _, err := range errs {
		ctxlog.FromContext(m.ctx).Warn("skipping quota", "error", err)
	}
	m.quotaRows = quota.Filter(all, m.quotaTypes)

	rows := make([]table.Row, len(m.quotaRows))
	for i, q := range m.quotaRows {
		rows[i] = table.Row{q.Name, q.NamespaceColumn(), string(q.Type())}
	}
	m.quotaTable.SetRows(rows)
	if m.quotaTable.Cursor() >= len(rows) {
		m.quotaTable.SetCursor(len(rows) - 1)
	}
}

// cycleQuotaTypes steps through namespace, cluster and both
func (m *Model) cycleQuotaTypes() {
	if !m.cache.HasClusterResourceQuotas() {
		m.statusMsg = "This cluster has no cluster-wide resource quotas"
		return
	}
	switch {
	case m.quotaTypes[quota.TypeNamespace] && m.quotaTypes[quota.TypeCluster]:
		m.quotaTypes = map[quota.Type]bool{quota.TypeNamespace: true}
	case m.quotaTypes[quota.TypeNamespace]:
		m.quotaTypes = map[quota.Type]bool{quota.TypeCluster: true}
	default:
		m.quotaTypes = quota.DefaultTypes(true)
	}
	m.reloadQuotas()
}

func (m Model) quotaTypesLabel() string {
	var on []string
	for _, t := range []quota.Type{quota.TypeNamespace, quota.TypeCluster} {
		if m.quotaTypes[t] {
			on = append(on, string(t))
		}
	}
	return strings.Join(on, ", ")
}

func (m Model) renderQuotaSummary() string {
	i := m.quotaTable.Cursor()
	if i < 0 || i >= len(m.quotaRows) {
		return RenderHelp("No resource quotas found")
	}
	q := m.quotaRows[i]

	var b strings.Builder
	b.WriteString(titleStyle.Render(q.Kind() + " " + q.Name))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(pad("RESOURCE", 28) + pad("USED", 12) + pad("HARD", 12) + "USAGE"))
	b.WriteString("\n")

	for _, line := range quota.Summary(q) {
		usage := "-"
		if line.Percent >= 0 {
			usage = fmt.Sprintf("%d%%", line.Percent)
		}
		row := pad(string(line.Resource), 28) + pad(line.Used, 12) + pad(line.Hard, 12)
		switch {
		case line.Percent >= 90:
			b.WriteString(row + errorStyle.Render(usage))
		case line.Percent >= 70:
			b.WriteString(row + warningStyle.Render(usage))
		default:
			b.WriteString(row + usage)
		}
		b.WriteString("\n")
	}
	return b.String()
}
