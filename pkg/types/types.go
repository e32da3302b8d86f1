package types

// Mode represents the current interaction mode
type Mode int

const (
	ModeWorkloads Mode = iota
	ModeSelectingNamespace
	ModeEditingEnv
	ModePreview
	ModeBindings
	ModeBindingForm
	ModeQuotas
	ModeViewingJournal
	ModeConfirming
	ModeError
)

func (m Mode) String() string {
	switch m {
	case ModeWorkloads:
		return "workloads"
	case ModeSelectingNamespace:
		return "namespace"
	case ModeEditingEnv:
		return "env"
	case ModePreview:
		return "preview"
	case ModeBindings:
		return "bindings"
	case ModeBindingForm:
		return "binding form"
	case ModeQuotas:
		return "quotas"
	case ModeViewingJournal:
		return "journal"
	case ModeConfirming:
		return "confirm"
	case ModeError:
		return "error"
	default:
		return "unknown"
	}
}

// Tab is one of the top-level views switched with tab/shift+tab
type Tab int

const (
	TabWorkloads Tab = iota
	TabBindings
	TabQuotas
	TabJournal
)

// Tabs lists the top-level views in display order
var Tabs = []Tab{TabWorkloads, TabBindings, TabQuotas, TabJournal}

func (t Tab) String() string {
	switch t {
	case TabWorkloads:
		return "Workloads"
	case TabBindings:
		return "Role Bindings"
	case TabQuotas:
		return "Quotas"
	case TabJournal:
		return "Journal"
	default:
		return "?"
	}
}

// Mode returns the mode a tab opens in
func (t Tab) Mode() Mode {
	switch t {
	case TabBindings:
		return ModeBindings
	case TabQuotas:
		return ModeQuotas
	case TabJournal:
		return ModeViewingJournal
	default:
		return ModeWorkloads
	}
}

// ListItem represents an item that can be selected from a list
type ListItem struct {
	Title       string
	Description string
	Metadata    map[string]string
}

func (i ListItem) FilterValue() string {
	return i.Title
}
