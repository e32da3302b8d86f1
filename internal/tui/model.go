package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tapcraft-io/whisker/internal/ctxlog"
	"github.com/tapcraft-io/whisker/internal/env"
	"github.com/tapcraft-io/whisker/internal/history"
	"github.com/tapcraft-io/whisker/internal/k8s"
	"github.com/tapcraft-io/whisker/internal/quota"
	"github.com/tapcraft-io/whisker/internal/rbac"
	"github.com/tapcraft-io/whisker/pkg/types"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ObjectGetter fetches the current state of an env target
type ObjectGetter interface {
	Get(ctx context.Context, t env.Target) (*unstructured.Unstructured, error)
}

// Options wires the model to the cluster and local services
type Options struct {
	Cache    *k8s.ResourceCache
	Getter   ObjectGetter
	Patcher  env.Patcher
	Bindings *rbac.Client
	Journal  *history.Journal

	Context   string
	Namespace string

	ReadOnly           bool
	ConfirmDestructive bool
}

// confirmation is a destructive action waiting for y/n. run may be nil
// when confirming only changes the mode.
type confirmation struct {
	prompt string
	run    tea.Cmd
	onYes  types.Mode
	onNo   types.Mode
}

// Model represents the application state
type Model struct {
	// UI Components
	workloadList  list.Model
	namespaceList list.Model
	journalList   list.Model
	bindingTable  table.Model
	quotaTable    table.Model
	viewport      viewport.Model
	spinner       spinner.Model
	filterInput   textinput.Model

	editor editorModel
	form   bindingFormModel

	// Where esc returns to from the namespace picker and the preview
	nsBack      types.Mode
	previewBack types.Mode

	// Application State
	mode   types.Mode
	tab    types.Tab
	width  int
	height int

	// Kubernetes State
	cache     *k8s.ResourceCache
	getter    ObjectGetter
	patcher   env.Patcher
	bindings  *rbac.Client
	context   string
	namespace string // empty means all namespaces

	// Bindings view
	bindingRows  []rbac.Row
	bindingTypes map[rbac.Type]bool
	bindingQuery string
	filtering    bool

	// Quotas view
	quotaRows  []quota.Quota
	quotaTypes map[quota.Type]bool

	// Journal view
	journalInput       textinput.Model
	journalQuery       string
	journalFiltering   bool
	journalFailedOnly  bool
	journalThisContext bool

	// Services
	journal *history.Journal
	ctx     context.Context

	confirm            *confirmation
	readOnly           bool
	confirmDestructive bool

	// Flags
	ready        bool
	loading      bool
	quitting     bool
	err          error
	statusMsg    string
	ctrlCPressed int       // Track consecutive Ctrl+C presses
	ctrlCTime    time.Time // Track time of last Ctrl+C
}

// NewModel creates a new application model. ctx carries the logger and
// bounds every request the model issues.
func NewModel(ctx context.Context, opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	vp := viewport.New(80, 20)
	vp.Style = viewportStyle

	delegate := list.NewDefaultDelegate()

	wl := list.New([]list.Item{}, delegate, 60, 20)
	wl.Title = "Workloads"
	wl.SetShowStatusBar(false)
	wl.SetFilteringEnabled(true)

	nl := list.New([]list.Item{}, delegate, 60, 20)
	nl.Title = "Select Namespace"
	nl.SetShowStatusBar(false)
	nl.SetFilteringEnabled(true)

	jl := list.New([]list.Item{}, delegate, 60, 20)
	jl.Title = "Patch Journal"
	jl.SetShowStatusBar(false)
	// searched through the journal itself, see reloadJournal
	jl.SetFilteringEnabled(false)

	// Quitting is handled globally with a double ctrl+c
	for _, l := range []*list.Model{&wl, &nl, &jl} {
		l.DisableQuitKeybindings()
	}

	fi := textinput.New()
	fi.Placeholder = "filter by binding, role or subject"
	fi.Prompt = "/ "
	fi.CharLimit = 100

	ji := textinput.New()
	ji.Placeholder = "search by target"
	ji.Prompt = "/ "
	ji.CharLimit = 100

	return Model{
		journalInput:       ji,
		workloadList:       wl,
		namespaceList:      nl,
		journalList:        jl,
		bindingTable:       newBindingTable(),
		quotaTable:         newQuotaTable(),
		viewport:           vp,
		spinner:            s,
		filterInput:        fi,
		mode:               types.ModeWorkloads,
		tab:                types.TabWorkloads,
		cache:              opts.Cache,
		getter:             opts.Getter,
		patcher:            opts.Patcher,
		bindings:           opts.Bindings,
		journal:            opts.Journal,
		context:            opts.Context,
		namespace:          opts.Namespace,
		bindingTypes:       rbac.DefaultTypes(),
		readOnly:           opts.ReadOnly,
		confirmDestructive: opts.ConfirmDestructive,
		ctx:                ctx,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		spinner.Tick,
		checkCacheReady(m.cache),
	)
}

// IsReady reports whether the cache finished its first load
func (m Model) IsReady() bool {
	return m.ready
}

// Messages for async operations
type (
	cacheReadyMsg   struct{}
	cacheRefreshMsg struct{ err error }
	objectLoadedMsg struct {
		state env.State
		err   error
	}
	bindingActionMsg struct {
		verb string
		err  error
	}
	errMsg struct{ err error }
)

// checkCacheReady checks if the cache is ready
func checkCacheReady(cache *k8s.ResourceCache) tea.Cmd {
	return func() tea.Msg {
		// Poll for cache readiness with a small delay
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		timeout := time.After(30 * time.Second)

		for {
			select {
			case <-timeout:
				return errMsg{err: fmt.Errorf("cache initialization timeout")}
			case <-ticker.C:
				if cache.IsReady() {
					return cacheReadyMsg{}
				}
			}
		}
	}
}

func refreshCache(cache *k8s.ResourceCache) tea.Cmd {
	return func() tea.Msg {
		return cacheRefreshMsg{err: cache.Refresh()}
	}
}

// loadObject fetches a workload and builds its editor state
func loadObject(ctx context.Context, getter ObjectGetter, kind, namespace, name string, readOnly bool) tea.Cmd {
	return func() tea.Msg {
		var target env.Target
		if kind == "BuildConfig" {
			target = env.Target{Resource: env.BuildConfigsGVR, Kind: kind, Namespace: namespace, Name: name}
		} else {
			t, err := env.TargetFor(kind, namespace, name)
			if err != nil {
				return objectLoadedMsg{err: err}
			}
			target = t
		}

		obj, err := getter.Get(ctx, target)
		if err != nil {
			return objectLoadedMsg{err: err}
		}

		if kind == "BuildConfig" {
			if target, err = env.BuildConfigTarget(obj); err != nil {
				return objectLoadedMsg{err: err}
			}
		}
		if readOnly {
			target.ReadOnly = true
		}

		state, err := env.NewState(target, obj)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("failed to read env", "target", target.String(), "error", err)
		}
		return objectLoadedMsg{state: state, err: err}
	}
}

// Item adapter for list.Item interface
type listItem struct {
	item types.ListItem
}

func (i listItem) FilterValue() string {
	return i.item.Title
}

func (i listItem) Title() string {
	return i.item.Title
}

func (i listItem) Description() string {
	return i.item.Description
}

// convertToListItems converts types.ListItem to list.Item
func convertToListItems(items []types.ListItem) []list.Item {
	result := make([]list.Item, len(items))
	for i, item := range items {
		result[i] = listItem{item: item}
	}
	return result
}

func (m *Model) namespaceLabel() string {
	if m.namespace == "" {
		return "all"
	}
	return m.namespace
}

// reloadLists pulls fresh data from the cache into every view
func (m *Model) reloadLists() {
	m.workloadList.SetItems(convertToListItems(m.cache.GetWorkloads(m.namespace)))
	m.workloadList.Title = "Workloads in " + m.namespaceLabel()

	nsItems := []types.ListItem{{Title: "all", Description: "Every namespace"}}
	for _, ns := range m.cache.GetNamespaces() {
		nsItems = append(nsItems, types.ListItem{Title: ns, Metadata: map[string]string{"namespace": ns}})
	}
	m.namespaceList.SetItems(convertToListItems(nsItems))

	m.reloadBindings()
	m.reloadQuotas()
	m.reloadJournal()
}

// reloadJournal lists the entries matching the search, best match first,
// narrowed to the current namespace and the enabled toggles
func (m *Model) reloadJournal() {
	if m.journal == nil {
		return
	}

	kubeContext := ""
	if m.journalThisContext {
		kubeContext = m.context
	}
	keep := map[string]bool{}
	for _, e := range m.journal.Filter(kubeContext, m.namespace, m.journalFailedOnly) {
		keep[e.ID] = true
	}

	var entries []history.Entry
	for _, e := range m.journal.Search(m.journalQuery) {
		if keep[e.ID] {
			entries = append(entries, e)
		}
	}
	m.journalList.SetItems(convertToListItems(history.ToListItems(entries)))
	m.journalList.Title = "Patch Journal (" + m.journalScopeLabel() + ")"
}

func (m *Model) journalScopeLabel() string {
	scope := []string{"namespace " + m.namespaceLabel()}
	if m.journalThisContext {
		scope = append(scope, "context "+m.context)
	}
	if m.journalFailedOnly {
		scope = append(scope, "failed only")
	}
	return strings.Join(scope, ", ")
}
