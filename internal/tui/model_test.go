package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tapcraft-io/whisker/internal/env"
	"github.com/tapcraft-io/whisker/internal/history"
	"github.com/tapcraft-io/whisker/internal/k8s"
	"github.com/tapcraft-io/whisker/internal/rbac"
	"github.com/tapcraft-io/whisker/pkg/types"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

var (
	keyTab   = tea.KeyMsg{Type: tea.KeyTab}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keySave  = tea.KeyMsg{Type: tea.KeyCtrlS}
	keyKill  = tea.KeyMsg{Type: tea.KeyCtrlU}
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

type failingPatcher struct{ err error }

func (f failingPatcher) Patch(context.Context, env.Target, []env.Operation) (*unstructured.Unstructured, error) {
	return nil, f.err
}

// loadAPI returns the editor state of the demo api deployment
func loadAPI(t *testing.T, c *k8s.Client) env.State {
	t.Helper()

	target, err := env.TargetFor("deploy", "default", "api")
	if err != nil {
		t.Fatalf("TargetFor() error = %v", err)
	}
	obj, err := k8s.NewAPIPatcher(c.Dynamic).Get(context.Background(), target)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	state, err := env.NewState(target, obj)
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	return state
}

// send feeds keys to the editor, dropping commands
func send(ctx context.Context, e editorModel, p env.Patcher, keys ...tea.KeyMsg) editorModel {
	for _, k := range keys {
		e, _ = e.update(ctx, k, p)
	}
	return e
}

func TestEditor_EditAndSave(t *testing.T) {
	c := k8s.NewDemoClient()
	ctx := context.Background()
	p := k8s.NewAPIPatcher(c.Dynamic)
	e := newEditorModel(loadAPI(t, c))

	// LOG_LEVEL is the first row; switch to the value column and retype it
	e = send(ctx, e, p, keyTab, keyEnter, keyKill, runes("debug"), keyEnter)
	if e.editing {
		t.Fatal("editor still editing after enter")
	}
	if got := e.state.Groups[0].Pairs[0].Value.Text(); got != "debug" {
		t.Fatalf("LOG_LEVEL = %q, want debug", got)
	}
	if e.state.Phase() != env.PhaseDirty {
		t.Fatalf("phase = %s, want modified", e.state.Phase())
	}

	e, cmd := e.update(ctx, keySave, p)
	if cmd == nil {
		t.Fatal("save returned no command")
	}
	if e.state.Phase() != env.PhaseSaving {
		t.Fatalf("phase = %s, want saving", e.state.Phase())
	}

	// A second save while the first is in flight is ignored
	if _, again := e.update(ctx, keySave, p); again != nil {
		t.Error("second save issued a command")
	}

	msg, ok := cmd().(saveResultMsg)
	if !ok {
		t.Fatalf("command returned %T, want saveResultMsg", cmd())
	}
	e = e.saved(msg)

	if e.state.Phase() != env.PhaseClean {
		t.Errorf("phase after save = %s, want clean", e.state.Phase())
	}
	if e.state.Success != env.SaveSuccessMessage {
		t.Errorf("success = %q", e.state.Success)
	}
	if !strings.Contains(e.view(80), env.SaveSuccessMessage) {
		t.Error("view does not show the success message")
	}
}

func TestEditor_SaveFailureKeepsEdits(t *testing.T) {
	c := k8s.NewDemoClient()
	ctx := context.Background()
	p := failingPatcher{err: errors.New("admission webhook denied")}
	e := newEditorModel(loadAPI(t, c))

	e = send(ctx, e, p, keyTab, keyEnter, keyKill, runes("warn"), keyEnter)
	e, cmd := e.update(ctx, keySave, p)
	e = e.saved(cmd().(saveResultMsg))

	if e.state.Err == nil || !strings.Contains(e.state.Err.Error(), "admission webhook denied") {
		t.Fatalf("err = %v", e.state.Err)
	}
	if e.state.Phase() != env.PhaseDirty {
		t.Errorf("phase = %s, want modified", e.state.Phase())
	}
	if got := e.state.Groups[0].Pairs[0].Value.Text(); got != "warn" {
		t.Errorf("edit lost after failure: %q", got)
	}
}

func TestEditor_ReadOnly(t *testing.T) {
	c := k8s.NewDemoClient()
	ctx := context.Background()
	state := loadAPI(t, c)
	state.Target.ReadOnly = true
	e := newEditorModel(state)

	before := len(e.state.Groups[0].Pairs)
	e = send(ctx, e, nil, runes("a"))
	if !strings.Contains(e.notice, "read-only") {
		t.Errorf("notice = %q, want read-only", e.notice)
	}
	if got := len(e.state.Groups[0].Pairs); got != before {
		t.Errorf("rows = %d, want %d", got, before)
	}

	if _, cmd := e.update(ctx, keySave, nil); cmd != nil {
		t.Error("read-only save issued a command")
	}
	if e.state.Modified {
		t.Error("read-only state became modified")
	}
}

func TestEditor_ValuesLockedWhileSaving(t *testing.T) {
	c := k8s.NewDemoClient()
	ctx := context.Background()
	e := newEditorModel(env.Reduce(loadAPI(t, c), env.SaveStarted{}))

	e = send(ctx, e, nil, keyTab, keyEnter)
	if e.editing {
		t.Error("value editing started during a save")
	}

	before := len(e.state.Groups[0].Pairs)
	e = send(ctx, e, nil, runes("a"))
	if got := len(e.state.Groups[0].Pairs); got != before+1 {
		t.Errorf("rows after add = %d, want %d", got, before+1)
	}
}

func newTestModel(t *testing.T) (Model, *k8s.Client, *history.Journal) {
	t.Helper()

	c := k8s.NewDemoClient()
	cache := k8s.NewResourceCache(c.Clientset, c.Dynamic)
	if err := cache.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	journal, err := history.NewJournal(10, filepath.Join(t.TempDir(), "journal.json"))
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}

	patcher := k8s.NewAPIPatcher(c.Dynamic)
	m := NewModel(context.Background(), Options{
		Cache:              cache,
		Getter:             patcher,
		Patcher:            patcher,
		Bindings:           rbac.NewClient(c.Clientset),
		Journal:            journal,
		Context:            "demo",
		Namespace:          "default",
		ConfirmDestructive: true,
	})
	m = update(t, m, cacheReadyMsg{})
	return m, c, journal
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModel_SaveIsJournaled(t *testing.T) {
	m, c, journal := newTestModel(t)

	m = update(t, m, objectLoadedMsg{state: loadAPI(t, c)})
	if m.mode != types.ModeEditingEnv {
		t.Fatalf("mode = %s, want editing", m.mode)
	}

	for _, k := range []tea.KeyMsg{keyTab, keyEnter, keyKill, runes("trace"), keyEnter} {
		m = update(t, m, k)
	}
	next, cmd := m.Update(keySave)
	m = next.(Model)
	if cmd == nil {
		t.Fatal("save returned no command")
	}
	m = update(t, m, cmd())

	if m.editor.state.Phase() != env.PhaseClean {
		t.Errorf("phase = %s, want clean", m.editor.state.Phase())
	}
	if journal.Len() != 1 {
		t.Fatalf("journal has %d entries, want 1", journal.Len())
	}
	entry := journal.GetAll()[0]
	if !entry.Success || entry.Context != "demo" {
		t.Errorf("entry = %+v", entry)
	}
	if !strings.Contains(entry.Command, "kubectl patch deployments.apps api -n default") {
		t.Errorf("command = %q", entry.Command)
	}
	if len(m.journalList.Items()) != 1 {
		t.Errorf("journal list has %d items", len(m.journalList.Items()))
	}
}

func TestModel_DiscardNeedsConfirmation(t *testing.T) {
	m, c, _ := newTestModel(t)
	m = update(t, m, objectLoadedMsg{state: loadAPI(t, c)})

	m = update(t, m, runes("a"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != types.ModeConfirming {
		t.Fatalf("mode = %s, want confirming", m.mode)
	}

	m = update(t, m, runes("n"))
	if m.mode != types.ModeEditingEnv {
		t.Fatalf("mode after no = %s, want editing", m.mode)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m = update(t, m, runes("y"))
	if m.mode != types.ModeWorkloads {
		t.Errorf("mode after yes = %s, want workloads", m.mode)
	}
}

func TestModel_DeleteBindingSubject(t *testing.T) {
	m, c, _ := newTestModel(t)

	m = update(t, m, keyTab)
	if m.mode != types.ModeBindings {
		t.Fatalf("mode = %s, want bindings", m.mode)
	}

	row, ok := m.selectedBinding()
	if !ok {
		t.Fatal("no binding selected")
	}

	m = update(t, m, runes("x"))
	if m.mode != types.ModeConfirming {
		t.Fatalf("mode = %s, want confirming", m.mode)
	}
	next, cmd := m.Update(runes("y"))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("confirm returned no command")
	}
	result, ok := cmd().(bindingActionMsg)
	if !ok || result.err != nil {
		t.Fatalf("delete = %+v", result)
	}

	ctx := context.Background()
	var subjects int
	var err error
	if row.Binding.Kind() == rbac.KindClusterRoleBinding {
		crb, gerr := c.Clientset.RbacV1().ClusterRoleBindings().Get(ctx, row.Binding.Name, metav1.GetOptions{})
		err = gerr
		if crb != nil {
			subjects = len(crb.Subjects)
		}
	} else {
		rb, gerr := c.Clientset.RbacV1().RoleBindings(row.Binding.Namespace).Get(ctx, row.Binding.Name, metav1.GetOptions{})
		err = gerr
		if rb != nil {
			subjects = len(rb.Subjects)
		}
	}

	if row.DeletesBinding() {
		if !apierrors.IsNotFound(err) {
			t.Errorf("binding %s still exists (err = %v)", row.Binding.Name, err)
		}
		return
	}
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if subjects != len(row.Binding.Subjects)-1 {
		t.Errorf("binding has %d subjects, want %d", subjects, len(row.Binding.Subjects)-1)
	}
}

func TestModel_ReadOnlyBlocksBindingChanges(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.readOnly = true

	m = update(t, m, keyTab)
	m = update(t, m, runes("x"))
	if m.mode != types.ModeBindings {
		t.Errorf("mode = %s, want bindings", m.mode)
	}
	if !strings.Contains(m.statusMsg, "Read-only") {
		t.Errorf("status = %q", m.statusMsg)
	}
}

func TestBindingForm_ValidationError(t *testing.T) {
	fm := newBindingForm(rbac.NewForm("default"), "Create", nil, nil)

	fm, _, submit := fm.update(keySave)
	if submit {
		t.Fatal("empty form submitted")
	}
	if !errors.Is(fm.err, rbac.ErrIncomplete) {
		t.Errorf("err = %v, want ErrIncomplete", fm.err)
	}
}

func TestModel_JournalSearchAndToggles(t *testing.T) {
	m, _, journal := newTestModel(t)

	target := func(name string) env.Target {
		tgt, err := env.TargetFor("deploy", "default", name)
		if err != nil {
			t.Fatalf("TargetFor() error = %v", err)
		}
		return tgt
	}
	ops := []env.Operation{{Op: env.OpReplace, Path: "/spec/template/spec/containers/0/env"}}
	journal.Add(history.NewEntry(target("api"), ops, nil, "demo"))
	journal.Add(history.NewEntry(target("worker"), ops, errors.New("forbidden"), "demo"))
	journal.Add(history.NewEntry(target("api"), ops, nil, "staging"))

	m = update(t, m, keyTab)
	m = update(t, m, keyTab)
	m = update(t, m, keyTab)
	if m.mode != types.ModeViewingJournal {
		t.Fatalf("mode = %s, want journal", m.mode)
	}
	m.reloadJournal()
	if got := len(m.journalList.Items()); got != 3 {
		t.Fatalf("journal lists %d entries, want 3", got)
	}

	m = update(t, m, runes("f"))
	if got := len(m.journalList.Items()); got != 1 {
		t.Errorf("failed only lists %d entries, want 1", got)
	}
	m = update(t, m, runes("f"))

	m = update(t, m, runes("c"))
	if got := len(m.journalList.Items()); got != 2 {
		t.Errorf("this context lists %d entries, want 2", got)
	}
	m = update(t, m, runes("c"))

	m = update(t, m, runes("/"))
	m = update(t, m, runes("work"))
	items := m.journalList.Items()
	if len(items) != 1 || !strings.Contains(items[0].(listItem).item.Title, "worker") {
		t.Errorf("search for work listed %d entries", len(items))
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if got := len(m.journalList.Items()); got != 3 {
		t.Errorf("clearing the search lists %d entries, want 3", got)
	}
}

func TestModel_DiscardDuringSaveNeedsConfirmation(t *testing.T) {
	m, c, _ := newTestModel(t)
	m = update(t, m, objectLoadedMsg{state: env.Reduce(loadAPI(t, c), env.SaveStarted{})})

	// rows can still be added while the save is in flight
	m = update(t, m, runes("a"))
	if !m.editor.state.Modified {
		t.Fatal("add during save did not modify the state")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != types.ModeConfirming {
		t.Errorf("mode = %s, want confirming", m.mode)
	}
}

func TestModel_ErrorDismissalRetriesCache(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.ready = false
	m.err = errors.New("cache initialization timeout")
	m.mode = types.ModeError

	next, cmd := m.Update(keyEnter)
	m = next.(Model)
	if m.err != nil {
		t.Errorf("err = %v after dismissal", m.err)
	}
	if cmd == nil {
		t.Fatal("dismissing the error did not wait for the cache again")
	}

	raw := cmd()
	msg, ok := raw.(cacheReadyMsg)
	if !ok {
		t.Fatalf("command returned %T, want cacheReadyMsg", raw)
	}
	m = update(t, m, msg)
	if !m.IsReady() {
		t.Error("model not ready after the cache came up")
	}
}
