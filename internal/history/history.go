// Package history keeps a journal of env patches submitted from the console.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"github.com/tapcraft-io/whisker/internal/env"
	"github.com/tapcraft-io/whisker/internal/exec"
	"github.com/tapcraft-io/whisker/pkg/types"
)

// Entry is one submitted patch and its outcome
type Entry struct {
	ID        string          `json:"id"`
	Target    string          `json:"target"`
	Kind      string          `json:"kind"`
	Namespace string          `json:"namespace,omitempty"`
	Name      string          `json:"name"`
	Patch     json.RawMessage `json:"patch"`
	Command   string          `json:"command"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Context   string          `json:"context,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEntry describes the submission of ops to t. A nil err records a success.
func NewEntry(t env.Target, ops []env.Operation, err error, kubeContext string) Entry {
	patch, merr := env.MarshalPatch(ops)
	if merr != nil {
		patch = []byte("null")
	}

	e := Entry{
		ID:        uuid.NewString(),
		Target:    t.String(),
		Kind:      t.Kind,
		Namespace: t.Namespace,
		Name:      t.Name,
		Patch:     patch,
		Command:   exec.PatchCommand(t, ops),
		Success:   err == nil,
		Context:   kubeContext,
		Timestamp: time.Now(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Journal holds the most recent entries, newest first
type Journal struct {
	entries  []Entry
	maxSize  int
	filepath string
	mu       sync.RWMutex
}

// NewJournal creates a journal backed by filepath. A missing file is not an
// error; a corrupt one is returned along with a usable empty journal.
func NewJournal(maxSize int, filepath string) (*Journal, error) {
	j := &Journal{
		entries:  make([]Entry, 0, maxSize),
		maxSize:  maxSize,
		filepath: filepath,
	}

	// Try to load existing entries
	if err := j.Load(); err != nil && !os.IsNotExist(err) {
		return j, fmt.Errorf("failed to load journal %s: %w", filepath, err)
	}

	return j, nil
}

// Add records e, trimming the journal to its maximum size
func (j *Journal) Add(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Add to beginning
	j.entries = append([]Entry{e}, j.entries...)

	if len(j.entries) > j.maxSize {
		j.entries = j.entries[:j.maxSize]
	}
}

// Get returns the most recent n entries
func (j *Journal) Get(n int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n > len(j.entries) {
		n = len(j.entries)
	}

	result := make([]Entry, n)
	copy(result, j.entries[:n])
	return result
}

// GetAll returns every entry
func (j *Journal) GetAll() []Entry {
	return j.Get(j.Len())
}

// Len returns the number of entries
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Find returns the entry with the given ID
func (j *Journal) Find(id string) (Entry, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for _, e := range j.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Search fuzzy matches entries by target, best match first
func (j *Journal) Search(query string) []Entry {
	if query == "" {
		return j.GetAll()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	targets := make([]string, len(j.entries))
	for i, e := range j.entries {
		targets[i] = e.Target
	}

	matches := fuzzy.Find(query, targets)

	result := make([]Entry, 0, len(matches))
	for _, m := range matches {
		result = append(result, j.entries[m.Index])
	}
	return result
}

// Filter filters entries by context, namespace, and failure
func (j *Journal) Filter(kubeContext, namespace string, failedOnly bool) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]Entry, 0)
	for _, e := range j.entries {
		if kubeContext != "" && e.Context != kubeContext {
			continue
		}
		if namespace != "" && e.Namespace != namespace {
			continue
		}
		if failedOnly && e.Success {
			continue
		}
		result = append(result, e)
	}

	return result
}

// Clear removes every entry
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = make([]Entry, 0, j.maxSize)
}

// Save persists the journal to disk
func (j *Journal) Save() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(j.filepath, data, 0600)
}

// Load replaces the entries with those on disk
func (j *Journal) Load() error {
	data, err := os.ReadFile(j.filepath)
	if err != nil {
		return err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if len(entries) > j.maxSize {
		entries = entries[:j.maxSize]
	}
	j.entries = entries
	return nil
}

// ToListItems converts entries to list items for display
func ToListItems(entries []Entry) []types.ListItem {
	items := make([]types.ListItem, len(entries))
	for i, e := range entries {
		desc := e.Timestamp.Format("2006-01-02 15:04:05")
		if e.Context != "" {
			desc += " | " + e.Context
		}
		if e.Success {
			desc += " | ✓ applied"
		} else {
			desc += " | ✗ " + e.Error
		}

		successStr := "false"
		if e.Success {
			successStr = "true"
		}

		items[i] = types.ListItem{
			Title:       e.Target,
			Description: desc,
			Metadata: map[string]string{
				"id":        e.ID,
				"timestamp": e.Timestamp.Format(time.RFC3339),
				"context":   e.Context,
				"namespace": e.Namespace,
				"success":   successStr,
				"command":   e.Command,
			},
		}
	}
	return items
}
