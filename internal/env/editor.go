package env

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// SaveSuccessMessage is shown after a patch lands
const SaveSuccessMessage = "Successfully updated the environment variables."

// Phase is the editor's position in the clean/dirty/saving cycle
type Phase int

const (
	PhaseClean Phase = iota
	PhaseDirty
	PhaseSaving
)

func (p Phase) String() string {
	switch p {
	case PhaseClean:
		return "clean"
	case PhaseDirty:
		return "modified"
	case PhaseSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// State is the working copy of one object's env plus the snapshot it was
// synced from. It is only changed through Reduce.
type State struct {
	Target   Target
	Snapshot *unstructured.Unstructured
	Groups   []Group
	Synced   []Group
	Modified bool
	Saving   bool
	Err      error
	Success  string

	editedWhileSaving bool
}

// NewState extracts the editable groups from obj
func NewState(t Target, obj *unstructured.Unstructured) (State, error) {
	if obj == nil {
		return State{}, fmt.Errorf("no object to edit for %s", t)
	}

	groups, err := Extract(obj.Object, t)
	if err != nil {
		return State{}, err
	}

	return State{
		Target:   t,
		Snapshot: obj.DeepCopy(),
		Groups:   cloneGroups(groups),
		Synced:   groups,
	}, nil
}

// Phase derives the current phase from the flags
func (s State) Phase() Phase {
	if s.Saving {
		return PhaseSaving
	}
	if s.Modified {
		return PhaseDirty
	}
	return PhaseClean
}

// Edit is one of RowChanged, Cleared, SaveStarted, SaveSucceeded or SaveFailed
type Edit interface {
	isEdit()
}

// RowChanged replaces the rows of one group
type RowChanged struct {
	Group int
	Pairs []Pair
}

// Cleared resets the working copy to the last synced snapshot
type Cleared struct{}

// SaveStarted marks a patch request as outstanding
type SaveStarted struct{}

// SaveSucceeded carries the object returned by the server
type SaveSucceeded struct {
	Object *unstructured.Unstructured
}

// SaveFailed carries the error of a rejected patch
type SaveFailed struct {
	Err error
}

func (RowChanged) isEdit()    {}
func (Cleared) isEdit()       {}
func (SaveStarted) isEdit()   {}
func (SaveSucceeded) isEdit() {}
func (SaveFailed) isEdit()    {}

// Reduce applies e to s and returns the new state. s is not modified.
func Reduce(s State, e Edit) State {
	switch e := e.(type) {
	case RowChanged:
		if s.Target.ReadOnly || e.Group < 0 || e.Group >= len(s.Groups) {
			return s
		}
		groups := cloneGroups(s.Groups)
		groups[e.Group].Pairs = clonePairs(e.Pairs)
		if groups[e.Group].Pairs == nil {
			groups[e.Group].Pairs = []Pair{}
		}
		s.Groups = groups
		s.Modified = !groupsEqual(s.Groups, s.Synced)
		s.Success = ""
		if s.Saving {
			s.editedWhileSaving = true
		}

	case Cleared:
		s.Groups = cloneGroups(s.Synced)
		s.Modified = false
		s.Err = nil
		s.Success = ""
		s.editedWhileSaving = false

	case SaveStarted:
		if s.Saving || s.Target.ReadOnly {
			return s
		}
		s.Saving = true
		s.Err = nil
		s.Success = ""
		s.editedWhileSaving = false

	case SaveSucceeded:
		s.Saving = false
		if e.Object == nil {
			s.Err = fmt.Errorf("server returned no object for %s", s.Target)
			return s
		}
		groups, err := Extract(e.Object.Object, s.Target)
		if err != nil {
			s.Err = fmt.Errorf("failed to read saved env: %w", err)
			return s
		}
		s.Snapshot = e.Object.DeepCopy()
		s.Synced = groups
		// Edits typed while the request was in flight stay pending for the next save
		if !s.editedWhileSaving {
			s.Groups = cloneGroups(groups)
		}
		s.editedWhileSaving = false
		s.Modified = !groupsEqual(s.Groups, s.Synced)
		s.Err = nil
		s.Success = SaveSuccessMessage

	case SaveFailed:
		s.Saving = false
		s.editedWhileSaving = false
		s.Err = e.Err
		s.Success = ""
	}

	return s
}

func (s State) group(g int) (Group, bool) {
	if g < 0 || g >= len(s.Groups) {
		return Group{}, false
	}
	return s.Groups[g], true
}

// AddRow appends a blank row to group g
func (s State) AddRow(g int) Edit {
	grp, ok := s.group(g)
	if !ok {
		return RowChanged{Group: g}
	}
	pairs := append(clonePairs(grp.Pairs), placeholder())
	return RowChanged{Group: g, Pairs: pairs}
}

// RemoveRow drops row r of group g
func (s State) RemoveRow(g, r int) Edit {
	grp, ok := s.group(g)
	if !ok || r < 0 || r >= len(grp.Pairs) {
		return RowChanged{Group: g, Pairs: clonePairs(grp.Pairs)}
	}
	pairs := make([]Pair, 0, len(grp.Pairs)-1)
	pairs = append(pairs, grp.Pairs[:r]...)
	pairs = append(pairs, grp.Pairs[r+1:]...)
	return RowChanged{Group: g, Pairs: pairs}
}

// SetName renames row r of group g
func (s State) SetName(g, r int, name string) Edit {
	grp, ok := s.group(g)
	pairs := clonePairs(grp.Pairs)
	if ok && r >= 0 && r < len(pairs) {
		pairs[r].Name = name
	}
	return RowChanged{Group: g, Pairs: pairs}
}

// SetValue sets row r of group g to a literal, replacing any reference
func (s State) SetValue(g, r int, value string) Edit {
	grp, ok := s.group(g)
	pairs := clonePairs(grp.Pairs)
	if ok && r >= 0 && r < len(pairs) {
		pairs[r].Value = Literal(value)
	}
	return RowChanged{Group: g, Pairs: pairs}
}
