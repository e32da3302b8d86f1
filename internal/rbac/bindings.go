// Package rbac lists role bindings one row per subject and edits them.
package rbac

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	rbacv1 "k8s.io/api/rbac/v1"
)

const (
	KindRoleBinding        = "RoleBinding"
	KindClusterRoleBinding = "ClusterRoleBinding"
)

// Type groups bindings for filtering
type Type string

const (
	TypeSystem    Type = "system"
	TypeNamespace Type = "namespace"
	TypeCluster   Type = "cluster"
)

// Binding is a RoleBinding or a ClusterRoleBinding. Bindings without a
// namespace are cluster role bindings.
type Binding struct {
	Name      string
	Namespace string
	RoleRef   rbacv1.RoleRef
	Subjects  []rbacv1.Subject
}

// FromRoleBinding wraps a RoleBinding
func FromRoleBinding(rb rbacv1.RoleBinding) Binding {
	return Binding{
		Name:      rb.Name,
		Namespace: rb.Namespace,
		RoleRef:   rb.RoleRef,
		Subjects:  append([]rbacv1.Subject(nil), rb.Subjects...),
	}
}

// FromClusterRoleBinding wraps a ClusterRoleBinding
func FromClusterRoleBinding(crb rbacv1.ClusterRoleBinding) Binding {
	return Binding{
		Name:     crb.Name,
		RoleRef:  crb.RoleRef,
		Subjects: append([]rbacv1.Subject(nil), crb.Subjects...),
	}
}

// Kind is RoleBinding when the binding has a namespace
func (b Binding) Kind() string {
	if b.Namespace != "" {
		return KindRoleBinding
	}
	return KindClusterRoleBinding
}

// Classify returns system for bindings to system: roles, otherwise namespace or cluster
func Classify(b Binding) Type {
	if IsSystemRole(b.RoleRef.Name) {
		return TypeSystem
	}
	if b.Namespace != "" {
		return TypeNamespace
	}
	return TypeCluster
}

// IsSystemRole reports whether a role is managed by the cluster itself
func IsSystemRole(name string) bool {
	return strings.HasPrefix(name, "system:")
}

// RoleLink returns the kind, name and namespace of the bound role. Cluster
// roles have no namespace; roles live in the binding's namespace.
func (b Binding) RoleLink() (kind, name, namespace string) {
	if b.RoleRef.Kind == "ClusterRole" {
		return b.RoleRef.Kind, b.RoleRef.Name, ""
	}
	return b.RoleRef.Kind, b.RoleRef.Name, b.Namespace
}

// Row is one subject of a binding
type Row struct {
	Binding Binding
	Index   int
	Subject rbacv1.Subject
}

// NoSubject stands in for the subject of a binding that has none
var NoSubject = rbacv1.Subject{Kind: "-", Name: "-"}

// SplitRows returns one row per subject, or a single placeholder row when
// the binding has no subjects
func SplitRows(b Binding) []Row {
	if len(b.Subjects) == 0 {
		return []Row{{Binding: b, Index: 0, Subject: NoSubject}}
	}

	rows := make([]Row, len(b.Subjects))
	for i, s := range b.Subjects {
		rows[i] = Row{Binding: b, Index: i, Subject: s}
	}
	return rows
}

// Rows splits every binding and orders the rows by namespace, binding name and subject index
func Rows(bindings []Binding) []Row {
	var rows []Row
	for _, b := range bindings {
		rows = append(rows, SplitRows(b)...)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Binding.Namespace != b.Binding.Namespace {
			return a.Binding.Namespace < b.Binding.Namespace
		}
		if a.Binding.Name != b.Binding.Name {
			return a.Binding.Name < b.Binding.Name
		}
		return a.Index < b.Index
	})
	return rows
}

// DeletesBinding reports whether removing this row's subject removes the
// whole binding
func (r Row) DeletesBinding() bool {
	return len(r.Binding.Subjects) <= 1
}

// Placeholder reports whether the row stands for a binding without subjects
func (r Row) Placeholder() bool {
	return len(r.Binding.Subjects) == 0
}

// SearchText is what fuzzy filtering matches against
func (r Row) SearchText() string {
	return r.Binding.Name + " " + r.Binding.RoleRef.Name + " " + r.Subject.Name
}

// DefaultTypes is the filter selection the bindings view opens with
func DefaultTypes() map[Type]bool {
	return map[Type]bool{TypeNamespace: true, TypeCluster: true}
}

type rowSource []Row

func (s rowSource) String(i int) string { return s[i].SearchText() }
func (s rowSource) Len() int            { return len(s) }

// Filter keeps rows whose binding type is selected and, when query is set,
// that fuzzy match it by binding name, role or subject. Matches are ranked
// best first.
func Filter(rows []Row, types map[Type]bool, query string) []Row {
	kept := make([]Row, 0, len(rows))
	for _, r := range rows {
		if types[Classify(r.Binding)] {
			kept = append(kept, r)
		}
	}

	if query == "" {
		return kept
	}

	matches := fuzzy.FindFrom(query, rowSource(kept))
	result := make([]Row, 0, len(matches))
	for _, m := range matches {
		result = append(result, kept[m.Index])
	}
	return result
}

// AssignableRoles drops system: roles from a role picker
func AssignableRoles(names []string) []string {
	result := make([]string, 0, len(names))
	for _, n := range names {
		if !IsSystemRole(n) {
			result = append(result, n)
		}
	}
	return result
}
