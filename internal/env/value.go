package env

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
)

// ValueKind tags which side of a Value is populated
type ValueKind int

const (
	KindLiteral ValueKind = iota
	KindReference
)

// Value is the value of an env entry: a literal string or a reference
// to another source (secret key, config map key, field or resource).
type Value struct {
	kind ValueKind
	text string
	from *corev1.EnvVarSource
}

// Literal returns a plain string value
func Literal(s string) Value {
	return Value{kind: KindLiteral, text: s}
}

// Reference returns a value resolved from src. A nil src is treated as an empty literal.
func Reference(src *corev1.EnvVarSource) Value {
	if src == nil {
		return Literal("")
	}
	return Value{kind: KindReference, from: src.DeepCopy()}
}

// Kind reports which variant v holds
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsReference reports whether v points at another source
func (v Value) IsReference() bool {
	return v.kind == KindReference
}

// Text returns the literal string. It is empty for references.
func (v Value) Text() string {
	return v.text
}

// Source returns a copy of the referenced source, or nil for literals.
func (v Value) Source() *corev1.EnvVarSource {
	if v.from == nil {
		return nil
	}
	return v.from.DeepCopy()
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindLiteral {
		return v.text == o.text
	}
	return sourcesEqual(v.from, o.from)
}

// String renders the value for display in the grid
func (v Value) String() string {
	if v.kind == KindLiteral {
		return v.text
	}
	return describeSource(v.from)
}

func describeSource(src *corev1.EnvVarSource) string {
	switch {
	case src == nil:
		return ""
	case src.SecretKeyRef != nil:
		return fmt.Sprintf("secret %s/%s", src.SecretKeyRef.Name, src.SecretKeyRef.Key)
	case src.ConfigMapKeyRef != nil:
		return fmt.Sprintf("configmap %s/%s", src.ConfigMapKeyRef.Name, src.ConfigMapKeyRef.Key)
	case src.FieldRef != nil:
		return "field " + src.FieldRef.FieldPath
	case src.ResourceFieldRef != nil:
		if src.ResourceFieldRef.ContainerName != "" {
			return fmt.Sprintf("resource %s/%s", src.ResourceFieldRef.ContainerName, src.ResourceFieldRef.Resource)
		}
		return "resource " + src.ResourceFieldRef.Resource
	default:
		return "reference"
	}
}

// Pair is one editable row of the env grid
type Pair struct {
	Name  string
	Value Value
}

// Group is the ordered env of one container (or build source)
type Group struct {
	Label string
	Pairs []Pair
}

// sourcesEqual compares semantically so resource quantities such as
// divisors compare by value
func sourcesEqual(a, b *corev1.EnvVarSource) bool {
	return equality.Semantic.DeepEqual(a, b)
}

func placeholder() Pair {
	return Pair{Name: "", Value: Literal("")}
}

func clonePairs(pairs []Pair) []Pair {
	if pairs == nil {
		return nil
	}
	out := make([]Pair, len(pairs))
	copy(out, pairs)
	return out
}

func cloneGroups(groups []Group) []Group {
	if groups == nil {
		return nil
	}
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = Group{Label: g.Label, Pairs: clonePairs(g.Pairs)}
	}
	return out
}

func pairsEqual(a, b []Pair) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}

func groupsEqual(a, b []Group) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Label != b[i].Label || !pairsEqual(a[i].Pairs, b[i].Pairs) {
			return false
		}
	}
	return true
}

// DuplicateNames returns, per group index, the names that appear more than once.
// Duplicates are reported for display only; saving does not reject them.
func DuplicateNames(groups []Group) map[int][]string {
	dups := make(map[int][]string)
	for gi, g := range groups {
		seen := make(map[string]int)
		for _, p := range g.Pairs {
			if p.Name == "" {
				continue
			}
			seen[p.Name]++
			if seen[p.Name] == 2 {
				dups[gi] = append(dups[gi], p.Name)
			}
		}
	}
	return dups
}
