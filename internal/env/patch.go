package env

import (
	"encoding/json"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// JSON-Patch operation kinds emitted by Synthesize
const (
	OpAdd     = "add"
	OpReplace = "replace"
)

// EnvVar is the wire form of one env entry. Exactly one of Value and
// ValueFrom is set.
type EnvVar struct {
	Name      string               `json:"name"`
	Value     *string              `json:"value,omitempty"`
	ValueFrom *corev1.EnvVarSource `json:"valueFrom,omitempty"`
}

// Operation is one JSON-Patch operation replacing or adding a whole env list
type Operation struct {
	Op    string   `json:"op"`
	Path  string   `json:"path"`
	Value []EnvVar `json:"value"`
}

// ToEnvVars drops rows without a name and converts the rest to wire entries.
// The result is never nil so an emptied slot serializes as [].
func ToEnvVars(pairs []Pair) []EnvVar {
	out := make([]EnvVar, 0, len(pairs))
	for _, p := range pairs {
		if p.Name == "" {
			continue
		}

		if p.Value.IsReference() {
			out = append(out, EnvVar{Name: p.Name, ValueFrom: p.Value.Source()})
			continue
		}

		text := p.Value.Text()
		out = append(out, EnvVar{Name: p.Name, Value: &text})
	}
	return out
}

// Synthesize builds one operation per group. The op is replace when the
// snapshot already had a non-empty env at that slot, add otherwise.
func Synthesize(groups []Group, snapshot map[string]interface{}, t Target) ([]Operation, error) {
	raw, err := resolve(snapshot, t.Path)
	if err != nil {
		return nil, err
	}

	ops := make([]Operation, 0, len(groups))
	for i, g := range groups {
		op := OpAdd
		if hasEnv(raw, t.Shape, i) {
			op = OpReplace
		}

		ops = append(ops, Operation{
			Op:    op,
			Path:  slotPath(t, i),
			Value: ToEnvVars(g.Pairs),
		})
	}

	return ops, nil
}

func slotPath(t Target, i int) string {
	base := strings.TrimSuffix(t.Path, "/")
	if t.Shape == ShapeObject {
		return base + "/env"
	}
	return base + "/" + strconv.Itoa(i) + "/env"
}

// MarshalPatch encodes ops as an application/json-patch+json document
func MarshalPatch(ops []Operation) ([]byte, error) {
	return json.Marshal(ops)
}
