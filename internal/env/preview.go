package env

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/goccy/go-yaml"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Preview applies ops to a copy of snapshot locally, without contacting the cluster.
func Preview(snapshot *unstructured.Unstructured, ops []Operation) (*unstructured.Unstructured, error) {
	doc, err := snapshot.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	raw, err := MarshalPatch(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}

	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}

	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("patch does not apply: %w", err)
	}

	out := &unstructured.Unstructured{}
	if err := out.UnmarshalJSON(patched); err != nil {
		return nil, fmt.Errorf("failed to decode patched object: %w", err)
	}
	return out, nil
}

type renderedGroup struct {
	Container string   `json:"container,omitempty"`
	Env       []EnvVar `json:"env"`
}

// RenderYAML renders the env of each group the way it will be stored
func RenderYAML(groups []Group) (string, error) {
	rendered := make([]renderedGroup, 0, len(groups))
	for _, g := range groups {
		rendered = append(rendered, renderedGroup{Container: g.Label, Env: ToEnvVars(g.Pairs)})
	}

	js, err := json.Marshal(rendered)
	if err != nil {
		return "", err
	}

	out, err := yaml.JSONToYAML(js)
	if err != nil {
		return "", fmt.Errorf("failed to render yaml: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// PreviewYAML applies the edits of s to its snapshot and renders the env that would result
func PreviewYAML(s State) (string, error) {
	if s.Snapshot == nil {
		return "", fmt.Errorf("no snapshot for %s", s.Target)
	}

	ops, err := Synthesize(s.Groups, s.Snapshot.Object, s.Target)
	if err != nil {
		return "", err
	}

	patched, err := Preview(s.Snapshot, ops)
	if err != nil {
		return "", err
	}

	groups, err := Extract(patched.Object, s.Target)
	if err != nil {
		return "", err
	}
	return RenderYAML(groups)
}
