package env

import (
	"fmt"

	"github.com/go-openapi/jsonpointer"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// Extract resolves the target's path inside obj and converts the env data
// found there into editable groups.
func Extract(obj map[string]interface{}, t Target) ([]Group, error) {
	raw, err := resolve(obj, t.Path)
	if err != nil {
		return nil, err
	}

	if t.Shape == ShapeObject {
		return FromObject(raw)
	}
	return FromList(raw)
}

// FromList converts a sequence of containers into one group per container.
func FromList(raw interface{}) ([]Group, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("env source: expected a list, got %T", raw)
	}

	groups := make([]Group, 0, len(items))
	for i, item := range items {
		holder, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("env source: item %d is %T, not an object", i, item)
		}

		pairs, err := pairsFromHolder(holder)
		if err != nil {
			return nil, fmt.Errorf("container %d: %w", i, err)
		}

		label, _, _ := unstructured.NestedString(holder, "name")
		groups = append(groups, Group{Label: label, Pairs: pairs})
	}

	return groups, nil
}

// FromObject converts a single env holder (a build strategy) into one group.
func FromObject(raw interface{}) ([]Group, error) {
	holder, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("env source: expected an object, got %T", raw)
	}

	pairs, err := pairsFromHolder(holder)
	if err != nil {
		return nil, err
	}

	label, _, _ := unstructured.NestedString(holder, "from", "name")
	return []Group{{Label: label, Pairs: pairs}}, nil
}

// pairsFromHolder reads holder.env in order. Missing or empty env yields a
// single blank row so the grid always has something to type into.
func pairsFromHolder(holder map[string]interface{}) ([]Pair, error) {
	list, ok := holder["env"].([]interface{})
	if !ok || len(list) == 0 {
		if v, present := holder["env"]; present && v != nil && !ok {
			return nil, fmt.Errorf("env is %T, not a list", v)
		}
		return []Pair{placeholder()}, nil
	}

	pairs := make([]Pair, 0, len(list))
	for i, e := range list {
		entry, ok := e.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("env[%d] is %T, not an object", i, e)
		}
		p, err := pairFromEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("env[%d]: %w", i, err)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func pairFromEntry(entry map[string]interface{}) (Pair, error) {
	name, _ := entry["name"].(string)

	if from, ok := entry["valueFrom"].(map[string]interface{}); ok {
		src := &corev1.EnvVarSource{}
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(from, src); err != nil {
			return Pair{}, fmt.Errorf("invalid valueFrom for %q: %w", name, err)
		}
		return Pair{Name: name, Value: Reference(src)}, nil
	}

	value, _ := entry["value"].(string)
	return Pair{Name: name, Value: Literal(value)}, nil
}

func resolve(obj map[string]interface{}, path string) (interface{}, error) {
	ptr, err := jsonpointer.New(path)
	if err != nil {
		return nil, fmt.Errorf("invalid env path %q: %w", path, err)
	}

	v, _, err := ptr.Get(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve env path %q: %w", path, err)
	}
	return v, nil
}

// hasEnv reports whether the slot at index i of the snapshot already carries
// a non-empty env list. For ShapeObject the index is ignored.
func hasEnv(raw interface{}, shape Shape, i int) bool {
	var holder map[string]interface{}
	if shape == ShapeObject {
		holder, _ = raw.(map[string]interface{})
	} else {
		items, _ := raw.([]interface{})
		if i < 0 || i >= len(items) {
			return false
		}
		holder, _ = items[i].(map[string]interface{})
	}
	if holder == nil {
		return false
	}

	list, ok := holder["env"].([]interface{})
	return ok && len(list) > 0
}
