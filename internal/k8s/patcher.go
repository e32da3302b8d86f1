package k8s

import (
	"context"
	"fmt"

	"github.com/tapcraft-io/whisker/internal/ctxlog"
	"github.com/tapcraft-io/whisker/internal/env"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
)

// APIPatcher sends env patches straight to the API server through the dynamic client
type APIPatcher struct {
	dyn dynamic.Interface
}

// NewAPIPatcher creates a patcher backed by dyn
func NewAPIPatcher(dyn dynamic.Interface) *APIPatcher {
	return &APIPatcher{dyn: dyn}
}

func (p *APIPatcher) resource(t env.Target) dynamic.ResourceInterface {
	if t.Namespace == "" {
		return p.dyn.Resource(t.Resource)
	}
	return p.dyn.Resource(t.Resource).Namespace(t.Namespace)
}

// Get fetches the current state of the target object
func (p *APIPatcher) Get(ctx context.Context, t env.Target) (*unstructured.Unstructured, error) {
	obj, err := p.resource(t).Get(ctx, t.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", t, err)
	}
	return obj, nil
}

// Patch applies ops as a single JSON patch and returns the updated object
func (p *APIPatcher) Patch(ctx context.Context, t env.Target, ops []env.Operation) (*unstructured.Unstructured, error) {
	data, err := env.MarshalPatch(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}

	ctxlog.FromContext(ctx).Debug("json patch", "target", t.String(), "body", string(data))

	obj, err := p.resource(t).Patch(ctx, t.Name, types.JSONPatchType, data, metav1.PatchOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}
