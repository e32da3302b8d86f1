package env

import (
	"context"
	"fmt"

	"github.com/tapcraft-io/whisker/internal/ctxlog"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Patcher applies a JSON-Patch to the target object and returns the result
type Patcher interface {
	Patch(ctx context.Context, t Target, ops []Operation) (*unstructured.Unstructured, error)
}

// RemoteUpdateError is returned when the cluster rejects or never receives a patch
type RemoteUpdateError struct {
	Target Target
	Err    error
}

func (e *RemoteUpdateError) Error() string {
	return fmt.Sprintf("failed to update %s: %v", e.Target, e.Err)
}

func (e *RemoteUpdateError) Unwrap() error {
	return e.Err
}

// Submit synthesizes the patch for s and sends it in a single request. The
// returned edit is SaveSucceeded or SaveFailed and should be fed to Reduce.
// The ops are returned even on failure so callers can journal them.
func Submit(ctx context.Context, p Patcher, s State) (Edit, []Operation) {
	logger := ctxlog.FromContext(ctx).With("target", s.Target.String())

	if s.Snapshot == nil {
		return SaveFailed{Err: fmt.Errorf("no snapshot for %s", s.Target)}, nil
	}

	ops, err := Synthesize(s.Groups, s.Snapshot.Object, s.Target)
	if err != nil {
		logger.Error("patch synthesis failed", "error", err)
		return SaveFailed{Err: err}, nil
	}

	logger.Debug("submitting env patch", "ops", len(ops))
	obj, err := p.Patch(ctx, s.Target, ops)
	if err != nil {
		logger.Warn("env patch rejected", "error", err)
		return SaveFailed{Err: &RemoteUpdateError{Target: s.Target, Err: err}}, ops
	}

	logger.Info("env patch applied", "resourceVersion", obj.GetResourceVersion())
	return SaveSucceeded{Object: obj}, ops
}
