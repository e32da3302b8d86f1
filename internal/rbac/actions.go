package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tapcraft-io/whisker/internal/ctxlog"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// patchOp carries a value; an empty one is still sent
type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// removeOp has no value field at all
type removeOp struct {
	Op   string `json:"op"`
	Path string `json:"path"`
}

// Client saves binding forms and removes subjects
type Client struct {
	clientset kubernetes.Interface
}

// NewClient creates a binding client
func NewClient(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

// Save validates f and then creates the binding or replaces the edited subject
func (c *Client) Save(ctx context.Context, f *Form) error {
	if err := f.Validate(); err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx).With("kind", f.Kind, "name", f.Name, "namespace", f.Namespace)

	if f.Mode == FormCreate {
		var err error
		if f.Kind == KindClusterRoleBinding {
			_, err = c.clientset.RbacV1().ClusterRoleBindings().Create(ctx, f.ClusterRoleBinding(), metav1.CreateOptions{})
		} else {
			_, err = c.clientset.RbacV1().RoleBindings(f.Namespace).Create(ctx, f.RoleBinding(), metav1.CreateOptions{})
		}
		if err != nil {
			return fmt.Errorf("failed to create %s %s: %w", f.Kind, f.Name, err)
		}
		logger.Info("binding created")
		return nil
	}

	ops := []interface{}{patchOp{Op: "replace", Path: subjectPath(f.SubjectIndex), Value: f.Subject()}}
	if f.noSubjects {
		ops = []interface{}{patchOp{Op: "add", Path: "/subjects", Value: f.Subjects()}}
	}
	if err := c.patch(ctx, f.Kind, f.Namespace, f.Name, ops); err != nil {
		return fmt.Errorf("failed to update subject of %s %s: %w", f.Kind, f.Name, err)
	}
	logger.Info("binding subject replaced", "index", f.SubjectIndex)
	return nil
}

// DeleteSubject removes the subject of r. When it is the binding's only
// row the binding itself is deleted.
func (c *Client) DeleteSubject(ctx context.Context, r Row) error {
	b := r.Binding
	logger := ctxlog.FromContext(ctx).With("kind", b.Kind(), "name", b.Name, "namespace", b.Namespace)

	if r.DeletesBinding() {
		var err error
		if b.Kind() == KindClusterRoleBinding {
			err = c.clientset.RbacV1().ClusterRoleBindings().Delete(ctx, b.Name, metav1.DeleteOptions{})
		} else {
			err = c.clientset.RbacV1().RoleBindings(b.Namespace).Delete(ctx, b.Name, metav1.DeleteOptions{})
		}
		if err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", b.Kind(), b.Name, err)
		}
		logger.Info("binding deleted")
		return nil
	}

	if err := c.patch(ctx, b.Kind(), b.Namespace, b.Name, removal(r)); err != nil {
		return fmt.Errorf("failed to delete subject %s of %s %s: %w", r.Subject.Name, b.Kind(), b.Name, err)
	}
	logger.Info("binding subject removed", "subject", r.Subject.Name, "index", r.Index)
	return nil
}

// removal drops the subject of r, guarded by a test op that fails the
// patch if the subject list moved under us
func removal(r Row) []interface{} {
	return []interface{}{
		patchOp{Op: "test", Path: subjectPath(r.Index) + "/name", Value: r.Subject.Name},
		removeOp{Op: "remove", Path: subjectPath(r.Index)},
	}
}

func subjectPath(i int) string {
	return fmt.Sprintf("/subjects/%d", i)
}

func (c *Client) patch(ctx context.Context, kind, namespace, name string, ops []interface{}) error {
	data, err := json.Marshal(ops)
	if err != nil {
		return err
	}

	if kind == KindClusterRoleBinding {
		_, err = c.clientset.RbacV1().ClusterRoleBindings().Patch(ctx, name, types.JSONPatchType, data, metav1.PatchOptions{})
	} else {
		_, err = c.clientset.RbacV1().RoleBindings(namespace).Patch(ctx, name, types.JSONPatchType, data, metav1.PatchOptions{})
	}
	return err
}

// Bindings wraps role bindings and cluster role bindings
func Bindings(rbs []rbacv1.RoleBinding, crbs []rbacv1.ClusterRoleBinding) []Binding {
	result := make([]Binding, 0, len(rbs)+len(crbs))
	for _, rb := range rbs {
		result = append(result, FromRoleBinding(rb))
	}
	for _, crb := range crbs {
		result = append(result, FromClusterRoleBinding(crb))
	}
	return result
}
