package env

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Shape says how env data is laid out under a target's path
type Shape int

const (
	// ShapeList is a sequence of containers, each holding its own env list
	ShapeList Shape = iota
	// ShapeObject is a single holder with one env list (build strategies)
	ShapeObject
)

// Target addresses the env data of one object in the cluster
type Target struct {
	Resource  schema.GroupVersionResource
	Kind      string
	Namespace string
	Name      string
	// Path is a JSON pointer to the container list or the single env holder
	Path     string
	Shape    Shape
	ReadOnly bool
}

// String returns kind/name, qualified by namespace when set
func (t Target) String() string {
	if t.Namespace == "" {
		return fmt.Sprintf("%s/%s", strings.ToLower(t.Kind), t.Name)
	}
	return fmt.Sprintf("%s/%s -n %s", strings.ToLower(t.Kind), t.Name, t.Namespace)
}

var (
	deploymentsGVR  = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}
	statefulsetsGVR = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "statefulsets"}
	daemonsetsGVR   = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "daemonsets"}
	cronjobsGVR     = schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: "cronjobs"}
	jobsGVR         = schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: "jobs"}
	podsGVR         = schema.GroupVersionResource{Version: "v1", Resource: "pods"}

	// BuildConfigsGVR is served only on OpenShift clusters
	BuildConfigsGVR = schema.GroupVersionResource{Group: "build.openshift.io", Version: "v1", Resource: "buildconfigs"}
)

const podTemplateContainers = "/spec/template/spec/containers"

// TargetFor returns the env target of a workload. Kind accepts the usual
// kubectl spellings (deploy, sts, ds, cj, po).
func TargetFor(kind, namespace, name string) (Target, error) {
	t := Target{Namespace: namespace, Name: name, Shape: ShapeList, Path: podTemplateContainers}

	switch strings.ToLower(kind) {
	case "deployment", "deployments", "deploy":
		t.Kind, t.Resource = "Deployment", deploymentsGVR
	case "statefulset", "statefulsets", "sts":
		t.Kind, t.Resource = "StatefulSet", statefulsetsGVR
	case "daemonset", "daemonsets", "ds":
		t.Kind, t.Resource = "DaemonSet", daemonsetsGVR
	case "cronjob", "cronjobs", "cj":
		t.Kind, t.Resource = "CronJob", cronjobsGVR
		t.Path = "/spec/jobTemplate/spec/template/spec/containers"
	case "job", "jobs":
		// Job pod templates are immutable once created
		t.Kind, t.Resource, t.ReadOnly = "Job", jobsGVR, true
	case "pod", "pods", "po":
		t.Kind, t.Resource, t.ReadOnly = "Pod", podsGVR, true
		t.Path = "/spec/containers"
	default:
		return Target{}, fmt.Errorf("unsupported kind for env editing: %s", kind)
	}

	return t, nil
}

// BuildConfigTarget returns the single-holder target of a BuildConfig, picking
// the strategy block named by spec.strategy.type.
func BuildConfigTarget(obj *unstructured.Unstructured) (Target, error) {
	strategy, _, err := unstructured.NestedString(obj.Object, "spec", "strategy", "type")
	if err != nil {
		return Target{}, fmt.Errorf("failed to read build strategy: %w", err)
	}

	var field string
	switch strategy {
	case "Source":
		field = "sourceStrategy"
	case "Docker":
		field = "dockerStrategy"
	case "Custom":
		field = "customStrategy"
	default:
		return Target{}, fmt.Errorf("build strategy %q has no environment", strategy)
	}

	return Target{
		Resource:  BuildConfigsGVR,
		Kind:      "BuildConfig",
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
		Path:      "/spec/strategy/" + field,
		Shape:     ShapeObject,
	}, nil
}
