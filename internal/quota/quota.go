// Package quota presents namespace and cluster-wide resource quotas side by side.
package quota

import (
	"fmt"
	"math"
	"sort"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// Type is namespace for ResourceQuotas and cluster for ClusterResourceQuotas
type Type string

const (
	TypeNamespace Type = "namespace"
	TypeCluster   Type = "cluster"
)

// AllNamespaces is shown in the namespace column of cluster-wide quotas
const AllNamespaces = "all"

// Quota is the listable part of either quota kind
type Quota struct {
	Name      string
	Namespace string
	Hard      corev1.ResourceList
	Used      corev1.ResourceList
}

// Type reports whether q is namespaced
func (q Quota) Type() Type {
	if q.Namespace != "" {
		return TypeNamespace
	}
	return TypeCluster
}

// Kind returns the API kind q was read from
func (q Quota) Kind() string {
	if q.Type() == TypeNamespace {
		return "ResourceQuota"
	}
	return "ClusterResourceQuota"
}

// NamespaceColumn returns the namespace, or "all" for cluster quotas
func (q Quota) NamespaceColumn() string {
	if q.Namespace == "" {
		return AllNamespaces
	}
	return q.Namespace
}

// FromResourceQuota reads a namespaced quota. Hard falls back to the spec
// when the status has not been populated yet.
func FromResourceQuota(rq corev1.ResourceQuota) Quota {
	hard := rq.Status.Hard
	if len(hard) == 0 {
		hard = rq.Spec.Hard
	}
	return Quota{
		Name:      rq.Name,
		Namespace: rq.Namespace,
		Hard:      hard.DeepCopy(),
		Used:      rq.Status.Used.DeepCopy(),
	}
}

// clusterResourceQuota mirrors the fields of quota.openshift.io/v1 we read
type clusterResourceQuota struct {
	Spec struct {
		Quota corev1.ResourceQuotaSpec `json:"quota"`
	} `json:"spec"`
	Status struct {
		Total corev1.ResourceQuotaStatus `json:"total"`
	} `json:"status"`
}

// FromClusterResourceQuota reads an OpenShift ClusterResourceQuota
func FromClusterResourceQuota(obj unstructured.Unstructured) (Quota, error) {
	var crq clusterResourceQuota
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &crq); err != nil {
		return Quota{}, fmt.Errorf("failed to read cluster resource quota %s: %w", obj.GetName(), err)
	}

	hard := crq.Status.Total.Hard
	if len(hard) == 0 {
		hard = crq.Spec.Quota.Hard
	}
	return Quota{
		Name: obj.GetName(),
		Hard: hard,
		Used: crq.Status.Total.Used,
	}, nil
}

// Collect reads both kinds into one list sorted by name then namespace.
// Cluster quotas that fail to parse are skipped and reported in errs.
func Collect(rqs []corev1.ResourceQuota, crqs []unstructured.Unstructured) (quotas []Quota, errs []error) {
	for _, rq := range rqs {
		quotas = append(quotas, FromResourceQuota(rq))
	}
	for _, obj := range crqs {
		q, err := FromClusterResourceQuota(obj)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		quotas = append(quotas, q)
	}

	sort.SliceStable(quotas, func(i, j int) bool {
		if quotas[i].Name != quotas[j].Name {
			return quotas[i].Name < quotas[j].Name
		}
		return quotas[i].Namespace < quotas[j].Namespace
	})
	return quotas, errs
}

// DefaultTypes returns the filter selection; cluster quotas are offered
// only when the cluster serves them
func DefaultTypes(clusterQuotas bool) map[Type]bool {
	types := map[Type]bool{TypeNamespace: true}
	if clusterQuotas {
		types[TypeCluster] = true
	}
	return types
}

// Filter keeps quotas whose type is selected
func Filter(quotas []Quota, types map[Type]bool) []Quota {
	result := make([]Quota, 0, len(quotas))
	for _, q := range quotas {
		if types[q.Type()] {
			result = append(result, q)
		}
	}
	return result
}

// Line is one resource of a quota summary
type Line struct {
	Resource corev1.ResourceName
	Used     string
	Hard     string
	// Percent is used/hard, or -1 when hard is zero
	Percent int
}

// Summary lists every limited resource with its usage, sorted by resource name
func Summary(q Quota) []Line {
	names := make([]string, 0, len(q.Hard))
	for name := range q.Hard {
		names = append(names, string(name))
	}
	sort.Strings(names)

	lines := make([]Line, 0, len(names))
	for _, n := range names {
		name := corev1.ResourceName(n)
		hard := q.Hard[name]
		used, ok := q.Used[name]
		if !ok {
			used = resource.Quantity{Format: hard.Format}
		}

		lines = append(lines, Line{
			Resource: name,
			Used:     used.String(),
			Hard:     hard.String(),
			Percent:  percent(used, hard),
		})
	}
	return lines
}

// exactMilli bounds the quantities whose milli-units times 100 fit in an int64
const exactMilli = math.MaxInt64 / 100 / 1000

func percent(used, hard resource.Quantity) int {
	if hard.IsZero() {
		return -1
	}
	u, h := used.AsApproximateFloat64(), hard.AsApproximateFloat64()
	if math.Abs(u) < exactMilli && math.Abs(h) < exactMilli {
		return int(used.MilliValue() * 100 / hard.MilliValue())
	}
	return int(u * 100 / h)
}
