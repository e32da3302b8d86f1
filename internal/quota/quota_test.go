package quota

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func resourceQuota(ns, name string, hard, used corev1.ResourceList) corev1.ResourceQuota {
	return corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Spec:       corev1.ResourceQuotaSpec{Hard: hard},
		Status:     corev1.ResourceQuotaStatus{Hard: hard, Used: used},
	}
}

func clusterQuota(name string) unstructured.Unstructured {
	return unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "quota.openshift.io/v1",
		"kind":       "ClusterResourceQuota",
		"metadata":   map[string]interface{}{"name": name},
		"spec": map[string]interface{}{
			"quota": map[string]interface{}{
				"hard": map[string]interface{}{"pods": "10"},
			},
		},
		"status": map[string]interface{}{
			"total": map[string]interface{}{
				"used": map[string]interface{}{"pods": "4"},
			},
		},
	}}
}

func TestCollect(t *testing.T) {
	rqs := []corev1.ResourceQuota{
		resourceQuota("prod", "compute", nil, nil),
		resourceQuota("dev", "compute", nil, nil),
	}

	quotas, errs := Collect(rqs, []unstructured.Unstructured{clusterQuota("backend")})
	if len(errs) != 0 {
		t.Fatalf("Collect() errors = %v", errs)
	}

	type row struct{ Name, Namespace, Kind string }
	var got []row
	for _, q := range quotas {
		got = append(got, row{q.Name, q.NamespaceColumn(), q.Kind()})
	}

	want := []row{
		{"backend", "all", "ClusterResourceQuota"},
		{"compute", "dev", "ResourceQuota"},
		{"compute", "prod", "ResourceQuota"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Collect() mismatch (-want +got):\n%s", diff)
	}
}

func TestFromClusterResourceQuota_FallsBackToSpec(t *testing.T) {
	q, err := FromClusterResourceQuota(clusterQuota("backend"))
	if err != nil {
		t.Fatalf("FromClusterResourceQuota() error = %v", err)
	}

	if q.Type() != TypeCluster {
		t.Errorf("Type() = %s, want cluster", q.Type())
	}
	hard := q.Hard[corev1.ResourcePods]
	if hard.Value() != 10 {
		t.Errorf("hard pods = %s, want 10", hard.String())
	}
}

func TestFilter(t *testing.T) {
	quotas, _ := Collect(
		[]corev1.ResourceQuota{resourceQuota("prod", "compute", nil, nil)},
		[]unstructured.Unstructured{clusterQuota("backend")},
	)

	tests := []struct {
		name  string
		types map[Type]bool
		want  int
	}{
		{"namespace only", DefaultTypes(false), 1},
		{"both", DefaultTypes(true), 2},
		{"cluster only", map[Type]bool{TypeCluster: true}, 1},
		{"none", map[Type]bool{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filter(quotas, tt.types); len(got) != tt.want {
				t.Errorf("Filter() = %d quotas, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	q := FromResourceQuota(resourceQuota("prod", "compute",
		corev1.ResourceList{
			corev1.ResourceRequestsCPU: resource.MustParse("4"),
			corev1.ResourcePods:        resource.MustParse("10"),
			corev1.ResourceSecrets:     resource.MustParse("0"),
		},
		corev1.ResourceList{
			corev1.ResourceRequestsCPU: resource.MustParse("1"),
			corev1.ResourcePods:        resource.MustParse("5"),
		},
	))

	want := []Line{
		{Resource: corev1.ResourcePods, Used: "5", Hard: "10", Percent: 50},
		{Resource: corev1.ResourceRequestsCPU, Used: "1", Hard: "4", Percent: 25},
		{Resource: corev1.ResourceSecrets, Used: "0", Hard: "0", Percent: -1},
	}
	if diff := cmp.Diff(want, Summary(q)); diff != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", diff)
	}
}

func TestSummary_LargeQuantities(t *testing.T) {
	q := FromResourceQuota(resourceQuota("archive", "storage",
		corev1.ResourceList{
			corev1.ResourceRequestsStorage: resource.MustParse("8Pi"),
			corev1.ResourceLimitsMemory:    resource.MustParse("4Ei"),
		},
		corev1.ResourceList{
			corev1.ResourceRequestsStorage: resource.MustParse("6Pi"),
			corev1.ResourceLimitsMemory:    resource.MustParse("1Ei"),
		},
	))

	got := map[corev1.ResourceName]int{}
	for _, line := range Summary(q) {
		got[line.Resource] = line.Percent
	}
	want := map[corev1.ResourceName]int{
		corev1.ResourceRequestsStorage: 75,
		corev1.ResourceLimitsMemory:    25,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summary() percent mismatch (-want +got):\n%s", diff)
	}
}
