package k8s

import (
	"time"

	"github.com/tapcraft-io/whisker/internal/env"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/kubernetes/scheme"
)

// NewDemoClient returns a client backed by in-memory fakes seeded with a
// small cluster, so the console can be tried without a real API server.
// Env patches go to the dynamic fake; RBAC changes go to the typed fake.
func NewDemoClient() *Client {
	objects := demoObjects()

	clientset := fake.NewSimpleClientset(objects...)

	listKinds := map[schema.GroupVersionResource]string{
		env.BuildConfigsGVR:      "BuildConfigList",
		ClusterResourceQuotasGVR: "ClusterResourceQuotaList",
	}
	dynObjects := append(objects, demoBuildConfig(), demoClusterResourceQuota())
	// the fake registers the custom list kinds on the scheme it is given
	s := runtime.NewScheme()
	utilruntime.Must(scheme.AddToScheme(s))
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(s, listKinds, dynObjects...)

	return &Client{Clientset: clientset, Dynamic: dyn}
}

func demoObjects() []runtime.Object {
	oneHourAgo := metav1.NewTime(time.Now().Add(-1 * time.Hour))
	oneDayAgo := metav1.NewTime(time.Now().Add(-24 * time.Hour))
	replicas := int32(2)

	meta := func(ns, name string, created metav1.Time) metav1.ObjectMeta {
		return metav1.ObjectMeta{Name: name, Namespace: ns, CreationTimestamp: created}
	}
	podSpec := func(containers ...corev1.Container) corev1.PodTemplateSpec {
		return corev1.PodTemplateSpec{Spec: corev1.PodSpec{Containers: containers}}
	}

	api := corev1.Container{
		Name:  "api",
		Image: "ghcr.io/example/api:1.4.2",
		Env: []corev1.EnvVar{
			{Name: "LOG_LEVEL", Value: "info"},
			{Name: "DATABASE_URL", ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: "api-db"},
					Key:                  "url",
				},
			}},
			{Name: "POD_NAME", ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.name"},
			}},
		},
	}
	proxy := corev1.Container{Name: "proxy", Image: "envoyproxy/envoy:v1.31.0"}

	return []runtime.Object{
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "default", CreationTimestamp: oneDayAgo}},
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "production", CreationTimestamp: oneDayAgo}},
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "kube-system", CreationTimestamp: oneDayAgo}},

		&appsv1.Deployment{
			TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
			ObjectMeta: meta("default", "api", oneHourAgo),
			Spec:       appsv1.DeploymentSpec{Replicas: &replicas, Template: podSpec(api, proxy)},
			Status:     appsv1.DeploymentStatus{ReadyReplicas: 2},
		},
		&appsv1.StatefulSet{
			TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "StatefulSet"},
			ObjectMeta: meta("production", "postgres", oneDayAgo),
			Spec: appsv1.StatefulSetSpec{Replicas: &replicas, Template: podSpec(corev1.Container{
				Name:  "postgres",
				Image: "postgres:16",
				Env: []corev1.EnvVar{
					{Name: "PGDATA", Value: "/var/lib/postgresql/data/pgdata"},
					{Name: "POSTGRES_PASSWORD", ValueFrom: &corev1.EnvVarSource{
						SecretKeyRef: &corev1.SecretKeySelector{
							LocalObjectReference: corev1.LocalObjectReference{Name: "postgres"},
							Key:                  "password",
						},
					}},
				},
			})},
			Status: appsv1.StatefulSetStatus{ReadyReplicas: 2},
		},
		&appsv1.DaemonSet{
			TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "DaemonSet"},
			ObjectMeta: meta("kube-system", "node-exporter", oneDayAgo),
			Spec:       appsv1.DaemonSetSpec{Template: podSpec(corev1.Container{Name: "exporter", Image: "prom/node-exporter:v1.8.2"})},
			Status:     appsv1.DaemonSetStatus{NumberReady: 3, DesiredNumberScheduled: 3},
		},
		&batchv1.CronJob{
			TypeMeta:   metav1.TypeMeta{APIVersion: "batch/v1", Kind: "CronJob"},
			ObjectMeta: meta("default", "nightly-report", oneDayAgo),
			Spec: batchv1.CronJobSpec{
				Schedule: "0 2 * * *",
				JobTemplate: batchv1.JobTemplateSpec{Spec: batchv1.JobSpec{Template: podSpec(corev1.Container{
					Name:  "report",
					Image: "ghcr.io/example/report:latest",
					Env: []corev1.EnvVar{{Name: "REPORT_BUCKET", ValueFrom: &corev1.EnvVarSource{
						ConfigMapKeyRef: &corev1.ConfigMapKeySelector{
							LocalObjectReference: corev1.LocalObjectReference{Name: "report"},
							Key:                  "bucket",
						},
					}}},
				})}},
			},
		},
		&batchv1.Job{
			TypeMeta:   metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
			ObjectMeta: meta("default", "migrate-42", oneHourAgo),
			Spec: batchv1.JobSpec{Template: podSpec(corev1.Container{
				Name:  "migrate",
				Image: "ghcr.io/example/api:1.4.2",
				Env:   []corev1.EnvVar{{Name: "MIGRATE_TARGET", Value: "latest"}},
			})},
			Status: batchv1.JobStatus{Succeeded: 1},
		},

		&rbacv1.ClusterRole{ObjectMeta: metav1.ObjectMeta{Name: "admin"}},
		&rbacv1.ClusterRole{ObjectMeta: metav1.ObjectMeta{Name: "edit"}},
		&rbacv1.ClusterRole{ObjectMeta: metav1.ObjectMeta{Name: "view"}},
		&rbacv1.ClusterRole{ObjectMeta: metav1.ObjectMeta{Name: "system:node"}},
		&rbacv1.Role{ObjectMeta: meta("default", "config-reader", oneDayAgo)},
		&rbacv1.RoleBinding{
			ObjectMeta: meta("default", "developers", oneDayAgo),
			RoleRef:    rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "ClusterRole", Name: "edit"},
			Subjects: []rbacv1.Subject{
				{Kind: rbacv1.UserKind, APIGroup: rbacv1.GroupName, Name: "alice"},
				{Kind: rbacv1.GroupKind, APIGroup: rbacv1.GroupName, Name: "team-backend"},
			},
		},
		&rbacv1.RoleBinding{
			ObjectMeta: meta("default", "api-config", oneDayAgo),
			RoleRef:    rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "Role", Name: "config-reader"},
			Subjects: []rbacv1.Subject{
				{Kind: rbacv1.ServiceAccountKind, Name: "api", Namespace: "default"},
			},
		},
		&rbacv1.ClusterRoleBinding{
			ObjectMeta: metav1.ObjectMeta{Name: "ops-admins", CreationTimestamp: oneDayAgo},
			RoleRef:    rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "ClusterRole", Name: "admin"},
			Subjects: []rbacv1.Subject{
				{Kind: rbacv1.GroupKind, APIGroup: rbacv1.GroupName, Name: "ops"},
			},
		},
		&rbacv1.ClusterRoleBinding{
			ObjectMeta: metav1.ObjectMeta{Name: "system:node", CreationTimestamp: oneDayAgo},
			RoleRef:    rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "ClusterRole", Name: "system:node"},
		},

		&corev1.ResourceQuota{
			ObjectMeta: meta("production", "compute", oneDayAgo),
			Spec: corev1.ResourceQuotaSpec{Hard: corev1.ResourceList{
				corev1.ResourceRequestsCPU:    resource.MustParse("8"),
				corev1.ResourceRequestsMemory: resource.MustParse("16Gi"),
				corev1.ResourcePods:           resource.MustParse("20"),
			}},
			Status: corev1.ResourceQuotaStatus{
				Hard: corev1.ResourceList{
					corev1.ResourceRequestsCPU:    resource.MustParse("8"),
					corev1.ResourceRequestsMemory: resource.MustParse("16Gi"),
					corev1.ResourcePods:           resource.MustParse("20"),
				},
				Used: corev1.ResourceList{
					corev1.ResourceRequestsCPU:    resource.MustParse("2500m"),
					corev1.ResourceRequestsMemory: resource.MustParse("6Gi"),
					corev1.ResourcePods:           resource.MustParse("4"),
				},
			},
		},
	}
}

func demoBuildConfig() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "build.openshift.io/v1",
		"kind":       "BuildConfig",
		"metadata": map[string]interface{}{
			"name":      "api-build",
			"namespace": "default",
		},
		"spec": map[string]interface{}{
			"strategy": map[string]interface{}{
				"type": "Docker",
				"dockerStrategy": map[string]interface{}{
					"from": map[string]interface{}{"kind": "ImageStreamTag", "name": "golang:1.24"},
					"env": []interface{}{
						map[string]interface{}{"name": "CGO_ENABLED", "value": "0"},
					},
				},
			},
		},
	}}
}

func demoClusterResourceQuota() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "quota.openshift.io/v1",
		"kind":       "ClusterResourceQuota",
		"metadata": map[string]interface{}{
			"name": "team-backend",
		},
		"spec": map[string]interface{}{
			"quota": map[string]interface{}{
				"hard": map[string]interface{}{"pods": "50", "secrets": "100"},
			},
		},
		"status": map[string]interface{}{
			"total": map[string]interface{}{
				"hard": map[string]interface{}{"pods": "50", "secrets": "100"},
				"used": map[string]interface{}{"pods": "12", "secrets": "31"},
			},
		},
	}}
}
