package k8s

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tapcraft-io/whisker/internal/ctxlog"
	"github.com/tapcraft-io/whisker/internal/env"
	"github.com/tapcraft-io/whisker/pkg/types"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
)

// ClusterResourceQuotasGVR is served only on OpenShift clusters
var ClusterResourceQuotasGVR = schema.GroupVersionResource{Group: "quota.openshift.io", Version: "v1", Resource: "clusterresourcequotas"}

// ResourceCache caches the objects the console lists
type ResourceCache struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface

	namespaces          []corev1.Namespace
	deployments         map[string][]appsv1.Deployment
	statefulsets        map[string][]appsv1.StatefulSet
	daemonsets          map[string][]appsv1.DaemonSet
	cronjobs            map[string][]batchv1.CronJob
	jobs                map[string][]batchv1.Job
	pods                map[string][]corev1.Pod
	roles               map[string][]rbacv1.Role
	roleBindings        map[string][]rbacv1.RoleBinding
	clusterRoles        []rbacv1.ClusterRole
	clusterRoleBindings []rbacv1.ClusterRoleBinding
	resourceQuotas      map[string][]corev1.ResourceQuota

	// OpenShift resources, empty when the cluster does not serve them
	buildConfigs          map[string][]unstructured.Unstructured
	clusterResourceQuotas []unstructured.Unstructured

	lastRefresh time.Time
	refreshing  atomic.Bool
	mu          sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewResourceCache creates a new resource cache. dyn may be nil, in which
// case OpenShift resources are never listed.
func NewResourceCache(clientset kubernetes.Interface, dyn dynamic.Interface) *ResourceCache {
	return &ResourceCache{
		clientset:      clientset,
		dynamic:        dyn,
		deployments:    make(map[string][]appsv1.Deployment),
		statefulsets:   make(map[string][]appsv1.StatefulSet),
		daemonsets:     make(map[string][]appsv1.DaemonSet),
		cronjobs:       make(map[string][]batchv1.CronJob),
		jobs:           make(map[string][]batchv1.Job),
		pods:           make(map[string][]corev1.Pod),
		roles:          make(map[string][]rbacv1.Role),
		roleBindings:   make(map[string][]rbacv1.RoleBinding),
		resourceQuotas: make(map[string][]corev1.ResourceQuota),
		buildConfigs:   make(map[string][]unstructured.Unstructured),
	}
}

// Start performs the initial refresh and starts watchers
func (rc *ResourceCache) Start(ctx context.Context) error {
	rc.ctx, rc.cancel = context.WithCancel(ctx)

	if err := rc.Refresh(); err != nil {
		return err
	}

	core := rc.clientset.CoreV1()
	apps := rc.clientset.AppsV1()
	batch := rc.clientset.BatchV1()
	rbac := rc.clientset.RbacV1()
	all := metav1.NamespaceAll

	go rc.watchLoop("namespaces", core.Namespaces().Watch, rc.handleNamespace)
	go rc.watchLoop("deployments", apps.Deployments(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*appsv1.Deployment); ok {
			rc.deployments[o.Namespace] = applyEvent(rc.deployments[o.Namespace], ev.Type, *o)
		}
	})
	go rc.watchLoop("statefulsets", apps.StatefulSets(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*appsv1.StatefulSet); ok {
			rc.statefulsets[o.Namespace] = applyEvent(rc.statefulsets[o.Namespace], ev.Type, *o)
		}
	})
	go rc.watchLoop("daemonsets", apps.DaemonSets(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*appsv1.DaemonSet); ok {
			rc.daemonsets[o.Namespace] = applyEvent(rc.daemonsets[o.Namespace], ev.Type, *o)
		}
	})
	go rc.watchLoop("cronjobs", batch.CronJobs(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*batchv1.CronJob); ok {
			rc.cronjobs[o.Namespace] = applyEvent(rc.cronjobs[o.Namespace], ev.Type, *o)
		}
	})
	go rc.watchLoop("jobs", batch.Jobs(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*batchv1.Job); ok {
			rc.jobs[o.Namespace] = applyEvent(rc.jobs[o.Namespace], ev.Type, *o)
		}
	})
	go rc.watchLoop("pods", core.Pods(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*corev1.Pod); ok {
			rc.pods[o.Namespace] = applyEvent(rc.pods[o.Namespace], ev.Type, *o)
		}
	})
	go rc.watchLoop("roles", rbac.Roles(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*rbacv1.Role); ok {
			rc.roles[o.Namespace] = applyEvent(rc.roles[o.Namespace], ev.Type, *o)
		}
	})
	go rc.watchLoop("rolebindings", rbac.RoleBindings(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*rbacv1.RoleBinding); ok {
			rc.roleBindings[o.Namespace] = applyEvent(rc.roleBindings[o.Namespace], ev.Type, *o)
		}
	})
	go rc.watchLoop("clusterroles", rbac.ClusterRoles().Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*rbacv1.ClusterRole); ok {
			rc.clusterRoles = applyEvent(rc.clusterRoles, ev.Type, *o)
		}
	})
	go rc.watchLoop("clusterrolebindings", rbac.ClusterRoleBindings().Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*rbacv1.ClusterRoleBinding); ok {
			rc.clusterRoleBindings = applyEvent(rc.clusterRoleBindings, ev.Type, *o)
		}
	})
	go rc.watchLoop("resourcequotas", core.ResourceQuotas(all).Watch, func(ev watch.Event) {
		if o, ok := ev.Object.(*corev1.ResourceQuota); ok {
			rc.resourceQuotas[o.Namespace] = applyEvent(rc.resourceQuotas[o.Namespace], ev.Type, *o)
		}
	})

	// Periodic full refresh catches missed events and picks up the dynamic resources
	go rc.backgroundRefresh(5 * time.Minute)

	return nil
}

// Stop stops watchers and the background refresh
func (rc *ResourceCache) Stop() {
	if rc.cancel != nil {
		rc.cancel()
	}
}

// watchLoop keeps a watch open until the cache is stopped, restarting it
// whenever the server closes the stream
func (rc *ResourceCache) watchLoop(name string, start func(context.Context, metav1.ListOptions) (watch.Interface, error), handle func(watch.Event)) {
	logger := ctxlog.FromContext(rc.ctx).With("watch", name)

	for {
		select {
		case <-rc.ctx.Done():
			return
		default:
		}

		watcher, err := start(rc.ctx, metav1.ListOptions{})
		if err != nil {
			logger.Debug("watch failed, retrying", "error", err)
			if !rc.sleep(5 * time.Second) {
				return
			}
			continue
		}

		for event := range watcher.ResultChan() {
			rc.mu.Lock()
			handle(event)
			rc.mu.Unlock()
		}

		if !rc.sleep(time.Second) {
			return
		}
	}
}

// sleep waits for d and reports false if the cache was stopped meanwhile
func (rc *ResourceCache) sleep(d time.Duration) bool {
	select {
	case <-rc.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (rc *ResourceCache) handleNamespace(ev watch.Event) {
	ns, ok := ev.Object.(*corev1.Namespace)
	if !ok {
		return
	}

	rc.namespaces = applyEvent(rc.namespaces, ev.Type, *ns)
	if ev.Type == watch.Deleted {
		// Clean up associated resources
		delete(rc.deployments, ns.Name)
		delete(rc.statefulsets, ns.Name)
		delete(rc.daemonsets, ns.Name)
		delete(rc.cronjobs, ns.Name)
		delete(rc.jobs, ns.Name)
		delete(rc.pods, ns.Name)
		delete(rc.roles, ns.Name)
		delete(rc.roleBindings, ns.Name)
		delete(rc.resourceQuotas, ns.Name)
		delete(rc.buildConfigs, ns.Name)
	}
}

// applyEvent upserts or removes obj in items by name
func applyEvent[T any, PT interface {
	*T
	metav1.Object
}](items []T, eventType watch.EventType, obj T) []T {
	name := PT(&obj).GetName()
	idx := -1
	for i := range items {
		if PT(&items[i]).GetName() == name {
			idx = i
			break
		}
	}

	switch eventType {
	case watch.Added, watch.Modified:
		if idx >= 0 {
			items[idx] = obj
		} else {
			items = append(items, obj)
		}
	case watch.Deleted:
		if idx >= 0 {
			items = append(items[:idx], items[idx+1:]...)
		}
	}
	return items
}

// byNamespace buckets items by their namespace
func byNamespace[T any, PT interface {
	*T
	metav1.Object
}](items []T) map[string][]T {
	out := make(map[string][]T)
	for i := range items {
		ns := PT(&items[i]).GetNamespace()
		out[ns] = append(out[ns], items[i])
	}
	return out
}

// Refresh relists every cached kind
func (rc *ResourceCache) Refresh() error {
	if !rc.refreshing.CompareAndSwap(false, true) {
		// Already refreshing
		return nil
	}
	defer rc.refreshing.Store(false)

	ctx := context.Background()
	if rc.ctx != nil {
		ctx = rc.ctx
	}
	logger := ctxlog.FromContext(ctx)
	all := metav1.NamespaceAll
	opts := metav1.ListOptions{}

	nsList, err := rc.clientset.CoreV1().Namespaces().List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list namespaces: %w", err)
	}

	// Individual kinds may be forbidden for the current user; keep what we can read
	skip := func(kind string, err error) {
		logger.Debug("list failed", "kind", kind, "error", err)
	}

	deployments, depErr := rc.clientset.AppsV1().Deployments(all).List(ctx, opts)
	statefulsets, stsErr := rc.clientset.AppsV1().StatefulSets(all).List(ctx, opts)
	daemonsets, dsErr := rc.clientset.AppsV1().DaemonSets(all).List(ctx, opts)
	cronjobs, cjErr := rc.clientset.BatchV1().CronJobs(all).List(ctx, opts)
	jobs, jobErr := rc.clientset.BatchV1().Jobs(all).List(ctx, opts)
	pods, podErr := rc.clientset.CoreV1().Pods(all).List(ctx, opts)
	roles, roleErr := rc.clientset.RbacV1().Roles(all).List(ctx, opts)
	roleBindings, rbErr := rc.clientset.RbacV1().RoleBindings(all).List(ctx, opts)
	clusterRoles, crErr := rc.clientset.RbacV1().ClusterRoles().List(ctx, opts)
	clusterRoleBindings, crbErr := rc.clientset.RbacV1().ClusterRoleBindings().List(ctx, opts)
	quotas, rqErr := rc.clientset.CoreV1().ResourceQuotas(all).List(ctx, opts)
	buildConfigs, bcErr := rc.listDynamic(ctx, env.BuildConfigsGVR)
	crqs, crqErr := rc.listDynamic(ctx, ClusterResourceQuotasGVR)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.namespaces = nsList.Items
	if depErr == nil {
		rc.deployments = byNamespace(deployments.Items)
	} else {
		skip("deployments", depErr)
	}
	if stsErr == nil {
		rc.statefulsets = byNamespace(statefulsets.Items)
	} else {
		skip("statefulsets", stsErr)
	}
	if dsErr == nil {
		rc.daemonsets = byNamespace(daemonsets.Items)
	} else {
		skip("daemonsets", dsErr)
	}
	if cjErr == nil {
		rc.cronjobs = byNamespace(cronjobs.Items)
	} else {
		skip("cronjobs", cjErr)
	}
	if jobErr == nil {
		rc.jobs = byNamespace(jobs.Items)
	} else {
		skip("jobs", jobErr)
	}
	if podErr == nil {
		rc.pods = byNamespace(pods.Items)
	} else {
		skip("pods", podErr)
	}
	if roleErr == nil {
		rc.roles = byNamespace(roles.Items)
	} else {
		skip("roles", roleErr)
	}
	if rbErr == nil {
		rc.roleBindings = byNamespace(roleBindings.Items)
	} else {
		skip("rolebindings", rbErr)
	}
	if crErr == nil {
		rc.clusterRoles = clusterRoles.Items
	} else {
		skip("clusterroles", crErr)
	}
	if crbErr == nil {
		rc.clusterRoleBindings = clusterRoleBindings.Items
	} else {
		skip("clusterrolebindings", crbErr)
	}
	if rqErr == nil {
		rc.resourceQuotas = byNamespace(quotas.Items)
	} else {
		skip("resourcequotas", rqErr)
	}
	if bcErr == nil {
		rc.buildConfigs = byNamespace(buildConfigs)
	}
	if crqErr == nil {
		rc.clusterResourceQuotas = crqs
	}

	rc.lastRefresh = time.Now()
	return nil
}

func (rc *ResourceCache) listDynamic(ctx context.Context, gvr schema.GroupVersionResource) ([]unstructured.Unstructured, error) {
	if rc.dynamic == nil {
		return nil, fmt.Errorf("no dynamic client")
	}
	list, err := rc.dynamic.Resource(gvr).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// backgroundRefresh periodically refreshes the cache
func (rc *ResourceCache) backgroundRefresh(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			if err := rc.Refresh(); err != nil {
				ctxlog.FromContext(rc.ctx).Warn("cache refresh failed", "error", err)
			}
		}
	}
}

// IsReady returns true if the cache has been initialized
func (rc *ResourceCache) IsReady() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return !rc.lastRefresh.IsZero()
}

// GetNamespaces returns all cached namespace names, sorted
func (rc *ResourceCache) GetNamespaces() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	names := make([]string, len(rc.namespaces))
	for i, ns := range rc.namespaces {
		names[i] = ns.Name
	}
	sort.Strings(names)
	return names
}

// inNamespace copies the items of namespace, or of every namespace when namespace is ""
func inNamespace[T any](m map[string][]T, namespace string) []T {
	if namespace != "" {
		result := make([]T, len(m[namespace]))
		copy(result, m[namespace])
		return result
	}

	keys := make([]string, 0, len(m))
	for ns := range m {
		keys = append(keys, ns)
	}
	sort.Strings(keys)

	var result []T
	for _, ns := range keys {
		result = append(result, m[ns]...)
	}
	return result
}

// GetRoleBindings returns role bindings in a namespace ("" for all)
func (rc *ResourceCache) GetRoleBindings(namespace string) []rbacv1.RoleBinding {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return inNamespace(rc.roleBindings, namespace)
}

// GetClusterRoleBindings returns all cluster role bindings
func (rc *ResourceCache) GetClusterRoleBindings() []rbacv1.ClusterRoleBinding {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	result := make([]rbacv1.ClusterRoleBinding, len(rc.clusterRoleBindings))
	copy(result, rc.clusterRoleBindings)
	return result
}

// GetRoleNames returns the names of roles in namespace
func (rc *ResourceCache) GetRoleNames(namespace string) []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	names := make([]string, 0, len(rc.roles[namespace]))
	for _, r := range rc.roles[namespace] {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// GetClusterRoleNames returns the names of all cluster roles
func (rc *ResourceCache) GetClusterRoleNames() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	names := make([]string, 0, len(rc.clusterRoles))
	for _, r := range rc.clusterRoles {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// GetResourceQuotas returns resource quotas in a namespace ("" for all)
func (rc *ResourceCache) GetResourceQuotas(namespace string) []corev1.ResourceQuota {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return inNamespace(rc.resourceQuotas, namespace)
}

// GetClusterResourceQuotas returns cluster-wide quotas when the cluster serves them
func (rc *ResourceCache) GetClusterResourceQuotas() []unstructured.Unstructured {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	result := make([]unstructured.Unstructured, len(rc.clusterResourceQuotas))
	copy(result, rc.clusterResourceQuotas)
	return result
}

// HasClusterResourceQuotas reports whether cluster-wide quotas were listed
func (rc *ResourceCache) HasClusterResourceQuotas() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.clusterResourceQuotas != nil
}

// GetWorkloads returns list items for everything whose env can be shown,
// sorted by kind then name. Item metadata carries kind, namespace and name.
func (rc *ResourceCache) GetWorkloads(namespace string) []types.ListItem {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	var items []types.ListItem
	for _, d := range inNamespace(rc.deployments, namespace) {
		replicas := int32(1)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		status := fmt.Sprintf("Ready: %d/%d", d.Status.ReadyReplicas, replicas)
		items = append(items, workloadItem("Deployment", &d.ObjectMeta, status, len(d.Spec.Template.Spec.Containers)))
	}
	for _, s := range inNamespace(rc.statefulsets, namespace) {
		replicas := int32(1)
		if s.Spec.Replicas != nil {
			replicas = *s.Spec.Replicas
		}
		status := fmt.Sprintf("Ready: %d/%d", s.Status.ReadyReplicas, replicas)
		items = append(items, workloadItem("StatefulSet", &s.ObjectMeta, status, len(s.Spec.Template.Spec.Containers)))
	}
	for _, d := range inNamespace(rc.daemonsets, namespace) {
		status := fmt.Sprintf("Ready: %d/%d", d.Status.NumberReady, d.Status.DesiredNumberScheduled)
		items = append(items, workloadItem("DaemonSet", &d.ObjectMeta, status, len(d.Spec.Template.Spec.Containers)))
	}
	for _, c := range inNamespace(rc.cronjobs, namespace) {
		status := "Schedule: " + c.Spec.Schedule
		items = append(items, workloadItem("CronJob", &c.ObjectMeta, status, len(c.Spec.JobTemplate.Spec.Template.Spec.Containers)))
	}
	for _, j := range inNamespace(rc.jobs, namespace) {
		status := fmt.Sprintf("Succeeded: %d", j.Status.Succeeded)
		items = append(items, workloadItem("Job", &j.ObjectMeta, status, len(j.Spec.Template.Spec.Containers)))
	}
	for _, p := range inNamespace(rc.pods, namespace) {
		status := "Status: " + string(p.Status.Phase)
		items = append(items, workloadItem("Pod", &p.ObjectMeta, status, len(p.Spec.Containers)))
	}
	for _, b := range inNamespace(rc.buildConfigs, namespace) {
		strategy, _, _ := unstructured.NestedString(b.Object, "spec", "strategy", "type")
		items = append(items, types.ListItem{
			Title:       b.GetName(),
			Description: fmt.Sprintf("BuildConfig | Strategy: %s | NS: %s", strategy, b.GetNamespace()),
			Metadata: map[string]string{
				"kind":      "BuildConfig",
				"namespace": b.GetNamespace(),
				"name":      b.GetName(),
			},
		})
	}

	return items
}

func workloadItem(kind string, meta *metav1.ObjectMeta, status string, containers int) types.ListItem {
	age := time.Since(meta.CreationTimestamp.Time).Round(time.Second).String()
	return types.ListItem{
		Title:       meta.Name,
		Description: fmt.Sprintf("%s | %s | Containers: %d | Age: %s | NS: %s", kind, status, containers, age, meta.Namespace),
		Metadata: map[string]string{
			"kind":      kind,
			"namespace": meta.Namespace,
			"name":      meta.Name,
			"age":       age,
		},
	}
}
