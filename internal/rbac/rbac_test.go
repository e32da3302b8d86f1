package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func user(name string) rbacv1.Subject {
	return rbacv1.Subject{APIGroup: rbacv1.GroupName, Kind: rbacv1.UserKind, Name: name}
}

func roleBinding(ns, name, roleKind, role string, subjects ...rbacv1.Subject) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		RoleRef:    rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: roleKind, Name: role},
		Subjects:   subjects,
	}
}

func TestSplitRows(t *testing.T) {
	b := FromRoleBinding(*roleBinding("default", "devs", "ClusterRole", "edit", user("alice"), user("bob")))

	rows := SplitRows(b)
	if len(rows) != 2 {
		t.Fatalf("SplitRows() = %d rows, want 2", len(rows))
	}
	if rows[1].Index != 1 || rows[1].Subject.Name != "bob" {
		t.Errorf("second row = %+v", rows[1])
	}
	if rows[0].DeletesBinding() {
		t.Error("removing one of two subjects should not delete the binding")
	}

	empty := SplitRows(FromRoleBinding(*roleBinding("default", "empty", "Role", "reader")))
	if len(empty) != 1 {
		t.Fatalf("SplitRows(no subjects) = %d rows, want 1", len(empty))
	}
	if diff := cmp.Diff(NoSubject, empty[0].Subject); diff != "" {
		t.Errorf("placeholder subject mismatch (-want +got):\n%s", diff)
	}
	if !empty[0].Placeholder() || !empty[0].DeletesBinding() {
		t.Error("placeholder row should delete the whole binding")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		binding Binding
		want    Type
	}{
		{"namespaced", Binding{Namespace: "default", RoleRef: rbacv1.RoleRef{Name: "edit"}}, TypeNamespace},
		{"cluster", Binding{RoleRef: rbacv1.RoleRef{Name: "admin"}}, TypeCluster},
		{"system cluster", Binding{RoleRef: rbacv1.RoleRef{Name: "system:node"}}, TypeSystem},
		{"system namespaced", Binding{Namespace: "kube-system", RoleRef: rbacv1.RoleRef{Name: "system:controller"}}, TypeSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.binding); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRoleLink(t *testing.T) {
	b := Binding{Namespace: "default", RoleRef: rbacv1.RoleRef{Kind: "ClusterRole", Name: "view"}}
	if _, _, ns := b.RoleLink(); ns != "" {
		t.Errorf("cluster role link namespace = %q, want empty", ns)
	}

	b.RoleRef = rbacv1.RoleRef{Kind: "Role", Name: "reader"}
	if kind, name, ns := b.RoleLink(); kind != "Role" || name != "reader" || ns != "default" {
		t.Errorf("RoleLink() = %s %s %s", kind, name, ns)
	}
}

func TestFilter(t *testing.T) {
	rows := Rows([]Binding{
		FromRoleBinding(*roleBinding("default", "developers", "ClusterRole", "edit", user("alice"))),
		FromClusterRoleBinding(rbacv1.ClusterRoleBinding{
			ObjectMeta: metav1.ObjectMeta{Name: "ops"},
			RoleRef:    rbacv1.RoleRef{Kind: "ClusterRole", Name: "admin"},
			Subjects:   []rbacv1.Subject{user("carol")},
		}),
		FromClusterRoleBinding(rbacv1.ClusterRoleBinding{
			ObjectMeta: metav1.ObjectMeta{Name: "system:node"},
			RoleRef:    rbacv1.RoleRef{Kind: "ClusterRole", Name: "system:node"},
		}),
	})

	names := func(rows []Row) []string {
		var out []string
		for _, r := range rows {
			out = append(out, r.Binding.Name)
		}
		return out
	}

	if diff := cmp.Diff([]string{"ops", "developers"}, names(Filter(rows, DefaultTypes(), ""))); diff != "" {
		t.Errorf("default filter mismatch (-want +got):\n%s", diff)
	}

	system := map[Type]bool{TypeSystem: true}
	if diff := cmp.Diff([]string{"system:node"}, names(Filter(rows, system, ""))); diff != "" {
		t.Errorf("system filter mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"developers"}, names(Filter(rows, DefaultTypes(), "alice"))); diff != "" {
		t.Errorf("subject search mismatch (-want +got):\n%s", diff)
	}

	if got := Filter(rows, DefaultTypes(), "zzz"); len(got) != 0 {
		t.Errorf("expected no matches, got %v", names(got))
	}
}

func TestAssignableRoles(t *testing.T) {
	got := AssignableRoles([]string{"admin", "system:node", "view"})
	if diff := cmp.Diff([]string{"admin", "view"}, got); diff != "" {
		t.Errorf("AssignableRoles() mismatch (-want +got):\n%s", diff)
	}
}

func TestForm_Validate(t *testing.T) {
	complete := func() *Form {
		f := NewForm("default")
		f.Name = "devs"
		f.SetRole("ClusterRole", "edit")
		f.SetSubjectName("alice")
		return f
	}

	tests := []struct {
		name   string
		mutate func(f *Form)
		want   error
	}{
		{"complete", func(f *Form) {}, nil},
		{"missing name", func(f *Form) { f.Name = "" }, ErrIncomplete},
		{"missing role", func(f *Form) { f.SetRole("", "") }, ErrIncomplete},
		{"missing subject", func(f *Form) { f.SetSubjectName("") }, ErrIncomplete},
		{"role binding without namespace", func(f *Form) { f.Namespace = "" }, ErrIncomplete},
		{"cluster binding without namespace", func(f *Form) { f.SetKind(KindClusterRoleBinding) }, nil},
		{"service account without namespace", func(f *Form) { f.SetSubjectKind(rbacv1.ServiceAccountKind) }, ErrIncomplete},
		{"service account with namespace", func(f *Form) {
			f.SetSubjectKind(rbacv1.ServiceAccountKind)
			f.SetSubjectNamespace("default")
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := complete()
			tt.mutate(f)
			if err := f.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestForm_SubjectNormalization(t *testing.T) {
	f := NewForm("default")
	if diff := cmp.Diff(rbacv1.Subject{APIGroup: rbacv1.GroupName, Kind: rbacv1.UserKind}, f.Subject()); diff != "" {
		t.Errorf("default subject mismatch (-want +got):\n%s", diff)
	}

	f.SetSubjectName("builder")
	f.SetSubjectKind(rbacv1.ServiceAccountKind)
	f.SetSubjectNamespace("ci")
	want := rbacv1.Subject{Kind: rbacv1.ServiceAccountKind, Name: "builder", Namespace: "ci"}
	if diff := cmp.Diff(want, f.Subject()); diff != "" {
		t.Errorf("service account subject mismatch (-want +got):\n%s", diff)
	}

	f.SetSubjectKind(rbacv1.GroupKind)
	want = rbacv1.Subject{APIGroup: rbacv1.GroupName, Kind: rbacv1.GroupKind, Name: "builder"}
	if diff := cmp.Diff(want, f.Subject()); diff != "" {
		t.Errorf("group subject mismatch (-want +got):\n%s", diff)
	}
}

func TestForm_SetKindClearsNamespace(t *testing.T) {
	f := NewForm("default")
	f.SetRole("Role", "reader")
	f.SetKind(KindClusterRoleBinding)

	if f.Namespace != "" {
		t.Errorf("Namespace = %q, want empty", f.Namespace)
	}
	if f.RoleKind != "" {
		t.Errorf("a cluster role binding cannot reference a Role, got %s", f.RoleKind)
	}
}

func TestClient_SaveCreate(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := NewClient(cs)
	ctx := context.Background()

	f := NewForm("default")
	f.Name = "devs"
	f.SetRole("ClusterRole", "edit")
	f.SetSubjectName("alice")

	if err := c.Save(ctx, f); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := cs.RbacV1().RoleBindings("default").Get(ctx, "devs", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff([]rbacv1.Subject{user("alice")}, got.Subjects); diff != "" {
		t.Errorf("subjects mismatch (-want +got):\n%s", diff)
	}

	incomplete := NewForm("default")
	if err := c.Save(ctx, incomplete); !errors.Is(err, ErrIncomplete) {
		t.Errorf("Save(incomplete) = %v, want ErrIncomplete", err)
	}
}

func TestClient_SaveEditReplacesSubject(t *testing.T) {
	rb := roleBinding("default", "devs", "ClusterRole", "edit", user("alice"), user("bob"))
	cs := fake.NewSimpleClientset(rb)
	c := NewClient(cs)
	ctx := context.Background()

	f := EditForm(SplitRows(FromRoleBinding(*rb))[1])
	f.SetSubjectName("robert")
	if err := c.Save(ctx, f); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := cs.RbacV1().RoleBindings("default").Get(ctx, "devs", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff([]rbacv1.Subject{user("alice"), user("robert")}, got.Subjects); diff != "" {
		t.Errorf("subjects mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_DeleteSubject(t *testing.T) {
	rb := roleBinding("default", "devs", "ClusterRole", "edit", user("alice"), user("bob"))
	solo := roleBinding("default", "solo", "Role", "reader", user("carol"))
	cs := fake.NewSimpleClientset(rb, solo)
	c := NewClient(cs)
	ctx := context.Background()

	if err := c.DeleteSubject(ctx, SplitRows(FromRoleBinding(*rb))[0]); err != nil {
		t.Fatalf("DeleteSubject() error = %v", err)
	}
	got, err := cs.RbacV1().RoleBindings("default").Get(ctx, "devs", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff([]rbacv1.Subject{user("bob")}, got.Subjects); diff != "" {
		t.Errorf("subjects mismatch (-want +got):\n%s", diff)
	}

	if err := c.DeleteSubject(ctx, SplitRows(FromRoleBinding(*solo))[0]); err != nil {
		t.Fatalf("DeleteSubject(solo) error = %v", err)
	}
	if _, err := cs.RbacV1().RoleBindings("default").Get(ctx, "solo", metav1.GetOptions{}); !apierrors.IsNotFound(err) {
		t.Errorf("solo binding should be deleted, got err = %v", err)
	}
}

func TestClient_DeleteSubjectStaleIndex(t *testing.T) {
	rb := roleBinding("default", "devs", "ClusterRole", "edit", user("alice"), user("bob"))
	cs := fake.NewSimpleClientset(roleBinding("default", "devs", "ClusterRole", "edit", user("bob"), user("alice")))
	c := NewClient(cs)

	// the cached row still thinks alice is first
	if err := c.DeleteSubject(context.Background(), SplitRows(FromRoleBinding(*rb))[0]); err == nil {
		t.Fatal("expected the patch to fail when the subject moved")
	}
}

func TestRemoval_Encoding(t *testing.T) {
	rb := roleBinding("default", "devs", "ClusterRole", "edit", user("alice"), rbacv1.Subject{Kind: rbacv1.GroupKind})
	row := SplitRows(FromRoleBinding(*rb))[1]

	data, err := json.Marshal(removal(row))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `[{"op":"test","path":"/subjects/1/name","value":""},{"op":"remove","path":"/subjects/1"}]`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}
}
