package rbac

import (
	"errors"

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ErrIncomplete is returned by Validate when a required field is empty
var ErrIncomplete = errors.New("please complete all fields")

// FormMode says what saving a form does
type FormMode int

const (
	// FormCreate posts a new binding
	FormCreate FormMode = iota
	// FormEdit replaces one subject of an existing binding
	FormEdit
)

// Form holds the fields of the binding editor. Only the subject at
// SubjectIndex is editable; other subjects are carried along when a
// binding is duplicated.
type Form struct {
	Mode         FormMode
	Kind         string
	Name         string
	Namespace    string
	RoleKind     string
	RoleName     string
	SubjectIndex int

	subjects []rbacv1.Subject
	// the edited binding had no subjects list
	noSubjects bool
}

// NewForm returns a blank RoleBinding form for a User subject in namespace
func NewForm(namespace string) *Form {
	return &Form{
		Mode:      FormCreate,
		Kind:      KindRoleBinding,
		Namespace: namespace,
		subjects: []rbacv1.Subject{{
			APIGroup: rbacv1.GroupName,
			Kind:     rbacv1.UserKind,
		}},
	}
}

func formFrom(r Row, mode FormMode) *Form {
	b := r.Binding
	f := &Form{
		Mode:         mode,
		Kind:         b.Kind(),
		Name:         b.Name,
		Namespace:    b.Namespace,
		RoleKind:     b.RoleRef.Kind,
		RoleName:     b.RoleRef.Name,
		SubjectIndex: r.Index,
		subjects:     append([]rbacv1.Subject(nil), b.Subjects...),
	}
	if len(f.subjects) == 0 {
		f.subjects = []rbacv1.Subject{{APIGroup: rbacv1.GroupName, Kind: rbacv1.UserKind}}
		f.SubjectIndex = 0
		f.noSubjects = true
	}
	return f
}

// EditForm opens the subject of r for editing in place
func EditForm(r Row) *Form {
	return formFrom(r, FormEdit)
}

// DuplicateForm prefills a new binding from r. Kind and role are copied.
func DuplicateForm(r Row) *Form {
	return formFrom(r, FormCreate)
}

// Subject returns the editable subject
func (f *Form) Subject() rbacv1.Subject {
	if f.SubjectIndex < 0 || f.SubjectIndex >= len(f.subjects) {
		return rbacv1.Subject{}
	}
	return f.subjects[f.SubjectIndex]
}

// Subjects returns every subject the saved binding will carry
func (f *Form) Subjects() []rbacv1.Subject {
	return append([]rbacv1.Subject(nil), f.subjects...)
}

// SetKind switches between RoleBinding and ClusterRoleBinding. Cluster role
// bindings have no namespace.
func (f *Form) SetKind(kind string) {
	f.Kind = kind
	if kind == KindClusterRoleBinding {
		f.Namespace = ""
		if f.RoleKind == "Role" {
			f.RoleKind, f.RoleName = "", ""
		}
	}
}

// SetRole sets the bound role
func (f *Form) SetRole(kind, name string) {
	f.RoleKind, f.RoleName = kind, name
}

// SetSubjectKind changes the subject kind, keeping its name
func (f *Form) SetSubjectKind(kind string) {
	s := f.Subject()
	f.setSubject(kind, s.Name, s.Namespace)
}

// SetSubjectName changes the subject name
func (f *Form) SetSubjectName(name string) {
	s := f.Subject()
	f.setSubject(s.Kind, name, s.Namespace)
}

// SetSubjectNamespace changes the namespace of a ServiceAccount subject
func (f *Form) SetSubjectNamespace(namespace string) {
	s := f.Subject()
	f.setSubject(s.Kind, s.Name, namespace)
}

// setSubject normalizes the subject: service accounts carry a namespace and
// no API group, users and groups the reverse
func (f *Form) setSubject(kind, name, namespace string) {
	if f.SubjectIndex < 0 || f.SubjectIndex >= len(f.subjects) {
		return
	}
	if kind == rbacv1.ServiceAccountKind {
		f.subjects[f.SubjectIndex] = rbacv1.Subject{Kind: kind, Name: name, Namespace: namespace}
		return
	}
	f.subjects[f.SubjectIndex] = rbacv1.Subject{APIGroup: rbacv1.GroupName, Kind: kind, Name: name}
}

// Validate returns ErrIncomplete if a required field is missing
func (f *Form) Validate() error {
	s := f.Subject()
	switch {
	case f.Kind == "", f.Name == "", f.RoleKind == "", f.RoleName == "":
		return ErrIncomplete
	case s.Kind == "", s.Name == "":
		return ErrIncomplete
	case f.Kind == KindRoleBinding && f.Namespace == "":
		return ErrIncomplete
	case s.Kind == rbacv1.ServiceAccountKind && s.Namespace == "":
		return ErrIncomplete
	}
	return nil
}

func (f *Form) roleRef() rbacv1.RoleRef {
	return rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: f.RoleKind, Name: f.RoleName}
}

// RoleBinding renders the form as a RoleBinding
func (f *Form) RoleBinding() *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		TypeMeta:   metav1.TypeMeta{APIVersion: rbacv1.SchemeGroupVersion.String(), Kind: KindRoleBinding},
		ObjectMeta: metav1.ObjectMeta{Name: f.Name, Namespace: f.Namespace},
		RoleRef:    f.roleRef(),
		Subjects:   f.Subjects(),
	}
}

// ClusterRoleBinding renders the form as a ClusterRoleBinding
func (f *Form) ClusterRoleBinding() *rbacv1.ClusterRoleBinding {
	return &rbacv1.ClusterRoleBinding{
		TypeMeta:   metav1.TypeMeta{APIVersion: rbacv1.SchemeGroupVersion.String(), Kind: KindClusterRoleBinding},
		ObjectMeta: metav1.ObjectMeta{Name: f.Name},
		RoleRef:    f.roleRef(),
		Subjects:   f.Subjects(),
	}
}
