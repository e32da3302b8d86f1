package exec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tapcraft-io/whisker/internal/env"
)

type fakeRunner struct {
	args   []string
	result *ExecuteResult
}

func (f *fakeRunner) Execute(_ context.Context, args []string) *ExecuteResult {
	f.args = args
	return f.result
}

func literal(s string) *string { return &s }

func sampleOps() []env.Operation {
	return []env.Operation{{
		Op:    env.OpReplace,
		Path:  "/spec/template/spec/containers/0/env",
		Value: []env.EnvVar{{Name: "GREETING", Value: literal("it's me")}},
	}}
}

func deploymentTarget(t *testing.T) env.Target {
	t.Helper()
	target, err := env.TargetFor("deployment", "default", "api")
	if err != nil {
		t.Fatalf("TargetFor() error = %v", err)
	}
	return target
}

func TestPatchArgs(t *testing.T) {
	args, err := PatchArgs(deploymentTarget(t), sampleOps())
	if err != nil {
		t.Fatalf("PatchArgs() error = %v", err)
	}

	want := []string{
		"patch", "deployments.apps", "api", "-n", "default", "--type=json", "-p",
		`[{"op":"replace","path":"/spec/template/spec/containers/0/env","value":[{"name":"GREETING","value":"it's me"}]}]`,
	}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("PatchArgs() mismatch (-want +got):\n%s", diff)
	}
}

func TestPatchCommand(t *testing.T) {
	got := PatchCommand(deploymentTarget(t), sampleOps())

	if !strings.HasPrefix(got, "kubectl patch deployments.apps api -n default --type=json -p '") {
		t.Errorf("PatchCommand() = %s", got)
	}
	if !strings.Contains(got, `it'\''s me`) {
		t.Errorf("single quote not escaped: %s", got)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"api", "api"},
		{"--type=json", "--type=json"},
		{"", "''"},
		{"a b", "'a b'"},
		{"it's", `'it'\''s'`},
	}

	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestKubectlPatcher_Patch(t *testing.T) {
	runner := &fakeRunner{result: &ExecuteResult{
		Stdout: `{"apiVersion":"apps/v1","kind":"Deployment","metadata":{"name":"api","namespace":"default","resourceVersion":"42"}}`,
	}}
	p := NewKubectlPatcher(runner, "staging")

	obj, err := p.Patch(context.Background(), deploymentTarget(t), sampleOps())
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if obj.GetResourceVersion() != "42" {
		t.Errorf("resourceVersion = %s, want 42", obj.GetResourceVersion())
	}

	tail := runner.args[len(runner.args)-4:]
	if diff := cmp.Diff([]string{"--context", "staging", "-o", "json"}, tail); diff != "" {
		t.Errorf("trailing args mismatch (-want +got):\n%s", diff)
	}
}

func TestKubectlPatcher_NoContext(t *testing.T) {
	runner := &fakeRunner{result: &ExecuteResult{
		Stdout: `{"apiVersion":"apps/v1","kind":"Deployment","metadata":{"name":"api","namespace":"default"}}`,
	}}
	p := NewKubectlPatcher(runner, "")

	if _, err := p.Patch(context.Background(), deploymentTarget(t), sampleOps()); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	for _, a := range runner.args {
		if a == "--context" {
			t.Fatalf("args carry --context without a context: %v", runner.args)
		}
	}
}

func TestKubectlPatcher_PatchFailure(t *testing.T) {
	exitErr := errors.New("exit status 1")
	runner := &fakeRunner{result: &ExecuteResult{
		Stderr:   "Error from server (Forbidden): deployments.apps \"api\" is forbidden\n",
		ExitCode: 1,
		Error:    exitErr,
	}}
	p := NewKubectlPatcher(runner, "")

	_, err := p.Patch(context.Background(), deploymentTarget(t), sampleOps())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, exitErr) {
		t.Errorf("error should wrap the exit error: %v", err)
	}
	if !strings.Contains(err.Error(), "Forbidden") {
		t.Errorf("error should carry kubectl's message: %v", err)
	}
	for _, a := range runner.args {
		if a == "--context" {
			t.Error("no --context flag expected without a context")
		}
	}
}

func TestKubectlPatcher_BadOutput(t *testing.T) {
	p := NewKubectlPatcher(&fakeRunner{result: &ExecuteResult{Stdout: "not json"}}, "")

	if _, err := p.Patch(context.Background(), deploymentTarget(t), sampleOps()); err == nil {
		t.Error("expected a parse error")
	}
}
