package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tapcraft-io/whisker/internal/ctxlog"
	"github.com/tapcraft-io/whisker/internal/env"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Runner runs kubectl with the given arguments
type Runner interface {
	Execute(ctx context.Context, args []string) *ExecuteResult
}

// Executor executes kubectl commands
type Executor struct {
	kubectlPath string
}

// ExecuteResult contains the result of a kubectl execution
type ExecuteResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Error    error
}

// NewExecutor creates a new kubectl executor
func NewExecutor() (*Executor, error) {
	// Find kubectl in PATH
	kubectlPath, err := exec.LookPath("kubectl")
	if err != nil {
		return nil, fmt.Errorf("kubectl not found in PATH: %w", err)
	}

	return &Executor{
		kubectlPath: kubectlPath,
	}, nil
}

// Execute runs a kubectl command
func (e *Executor) Execute(ctx context.Context, args []string) *ExecuteResult {
	start := time.Now()
	result := &ExecuteResult{}

	cmd := exec.CommandContext(ctx, e.kubectlPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		result.Error = err
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	return result
}

// KubectlPatcher applies env patches by running kubectl patch, for setups
// where kubectl carries auth plugins or proxies the API client lacks
type KubectlPatcher struct {
	runner      Runner
	kubeContext string
}

// NewKubectlPatcher creates a patcher that runs through runner. An empty
// kubeContext uses kubectl's current context.
func NewKubectlPatcher(runner Runner, kubeContext string) *KubectlPatcher {
	return &KubectlPatcher{runner: runner, kubeContext: kubeContext}
}

// Patch runs kubectl patch --type=json and returns the object kubectl prints
func (p *KubectlPatcher) Patch(ctx context.Context, t env.Target, ops []env.Operation) (*unstructured.Unstructured, error) {
	args, err := PatchArgs(t, ops)
	if err != nil {
		return nil, err
	}
	if p.kubeContext != "" {
		args = append(args, "--context", p.kubeContext)
	}
	args = append(args, "-o", "json")

	result := p.runner.Execute(ctx, args)
	ctxlog.FromContext(ctx).Debug("kubectl patch", "target", t.String(), "exit", result.ExitCode, "duration", result.Duration)

	if result.Error != nil || result.ExitCode != 0 {
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", result.ExitCode)
		}
		if result.Error != nil {
			return nil, fmt.Errorf("kubectl patch: %s: %w", msg, result.Error)
		}
		return nil, fmt.Errorf("kubectl patch: %s", msg)
	}

	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON([]byte(result.Stdout)); err != nil {
		return nil, fmt.Errorf("failed to parse kubectl output: %w", err)
	}
	return obj, nil
}

// resourceArg qualifies the resource with its group so kubectl never has
// to guess between same-named kinds
func resourceArg(t env.Target) string {
	if t.Resource.Group == "" {
		return t.Resource.Resource
	}
	return t.Resource.Resource + "." + t.Resource.Group
}

// PatchArgs returns the kubectl arguments that apply ops to t
func PatchArgs(t env.Target, ops []env.Operation) ([]string, error) {
	data, err := env.MarshalPatch(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}

	args := []string{"patch", resourceArg(t), t.Name}
	if t.Namespace != "" {
		args = append(args, "-n", t.Namespace)
	}
	return append(args, "--type=json", "-p", string(data)), nil
}

// PatchCommand renders the kubectl command equivalent to a patch, quoted
// for a POSIX shell
func PatchCommand(t env.Target, ops []env.Operation) string {
	args, err := PatchArgs(t, ops)
	if err != nil {
		return ""
	}

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return "kubectl " + strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`{}[]*?!;&|<>()#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
