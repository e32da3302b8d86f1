package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	dir := filepath.Join(home, ".whisker")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()

	cfg, err := Load(home, env(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := &Config{
		JournalSize:        500,
		ConfirmDestructive: true,
		Backend:            BackendAPI,
		LogLevel:           "info",
		ConfigDir:          filepath.Join(home, ".whisker"),
		ConfigFile:         filepath.Join(home, ".whisker", "config.yaml"),
		JournalFile:        filepath.Join(home, ".whisker", "journal.json"),
		LogFile:            filepath.Join(home, ".whisker", "whisker.log"),
		KubeconfigPath:     filepath.Join(home, ".kube", "config"),
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(cfg.ConfigDir); err != nil {
		t.Errorf("config dir not created: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, `
defaultNamespace: staging
backend: kubectl
journalSize: 50
readOnly: true
confirmDestructive: false
logLevel: warn
`)

	cfg, err := Load(home, env(map[string]string{
		"KUBECONFIG":        "/tmp/a.yaml" + string(os.PathListSeparator) + "/tmp/b.yaml",
		"WHISKER_NAMESPACE": "prod",
		"WHISKER_DEMO":      "true",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := &Config{
		DefaultNamespace:   "prod",
		JournalSize:        50,
		ConfirmDestructive: false,
		ReadOnly:           true,
		Backend:            BackendKubectl,
		LogLevel:           "warn",
		Demo:               true,
		KubeconfigPath:     "/tmp/a.yaml",
	}
	ignorePaths := cmpopts.IgnoreFields(Config{}, "ConfigDir", "ConfigFile", "JournalFile", "LogFile")
	if diff := cmp.Diff(want, cfg, ignorePaths); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad backend", "backend: grpc\n"},
		{"zero journal", "journalSize: 0\n"},
		{"not yaml", "backend: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			writeConfig(t, home, tt.body)
			if _, err := Load(home, env(nil)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
