package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Patch backends
const (
	BackendAPI     = "api"
	BackendKubectl = "kubectl"
)

// Config holds the application configuration
type Config struct {
	// Preferences
	DefaultNamespace   string // empty follows the kube context
	JournalSize        int
	ConfirmDestructive bool
	ReadOnly           bool
	Backend            string
	LogLevel           string
	Demo               bool

	// Paths
	ConfigDir   string
	ConfigFile  string
	JournalFile string
	LogFile     string

	// Kubernetes
	KubeconfigPath string
}

// fileConfig is the optional config.yaml; unset keys keep their defaults
type fileConfig struct {
	DefaultNamespace   *string `yaml:"defaultNamespace"`
	JournalSize        *int    `yaml:"journalSize"`
	ConfirmDestructive *bool   `yaml:"confirmDestructive"`
	ReadOnly           *bool   `yaml:"readOnly"`
	Backend            *string `yaml:"backend"`
	LogLevel           *string `yaml:"logLevel"`
}

// NewConfig creates the configuration from defaults, ~/.whisker/config.yaml
// and the environment
func NewConfig() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return Load(homeDir, os.Getenv)
}

// Load builds the configuration rooted at homeDir, reading overrides through getenv
func Load(homeDir string, getenv func(string) string) (*Config, error) {
	configDir := filepath.Join(homeDir, ".whisker")

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}

	kubeconfigPath := getenv("KUBECONFIG")
	if kubeconfigPath == "" {
		kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
	} else {
		// kubectl accepts a list; the first file holds the current context
		kubeconfigPath = filepath.SplitList(kubeconfigPath)[0]
	}

	cfg := &Config{
		JournalSize:        500,
		ConfirmDestructive: true,
		Backend:            BackendAPI,
		LogLevel:           "info",
		ConfigDir:          configDir,
		ConfigFile:         filepath.Join(configDir, "config.yaml"),
		JournalFile:        filepath.Join(configDir, "journal.json"),
		LogFile:            filepath.Join(configDir, "whisker.log"),
		KubeconfigPath:     kubeconfigPath,
	}

	if err := cfg.loadFile(); err != nil {
		return nil, err
	}

	if ns := getenv("WHISKER_NAMESPACE"); ns != "" {
		cfg.DefaultNamespace = ns
	}
	if level := getenv("WHISKER_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	switch strings.ToLower(getenv("WHISKER_DEMO")) {
	case "1", "true", "yes":
		cfg.Demo = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.ConfigFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", c.ConfigFile, err)
	}

	if fc.DefaultNamespace != nil {
		c.DefaultNamespace = *fc.DefaultNamespace
	}
	if fc.JournalSize != nil {
		c.JournalSize = *fc.JournalSize
	}
	if fc.ConfirmDestructive != nil {
		c.ConfirmDestructive = *fc.ConfirmDestructive
	}
	if fc.ReadOnly != nil {
		c.ReadOnly = *fc.ReadOnly
	}
	if fc.Backend != nil {
		c.Backend = *fc.Backend
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	return nil
}

// Validate rejects settings the console cannot act on
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAPI, BackendKubectl:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendAPI, BackendKubectl)
	}
	if c.JournalSize <= 0 {
		return fmt.Errorf("journalSize must be positive, got %d", c.JournalSize)
	}
	return nil
}
