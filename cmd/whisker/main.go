package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tapcraft-io/whisker/internal/config"
	"github.com/tapcraft-io/whisker/internal/ctxlog"
	"github.com/tapcraft-io/whisker/internal/env"
	"github.com/tapcraft-io/whisker/internal/exec"
	"github.com/tapcraft-io/whisker/internal/history"
	"github.com/tapcraft-io/whisker/internal/k8s"
	"github.com/tapcraft-io/whisker/internal/rbac"
	"github.com/tapcraft-io/whisker/internal/tui"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := ctxlog.OpenFile(cfg.LogFile, ctxlog.ParseLevel(cfg.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, logging disabled\n", err)
		logger = ctxlog.New(io.Discard, ctxlog.ParseLevel(cfg.LogLevel))
	} else {
		defer closer.Close()
	}
	ctx = ctxlog.WithLogger(ctx, logger)

	// Initialize Kubernetes client
	var client *k8s.Client
	currentContext := "demo"
	var kubeContext string
	if cfg.Demo {
		client = k8s.NewDemoClient()
	} else {
		client, err = k8s.NewClient(cfg.KubeconfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to Kubernetes: %v\n", err)
			fmt.Fprintf(os.Stderr, "Make sure kubectl is configured and you have access to a cluster.\n")
			os.Exit(1)
		}

		kubeContext, currentContext, err = contextNames(func() (string, error) {
			return k8s.GetCurrentContext(cfg.KubeconfigPath)
		})
		if err != nil {
			logger.Warn("could not read current context", "error", err)
		}
	}

	namespace := cfg.DefaultNamespace
	if namespace == "" && !cfg.Demo {
		namespace, _ = k8s.GetCurrentNamespace(cfg.KubeconfigPath)
	}
	if namespace == "" {
		namespace = "default"
	}

	logger.Info("starting", "context", currentContext, "namespace", namespace, "backend", cfg.Backend, "demo", cfg.Demo)

	// Initialize resource cache
	cache := k8s.NewResourceCache(client.Clientset, client.Dynamic)

	// Start cache refresh in background
	go func() {
		if err := cache.Start(ctx); err != nil {
			logger.Error("cache initialization failed", "error", err)
		}
	}()

	api := k8s.NewAPIPatcher(client.Dynamic)
	var patcher env.Patcher = api
	if cfg.Backend == config.BackendKubectl && !cfg.Demo {
		executor, err := exec.NewExecutor()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		patcher = exec.NewKubectlPatcher(executor, kubeContext)
	}

	// Initialize the patch journal
	journal, err := history.NewJournal(cfg.JournalSize, cfg.JournalFile)
	if err != nil {
		logger.Warn("could not load journal, starting empty", "error", err)
	}

	// Create and run the TUI
	model := tui.NewModel(ctx, tui.Options{
		Cache:              cache,
		Getter:             api,
		Patcher:            patcher,
		Bindings:           rbac.NewClient(client.Clientset),
		Journal:            journal,
		Context:            currentContext,
		Namespace:          namespace,
		ReadOnly:           cfg.ReadOnly,
		ConfirmDestructive: cfg.ConfirmDestructive,
	})

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	// Run the program
	finalModel, err := p.Run()
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}

	if err := journal.Save(); err != nil {
		logger.Warn("could not save journal", "error", err)
	}
	cache.Stop()

	if m, ok := finalModel.(tui.Model); ok && !m.IsReady() {
		fmt.Println("Warning: Cache was not fully initialized")
	}
}

// contextNames returns the context handed to kubectl and the label shown in
// the title bar. kubeContext is empty when no context could be read, so an
// in-cluster kubectl falls back to its own default.
func contextNames(current func() (string, error)) (kubeContext, label string, err error) {
	kubeContext, err = current()
	if err != nil {
		kubeContext = ""
	}
	label = kubeContext
	if label == "" {
		label = "unknown"
	}
	return kubeContext, label, err
}
