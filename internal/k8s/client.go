package k8s

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps the typed and dynamic Kubernetes clients
type Client struct {
	Clientset  kubernetes.Interface
	Dynamic    dynamic.Interface
	RestConfig *rest.Config
}

// NewClient creates a new Kubernetes client
func NewClient(kubeconfigPath string) (*Client, error) {
	kubeconfigPath, err := defaultKubeconfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}

	// Check if running in-cluster
	config, err := rest.InClusterConfig()
	if err != nil {
		// Not in cluster, use kubeconfig
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Client{
		Clientset:  clientset,
		Dynamic:    dyn,
		RestConfig: config,
	}, nil
}

func defaultKubeconfig(kubeconfigPath string) (string, error) {
	if kubeconfigPath != "" {
		return kubeconfigPath, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".kube", "config"), nil
}

// GetCurrentContext returns the current kubectl context
func GetCurrentContext(kubeconfigPath string) (string, error) {
	kubeconfigPath, err := defaultKubeconfig(kubeconfigPath)
	if err != nil {
		return "", err
	}

	config, err := clientcmd.LoadFromFile(kubeconfigPath)
	if err != nil {
		return "", err
	}

	return config.CurrentContext, nil
}

// GetCurrentNamespace returns the namespace of the current context, or "" if unset
func GetCurrentNamespace(kubeconfigPath string) (string, error) {
	kubeconfigPath, err := defaultKubeconfig(kubeconfigPath)
	if err != nil {
		return "", err
	}

	config, err := clientcmd.LoadFromFile(kubeconfigPath)
	if err != nil {
		return "", err
	}

	if ctx, ok := config.Contexts[config.CurrentContext]; ok && ctx != nil {
		return ctx.Namespace, nil
	}
	return "", nil
}
