// Package client defines the vision model capability used for region suggestion.
package client

import (
	"context"
	"fmt"
	"strings"
)

// VisionClient sends one prompt with one image and returns the raw reply text.
type VisionClient interface {
	// Name returns the backend identifier ("ollama", "llamacpp", "local").
	Name() string
	Complete(ctx context.Context, model, prompt string, image []byte) (string, error)
}

// Backend names accepted by configuration.
const (
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	// BackendLocal runs saliency analysis in process, no model required
	BackendLocal = "local"
)

// ValidateBackend checks a configured backend name.
func ValidateBackend(name string) error {
	switch strings.ToLower(name) {
	case BackendOllama, BackendLlamaCpp, BackendLocal:
		return nil
	}
	return fmt.Errorf("unknown vision backend %q (want %s, %s or %s)", name, BackendOllama, BackendLlamaCpp, BackendLocal)
}
