package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"siteforge/pkg/proto"
)

// Provider names accepted in the runbook.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
)

// APIKeyEnv maps each provider to the secret/environment name holding its
// API key. Ollama runs locally and needs none.
//
//nolint:gochecknoglobals // Static provider table
var APIKeyEnv = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGoogle:    "GEMINI_API_KEY",
}

// WorkerSpec configures the producer behind one worker.
type WorkerSpec struct {
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	PromptBudget int     `yaml:"prompt_budget,omitempty"`
	Temperature  float32 `yaml:"temperature,omitempty"`
	HostURL      string  `yaml:"host_url,omitempty"` // Ollama only
}

// Runbook declares the per-worker producer configuration.
type Runbook struct {
	Version string                `yaml:"version"`
	Workers map[string]WorkerSpec `yaml:"workers"`
}

// LoadRunbook parses and validates a YAML runbook file.
func LoadRunbook(path string) (*Runbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runbook: %w", err)
	}

	var rb Runbook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("failed to parse runbook YAML: %w", err)
	}

	if err := rb.Validate(); err != nil {
		return nil, fmt.Errorf("runbook validation failed: %w", err)
	}
	return &rb, nil
}

// DefaultRunbook returns the runbook used when none is configured: Claude
// for every producer capability.
func DefaultRunbook() *Runbook {
	spec := WorkerSpec{
		Provider: ProviderAnthropic,
		Model:    "claude-sonnet-4-20250514",
	}
	workers := make(map[string]WorkerSpec, len(proto.Workers))
	for _, w := range proto.Workers {
		if w == proto.WorkerOrchestrator {
			continue // The orchestrator has no producer
		}
		workers[string(w)] = spec
	}
	return &Runbook{Version: SchemaVersion, Workers: workers}
}

// Validate checks worker names and providers.
func (rb *Runbook) Validate() error {
	if len(rb.Workers) == 0 {
		return fmt.Errorf("runbook declares no workers")
	}

	for name, spec := range rb.Workers {
		if _, ok := proto.ValidateWorker(name); !ok {
			return fmt.Errorf("unknown worker %q", name)
		}
		switch spec.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderGoogle:
		default:
			return fmt.Errorf("worker %q has unknown provider %q", name, spec.Provider)
		}
		if spec.Model == "" {
			return fmt.Errorf("worker %q is missing a model", name)
		}
		if spec.PromptBudget < 0 {
			return fmt.Errorf("worker %q has negative prompt budget", name)
		}
	}
	return nil
}

// SpecFor returns the configuration for a worker, falling back to the
// implementation worker's spec so a sparse runbook still covers every
// capability.
func (rb *Runbook) SpecFor(w proto.Worker) WorkerSpec {
	if spec, ok := rb.Workers[string(w)]; ok {
		return spec
	}
	if spec, ok := rb.Workers[string(proto.WorkerImplementation)]; ok {
		return spec
	}
	// Any declared worker will do when implementation is absent too.
	for _, spec := range rb.Workers {
		return spec
	}
	return WorkerSpec{}
}
