// Package ai provides the LLM backends used to analyze log segments
// and the prompt machinery shared between them.
package ai

import "context"

// Completion is the raw outcome of one model call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider defines the interface for LLM backends (Anthropic, Ollama,
// LM Studio). Invoke sends one prompt pair and returns the model's
// text along with token usage.
type Provider interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)

	// Model returns the configured model identifier.
	Model() string

	// Name returns the backend name (e.g. "Anthropic", "Ollama").
	Name() string
}

// ProviderType represents the type of LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
	ProviderLMStudio  ProviderType = "lmstudio"
)

// ValidProviderTypes returns the supported provider types.
func ValidProviderTypes() []ProviderType {
	return []ProviderType{ProviderAnthropic, ProviderOllama, ProviderLMStudio}
}

// IsValidProviderType checks if the given provider type is valid.
func IsValidProviderType(pt string) bool {
	for _, valid := range ValidProviderTypes() {
		if string(valid) == pt {
			return true
		}
	}
	return false
}
