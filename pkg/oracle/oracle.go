// Package oracle abstracts the text-completion collaborator used by the
// memory pipeline and the chat service. Providers are thin adapters over
// vendor SDKs; callers treat the returned completion as untrusted text.
package oracle

import (
	"context"
	"fmt"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Oracle produces a single text completion for an ordered message sequence.
type Oracle interface {
	// Complete returns one completion. The response may contain prose
	// around any structured fragment the caller asked for.
	Complete(ctx context.Context, messages []Message) (string, error)

	// Provider returns the provider name.
	Provider() string
}

// Config selects and tunes a provider.
type Config struct {
	Provider    string  // "anthropic" or "openai"
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewProvider creates an Oracle for the configured provider.
func NewProvider(cfg Config) (Oracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicOracle(cfg), nil
	case "openai":
		return NewOpenAIOracle(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
