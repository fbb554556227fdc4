package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Providers lists the backend names accepted by New.
var Providers = []string{"openai", "openrouter", "ollama", "gemini"}

// Options selects and configures a backend.
type Options struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// APIKeyEnv returns the environment variable conventionally holding the key
// for provider, or "" when the provider needs none.
func APIKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	}
	return ""
}

// ResolveAPIKey returns opts.APIKey or, when empty, the provider's conventional env var.
func (o Options) ResolveAPIKey() string {
	if o.APIKey != "" {
		return o.APIKey
	}
	if env := APIKeyEnv(o.Provider); env != "" {
		return os.Getenv(env)
	}
	return ""
}

// New constructs the backend named by opts.Provider.
func New(ctx context.Context, opts Options) (Backend, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: model is required for provider %q", provider)
	}
	switch provider {
	case "openai", "openrouter":
		return NewChatBackend(provider, opts.ResolveAPIKey(), opts.BaseURL, opts.Model, opts.Timeout), nil
	case "ollama":
		return NewOllamaBackend(opts.Model, opts.BaseURL, opts.Timeout), nil
	case "gemini":
		return NewGeminiBackend(ctx, opts.ResolveAPIKey(), opts.Model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (supported: %s)", opts.Provider, strings.Join(Providers, ", "))
	}
}
