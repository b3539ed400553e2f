// Package llm wraps the AI providers used by the screening pipeline behind
// one single-turn completion interface.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider names accepted in scanner/adjudicator/post-process configs.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// DefaultMaxTokens caps output when a config leaves max_tokens unset.
const DefaultMaxTokens = 4096

// Request is one single-turn completion.
type Request struct {
	System    string
	Input     string
	MaxTokens int
}

// Response is the provider's reply.
// Refused is set when the provider itself stopped on a safety filter.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
	Refused      bool

	// RateLimitWait is filled in by Limited.
	RateLimitWait time.Duration
}

// Provider completes prompts against one model.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
	Model() string
}

// Factory resolves a provider/model pair to a Provider.
type Factory interface {
	Provider(name, model string) (Provider, error)
}

// UnknownProviderError is returned for provider names the registry cannot build.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// MissingKeyError is returned when no API key is configured for a provider.
type MissingKeyError struct {
	Name string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("no API key configured for provider %q", e.Name)
}

// Registry builds providers from configured API keys.
type Registry struct {
	Keys       map[string]string
	HTTPClient *http.Client
}

// NewRegistry creates a registry for the given provider→key map.
func NewRegistry(keys map[string]string) *Registry {
	return &Registry{
		Keys:       keys,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Provider returns a client for the named provider and model.
func (r *Registry) Provider(name, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	key := r.Keys[name]
	switch name {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		if key == "" {
			return nil, &MissingKeyError{Name: name}
		}
	default:
		return nil, &UnknownProviderError{Name: name}
	}

	switch name {
	case ProviderOpenAI:
		c := NewOpenAIClient(key, model)
		c.httpClient = r.HTTPClient
		return c, nil
	case ProviderAnthropic:
		c := NewAnthropicClient(key, model)
		c.httpClient = r.HTTPClient
		return c, nil
	default:
		return NewGoogleClient(context.Background(), key, model)
	}
}

func maxTokens(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}
