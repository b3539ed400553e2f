package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AnthropicClient implements Provider for Anthropic Claude
type AnthropicClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		baseURL:    "https://api.anthropic.com/v1",
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Complete sends a request to Anthropic
func (c *AnthropicClient) Complete(ctx context.Context, r Request) (*Response, error) {
	jsonBody, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens(r.MaxTokens),
		System:    r.System,
		Messages:  []anthropicMessage{{Role: "user", Content: r.Input}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var out *Response
	err = retryWithBackoff(ctx, maxRetries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(jsonBody))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &APIError{Provider: ProviderAnthropic, StatusCode: resp.StatusCode, Body: string(body)}
		}

		var ar anthropicResponse
		if err := json.Unmarshal(body, &ar); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		var text strings.Builder
		for _, part := range ar.Content {
			if part.Type == "text" {
				text.WriteString(part.Text)
			}
		}

		out = &Response{
			Text:         text.String(),
			InputTokens:  ar.Usage.InputTokens,
			OutputTokens: ar.Usage.OutputTokens,
			Model:        ar.Model,
			Refused:      ar.StopReason == "refusal",
		}
		return nil
	})
	return out, err
}

// Name returns the provider name
func (c *AnthropicClient) Name() string {
	return ProviderAnthropic
}

// Model returns the model name
func (c *AnthropicClient) Model() string {
	return c.model
}
