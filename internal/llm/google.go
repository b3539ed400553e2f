package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GoogleClient implements Provider for Google Gemini via the genai SDK
type GoogleClient struct {
	model  string
	models generator
}

// NewGoogleClient creates a Gemini client for the given API key
func NewGoogleClient(ctx context.Context, apiKey, model string) (*GoogleClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GoogleClient{model: model, models: client.Models}, nil
}

// Complete sends a request to Gemini
func (c *GoogleClient) Complete(ctx context.Context, r Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: int32(maxTokens(r.MaxTokens)),
	}
	if r.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(r.System, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(r.Input, genai.RoleUser)}

	var out *Response
	err := retryWithBackoff(ctx, maxRetries, func() error {
		resp, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
		if err != nil {
			return wrapGenAIError(err)
		}
		out = googleResponse(resp, c.model)
		return nil
	})
	return out, err
}

func googleResponse(resp *genai.GenerateContentResponse, model string) *Response {
	out := &Response{Text: resp.Text(), Model: model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		out.Refused = true
	}
	for _, cand := range resp.Candidates {
		if cand != nil && cand.FinishReason == genai.FinishReasonSafety {
			out.Refused = true
		}
	}
	return out
}

// wrapGenAIError maps SDK errors onto APIError so the retry policy applies.
func wrapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: ProviderGoogle, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

// Name returns the provider name
func (c *GoogleClient) Name() string {
	return ProviderGoogle
}

// Model returns the model name
func (c *GoogleClient) Model() string {
	return c.model
}
