package llm

import (
	"context"

	"github.com/kamilpajak/commentguard/internal/tokens"
)

// MockProvider is a mock implementation of Provider for testing.
type MockProvider struct {
	ProviderName string
	ModelName    string
	CompleteFn   func(ctx context.Context, req Request) (*Response, error)
}

// Complete calls the mock function. Replies without usage get estimated
// token counts, as a real provider would report them.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp := &Response{Text: "[]", Model: m.ModelName}
	if m.CompleteFn != nil {
		var err error
		if resp, err = m.CompleteFn(ctx, req); err != nil || resp == nil {
			return resp, err
		}
	}
	if resp.InputTokens == 0 && resp.OutputTokens == 0 {
		e := tokens.Default()
		resp.InputTokens = e.Estimate(req.System) + e.Estimate(req.Input)
		resp.OutputTokens = e.Estimate(resp.Text)
	}
	return resp, nil
}

// Name returns the configured provider name.
func (m *MockProvider) Name() string { return m.ProviderName }

// Model returns the configured model name.
func (m *MockProvider) Model() string { return m.ModelName }

// MockFactory is a mock implementation of Factory for testing.
type MockFactory struct {
	ProviderFn func(name, model string) (Provider, error)
}

// Provider calls the mock function.
func (m *MockFactory) Provider(name, model string) (Provider, error) {
	if m.ProviderFn != nil {
		return m.ProviderFn(name, model)
	}
	return &MockProvider{ProviderName: name, ModelName: model}, nil
}

// StaticFactory returns a factory that hands out p for every name/model.
func StaticFactory(p Provider) *MockFactory {
	return &MockFactory{ProviderFn: func(string, string) (Provider, error) { return p, nil }}
}
