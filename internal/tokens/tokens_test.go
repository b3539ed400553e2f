package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_Empty(t *testing.T) {
	assert.Equal(t, 0, Default().Estimate(""))
}

func TestEstimate_RoundsUp(t *testing.T) {
	e := Estimator{CharsPerToken: 4}
	assert.Equal(t, 1, e.Estimate("a"))
	assert.Equal(t, 1, e.Estimate("abcd"))
	assert.Equal(t, 2, e.Estimate("abcde"))
}

func TestEstimate_ZeroDivisorFallsBack(t *testing.T) {
	e := Estimator{}
	assert.Equal(t, Default().Estimate("hello world"), e.Estimate("hello world"))
}

func TestEstimate_Monotonic(t *testing.T) {
	estimators := []Estimator{Default(), ForModel("anthropic", "claude-3-5-sonnet"), ForModel("bedrock", "amazon.titan-text")}
	samples := []string{"", "a", "é", "hi there", "naïve café ☕", strings.Repeat("x", 101), strings.Repeat("日本", 40)}

	for _, e := range estimators {
		for _, a := range samples {
			for _, b := range samples {
				if len(a) < len(b) {
					assert.LessOrEqual(t, e.Estimate(a), e.Estimate(b), "%q vs %q", a, b)
				}
			}
		}
	}
}

func TestForModel(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     float64
	}{
		{"openai", "gpt-4o", 4.0},
		{"anthropic", "claude-3-haiku", 3.5},
		{"bedrock", "anthropic.claude-v2", 3.5},
		{"bedrock", "amazon.titan-text-express-v1", 3.0},
		{"google", "gemini-2.5-flash", 4.0},
		{"acme", "mystery", DefaultCharsPerToken},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, ForModel(tt.provider, tt.model).CharsPerToken)
		})
	}
}

func TestEstimateBatchInput(t *testing.T) {
	e := Estimator{CharsPerToken: 4}
	got := e.EstimateBatchInput([]string{"abcd", "abcdefgh"}, "prompt12", "")
	assert.Equal(t, 2+1+2, got)
}

func TestCount_Empty(t *testing.T) {
	assert.Equal(t, 0, Count(""))
}

func TestCount_NonEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("loads the cl100k_base encoding over the network")
	}
	assert.Greater(t, Count("The quick brown fox jumps over the lazy dog."), 0)
}
