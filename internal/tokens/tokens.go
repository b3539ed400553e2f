// Package tokens approximates token counts for sizing decisions.
package tokens

import (
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultCharsPerToken is used when the provider/model is unknown.
const DefaultCharsPerToken = 4.0

// Estimator converts text length into an approximate token count.
// Estimates are pure, deterministic and monotonic in byte length.
type Estimator struct {
	CharsPerToken float64
}

// Default returns the conservative default estimator.
func Default() Estimator {
	return Estimator{CharsPerToken: DefaultCharsPerToken}
}

// divisors maps model-family markers to average characters per token.
// Order matters: the first marker found in "provider:model" wins.
var divisors = []struct {
	marker string
	chars  float64
}{
	{"titan", 3.0},
	{"claude", 3.5},
	{"anthropic", 3.5},
	{"gpt", 4.0},
	{"openai", 4.0},
	{"gemini", 4.0},
	{"google", 4.0},
	{"bedrock", 3.0},
}

// ForModel picks the divisor for a provider/model pair.
func ForModel(provider, model string) Estimator {
	key := strings.ToLower(provider + ":" + model)
	for _, d := range divisors {
		if strings.Contains(key, d.marker) {
			return Estimator{CharsPerToken: d.chars}
		}
	}
	return Default()
}

// Estimate returns the approximate token count of text. Empty text is 0.
func (e Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	div := e.CharsPerToken
	if div <= 0 {
		div = DefaultCharsPerToken
	}
	return int(math.Ceil(float64(len(text)) / div))
}

// EstimateBatchInput sums the prompt, context and every item.
func (e Estimator) EstimateBatchInput(texts []string, prompt, context string) int {
	total := e.Estimate(prompt) + e.Estimate(context)
	for _, t := range texts {
		total += e.Estimate(t)
	}
	return total
}

var (
	encoder     *tiktoken.Tiktoken
	encoderOnce sync.Once
	encoderErr  error
)

func initEncoder() error {
	encoderOnce.Do(func() {
		encoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// Count returns a tokenizer-exact count using cl100k_base.
// Falls back to the default estimate if the encoder cannot be loaded.
func Count(text string) int {
	if text == "" {
		return 0
	}
	if err := initEncoder(); err != nil {
		return Default().Estimate(text)
	}
	return len(encoder.Encode(text, nil, nil))
}
