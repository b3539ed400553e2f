// Package batching sizes AI requests so expected input and output fit
// under provider token ceilings.
package batching

import (
	"fmt"

	"github.com/kamilpajak/commentguard/internal/tokens"
)

// Phase identifies a pipeline stage with its own output/input ratio.
type Phase string

const (
	PhaseScanA       Phase = "scan_a"
	PhaseScanB       Phase = "scan_b"
	PhaseAdjudicator Phase = "adjudicator"
	PhaseRedaction   Phase = "redaction"
	PhaseRephrase    Phase = "rephrase"
)

// KnownPhase reports whether p is one of the pipeline phases.
func KnownPhase(p Phase) bool {
	switch p {
	case PhaseScanA, PhaseScanB, PhaseAdjudicator, PhaseRedaction, PhaseRephrase:
		return true
	}
	return false
}

// DefaultSafetyMarginPercent is held back from every token ceiling.
const DefaultSafetyMarginPercent = 15

// IORatios maps a phase to expected output tokens per input token.
type IORatios map[Phase]float64

// TokenLimits are absolute per-request token ceilings.
type TokenLimits struct {
	Input  int `yaml:"input" json:"input"`
	Output int `yaml:"output" json:"output"`
}

// ConfigurationError reports missing or unknown configuration.
// It is never retried and maps to a 4xx response.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Sizer computes the largest safe batch for a phase.
type Sizer struct {
	Estimator           tokens.Estimator
	SafetyMarginPercent int
}

// NewSizer creates a sizer with the default safety margin.
func NewSizer(est tokens.Estimator) *Sizer {
	return &Sizer{Estimator: est, SafetyMarginPercent: DefaultSafetyMarginPercent}
}

// OptimalBatchSize returns how many leading texts fit in one request.
// Texts are added greedily in order until the next one would not fit;
// later texts are never considered once one fails. The result is never
// below 1.
func (s *Sizer) OptimalBatchSize(phase Phase, texts []string, prompt, context string, ratios IORatios, limits TokenLimits) (int, error) {
	ratio, ok := ratios[phase]
	if !ok {
		return 0, &ConfigurationError{Field: "io_ratios", Reason: fmt.Sprintf("unknown phase %q", phase)}
	}

	keep := 100 - s.SafetyMarginPercent
	maxInput := limits.Input * keep / 100
	maxOutput := limits.Output * keep / 100

	effective := maxInput
	if ratio > 0 {
		if byOutput := int(float64(maxOutput) / ratio); byOutput < effective {
			effective = byOutput
		}
	}

	remaining := effective - s.Estimator.Estimate(prompt) - s.Estimator.Estimate(context)
	if remaining <= 0 {
		return 1, nil
	}

	count := 0
	for _, t := range texts {
		cost := s.Estimator.Estimate(t)
		if cost > remaining {
			break
		}
		remaining -= cost
		count++
	}
	if count < 1 {
		count = 1
	}
	return count, nil
}

// Budget is the sizing input for one provider/model.
type Budget struct {
	Limits TokenLimits
	Ratios IORatios
}

// BudgetLookup returns the budget configured for a provider/model.
type BudgetLookup func(provider, model string) Budget

// ForModel returns a sizer using the model's estimator and the given margin.
func ForModel(provider, model string, marginPercent int) *Sizer {
	return &Sizer{Estimator: tokens.ForModel(provider, model), SafetyMarginPercent: marginPercent}
}
