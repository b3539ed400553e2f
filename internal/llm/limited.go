package llm

import (
	"context"

	"github.com/kamilpajak/commentguard/internal/ratelimit"
	"github.com/kamilpajak/commentguard/internal/tokens"
)

// RateLimits are the per-minute ceilings for one provider/model.
// A nil field is unconstrained.
type RateLimits struct {
	TPM *int
	RPM *int
}

// LimitLookup returns the ceilings configured for a provider/model.
type LimitLookup func(provider, model string) RateLimits

// Limited admits each call through a shared Tracker before delegating.
type Limited struct {
	Provider
	Tracker   *ratelimit.Tracker
	Limits    RateLimits
	Estimator tokens.Estimator
}

// NewLimited wraps p so every Complete call respects limits.
func NewLimited(p Provider, tracker *ratelimit.Tracker, limits RateLimits) *Limited {
	return &Limited{
		Provider:  p,
		Tracker:   tracker,
		Limits:    limits,
		Estimator: tokens.ForModel(p.Name(), p.Model()),
	}
}

// EstimateInput returns the admission estimate for req.
func (l *Limited) EstimateInput(req Request) int {
	return l.Estimator.Estimate(req.System) + l.Estimator.Estimate(req.Input)
}

// Complete waits for TPM/RPM headroom, calls the provider, and records any
// usage beyond the admission estimate.
func (l *Limited) Complete(ctx context.Context, req Request) (*Response, error) {
	estimate := l.EstimateInput(req)
	name, model := l.Name(), l.Model()

	wait, err := l.Tracker.Enforce(ctx, name, model, estimate, 1, l.Limits.TPM, l.Limits.RPM)
	if err != nil {
		return nil, err
	}

	resp, err := l.Provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.RateLimitWait = wait

	actual := resp.InputTokens + resp.OutputTokens
	if actual == 0 {
		actual = tokens.Count(req.System) + tokens.Count(req.Input) + tokens.Count(resp.Text)
	}
	if extra := actual - estimate; extra > 0 {
		l.Tracker.RecordUsage(name, model, extra)
	}
	return resp, nil
}
