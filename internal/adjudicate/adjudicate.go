// Package adjudicate resolves Scan A / Scan B disagreements with a third
// AI pass.
package adjudicate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kamilpajak/commentguard/internal/batching"
	"github.com/kamilpajak/commentguard/internal/llm"
	"github.com/kamilpajak/commentguard/internal/metrics"
	"github.com/kamilpajak/commentguard/internal/ratelimit"
	"github.com/kamilpajak/commentguard/internal/sentinel"
	"github.com/kamilpajak/commentguard/internal/verdict"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// DefaultReasoning fills verdicts the model returned without reasoning.
const DefaultReasoning = "No reasoning provided"

const systemPrompt = `You resolve disagreements between two content scanners that reviewed anonymous survey comments.
A comment is "concerning" if it contains threats, harassment, self-harm, or other content needing escalation.
A comment is "identifiable" if it names or clearly points to a specific individual.

Each item below is delimited by <<<ITEM k>>> and <<<END k>>> markers and shows the comment followed by both scanners' verdicts.
Respond with a JSON array of exactly %d objects, one per item, in item order:
[{"index": k, "concerning": true|false, "identifiable": true|false, "reasoning": "one short sentence"}]
Output only the JSON array. No prose before or after it.`

// ParseError means the adjudicator reply could not be used.
type ParseError struct {
	Expected int
	Got      int
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adjudication parse error: %v", e.Err)
	}
	return fmt.Sprintf("adjudication parse error: expected %d verdicts, got %d", e.Expected, e.Got)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Adjudicator resolves disagreements.
type Adjudicator struct {
	Providers llm.Factory
	Tracker   *ratelimit.Tracker
	Limits    llm.LimitLookup
	Logger    *zap.Logger
}

func (a *Adjudicator) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// NeedsAdjudication returns true if either dimension lacks agreement.
func NeedsAdjudication(c *models.Comment) bool {
	return c.Agreements == nil || c.Agreements.NeedsAdjudication()
}

// Adjudicate resolves every comment's final flags. Agreed dimensions are
// kept; disagreements go to one AI call. Any failure of that call fails the
// whole request.
func (a *Adjudicator) Adjudicate(ctx context.Context, comments []models.Comment, cfg models.AdjudicatorConfig) (*models.AdjudicationResponse, error) {
	out := slices.Clone(comments)

	var pending []int
	for i := range out {
		if NeedsAdjudication(&out[i]) {
			pending = append(pending, i)
		} else {
			passthrough(&out[i])
		}
	}

	resp := &models.AdjudicationResponse{
		Success:             true,
		AdjudicatedComments: out,
		Summary:             models.AdjudicationSummary{Total: len(out)},
	}
	if len(pending) == 0 {
		return resp, nil
	}

	if cfg.Provider == "" || cfg.Model == "" {
		return nil, &batching.ConfigurationError{Field: "adjudicator", Reason: "provider and model are required"}
	}
	p, err := a.Providers.Provider(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, &batching.ConfigurationError{Field: "adjudicator.provider", Reason: err.Error()}
	}
	var limits llm.RateLimits
	if a.Limits != nil {
		limits = a.Limits(cfg.Provider, cfg.Model)
	}
	provider := llm.NewLimited(p, a.Tracker, limits)

	blocks := make([]string, len(pending))
	for i, idx := range pending {
		blocks[i] = describe(&out[idx])
	}
	system := fmt.Sprintf(systemPrompt, len(pending))
	if cfg.Prompt != "" {
		system = cfg.Prompt + "\n\n" + system
	}

	reply, err := provider.Complete(ctx, llm.Request{
		System:    system,
		Input:     sentinel.Body(blocks),
		MaxTokens: cfg.MaxTokens,
	})
	metrics.ProviderCalls.WithLabelValues(string(batching.PhaseAdjudicator), metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("adjudication call failed: %w", err)
	}

	verdicts, err := parse(reply.Text, len(pending))
	if err != nil {
		a.logger().Warn("unusable adjudication reply",
			zap.Int("expected", len(pending)),
			zap.Error(err))
		return nil, err
	}

	modelID := cfg.Provider + "/" + cfg.Model
	for i, idx := range pending {
		c := &out[idx]
		v := verdicts[i]
		c.Concerning = models.Bool(v.Concerning)
		c.Identifiable = models.Bool(v.Identifiable)
		c.Reasoning = v.Reasoning
		c.Model = modelID
		c.Adjudicated = true
	}
	resp.Summary.Resolved = len(pending)

	a.logger().Info("adjudication complete",
		zap.Int("total", len(out)),
		zap.Int("resolved", len(pending)),
		zap.String("model", modelID))
	return resp, nil
}

// ErrorResponse is the envelope returned when adjudication fails.
func ErrorResponse(comments []models.Comment, err error) *models.AdjudicationResponse {
	return &models.AdjudicationResponse{
		Success:             false,
		AdjudicatedComments: comments,
		Summary:             models.AdjudicationSummary{Total: len(comments), Errors: len(comments)},
		Error:               err.Error(),
	}
}

// passthrough resolves each dimension independently: the agreed value when
// there is one, otherwise Scan A's verdict.
func passthrough(c *models.Comment) {
	var ag models.Agreements
	if c.Agreements != nil {
		ag = *c.Agreements
	}
	c.Concerning = resolve(ag.Concerning, c.ScanAResult, func(r *models.ScanResult) bool { return r.Concerning })
	c.Identifiable = resolve(ag.Identifiable, c.ScanAResult, func(r *models.ScanResult) bool { return r.Identifiable })
}

func resolve(agreed *bool, a *models.ScanResult, pick func(*models.ScanResult) bool) *bool {
	if agreed != nil {
		return models.Bool(*agreed)
	}
	if a != nil {
		return models.Bool(pick(a))
	}
	return nil
}

// describe renders one comment with both verdicts for the adjudicator.
func describe(c *models.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Comment: %s\n", c.SourceText())
	writeVerdict(&b, "Scan A", c.ScanAResult)
	writeVerdict(&b, "Scan B", c.ScanBResult)
	fmt.Fprintf(&b, "Agreement: %s", agreementStatus(c.Agreements))
	return b.String()
}

func writeVerdict(b *strings.Builder, name string, r *models.ScanResult) {
	if r == nil {
		fmt.Fprintf(b, "%s: no verdict\n", name)
		return
	}
	fmt.Fprintf(b, "%s: concerning=%t, identifiable=%t, reasoning=%q\n", name, r.Concerning, r.Identifiable, r.Reasoning)
}

func agreementStatus(ag *models.Agreements) string {
	if ag == nil {
		return "scanners did not both return a verdict"
	}
	dim := func(name string, v *bool) string {
		if v == nil {
			return "disagree on " + name
		}
		return fmt.Sprintf("agree %s=%t", name, *v)
	}
	return dim("concerning", ag.Concerning) + "; " + dim("identifiable", ag.Identifiable)
}

// parse requires exactly n verdicts. Unreadable flags coerce to false and
// missing reasoning gets the default.
func parse(raw string, n int) ([]verdict.Verdict, error) {
	vs, err := verdict.Parse(raw)
	if err != nil {
		return nil, &ParseError{Expected: n, Err: err}
	}
	if len(vs) != n {
		return nil, &ParseError{Expected: n, Got: len(vs)}
	}
	for i := range vs {
		if vs[i].Reasoning == "" {
			vs[i].Reasoning = DefaultReasoning
		}
	}
	return vs, nil
}
