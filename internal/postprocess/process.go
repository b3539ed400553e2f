// Package postprocess rewrites flagged comments: redacted copies for
// concerning content, rephrased copies for identifiable content.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/commentguard/internal/batching"
	"github.com/kamilpajak/commentguard/internal/llm"
	"github.com/kamilpajak/commentguard/internal/metrics"
	"github.com/kamilpajak/commentguard/internal/ratelimit"
	"github.com/kamilpajak/commentguard/internal/sentinel"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// DefaultBatchSize is the chunk size when none is configured.
const DefaultBatchSize = 10

var (
	errEmptyReply  = errors.New("empty model reply")
	errEmptyDecode = errors.New("no items decoded from model reply")
)

// Processor applies the redact and rephrase transforms.
type Processor struct {
	Providers llm.Factory
	Tracker   *ratelimit.Tracker
	Limits    llm.LimitLookup
	BatchSize int
	Logger    *zap.Logger
}

func (p *Processor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Processor) batchSize(cfg models.PostProcessConfig) int {
	switch {
	case cfg.PreferredBatchSize > 0:
		return cfg.PreferredBatchSize
	case p.BatchSize > 0:
		return p.BatchSize
	}
	return DefaultBatchSize
}

// Process transforms every flagged comment. Model failures never fail the
// call: the affected comments get placeholder text instead and the response
// reports FallbackUsed.
func (p *Processor) Process(ctx context.Context, comments []models.Comment, cfg models.PostProcessConfig, defaultMode models.Mode) (*models.PostProcessResponse, error) {
	if !defaultMode.Valid() {
		defaultMode = models.ModeRedact
	}
	out := slices.Clone(comments)

	var flagged []int
	for i := range out {
		if out[i].Flagged() {
			flagged = append(flagged, i)
			continue
		}
		out[i].Mode = models.ModeOriginal
		if out[i].Text == "" {
			out[i].Text = out[i].OriginalText
		}
	}

	resp := &models.PostProcessResponse{Success: true, ProcessedComments: out}
	if len(flagged) > 0 {
		provider, err := p.provider(cfg)
		if err != nil {
			return nil, err
		}

		size := p.batchSize(cfg)
		for start := 0; start < len(flagged); start += size {
			chunk := flagged[start:min(start+size, len(flagged))]
			texts := make([]string, len(chunk))
			for i, idx := range chunk {
				texts[i] = out[idx].SourceText()
			}

			redacted, rephrased, err := p.transform(ctx, provider, cfg, texts)
			if err != nil {
				p.logger().Warn("batched post-processing failed, using placeholders",
					zap.Int("outstanding", len(flagged)-start),
					zap.Error(err))
				metrics.PostProcessFallbacks.Inc()
				resp.FallbackUsed = true
				for _, idx := range flagged[start:] {
					applyFallback(&out[idx])
				}
				break
			}

			for i, idx := range chunk {
				c := &out[idx]
				c.RedactedText = orPlaceholder(redacted[i], "REDACTED", c)
				c.RephrasedText = orPlaceholder(rephrased[i], "REPHRASED", c)
				c.RedactedText = EnforceRedactionPolicy(c.RedactedText)
			}
		}

		for _, idx := range flagged {
			finalize(&out[idx], defaultMode)
		}
	}

	resp.Summary = summarize(out)
	p.logger().Info("post-processing complete",
		zap.Int("total", resp.Summary.Total),
		zap.Int("redacted", resp.Summary.Redacted),
		zap.Int("rephrased", resp.Summary.Rephrased),
		zap.Bool("fallback", resp.FallbackUsed))
	return resp, nil
}

func (p *Processor) provider(cfg models.PostProcessConfig) (llm.Provider, error) {
	switch {
	case cfg.Provider == "" || cfg.Model == "":
		return nil, &batching.ConfigurationError{Field: "scanConfig", Reason: "provider and model are required"}
	case cfg.RedactPrompt == "":
		return nil, &batching.ConfigurationError{Field: "scanConfig.redact_prompt", Reason: "missing"}
	case cfg.RephrasePrompt == "":
		return nil, &batching.ConfigurationError{Field: "scanConfig.rephrase_prompt", Reason: "missing"}
	}
	prov, err := p.Providers.Provider(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, &batching.ConfigurationError{Field: "scanConfig.provider", Reason: err.Error()}
	}
	var limits llm.RateLimits
	if p.Limits != nil {
		limits = p.Limits(cfg.Provider, cfg.Model)
	}
	return llm.NewLimited(prov, p.Tracker, limits), nil
}

// transform runs redact and rephrase over the same input concurrently and
// returns both outputs aligned to texts.
func (p *Processor) transform(ctx context.Context, provider llm.Provider, cfg models.PostProcessConfig, texts []string) ([]string, []string, error) {
	input := sentinel.Encode(texts)

	var red, reph sentinel.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		red, err = p.call(gctx, provider, batching.PhaseRedaction, cfg.RedactPrompt, input, cfg.MaxTokens, len(texts))
		return err
	})
	g.Go(func() error {
		var err error
		reph, err = p.call(gctx, provider, batching.PhaseRephrase, cfg.RephrasePrompt, input, cfg.MaxTokens, len(texts))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if !red.Tagged || !reph.Tagged {
		p.logger().Debug("untagged post-process reply, aligning by position",
			zap.Bool("redact_tagged", red.Tagged),
			zap.Bool("rephrase_tagged", reph.Tagged))
	}
	return align(red.Items, len(texts)), align(reph.Items, len(texts)), nil
}

func (p *Processor) call(ctx context.Context, provider llm.Provider, phase batching.Phase, prompt, input string, maxTokens, n int) (sentinel.Result, error) {
	resp, err := provider.Complete(ctx, llm.Request{System: prompt, Input: input, MaxTokens: maxTokens})
	metrics.ProviderCalls.WithLabelValues(string(phase), metrics.Outcome(err)).Inc()
	if err != nil {
		return sentinel.Result{}, fmt.Errorf("%s call failed: %w", phase, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return sentinel.Result{}, fmt.Errorf("%s: %w", phase, errEmptyReply)
	}
	res := sentinel.Decode(resp.Text, n)
	if res.Empty() {
		return sentinel.Result{}, fmt.Errorf("%s: %w", phase, errEmptyDecode)
	}
	return res, nil
}

// align pads or truncates items to n positions.
func align(items []string, n int) []string {
	out := make([]string, n)
	copy(out, items)
	return out
}

func orPlaceholder(text, label string, c *models.Comment) string {
	if strings.TrimSpace(text) == "" {
		return placeholder(label, c)
	}
	return text
}

func placeholder(label string, c *models.Comment) string {
	return fmt.Sprintf("[%s: %s]", label, reasoning(c))
}

// reasoning picks the most authoritative explanation available.
func reasoning(c *models.Comment) string {
	switch {
	case c.Reasoning != "":
		return c.Reasoning
	case c.ScanAResult != nil && c.ScanAResult.Reasoning != "":
		return c.ScanAResult.Reasoning
	case c.ScanBResult != nil && c.ScanBResult.Reasoning != "":
		return c.ScanBResult.Reasoning
	}
	return "flagged content"
}

func applyFallback(c *models.Comment) {
	c.RedactedText = EnforceRedactionPolicy(placeholder("REDACTED", c))
	c.RephrasedText = placeholder("REPHRASED", c)
}

// finalize picks the comment's text. A transform applies only when the mode
// matches the flag it handles; every other combination keeps the original.
func finalize(c *models.Comment, defaultMode models.Mode) {
	mode := c.Mode
	if !mode.Valid() {
		mode = defaultMode
	}
	switch {
	case mode == models.ModeRedact && c.IsConcerning():
		c.Text = c.RedactedText
	case mode == models.ModeRephrase && c.IsIdentifiable():
		c.Text = c.RephrasedText
	default:
		c.Text = c.SourceText()
		mode = models.ModeOriginal
	}
	c.Mode = mode
}

func summarize(comments []models.Comment) models.PostProcessSummary {
	s := models.PostProcessSummary{Total: len(comments)}
	for i := range comments {
		switch comments[i].Mode {
		case models.ModeRedact:
			s.Redacted++
		case models.ModeRephrase:
			s.Rephrased++
		default:
			s.Original++
		}
	}
	return s
}
