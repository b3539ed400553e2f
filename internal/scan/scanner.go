// Package scan runs the two independent comment scanners and drives the
// client-managed split-and-retry loop over their diagnostics.
package scan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/commentguard/internal/batching"
	"github.com/kamilpajak/commentguard/internal/llm"
	"github.com/kamilpajak/commentguard/internal/metrics"
	"github.com/kamilpajak/commentguard/internal/ratelimit"
	"github.com/kamilpajak/commentguard/internal/verdict"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// Scanner classifies comments with Scan A and Scan B.
type Scanner struct {
	Providers           llm.Factory
	Tracker             *ratelimit.Tracker
	Budgets             batching.BudgetLookup
	Limits              llm.LimitLookup
	SafetyMarginPercent int
	Logger              *zap.Logger
}

// side is one configured scanner ready to call.
type side struct {
	name     string
	phase    batching.Phase
	cfg      models.ScannerConfig
	provider *llm.Limited
}

// sideResult is what one scanner produced for one batch.
type sideResult struct {
	results  []*models.ScanResult
	refused  bool
	err      error
	estimate int
	wait     time.Duration
}

func (s *Scanner) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Scanner) limits(provider, model string) llm.RateLimits {
	if s.Limits == nil {
		return llm.RateLimits{}
	}
	return s.Limits(provider, model)
}

func (s *Scanner) budget(provider, model string) batching.Budget {
	if s.Budgets == nil {
		return batching.Budget{}
	}
	return s.Budgets(provider, model)
}

func (s *Scanner) margin() int {
	if s.SafetyMarginPercent <= 0 {
		return batching.DefaultSafetyMarginPercent
	}
	return s.SafetyMarginPercent
}

// Scan classifies the payload's target comments. Returned comments are a
// copy of the input with scan results applied; unscanned comments pass
// through untouched.
func (s *Scanner) Scan(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error) {
	targets, err := Targets(len(p.Comments), p.RestrictIndices)
	if err != nil {
		return nil, err
	}

	a, err := s.prepare("scanA", batching.PhaseScanA, p.ScanA)
	if err != nil {
		return nil, err
	}
	b, err := s.prepare("scanB", batching.PhaseScanB, p.ScanB)
	if err != nil {
		return nil, err
	}

	out := slices.Clone(p.Comments)
	resp := &models.ScanResponse{Success: true, Comments: out}
	if len(targets) == 0 {
		resp.Summary = models.Summarize(out)
		return resp, nil
	}

	texts := make([]string, len(targets))
	for i, idx := range targets {
		texts[i] = out[idx].SourceText()
	}

	size, err := s.batchSize(texts, a, b)
	if err != nil {
		return nil, err
	}

	if p.ClientManagedBatching {
		size = min(size, s.headroom(texts[:size], a), s.headroom(texts[:size], b))
		diag, err := s.runBatch(ctx, out, targets, size, a, b)
		if err != nil {
			return nil, err
		}
		resp.ScanDiagnostics = diag
	} else {
		for start := 0; start < len(targets); start += size {
			end := min(start+size, len(targets))
			if _, err := s.runBatch(ctx, out, targets[start:end], end-start, a, b); err != nil {
				return nil, err
			}
		}
	}

	resp.Summary = models.Summarize(out)
	return resp, nil
}

// Targets resolves restrictIndices against n comments: all positions when
// restrict is empty, else the restricted positions deduplicated in order.
func Targets(n int, restrict []int) ([]int, error) {
	if len(restrict) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	seen := make(map[int]bool, len(restrict))
	out := make([]int, 0, len(restrict))
	for _, idx := range restrict {
		if idx < 0 || idx >= n {
			return nil, &batching.ConfigurationError{Field: "restrictIndices", Reason: fmt.Sprintf("index %d out of range [0,%d)", idx, n)}
		}
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out, nil
}

func (s *Scanner) prepare(name string, phase batching.Phase, cfg models.ScannerConfig) (*side, error) {
	if cfg.Provider == "" || cfg.Model == "" {
		return nil, &batching.ConfigurationError{Field: name, Reason: "provider and model are required"}
	}
	if cfg.Prompt == "" {
		return nil, &batching.ConfigurationError{Field: name + ".prompt", Reason: "prompt is required"}
	}
	p, err := s.Providers.Provider(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, &batching.ConfigurationError{Field: name + ".provider", Reason: err.Error()}
	}
	return &side{
		name:     name,
		phase:    phase,
		cfg:      cfg,
		provider: llm.NewLimited(p, s.Tracker, s.limits(cfg.Provider, cfg.Model)),
	}, nil
}

// batchSize is the smaller of the two scanners' token-budget sizes.
func (s *Scanner) batchSize(texts []string, a, b *side) (int, error) {
	size := len(texts)
	for _, sd := range []*side{a, b} {
		budget := s.budget(sd.cfg.Provider, sd.cfg.Model)
		if budget.Limits.Input <= 0 {
			continue
		}
		sizer := batching.ForModel(sd.cfg.Provider, sd.cfg.Model, s.margin())
		n, err := sizer.OptimalBatchSize(sd.phase, texts, sd.cfg.Prompt, buildInput(nil), budget.Ratios, budget.Limits)
		if err != nil {
			return 0, err
		}
		size = min(size, n)
	}
	return max(size, 1), nil
}

// headroom clamps a batch by the scanner's remaining TPM/RPM allowance.
func (s *Scanner) headroom(texts []string, sd *side) int {
	lim := sd.provider.Limits
	if lim.TPM == nil && lim.RPM == nil {
		return len(texts)
	}
	total := 0
	for _, t := range texts {
		total += sd.provider.Estimator.Estimate(t)
	}
	perItem := max(total/max(len(texts), 1), 1)
	// Same key the Limited wrapper records usage under.
	return s.Tracker.OptimalBatchSize(sd.provider.Name(), sd.provider.Model(), perItem, len(texts), lim.TPM, lim.RPM, 1)
}

// runBatch scans the first size targets with both scanners concurrently and
// applies the results to out. Targets beyond size are reported missing.
func (s *Scanner) runBatch(ctx context.Context, out []models.Comment, targets []int, size int, a, b *side) (*models.ScanDiagnostics, error) {
	batch := targets[:size]
	texts := make([]string, len(batch))
	for i, idx := range batch {
		texts[i] = out[idx].SourceText()
	}

	var ra, rb sideResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ra = s.classify(gctx, a, texts)
		return fatal(ra.err)
	})
	g.Go(func() error {
		rb = s.classify(gctx, b, texts)
		return fatal(rb.err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, idx := range batch {
		c := &out[idx]
		if ra.results[i] != nil {
			c.ScanAResult = ra.results[i]
		}
		if rb.results[i] != nil {
			c.ScanBResult = rb.results[i]
		}
		// A restricted re-fetch may complete a pair begun by an earlier call.
		if c.ScanAResult != nil && c.ScanBResult != nil {
			ag := models.ComputeAgreements(c.ScanAResult, c.ScanBResult)
			c.Agreements = &ag
			c.Concerning = ag.Concerning
			c.Identifiable = ag.Identifiable
		}
	}

	start := 0
	if len(batch) > 0 {
		start = batch[0]
	}
	return &models.ScanDiagnostics{
		Batch: models.BatchInfo{Start: start, Size: size},
		ScanA: s.diagnostics(a, ra, targets),
		ScanB: s.diagnostics(b, rb, targets),
	}, nil
}

// fatal passes through only errors that must abort the whole scan.
func fatal(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// classify runs one scanner over texts. Provider failures and refusals
// leave every item missing rather than failing the batch.
func (s *Scanner) classify(ctx context.Context, sd *side, texts []string) sideResult {
	req := llm.Request{
		System:    sd.cfg.Prompt,
		Input:     buildInput(texts),
		MaxTokens: sd.cfg.MaxTokens,
	}
	res := sideResult{
		results:  make([]*models.ScanResult, len(texts)),
		estimate: sd.provider.EstimateInput(req),
	}

	resp, err := sd.provider.Complete(ctx, req)
	metrics.ProviderCalls.WithLabelValues(string(sd.phase), metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger().Warn("scanner call failed",
			zap.String("scanner", sd.name),
			zap.String("provider", sd.cfg.Provider),
			zap.String("model", sd.cfg.Model),
			zap.Int("items", len(texts)),
			zap.Error(err))
		res.err = err
		return res
	}
	res.wait = resp.RateLimitWait
	metrics.RateLimitWaitSeconds.WithLabelValues(sd.cfg.Provider).Observe(resp.RateLimitWait.Seconds())

	if resp.Refused || looksLikeRefusal(resp.Text) {
		s.logger().Info("scanner refused batch",
			zap.String("scanner", sd.name),
			zap.Int("items", len(texts)))
		metrics.ScanRefusals.WithLabelValues(sd.name).Inc()
		res.refused = true
		return res
	}

	vs, err := verdict.Parse(resp.Text)
	if err != nil {
		s.logger().Warn("unparseable scanner reply",
			zap.String("scanner", sd.name),
			zap.Error(err))
		return res
	}
	res.results = alignVerdicts(vs, len(texts), sd.cfg.Provider+"/"+sd.cfg.Model)
	return res
}

// diagnostics reports coverage of r over all targets; only the leading
// len(r.results) targets were actually sent to the model.
func (s *Scanner) diagnostics(sd *side, r sideResult, targets []int) models.ScannerDiagnostics {
	lim := sd.provider.Limits
	d := models.ScannerDiagnostics{
		HarmfulRefusalDetected: r.refused,
		ItemIDsUsed:            slices.Clone(targets),
		MissingIndices:         []int{},
		Provider:               sd.cfg.Provider,
		Model:                  sd.cfg.Model,
		EstimatedInputTokens:   r.estimate,
		RateLimitWaitMS:        r.wait.Milliseconds(),
		TPMLimit:               lim.TPM,
		RPMLimit:               lim.RPM,
	}
	if r.err != nil {
		d.Error = r.err.Error()
	}
	for i := range targets {
		if i >= len(r.results) || r.results[i] == nil {
			d.MissingIndices = append(d.MissingIndices, i)
		}
	}
	if len(d.MissingIndices) > 0 {
		metrics.ScanItemsMissing.WithLabelValues(sd.name).Add(float64(len(d.MissingIndices)))
	}
	d.CoverageRatio = Coverage(len(d.MissingIndices), len(targets))
	d.PartialCoverage = len(d.MissingIndices) > 0
	return d
}

// Coverage is 1 - missing/used, or 1 when nothing was requested.
func Coverage(missing, used int) float64 {
	if used == 0 {
		return 1
	}
	return 1 - float64(missing)/float64(used)
}
