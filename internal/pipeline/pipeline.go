// Package pipeline runs the full screening flow in-process: an orchestrated
// scan, adjudication of disagreements, then post-processing.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kamilpajak/commentguard/internal/adjudicate"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// Scanner runs a client-managed scan to completion.
type Scanner interface {
	Run(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error)
}

// Adjudicator resolves scanner disagreements.
type Adjudicator interface {
	Adjudicate(ctx context.Context, comments []models.Comment, cfg models.AdjudicatorConfig) (*models.AdjudicationResponse, error)
}

// Processor rewrites flagged comments.
type Processor interface {
	Process(ctx context.Context, comments []models.Comment, cfg models.PostProcessConfig, defaultMode models.Mode) (*models.PostProcessResponse, error)
}

// Config selects the provider, model and prompt for every stage.
type Config struct {
	ScanA       models.ScannerConfig
	ScanB       models.ScannerConfig
	Adjudicator models.AdjudicatorConfig
	PostProcess models.PostProcessConfig
	DefaultMode models.Mode
}

// Result is the outcome of one end-to-end run.
type Result struct {
	Comments     []models.Comment
	Scan         models.ScanSummary
	Adjudication models.AdjudicationSummary
	PostProcess  models.PostProcessSummary
	FallbackUsed bool
	// Unscanned counts comments that still lack a result from either
	// scanner after the split budget ran out.
	Unscanned int
	Duration  time.Duration
}

// Runner composes the three stages.
type Runner struct {
	Scanner     Scanner
	Adjudicator Adjudicator
	Processor   Processor
	Logger      *zap.Logger
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Run screens comments. Adjudication is skipped when every comment's
// scanners agreed on both dimensions.
func (r *Runner) Run(ctx context.Context, comments []models.Comment, cfg Config) (*Result, error) {
	start := time.Now()
	res := &Result{}

	scanned, err := r.Scanner.Run(ctx, models.ScanPayload{
		Comments: comments,
		ScanA:    cfg.ScanA,
		ScanB:    cfg.ScanB,
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	res.Scan = scanned.Summary
	current := scanned.Comments

	pending := 0
	for i := range current {
		c := &current[i]
		if c.ScanAResult == nil || c.ScanBResult == nil {
			res.Unscanned++
		}
		if adjudicate.NeedsAdjudication(c) {
			pending++
		}
	}
	r.logger().Info("scan stage complete",
		zap.Int("comments", len(current)),
		zap.Int("disagreements", pending),
		zap.Int("unscanned", res.Unscanned))

	if pending > 0 {
		adj, err := r.Adjudicator.Adjudicate(ctx, current, cfg.Adjudicator)
		if err != nil {
			return nil, fmt.Errorf("adjudication failed: %w", err)
		}
		res.Adjudication = adj.Summary
		current = adj.AdjudicatedComments
		r.logger().Info("adjudication stage complete", zap.Int("resolved", adj.Summary.Resolved))
	} else {
		res.Adjudication = models.AdjudicationSummary{Total: len(current)}
	}

	processed, err := r.Processor.Process(ctx, current, cfg.PostProcess, cfg.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("post-processing failed: %w", err)
	}
	res.Comments = processed.ProcessedComments
	res.PostProcess = processed.Summary
	res.FallbackUsed = processed.FallbackUsed
	if processed.FallbackUsed {
		r.logger().Warn("post-processing fell back to placeholder text", zap.String("error", processed.Error))
	}

	res.Duration = time.Since(start)
	return res, nil
}
