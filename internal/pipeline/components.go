package pipeline

import (
	"go.uber.org/zap"

	"github.com/kamilpajak/commentguard/internal/adjudicate"
	"github.com/kamilpajak/commentguard/internal/config"
	"github.com/kamilpajak/commentguard/internal/llm"
	"github.com/kamilpajak/commentguard/internal/postprocess"
	"github.com/kamilpajak/commentguard/internal/ratelimit"
	"github.com/kamilpajak/commentguard/internal/scan"
)

// Components are the pipeline services built from one configuration. They
// share a single rate-limit tracker.
type Components struct {
	Tracker     *ratelimit.Tracker
	Scanner     *scan.Scanner
	Adjudicator *adjudicate.Adjudicator
	Processor   *postprocess.Processor
	maxSplits   int
	logger      *zap.Logger
}

// NewComponents wires the scanner, adjudicator and post-processor.
func NewComponents(cfg *config.Config, providers llm.Factory, logger *zap.Logger) *Components {
	if logger == nil {
		logger = zap.NewNop()
	}
	tracker := ratelimit.NewTracker()
	return &Components{
		Tracker: tracker,
		Scanner: &scan.Scanner{
			Providers:           providers,
			Tracker:             tracker,
			Budgets:             cfg.Budget,
			Limits:              cfg.RateLimits,
			SafetyMarginPercent: cfg.Pipeline.SafetyMarginPercent,
			Logger:              logger.Named("scan"),
		},
		Adjudicator: &adjudicate.Adjudicator{
			Providers: providers,
			Tracker:   tracker,
			Limits:    cfg.RateLimits,
			Logger:    logger.Named("adjudicate"),
		},
		Processor: &postprocess.Processor{
			Providers: providers,
			Tracker:   tracker,
			Limits:    cfg.RateLimits,
			BatchSize: cfg.Pipeline.PostProcessBatchSize,
			Logger:    logger.Named("postprocess"),
		},
		maxSplits: cfg.Pipeline.MaxSplits,
		logger:    logger,
	}
}

// Runner returns an in-process runner whose scans go through the
// orchestrator. emitter may be nil.
func (c *Components) Runner(emitter scan.ProgressEmitter) *Runner {
	return &Runner{
		Scanner: &scan.Orchestrator{
			Fetcher:   &scan.LocalFetcher{Scanner: c.Scanner},
			MaxSplits: c.maxSplits,
			Emitter:   emitter,
			Logger:    c.logger.Named("orchestrator"),
		},
		Adjudicator: c.Adjudicator,
		Processor:   c.Processor,
		Logger:      c.logger.Named("pipeline"),
	}
}
