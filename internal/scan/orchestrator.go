package scan

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/commentguard/internal/metrics"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// DefaultMaxSplits is the retry budget when none is configured.
const DefaultMaxSplits = 3

var errNoResponse = errors.New("fetcher returned no response")

// Fetcher issues one scan call.
type Fetcher interface {
	FetchScan(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error)

// FetchScan calls f.
func (f FetcherFunc) FetchScan(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error) {
	return f(ctx, p)
}

// Orchestrator drives client-managed scans to completion, re-fetching
// items a scanner missed or refused in smaller restricted calls.
//
// Every dequeued work item consumes one attempt and the retried results
// are accepted as they come back; items still unresolved once MaxSplits
// attempts are spent are returned without scan results.
type Orchestrator struct {
	Fetcher   Fetcher
	MaxSplits int
	Emitter   ProgressEmitter
	Logger    *zap.Logger
}

func (o *Orchestrator) maxSplits() int {
	if o.MaxSplits < 1 {
		if o.MaxSplits == 0 {
			return DefaultMaxSplits
		}
		return 1
	}
	return o.MaxSplits
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.Emitter != nil {
		o.Emitter.Emit(ev)
	}
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Run scans every comment in p. An error from the initial call is
// returned; errors from retries are logged and cost their attempt.
func (o *Orchestrator) Run(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error) {
	p.ClientManagedBatching = true
	p.RestrictIndices = nil

	o.emit(ProgressEvent{Type: EventScan, Message: fmt.Sprintf("scanning %d comments", len(p.Comments))})
	resp, err := o.Fetcher.FetchScan(ctx, p)
	if err == nil && resp == nil {
		err = errNoResponse
	}
	if err != nil {
		o.emit(ProgressEvent{Type: EventError, Message: err.Error()})
		return nil, fmt.Errorf("initial scan failed: %w", err)
	}
	if resp.ScanRunID != "" {
		p.ScanRunID = resp.ScanRunID
	}

	diag := resp.ScanDiagnostics
	if diag == nil || !diag.NeedsSplit() {
		o.emit(ProgressEvent{Type: EventDone, Message: "scan complete"})
		return resp, nil
	}

	missing := MissingIDs(diag)
	o.logger().Info("scan incomplete, retrying missing items",
		zap.Int("missing", len(missing)),
		zap.Float64("coverage_a", diag.ScanA.CoverageRatio),
		zap.Float64("coverage_b", diag.ScanB.CoverageRatio),
		zap.Bool("refusal", diag.ScanA.HarmfulRefusalDetected || diag.ScanB.HarmfulRefusalDetected))

	acc := resp.Comments
	queue := [][]int{missing}
	limit := o.maxSplits()

	for attempts := 0; len(queue) > 0 && attempts < limit; attempts++ {
		ids := queue[0]
		queue = queue[1:]
		step := ProgressEvent{Attempt: attempts + 1, MaxSplits: limit, IDs: ids}

		switch len(ids) {
		case 0:
			step.Type, step.Message = EventSkip, "nothing to retry"
			o.emit(step)
		case 1:
			step.Type, step.Message = EventRetry, "retrying single item"
			o.emit(step)
			acc = Merge(acc, o.collect(step, ids, o.refetch(ctx, p, acc, ids)))
		default:
			half := len(ids) / 2
			left, right := ids[:half], ids[half:]
			step.Type, step.Message = EventSplit, fmt.Sprintf("bisecting %d+%d", len(left), len(right))
			o.emit(step)

			var l, r fetched
			var g errgroup.Group
			g.Go(func() error {
				l = o.refetch(ctx, p, acc, left)
				return nil
			})
			g.Go(func() error {
				r = o.refetch(ctx, p, acc, right)
				return nil
			})
			_ = g.Wait()
			acc = Merge(acc, o.collect(step, left, l), o.collect(step, right, r))
		}
	}

	if len(queue) > 0 {
		o.logger().Warn("split budget exhausted", zap.Int("unprocessed_work_items", len(queue)))
	}

	resp.Comments = acc
	resp.Summary = models.Summarize(acc)
	o.emit(ProgressEvent{Type: EventDone, Message: "scan complete"})
	return resp, nil
}

// fetched is the outcome of one restricted re-fetch.
type fetched struct {
	comments []models.Comment
	err      error
}

// refetch issues a restricted scan for ids and returns the comments at
// those positions.
func (o *Orchestrator) refetch(ctx context.Context, p models.ScanPayload, acc []models.Comment, ids []int) fetched {
	metrics.OrchestratorRetries.Inc()

	p.Comments = acc
	p.RestrictIndices = slices.Clone(ids)
	resp, err := o.Fetcher.FetchScan(ctx, p)
	if err == nil && resp == nil {
		err = errNoResponse
	}
	if err != nil {
		return fetched{err: err}
	}

	out := make([]models.Comment, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(resp.Comments) {
			out = append(out, resp.Comments[id])
		}
	}
	return fetched{comments: out}
}

// collect reports a re-fetch outcome. A failed re-fetch contributes nothing.
func (o *Orchestrator) collect(step ProgressEvent, ids []int, f fetched) []models.Comment {
	if f.err != nil {
		o.logger().Warn("restricted re-fetch failed", zap.Ints("ids", ids), zap.Error(f.err))
		o.emit(ProgressEvent{Type: EventError, Attempt: step.Attempt, MaxSplits: step.MaxSplits,
			Message: fmt.Sprintf("re-fetch of %v failed: %v", ids, f.err)})
		return nil
	}
	o.emit(ProgressEvent{Type: EventMerge, Message: fmt.Sprintf("merged %d re-scanned comments", len(f.comments))})
	return f.comments
}

// MissingIDs unions both scanners' missing items as sorted global positions.
func MissingIDs(d *models.ScanDiagnostics) []int {
	ids := append(d.ScanA.MissingItemIDs(), d.ScanB.MissingItemIDs()...)
	slices.Sort(ids)
	return slices.Compact(ids)
}
