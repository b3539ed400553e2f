// Package ratelimit tracks tokens-per-minute and requests-per-minute usage
// per provider/model in a sliding 60 second window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the sliding accounting window.
const Window = 60 * time.Second

type record struct {
	at     time.Time
	amount int
}

// Tracker is the process-wide usage ledger. Counters live in memory only;
// a restart resets them. Expired records are pruned on access.
type Tracker struct {
	mu       sync.Mutex
	tokens   map[string][]record
	requests map[string][]record

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSleeper replaces the wait implementation. Used by tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Tracker) { t.sleep = sleep }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		tokens:   make(map[string][]record),
		requests: make(map[string][]record),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Key builds the ledger key for a provider/model pair.
func Key(provider, model string) string {
	return provider + ":" + model
}

// prune drops records older than the window. Caller holds mu.
func prune(m map[string][]record, key string, now time.Time) []record {
	recs := m[key]
	threshold := now.Add(-Window)
	i := 0
	for i < len(recs) && !recs[i].at.After(threshold) {
		i++
	}
	if i > 0 {
		recs = append([]record(nil), recs[i:]...)
		m[key] = recs
	}
	if len(recs) == 0 {
		delete(m, key)
	}
	return recs
}

func sum(recs []record) int {
	total := 0
	for _, r := range recs {
		total += r.amount
	}
	return total
}

// CurrentUsage returns tokens recorded in the last 60 seconds.
func (t *Tracker) CurrentUsage(provider, model string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sum(prune(t.tokens, Key(provider, model), t.now()))
}

// CurrentRequestCount returns requests recorded in the last 60 seconds.
func (t *Tracker) CurrentRequestCount(provider, model string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sum(prune(t.requests, Key(provider, model), t.now()))
}

// RecordUsage appends a token usage record.
func (t *Tracker) RecordUsage(provider, model string, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(t.tokens, Key(provider, model), tokens)
}

// RecordRequest appends a request count record.
func (t *Tracker) RecordRequest(provider, model string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(t.requests, Key(provider, model), count)
}

func (t *Tracker) record(m map[string][]record, key string, amount int) {
	now := t.now()
	m[key] = append(m[key], record{at: now, amount: amount})
	prune(m, key, now)
}

// WouldExceedTPM reports whether adding tokens would pass the limit.
// A nil limit is unconstrained.
func (t *Tracker) WouldExceedTPM(provider, model string, tokens int, limit *int) bool {
	return limit != nil && t.CurrentUsage(provider, model)+tokens > *limit
}

// WouldExceedRPM reports whether adding requests would pass the limit.
func (t *Tracker) WouldExceedRPM(provider, model string, requests int, limit *int) bool {
	return limit != nil && t.CurrentRequestCount(provider, model)+requests > *limit
}

// TPMWaitTime returns how long to wait before tokens fit under the limit.
func (t *Tracker) TPMWaitTime(provider, model string, tokens int, limit *int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return waitTime(t.tokens, Key(provider, model), tokens, limit, t.now())
}

// RPMWaitTime returns how long to wait before requests fit under the limit.
func (t *Tracker) RPMWaitTime(provider, model string, requests int, limit *int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return waitTime(t.requests, Key(provider, model), requests, limit, t.now())
}

// waitTime walks records oldest to newest until enough would have expired
// to bring projected usage back under the limit. If the whole window is not
// enough, it waits for the newest record to expire. Caller holds mu.
func waitTime(m map[string][]record, key string, amount int, limit *int, now time.Time) time.Duration {
	if limit == nil {
		return 0
	}
	recs := prune(m, key, now)
	projected := sum(recs) + amount
	if projected <= *limit {
		return 0
	}

	excess := projected - *limit
	freed := 0
	var wait time.Duration
	for _, r := range recs {
		freed += r.amount
		wait = r.at.Add(Window).Sub(now)
		if freed >= excess {
			break
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Enforce waits until both limits admit the request, then records the
// usage and request count. A single wait for the longer of the two
// durations satisfies both. Returns how long it waited.
func (t *Tracker) Enforce(ctx context.Context, provider, model string, tokens, requests int, tpm, rpm *int) (time.Duration, error) {
	wait := t.TPMWaitTime(provider, model, tokens, tpm)
	if w := t.RPMWaitTime(provider, model, requests, rpm); w > wait {
		wait = w
	}
	if wait > 0 {
		if err := t.sleep(ctx, wait); err != nil {
			return 0, err
		}
	}
	t.RecordUsage(provider, model, tokens)
	t.RecordRequest(provider, model, requests)
	return wait, nil
}

// OptimalBatchSize returns how many items fit in the remaining TPM and RPM
// headroom, capped at maxItems and never below 1.
func (t *Tracker) OptimalBatchSize(provider, model string, tokensPerItem, maxItems int, tpm, rpm *int, requestsPerBatch int) int {
	size := maxItems
	if tpm != nil && tokensPerItem > 0 {
		if byTPM := (*tpm - t.CurrentUsage(provider, model)) / tokensPerItem; byTPM < size {
			size = byTPM
		}
	}
	if rpm != nil && requestsPerBatch > 0 {
		if byRPM := (*rpm - t.CurrentRequestCount(provider, model)) / requestsPerBatch; byRPM < size {
			size = byRPM
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}
