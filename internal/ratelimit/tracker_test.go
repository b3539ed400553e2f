package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep advances the fake clock instead of blocking.
func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.Advance(d)
	return nil
}

func newTestTracker(c *fakeClock) *Tracker {
	return NewTracker(WithClock(c.Now), WithSleeper(c.Sleep))
}

func limit(v int) *int { return &v }

func TestTracker_WindowBoundary(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	tr.RecordUsage("openai", "gpt-4o", 500)

	clock.Advance(59999 * time.Millisecond)
	assert.Equal(t, 500, tr.CurrentUsage("openai", "gpt-4o"))

	clock.Advance(2 * time.Millisecond)
	assert.Equal(t, 0, tr.CurrentUsage("openai", "gpt-4o"))
}

func TestTracker_KeysAreIsolated(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	tr.RecordUsage("openai", "gpt-4o", 100)
	tr.RecordUsage("openai", "gpt-4o-mini", 7)
	tr.RecordRequest("anthropic", "claude-3-haiku", 2)

	assert.Equal(t, 100, tr.CurrentUsage("openai", "gpt-4o"))
	assert.Equal(t, 7, tr.CurrentUsage("openai", "gpt-4o-mini"))
	assert.Equal(t, 0, tr.CurrentRequestCount("openai", "gpt-4o"))
	assert.Equal(t, 2, tr.CurrentRequestCount("anthropic", "claude-3-haiku"))
}

func TestTracker_WouldExceed(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	tr.RecordUsage("p", "m", 900)
	tr.RecordRequest("p", "m", 9)

	assert.False(t, tr.WouldExceedTPM("p", "m", 100, limit(1000)))
	assert.True(t, tr.WouldExceedTPM("p", "m", 101, limit(1000)))
	assert.False(t, tr.WouldExceedTPM("p", "m", 1_000_000, nil), "nil limit is unconstrained")

	assert.False(t, tr.WouldExceedRPM("p", "m", 1, limit(10)))
	assert.True(t, tr.WouldExceedRPM("p", "m", 2, limit(10)))
	assert.False(t, tr.WouldExceedRPM("p", "m", 500, nil))
}

func TestTracker_TPMWaitTime(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	tr.RecordUsage("p", "m", 400) // t0
	clock.Advance(10 * time.Second)
	tr.RecordUsage("p", "m", 400) // t0+10s
	clock.Advance(10 * time.Second)
	tr.RecordUsage("p", "m", 100) // t0+20s; now = t0+20s, usage 900

	t.Run("fits", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), tr.TPMWaitTime("p", "m", 100, limit(1000)))
	})

	t.Run("oldest record frees enough", func(t *testing.T) {
		// projected 1200, excess 200, first record (400) covers it
		assert.Equal(t, 40*time.Second, tr.TPMWaitTime("p", "m", 300, limit(1000)))
	})

	t.Run("needs second record", func(t *testing.T) {
		// projected 1500, excess 500, needs 400+400
		assert.Equal(t, 50*time.Second, tr.TPMWaitTime("p", "m", 600, limit(1000)))
	})

	t.Run("window cannot cover", func(t *testing.T) {
		// projected far above; waits for the newest record to expire
		assert.Equal(t, 60*time.Second, tr.TPMWaitTime("p", "m", 5000, limit(1000)))
	})

	t.Run("nil limit", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), tr.TPMWaitTime("p", "m", 5000, nil))
	})
}

func TestTracker_RPMWaitTime(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	for range 3 {
		tr.RecordRequest("p", "m", 1)
		clock.Advance(5 * time.Second)
	}
	// records at 0s, 5s, 10s; now 15s
	assert.Equal(t, time.Duration(0), tr.RPMWaitTime("p", "m", 1, limit(4)))
	assert.Equal(t, 45*time.Second, tr.RPMWaitTime("p", "m", 1, limit(3)))
	assert.Equal(t, 50*time.Second, tr.RPMWaitTime("p", "m", 2, limit(3)))
}

func TestTracker_EnforceWaitsForLongerLimit(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	tr.RecordUsage("p", "m", 1000)
	tr.RecordRequest("p", "m", 1)
	clock.Advance(20 * time.Second)
	tr.RecordRequest("p", "m", 1)

	// TPM wait is 40s (first usage record expires). RPM limit 1 needs both
	// request records gone, so its wait dominates.
	start := clock.Now()
	waited, err := tr.Enforce(context.Background(), "p", "m", 10, 1, limit(1005), limit(1))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, waited)
	assert.Equal(t, 60*time.Second, clock.Now().Sub(start))
	assert.Equal(t, 10, tr.CurrentUsage("p", "m"))
	assert.Equal(t, 1, tr.CurrentRequestCount("p", "m"))
}

func TestTracker_EnforceNoLimitsRecordsImmediately(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	waited, err := tr.Enforce(context.Background(), "p", "m", 250, 1, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, waited)
	assert.Equal(t, 250, tr.CurrentUsage("p", "m"))
	assert.Equal(t, 1, tr.CurrentRequestCount("p", "m"))
}

func TestTracker_EnforceRespectsCancellation(t *testing.T) {
	tr := NewTracker()
	tr.RecordUsage("p", "m", 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Enforce(ctx, "p", "m", 100, 1, limit(150), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 100, tr.CurrentUsage("p", "m"), "nothing recorded when the wait is aborted")
}

func TestTracker_OptimalBatchSize(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	tr.RecordUsage("p", "m", 4000)
	tr.RecordRequest("p", "m", 8)

	tests := []struct {
		name          string
		tokensPerItem int
		maxItems      int
		tpm, rpm      *int
		perBatch      int
		want          int
	}{
		{"unconstrained", 100, 50, nil, nil, 1, 50},
		{"tpm bound", 100, 50, limit(6000), nil, 1, 20},
		{"rpm bound", 100, 50, nil, limit(10), 1, 2},
		{"max items bound", 10, 5, limit(6000), limit(100), 1, 5},
		{"exhausted floors at one", 100, 50, limit(3000), nil, 1, 1},
		{"rpm multi request", 100, 50, nil, limit(20), 3, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.OptimalBatchSize("p", "m", tt.tokensPerItem, tt.maxItems, tt.tpm, tt.rpm, tt.perBatch)
			assert.Equal(t, tt.want, got)
		})
	}
}
