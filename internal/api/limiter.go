package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// subjectLimiter keeps one token bucket per authenticated subject.
type subjectLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newSubjectLimiter(limit rate.Limit, burst int) *subjectLimiter {
	return &subjectLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *subjectLimiter) allow(subject string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[subject]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[subject] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
