package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/domain/entity"
)

// SlidingWindow admits at most maxRequests per identifier within any
// trailing window. Denied calls are not recorded against the identifier.
type SlidingWindow struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	recorder port.AuditRecorder
	now      func() time.Time
}

// NewSlidingWindow creates a limiter. recorder may be nil.
func NewSlidingWindow(recorder port.AuditRecorder) *SlidingWindow {
	return &SlidingWindow{
		requests: make(map[string][]time.Time),
		recorder: recorder,
		now:      time.Now,
	}
}

// Allow reports whether identifier may proceed and, if so, counts the call.
func (l *SlidingWindow) Allow(identifier string, maxRequests int, window time.Duration) bool {
	l.mu.Lock()
	now := l.now()
	cutoff := now.Add(-window)

	recent := l.requests[identifier][:0]
	for _, t := range l.requests[identifier] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= maxRequests {
		l.requests[identifier] = recent
		count := len(recent)
		l.mu.Unlock()

		if l.recorder != nil {
			l.recorder.Record(context.Background(), entity.EventRateLimitExceeded,
				map[string]any{"identifier": identifier, "requests": count},
				entity.SeverityWarning)
		}
		return false
	}

	l.requests[identifier] = append(recent, now)
	l.mu.Unlock()
	return true
}

var _ port.RateLimiter = (*SlidingWindow)(nil)
