package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	eventType string
	details   map[string]any
	severity  entity.Severity
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeRecorder) Record(ctx context.Context, eventType string, details map[string]any, severity entity.Severity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{eventType, details, severity})
}

func TestSlidingWindow_Allow(t *testing.T) {
	rec := &fakeRecorder{}
	l := NewSlidingWindow(rec)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("email_processing", 10, time.Hour), "call %d", i)
	}
	assert.False(t, l.Allow("email_processing", 10, time.Hour))
	assert.True(t, l.Allow("other", 10, time.Hour), "identifiers are independent")

	require.Len(t, rec.events, 1)
	assert.Equal(t, entity.EventRateLimitExceeded, rec.events[0].eventType)
	assert.Equal(t, entity.SeverityWarning, rec.events[0].severity)
	assert.Equal(t, "email_processing", rec.events[0].details["identifier"])
	assert.Equal(t, 10, rec.events[0].details["requests"])

	clock = clock.Add(59 * time.Minute)
	assert.False(t, l.Allow("email_processing", 10, time.Hour))

	clock = clock.Add(2 * time.Minute)
	assert.True(t, l.Allow("email_processing", 10, time.Hour), "window slid past the first burst")
}

func TestSlidingWindow_NilRecorder(t *testing.T) {
	l := NewSlidingWindow(nil)
	assert.True(t, l.Allow("k", 1, time.Minute))
	assert.False(t, l.Allow("k", 1, time.Minute))
	assert.True(t, l.Allow("other", 1, time.Minute))
}

func TestSlidingWindow_Concurrent(t *testing.T) {
	l := NewSlidingWindow(nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("upload", 20, time.Minute) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, allowed)
}
