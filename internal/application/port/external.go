package port

import (
	"context"
	"time"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
)

// AuditSink persists audit events for an external auditor
type AuditSink interface {
	Append(ctx context.Context, event *entity.AuditEvent) error
	Recent(ctx context.Context, limit int) ([]*entity.AuditEvent, error)
}

// AuditRecorder is what pipeline components call to report a decision
type AuditRecorder interface {
	Record(ctx context.Context, eventType string, details map[string]any, severity entity.Severity)
}

// RateLimiter gates a named operation to maxRequests per window
type RateLimiter interface {
	Allow(identifier string, maxRequests int, window time.Duration) bool
}
