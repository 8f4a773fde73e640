package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/google/uuid"
)

// AuditService records accept/reject decisions for an external auditor
type AuditService interface {
	port.AuditRecorder
	Recent(ctx context.Context, limit int) ([]*entity.AuditEvent, error)
}

type auditServiceImpl struct {
	sink   port.AuditSink
	logger Logger
	now    func() time.Time
}

// NewAuditService creates a new AuditService. sink may be nil, in which
// case events are only logged.
func NewAuditService(sink port.AuditSink, logger Logger) AuditService {
	return &auditServiceImpl{
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Record logs the event at its severity and appends it to the sink. A sink
// failure is logged and swallowed.
func (s *auditServiceImpl) Record(ctx context.Context, eventType string, details map[string]any, severity entity.Severity) {
	event := &entity.AuditEvent{
		ID:          uuid.New(),
		Fingerprint: fingerprint(details),
		Timestamp:   s.now(),
		Type:        eventType,
		Severity:    severity,
		Details:     details,
	}

	kv := []interface{}{
		"event_id", event.ID.String(),
		"event_type", eventType,
		"fingerprint", event.Fingerprint,
		"details", details,
	}
	switch severity {
	case entity.SeverityError, entity.SeverityCritical:
		s.logger.Error("SECURITY_EVENT", kv...)
	case entity.SeverityWarning:
		s.logger.Warn("SECURITY_EVENT", kv...)
	default:
		s.logger.Info("SECURITY_EVENT", kv...)
	}

	if s.sink == nil {
		return
	}
	if err := s.sink.Append(ctx, event); err != nil {
		s.logger.Error("Failed to persist audit event", "event_type", eventType, "error", err)
	}
}

// Recent lists stored events, newest first
func (s *auditServiceImpl) Recent(ctx context.Context, limit int) ([]*entity.AuditEvent, error) {
	if s.sink == nil {
		return []*entity.AuditEvent{}, nil
	}
	return s.sink.Recent(ctx, limit)
}

// fingerprint is the first 8 hex chars of the SHA-256 of the details' JSON
// encoding. Map keys are sorted by encoding/json, so equal details always
// produce equal fingerprints.
func fingerprint(details map[string]any) string {
	data, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:8]
}
