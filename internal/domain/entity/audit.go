package entity

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks audit events.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Audit event types emitted by the pipeline.
const (
	EventFileProcessed      = "FILE_PROCESSED"
	EventInvoiceAccepted    = "INVOICE_ACCEPTED"
	EventInvoiceRejected    = "INVOICE_REJECTED"
	EventDuplicateInvoice   = "DUPLICATE_INVOICE"
	EventExtractionFailed   = "EXTRACTION_FAILED"
	EventXMLSizeExceeded    = "XML_SIZE_EXCEEDED"
	EventFileTooLarge       = "FILE_TOO_LARGE"
	EventInvalidFileType    = "INVALID_FILE_TYPE"
	EventItemsFileRejected  = "ITEMS_FILE_REJECTED"
	EventArchiveCorrupt     = "ARCHIVE_CORRUPT"
	EventRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	EventPersistenceFailed  = "PERSISTENCE_FAILED"
	EventMailMessageIgnored = "MAIL_MESSAGE_IGNORED"
)

// AuditEvent is one accept/reject decision or security-relevant occurrence.
type AuditEvent struct {
	ID          uuid.UUID      `json:"id"`
	Fingerprint string         `json:"fingerprint"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"event_type"`
	Severity    Severity       `json:"severity"`
	Details     map[string]any `json:"details"`
}
