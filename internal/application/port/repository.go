package port

import (
	"context"
	"errors"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
)

// ErrDuplicateAccessKey is returned by InvoiceRepository.Create when another
// invoice already holds the access key
var ErrDuplicateAccessKey = errors.New("invoice with this access key already exists")

// InvoiceRepository defines persistence operations for canonical invoices
type InvoiceRepository interface {
	// ExistsByAccessKey reports whether an invoice with the given key is stored
	ExistsByAccessKey(ctx context.Context, accessKey string) (bool, error)

	// Create inserts the invoice header and sets invoice.ID
	Create(ctx context.Context, invoice *entity.Invoice) (int64, error)

	// FindIDByNumber returns the most recent invoice ID for a document number
	FindIDByNumber(ctx context.Context, number string) (int64, bool, error)

	// Count returns the number of stored invoices
	Count(ctx context.Context) (int, error)

	// GetByAccessKey loads an invoice header, returning nil when absent
	GetByAccessKey(ctx context.Context, accessKey string) (*entity.Invoice, error)
}

// ItemRepository defines persistence operations for line items
type ItemRepository interface {
	Create(ctx context.Context, invoiceID int64, item *entity.LineItem) error
	GetByInvoiceID(ctx context.Context, invoiceID int64) ([]*entity.LineItem, error)
}

// ProcessingLogRepository keeps the per-file processing trail
type ProcessingLogRepository interface {
	Create(ctx context.Context, log *entity.ProcessingLog) error
	ListByBatch(ctx context.Context, batchID string) ([]*entity.ProcessingLog, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
