package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ErrDuplicateAccessKey is returned by Create when the access key is taken.
var ErrDuplicateAccessKey = port.ErrDuplicateAccessKey

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// ExistsByAccessKey reports whether the key is already stored
func (r *InvoiceRepository) ExistsByAccessKey(ctx context.Context, accessKey string) (bool, error) {
	if accessKey == "" {
		return false, nil
	}

	var exists bool
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM invoices WHERE access_key = ?)", accessKey,
	).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check access key", zap.String("access_key", accessKey), zap.Error(err))
		return false, fmt.Errorf("failed to check access key: %w", err)
	}
	return exists, nil
}

// Create inserts the invoice header. A concurrent insert of the same access
// key loses to the unique index and gets ErrDuplicateAccessKey.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) (int64, error) {
	query := `
		INSERT INTO invoices (
			number, series, issue_date, issuer_tax_id, issuer_name,
			recipient_tax_id, recipient_name, total, icms, ipi, pis, cofins,
			access_key, operation_nature, status, due_date, origin, source,
			raw_source, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(access_key) DO NOTHING
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		invoice.Number,
		invoice.Series,
		invoice.IssueDate,
		invoice.IssuerTaxID,
		invoice.IssuerName,
		nullString(invoice.RecipientTaxID),
		nullString(invoice.RecipientName),
		invoice.Total,
		invoice.ICMS,
		invoice.IPI,
		invoice.PIS,
		invoice.COFINS,
		nullString(invoice.AccessKey),
		invoice.OperationNature,
		invoice.Status,
		invoice.DueDate,
		string(invoice.Origin),
		string(invoice.Source),
		nullString(invoice.RawSource),
		invoice.ProcessedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.String("number", invoice.Number), zap.Error(err))
		return 0, fmt.Errorf("failed to create invoice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return 0, ErrDuplicateAccessKey
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	invoice.ID = id
	return id, nil
}

// FindIDByNumber returns the most recently stored invoice with the number
func (r *InvoiceRepository) FindIDByNumber(ctx context.Context, number string) (int64, bool, error) {
	var id int64
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		"SELECT id FROM invoices WHERE number = ? ORDER BY id DESC LIMIT 1", number,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		r.logger.Error("Failed to find invoice by number", zap.String("number", number), zap.Error(err))
		return 0, false, fmt.Errorf("failed to find invoice: %w", err)
	}
	return id, true, nil
}

// Count returns the number of stored invoices
func (r *InvoiceRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.getExecutor(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM invoices").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return n, nil
}

// GetByAccessKey loads an invoice header by its access key
func (r *InvoiceRepository) GetByAccessKey(ctx context.Context, accessKey string) (*entity.Invoice, error) {
	query := `
		SELECT id, number, series, issue_date, issuer_tax_id, issuer_name,
			recipient_tax_id, recipient_name, total, icms, ipi, pis, cofins,
			access_key, operation_nature, status, due_date, origin, source, processed_at
		FROM invoices
		WHERE access_key = ?
	`

	var (
		inv                         entity.Invoice
		recipientTaxID, recipientNm sql.NullString
		key                         sql.NullString
		dueDate                     sql.NullTime
		origin, source              string
	)
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, accessKey).Scan(
		&inv.ID,
		&inv.Number,
		&inv.Series,
		&inv.IssueDate,
		&inv.IssuerTaxID,
		&inv.IssuerName,
		&recipientTaxID,
		&recipientNm,
		&inv.Total,
		&inv.ICMS,
		&inv.IPI,
		&inv.PIS,
		&inv.COFINS,
		&key,
		&inv.OperationNature,
		&inv.Status,
		&dueDate,
		&origin,
		&source,
		&inv.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("access_key", accessKey), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	inv.RecipientTaxID = recipientTaxID.String
	inv.RecipientName = recipientNm.String
	inv.AccessKey = key.String
	inv.Origin = entity.Origin(origin)
	inv.Source = entity.SourceFormat(source)
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	return &inv, nil
}

func (r *InvoiceRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
