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

// ItemRepository implements port.ItemRepository
type ItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewItemRepository creates a new line item repository
func NewItemRepository(db *sql.DB, logger *zap.Logger) port.ItemRepository {
	return &ItemRepository{
		db:     db,
		logger: logger,
	}
}

// Create attaches a line item to an existing invoice
func (r *ItemRepository) Create(ctx context.Context, invoiceID int64, item *entity.LineItem) error {
	query := `
		INSERT INTO invoice_items (
			invoice_id, code, description, ncm, quantity, unit_value, total
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		invoiceID,
		item.Code,
		item.Description,
		item.NCM,
		item.Quantity,
		item.UnitValue,
		item.Total,
	)
	if err != nil {
		r.logger.Error("Failed to create line item",
			zap.Int64("invoice_id", invoiceID),
			zap.String("code", item.Code),
			zap.Error(err))
		return fmt.Errorf("failed to create line item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	item.ID = id
	item.InvoiceID = invoiceID
	return nil
}

// GetByInvoiceID returns an invoice's items in insertion order
func (r *ItemRepository) GetByInvoiceID(ctx context.Context, invoiceID int64) ([]*entity.LineItem, error) {
	query := `
		SELECT id, invoice_id, code, description, ncm, quantity, unit_value, total
		FROM invoice_items
		WHERE invoice_id = ?
		ORDER BY id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to get items by invoice ID", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []*entity.LineItem
	for rows.Next() {
		var item entity.LineItem
		if err := rows.Scan(
			&item.ID,
			&item.InvoiceID,
			&item.Code,
			&item.Description,
			&item.NCM,
			&item.Quantity,
			&item.UnitValue,
			&item.Total,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

func (r *ItemRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.ItemRepository = (*ItemRepository)(nil)
