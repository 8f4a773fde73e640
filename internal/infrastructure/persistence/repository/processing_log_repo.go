package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ProcessingLogRepository implements port.ProcessingLogRepository
type ProcessingLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProcessingLogRepository creates a new processing log repository
func NewProcessingLogRepository(db *sql.DB, logger *zap.Logger) port.ProcessingLogRepository {
	return &ProcessingLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends one log row
func (r *ProcessingLogRepository) Create(ctx context.Context, log *entity.ProcessingLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, `
		INSERT INTO processing_logs (batch_id, operation, file_name, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.BatchID, log.Operation, log.FileName, log.Status, log.Message, log.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create processing log", zap.String("file", log.FileName), zap.Error(err))
		return fmt.Errorf("failed to create processing log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	log.ID = id
	return nil
}

// ListByBatch returns a batch's rows in insertion order
func (r *ProcessingLogRepository) ListByBatch(ctx context.Context, batchID string) ([]*entity.ProcessingLog, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, `
		SELECT id, batch_id, operation, file_name, status, message, created_at
		FROM processing_logs
		WHERE batch_id = ?
		ORDER BY id ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.ProcessingLog
	for rows.Next() {
		var l entity.ProcessingLog
		if err := rows.Scan(&l.ID, &l.BatchID, &l.Operation, &l.FileName, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processing log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func (r *ProcessingLogRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.ProcessingLogRepository = (*ProcessingLogRepository)(nil)
