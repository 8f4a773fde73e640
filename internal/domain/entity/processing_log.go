package entity

import "time"

// ProcessingLog is the per-file trail kept alongside persisted invoices.
type ProcessingLog struct {
	ID        int64     `json:"id"`
	BatchID   string    `json:"batch_id"`
	Operation string    `json:"operation"`
	FileName  string    `json:"file_name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
