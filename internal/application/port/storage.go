package port

import "context"

// OriginalStore keeps a copy of every file received in an import batch
type OriginalStore interface {
	// StoreOriginal saves content under a dated, batch-scoped path and
	// returns the relative path it was written to
	StoreOriginal(ctx context.Context, batchID, fileName string, content []byte) (string, error)
}
