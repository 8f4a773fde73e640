package invoice

import "github.com/garyjia/nfe-ingest/internal/domain/entity"

// Extractor builds an invoice record from one document's bytes.
type Extractor interface {
	Extract(data []byte, fileName string) (*entity.Invoice, error)
}

var (
	_ Extractor = (*XMLExtractor)(nil)
	_ Extractor = (*PDFExtractor)(nil)
)
