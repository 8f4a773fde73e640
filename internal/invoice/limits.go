package invoice

import "errors"

// Limits bounds the work an extractor is willing to do on one document.
type Limits struct {
	MaxXMLSize    int // bytes
	MaxPDFSize    int // bytes
	MaxItems      int
	MaxTextLength int // runes kept per text field
	RawXMLChars   int // runes of decoded XML kept for audit
}

// DefaultLimits returns the production bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxXMLSize:    10 * 1024 * 1024,
		MaxPDFSize:    50 * 1024 * 1024,
		MaxItems:      1000,
		MaxTextLength: 1000,
		RawXMLChars:   10000,
	}
}

var (
	ErrTooLarge             = errors.New("document exceeds size limit")
	ErrNotUTF8              = errors.New("document is not valid UTF-8")
	ErrMalformedXML         = errors.New("malformed XML")
	ErrForbiddenDTD         = errors.New("XML declares a DTD")
	ErrUnsupportedStructure = errors.New("not an NF-e document")
	ErrMissingElement       = errors.New("mandatory element missing")
	ErrUnreadablePDF        = errors.New("unreadable PDF")
	ErrExtractionPanic      = errors.New("extraction aborted unexpectedly")
)
