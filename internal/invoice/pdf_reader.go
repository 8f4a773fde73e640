package invoice

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// TextLoader pulls the embedded text layer out of a PDF document.
type TextLoader interface {
	LoadText(data []byte) (string, error)
}

// FitzTextLoader reads PDF text through MuPDF.
type FitzTextLoader struct {
	logger *zap.Logger
}

// NewFitzTextLoader creates a MuPDF backed text loader.
func NewFitzTextLoader(logger *zap.Logger) *FitzTextLoader {
	return &FitzTextLoader{logger: logger}
}

// LoadText concatenates the text of every page, one newline between pages.
// Pages that fail to render are skipped; a document with no readable page
// is an error.
func (l *FitzTextLoader) LoadText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	l.logger.Debug("Reading PDF text", zap.Int("total_pages", pageCount))

	var b strings.Builder
	readable := 0
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		text, err := doc.Text(pageNum)
		if err != nil {
			l.logger.Warn("Failed to extract page text",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		readable++
		b.WriteString(text)
		b.WriteByte('\n')
	}

	if readable == 0 {
		return "", fmt.Errorf("%w: no readable pages", ErrUnreadablePDF)
	}
	return b.String(), nil
}
