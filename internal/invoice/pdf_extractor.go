package invoice

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/pkg/utils"
	"go.uber.org/zap"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	taxIDPattern     = regexp.MustCompile(`(?i)CNPJ\s*[:\s]*([\d\.\-/]{14,18})`)
	numberPattern    = regexp.MustCompile(`(?i)N[º°]\s*(\d{1,9})`)
	datePattern      = regexp.MustCompile(`(?i)(?:Data\s+(?:de\s+)?Emiss[aã]o|Emiss[aã]o)\s*:?\s*(\d{2}/\d{2}/\d{4})`)
	seriesPattern    = regexp.MustCompile(`(?i)S[ée]rie\s*:?\s*([0-9]{1,3})`)
	issuerPattern    = regexp.MustCompile(`(?i)(?:Emitente\s*:?\s*(.+?)\s*(?:CNPJ|CPF|Endere[çc]o|$)|recebemos\s+de\s+(.+?)\s+os\s+produtos)`)
	totalPattern     = regexp.MustCompile(`(?i)Valor\s+Total\s+(?:da\s+(?:Nota|nf-?e)|Nota)\s*(?:R\$)?\s*([\d\.,]+)`)
	accessKeyPattern = regexp.MustCompile(`((?:\d{4}\s*){11})`)
	naturePattern    = regexp.MustCompile(`(?i)Natureza\s+(?:da\s+|de\s+)?Opera[cç][aã]o\s*:?\s*([\p{L} ]{3,60})`)
)

// PDFExtractor pulls invoice fields out of DANFE text with a fixed set of
// patterns. A pattern miss never fails the record; the field takes the
// value listed in PDFDefaults instead.
type PDFExtractor struct {
	loader TextLoader
	limits Limits
	logger *zap.Logger
	now    func() time.Time
}

// NewPDFExtractor creates a PDF extractor reading text through loader.
func NewPDFExtractor(loader TextLoader, limits Limits, logger *zap.Logger) *PDFExtractor {
	return &PDFExtractor{
		loader: loader,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// Extract reads the PDF text layer and builds a record. It fails only when
// the document is too large or cannot be read as a PDF at all.
func (e *PDFExtractor) Extract(data []byte, fileName string) (inv *entity.Invoice, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("PDF extraction panicked",
				zap.String("file", fileName),
				zap.Any("panic", r),
				zap.Stack("stack"))
			inv, err = nil, ErrExtractionPanic
		}
	}()

	if len(data) > e.limits.MaxPDFSize {
		e.logger.Warn("PDF exceeds size limit",
			zap.String("file", fileName),
			zap.Int("size", len(data)),
			zap.Int("limit", e.limits.MaxPDFSize))
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, len(data), e.limits.MaxPDFSize)
	}

	raw, err := e.loader.LoadText(data)
	if err != nil {
		e.logger.Warn("PDF unreadable", zap.String("file", fileName), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	text := strings.TrimSpace(whitespaceRun.ReplaceAllString(raw, " "))

	inv = entity.NewInvoice(entity.SourcePDF)

	inv.IssuerTaxID = DefaultPDFTaxID
	if m := match(taxIDPattern, text); m != "" {
		inv.IssuerTaxID = utils.NormalizeTaxID(m)
	}

	inv.Number = orDefault(match(numberPattern, text), DefaultPDFNumber)
	inv.IssueDate = e.issueDate(match(datePattern, text), fileName)
	inv.Series = orDefault(match(seriesPattern, text), DefaultPDFSeries)

	inv.IssuerName = DefaultPDFIssuer
	if m := matchAny(issuerPattern, text); m != "" {
		inv.IssuerName = utils.SanitizeText(m, e.limits.MaxTextLength)
	}

	inv.Total = utils.SanitizeDecimal(orDefault(match(totalPattern, text), DefaultPDFTotal))

	inv.AccessKey = DefaultPDFAccessKey
	if key, ok := utils.SanitizeAccessKey(match(accessKeyPattern, text)); ok {
		inv.AccessKey = key
	}

	inv.OperationNature = DefaultPDFNature
	if m := strings.TrimSpace(match(naturePattern, text)); m != "" {
		inv.OperationNature = utils.SanitizeText(m, e.limits.MaxTextLength)
	}

	e.logger.Debug("PDF extracted",
		zap.String("file", fileName),
		zap.String("number", inv.Number),
		zap.String("total", inv.Total.String()))

	return inv, nil
}

func (e *PDFExtractor) issueDate(raw, fileName string) time.Time {
	if raw == "" {
		return e.now()
	}
	d, err := time.Parse("02/01/2006", raw)
	if err != nil {
		e.logger.Warn("invalid PDF issue date, using current time",
			zap.String("file", fileName),
			zap.String("value", raw))
		return e.now()
	}
	return d
}

// match returns the first capture group of re in text, or "".
func match(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// matchAny returns the first non-empty capture group of an alternation.
func matchAny(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	for i := 1; i < len(m); i++ {
		if s := strings.TrimSpace(m[i]); s != "" {
			return s
		}
	}
	return ""
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
