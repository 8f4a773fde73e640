package tabular

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/pkg/utils"
	"go.uber.org/zap"
)

// Role is how a sheet is interpreted, decided by its file name.
type Role string

const (
	RoleHeader Role = "header"
	RoleItems  Role = "items"
	RoleFlat   Role = "flat"
)

// Tabular records lack these fields in most exports.
const (
	DefaultSeries = "1"
	DefaultNature = "NÃO INFORMADA"
)

const (
	maxCodeLength = 100
	maxNCMLength  = 20
)

var ErrNoPersistedInvoices = errors.New("items file rejected: no invoices persisted yet")

// MissingColumnsError aborts a whole file whose header lacks required
// columns.
type MissingColumnsError struct {
	Role      Role
	Missing   []string
	Available []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s file is missing required columns %s (found: %s)",
		e.Role, strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}

// RowError records a single row that was skipped.
type RowError struct {
	Row    int
	Reason string
}

// Result is the outcome of one sheet. Header and flat sheets yield
// Invoices; an items sheet yields none and reports ItemsPersisted.
type Result struct {
	Role           Role
	Invoices       []*entity.Invoice
	ItemsPersisted int
	RowErrors      []RowError
}

// InvoiceLookup is the persisted-invoice view an items sheet needs.
type InvoiceLookup interface {
	Count(ctx context.Context) (int, error)
	FindIDByNumber(ctx context.Context, number string) (int64, bool, error)
}

// ItemWriter persists line items against an existing invoice.
type ItemWriter interface {
	Create(ctx context.Context, invoiceID int64, item *entity.LineItem) error
}

// Extractor interprets CSV and XLSX exports.
type Extractor struct {
	lookup        InvoiceLookup
	items         ItemWriter
	maxTextLength int
	logger        *zap.Logger
	now           func() time.Time
}

// NewExtractor creates a tabular extractor. lookup and items are only used
// for items sheets.
func NewExtractor(lookup InvoiceLookup, items ItemWriter, maxTextLength int, logger *zap.Logger) *Extractor {
	return &Extractor{
		lookup:        lookup,
		items:         items,
		maxTextLength: maxTextLength,
		logger:        logger,
		now:           time.Now,
	}
}

// DetectRole classifies a file by its full name, folders included.
func DetectRole(fileName string) Role {
	name := strings.ToLower(fileName)
	switch {
	case strings.Contains(name, "header") || strings.Contains(name, "cabecalho"):
		return RoleHeader
	case strings.Contains(name, "items") || strings.Contains(name, "itens"):
		return RoleItems
	default:
		return RoleFlat
	}
}

// ExtractCSV decodes and interprets a delimited text file.
func (e *Extractor) ExtractCSV(ctx context.Context, fileName string, data []byte) (*Result, error) {
	role := DetectRole(fileName)
	if role == RoleItems {
		if err := e.requirePersistedInvoices(ctx); err != nil {
			return nil, err
		}
	}

	table, err := ParseCSV(data)
	if err != nil {
		return nil, err
	}
	return e.extract(ctx, fileName, role, table)
}

// ExtractXLSX interprets the first worksheet of a workbook.
func (e *Extractor) ExtractXLSX(ctx context.Context, fileName string, data []byte) (*Result, error) {
	role := DetectRole(fileName)
	if role == RoleItems {
		if err := e.requirePersistedInvoices(ctx); err != nil {
			return nil, err
		}
	}

	table, err := ReadWorkbook(data)
	if err != nil {
		return nil, err
	}
	return e.extract(ctx, fileName, role, table)
}

func (e *Extractor) extract(ctx context.Context, fileName string, role Role, table *Table) (*Result, error) {
	if table.Skipped > 0 {
		e.logger.Warn("rows wider than the header were skipped",
			zap.String("file", fileName),
			zap.Int("rows", table.Skipped))
	}

	var (
		res *Result
		err error
	)
	switch role {
	case RoleHeader:
		res, err = e.extractHeader(fileName, table)
	case RoleItems:
		res, err = e.extractItems(ctx, fileName, table)
	default:
		res, err = e.extractFlat(fileName, table)
	}
	if err != nil {
		e.logger.Warn("tabular file rejected",
			zap.String("file", fileName),
			zap.String("role", string(role)),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("tabular file processed",
		zap.String("file", fileName),
		zap.String("role", string(role)),
		zap.Int("invoices", len(res.Invoices)),
		zap.Int("items", res.ItemsPersisted),
		zap.Int("row_errors", len(res.RowErrors)))
	return res, nil
}

func (e *Extractor) extractHeader(fileName string, table *Table) (*Result, error) {
	cols := mapBySynonyms(table.Columns, headerSynonyms)
	if missing := cols.missing(headerRequired); len(missing) > 0 {
		return nil, &MissingColumnsError{Role: RoleHeader, Missing: missing, Available: table.Columns}
	}

	res := &Result{Role: RoleHeader}
	for i, row := range table.Rows {
		issueDate := e.now()
		if raw := cols.value(row, FieldIssueDate); raw != "" {
			d, err := parseDate(raw)
			if err != nil {
				e.rowError(res, fileName, i, fmt.Sprintf("invalid issue date %q", raw))
				continue
			}
			issueDate = d
		}
		res.Invoices = append(res.Invoices, e.buildInvoice(cols, row, issueDate))
	}
	return res, nil
}

func (e *Extractor) extractFlat(fileName string, table *Table) (*Result, error) {
	cols := mapLiteral(table.Columns, flatRequired, flatOptional)
	if missing := cols.missing(flatRequired); len(missing) > 0 {
		return nil, &MissingColumnsError{Role: RoleFlat, Missing: missing, Available: table.Columns}
	}

	res := &Result{Role: RoleFlat}
	for i, row := range table.Rows {
		if cols.value(row, FieldNumber) == "" {
			e.rowError(res, fileName, i, "empty number")
			continue
		}
		issueDate, err := parseDate(cols.value(row, FieldIssueDate))
		if err != nil {
			e.logger.Warn("invalid issue date, using current time",
				zap.String("file", fileName),
				zap.Int("row", i+2),
				zap.String("value", cols.value(row, FieldIssueDate)))
			issueDate = e.now()
		}
		res.Invoices = append(res.Invoices, e.buildInvoice(cols, row, issueDate))
	}
	return res, nil
}

func (e *Extractor) buildInvoice(cols columnMap, row []string, issueDate time.Time) *entity.Invoice {
	inv := entity.NewInvoice(entity.SourceTabular)
	inv.Number = utils.SanitizeText(cols.value(row, FieldNumber), e.maxTextLength)
	inv.Series = orDefault(utils.SanitizeText(cols.value(row, FieldSeries), e.maxTextLength), DefaultSeries)
	inv.IssuerTaxID = utils.NormalizeTaxID(cols.value(row, FieldIssuerTaxID))
	inv.IssuerName = utils.SanitizeText(cols.value(row, FieldIssuerName), e.maxTextLength)
	inv.IssueDate = issueDate
	inv.Total = utils.SanitizeDecimal(cols.value(row, FieldTotal))
	inv.OperationNature = orDefault(utils.SanitizeText(cols.value(row, FieldNature), e.maxTextLength), DefaultNature)

	if raw := cols.value(row, FieldAccessKey); raw != "" {
		if key, ok := utils.SanitizeAccessKey(raw); ok {
			inv.AccessKey = key
		} else {
			inv.AccessKey = utils.DigitsOnly(raw)
		}
	}
	return inv
}

func (e *Extractor) requirePersistedInvoices(ctx context.Context) error {
	count, err := e.lookup.Count(ctx)
	if err != nil {
		return fmt.Errorf("count persisted invoices: %w", err)
	}
	if count == 0 {
		return ErrNoPersistedInvoices
	}
	return nil
}

func (e *Extractor) extractItems(ctx context.Context, fileName string, table *Table) (*Result, error) {
	cols := mapBySynonyms(table.Columns, itemSynonyms)
	if missing := cols.missing(itemRequired); len(missing) > 0 {
		return nil, &MissingColumnsError{Role: RoleItems, Missing: missing, Available: table.Columns}
	}

	res := &Result{Role: RoleItems}
	for i, row := range table.Rows {
		number := strings.TrimSpace(cols.value(row, FieldItemNumber))
		if number == "" {
			continue
		}

		invoiceID, found, err := e.lookup.FindIDByNumber(ctx, number)
		if err != nil {
			e.rowError(res, fileName, i, fmt.Sprintf("lookup invoice %s: %v", number, err))
			continue
		}
		if !found {
			e.rowError(res, fileName, i, fmt.Sprintf("invoice %s not found", number))
			continue
		}

		item := entity.LineItem{
			Code:        utils.SanitizeText(cols.value(row, FieldItemCode), maxCodeLength),
			Description: utils.SanitizeText(cols.value(row, FieldItemDescription), e.maxTextLength),
			NCM:         utils.SanitizeText(cols.value(row, FieldItemNCM), maxNCMLength),
			Quantity:    utils.SanitizeDecimal(cols.value(row, FieldItemQuantity)),
			UnitValue:   utils.SanitizeDecimal(cols.value(row, FieldItemUnitValue)),
			Total:       utils.SanitizeDecimal(cols.value(row, FieldItemTotal)),
		}
		if item.Code == "" && item.Description == "" {
			e.rowError(res, fileName, i, "item has neither code nor description")
			continue
		}
		if item.Quantity.IsNegative() || item.UnitValue.IsNegative() || item.Total.IsNegative() {
			e.rowError(res, fileName, i, "negative item value")
			continue
		}
		item.DeriveTotal()

		if err := e.items.Create(ctx, invoiceID, &item); err != nil {
			e.rowError(res, fileName, i, fmt.Sprintf("persist item: %v", err))
			continue
		}
		res.ItemsPersisted++
	}
	return res, nil
}

// rowError records a skipped row. Row numbers are 1-based and count the
// header line.
func (e *Extractor) rowError(res *Result, fileName string, index int, reason string) {
	row := index + 2
	res.RowErrors = append(res.RowErrors, RowError{Row: row, Reason: reason})
	e.logger.Warn("row skipped",
		zap.String("file", fileName),
		zap.Int("row", row),
		zap.String("reason", reason))
}

// parseDate accepts DD/MM/YYYY and YYYY-MM-DD, ignoring any time part.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, " T"); i >= 0 {
		raw = raw[:i]
	}
	if strings.Contains(raw, "/") {
		return time.Parse("02/01/2006", raw)
	}
	return time.Parse("2006-01-02", raw)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
