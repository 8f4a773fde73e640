package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Origin tells where a document entered the system.
type Origin string

const (
	OriginUpload Origin = "upload"
	OriginEmail  Origin = "email"
)

// SourceFormat identifies the extractor that built an invoice.
type SourceFormat string

const (
	SourceXML     SourceFormat = "xml"
	SourcePDF     SourceFormat = "pdf"
	SourceTabular SourceFormat = "tabular"
)

// Invoice is the canonical NF-e record produced by every extractor.
type Invoice struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	Series          string          `json:"series"`
	IssueDate       time.Time       `json:"issue_date"`
	IssuerTaxID     string          `json:"issuer_tax_id"`
	IssuerName      string          `json:"issuer_name"`
	RecipientTaxID  string          `json:"recipient_tax_id,omitempty"`
	RecipientName   string          `json:"recipient_name,omitempty"`
	Total           decimal.Decimal `json:"total"`
	ICMS            decimal.Decimal `json:"icms"`
	IPI             decimal.Decimal `json:"ipi"`
	PIS             decimal.Decimal `json:"pis"`
	COFINS          decimal.Decimal `json:"cofins"`
	AccessKey       string          `json:"access_key"`
	OperationNature string          `json:"operation_nature"`
	Status          string          `json:"status"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	Origin          Origin          `json:"origin"`
	Source          SourceFormat    `json:"source"`
	RawSource       string          `json:"-"`
	ProcessedAt     time.Time       `json:"processed_at"`
	Items           []LineItem      `json:"items,omitempty"`
}

// LineItem is a product line owned by exactly one invoice.
type LineItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	NCM         string          `json:"ncm"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	Total       decimal.Decimal `json:"total"`
}

// StatusPending is the status every freshly extracted invoice starts in.
const StatusPending = "pending"

// NewInvoice returns an invoice with the defaults every extractor relies on.
func NewInvoice(source SourceFormat) *Invoice {
	return &Invoice{
		Status:      StatusPending,
		Origin:      OriginUpload,
		Source:      source,
		ProcessedAt: time.Now(),
	}
}

// DeriveTotal fills Total from quantity and unit value when the line total
// is missing and both factors are positive.
func (li *LineItem) DeriveTotal() {
	if li.Total.IsZero() && li.Quantity.IsPositive() && li.UnitValue.IsPositive() {
		li.Total = li.Quantity.Mul(li.UnitValue)
	}
}
