package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var maxTotal = decimal.RequireFromString("999999999.99")

const (
	issueDateWindowPast   = 3650 * 24 * time.Hour
	issueDateWindowFuture = 24 * time.Hour
)

// ValidationError names the first business rule an invoice broke.
type ValidationError struct {
	Rule   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed [%s] %s: %s", e.Rule, e.Field, e.Reason)
}

// Validator applies the NF-e business rules in a fixed order and stops at
// the first violation.
type Validator struct {
	limits Limits
	logger *zap.Logger
	now    func() time.Time
}

// NewValidator creates a validator.
func NewValidator(limits Limits, logger *zap.Logger) *Validator {
	return &Validator{limits: limits, logger: logger, now: time.Now}
}

// Valid reports whether inv passes every rule.
func (v *Validator) Valid(inv *entity.Invoice) bool {
	return v.Validate(inv) == nil
}

// Validate returns a *ValidationError for the first failing rule, or nil.
// Records from tabular sources carry no access key in most exports, so the
// key is only checked for them when one is present.
func (v *Validator) Validate(inv *entity.Invoice) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validator panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = &ValidationError{Rule: "internal", Field: "invoice", Reason: fmt.Sprint(r)}
		}
	}()

	if inv == nil {
		return &ValidationError{Rule: "required", Field: "invoice", Reason: "no invoice"}
	}

	err = v.validate(inv)
	if err != nil {
		v.logger.Warn("invoice failed validation",
			zap.String("number", inv.Number),
			zap.String("access_key", inv.AccessKey),
			zap.Error(err))
	}
	return err
}

func (v *Validator) validate(inv *entity.Invoice) error {
	keyRequired := inv.Source != entity.SourceTabular || strings.TrimSpace(inv.AccessKey) != ""

	required := []struct {
		field string
		value string
	}{
		{"number", inv.Number},
		{"series", inv.Series},
		{"issuer_tax_id", inv.IssuerTaxID},
		{"access_key", inv.AccessKey},
		{"issuer_name", inv.IssuerName},
		{"operation_nature", inv.OperationNature},
	}
	for _, r := range required {
		if r.field == "access_key" && !keyRequired {
			continue
		}
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Rule: "required", Field: r.field, Reason: "empty"}
		}
	}

	if !utils.ValidCNPJ(inv.IssuerTaxID) {
		return &ValidationError{Rule: "tax_id", Field: "issuer_tax_id", Reason: fmt.Sprintf("invalid CNPJ %q", inv.IssuerTaxID)}
	}

	if keyRequired {
		key, ok := utils.SanitizeAccessKey(inv.AccessKey)
		if !ok {
			return &ValidationError{Rule: "access_key", Field: "access_key", Reason: "must have 44 digits"}
		}
		if strings.Trim(key, "0") == "" {
			return &ValidationError{Rule: "access_key", Field: "access_key", Reason: "all zeros"}
		}
	}

	if !inv.Total.IsPositive() {
		return &ValidationError{Rule: "total", Field: "total", Reason: "must be positive"}
	}
	if inv.Total.GreaterThan(maxTotal) {
		return &ValidationError{Rule: "total", Field: "total", Reason: "exceeds " + maxTotal.String()}
	}
	for _, tax := range []struct {
		field string
		value decimal.Decimal
	}{
		{"icms", inv.ICMS}, {"ipi", inv.IPI}, {"pis", inv.PIS}, {"cofins", inv.COFINS},
	} {
		if tax.value.IsNegative() {
			return &ValidationError{Rule: "taxes", Field: tax.field, Reason: "negative"}
		}
	}

	now := v.now()
	if inv.IssueDate.Before(now.Add(-issueDateWindowPast)) || inv.IssueDate.After(now.Add(issueDateWindowFuture)) {
		return &ValidationError{Rule: "issue_date", Field: "issue_date", Reason: fmt.Sprintf("%s outside accepted window", inv.IssueDate.Format("2006-01-02"))}
	}

	if len(inv.Items) > v.limits.MaxItems {
		return &ValidationError{Rule: "items", Field: "items", Reason: fmt.Sprintf("%d items > %d", len(inv.Items), v.limits.MaxItems)}
	}
	for i, item := range inv.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.Code) == "" {
			return &ValidationError{Rule: "items", Field: field, Reason: "empty code"}
		}
		if strings.TrimSpace(item.Description) == "" {
			return &ValidationError{Rule: "items", Field: field, Reason: "empty description"}
		}
		if item.Quantity.IsNegative() || item.UnitValue.IsNegative() || item.Total.IsNegative() {
			return &ValidationError{Rule: "items", Field: field, Reason: "negative value"}
		}
	}

	return nil
}
