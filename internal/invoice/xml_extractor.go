package invoice

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/pkg/utils"
	"go.uber.org/zap"
)

// XMLExtractor turns NF-e XML (bare NFe or the nfeProc envelope) into an
// invoice record.
type XMLExtractor struct {
	limits Limits
	logger *zap.Logger
}

// NewXMLExtractor creates an XML extractor bound to the given limits.
func NewXMLExtractor(limits Limits, logger *zap.Logger) *XMLExtractor {
	return &XMLExtractor{limits: limits, logger: logger}
}

// Extract parses data and maps the NF-e fields. The size bound is checked
// before any parsing happens.
func (e *XMLExtractor) Extract(data []byte, fileName string) (inv *entity.Invoice, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("XML extraction panicked",
				zap.String("file", fileName),
				zap.Any("panic", r),
				zap.Stack("stack"))
			inv, err = nil, ErrExtractionPanic
		}
	}()

	if len(data) > e.limits.MaxXMLSize {
		e.logger.Warn("XML exceeds size limit",
			zap.String("file", fileName),
			zap.Int("size", len(data)),
			zap.Int("limit", e.limits.MaxXMLSize))
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, len(data), e.limits.MaxXMLSize)
	}
	if !utf8.Valid(data) {
		return nil, ErrNotUTF8
	}

	root, err := parseTree(data)
	if err != nil {
		e.logger.Warn("XML rejected", zap.String("file", fileName), zap.Error(err))
		return nil, err
	}

	if root.name.Local != "nfeProc" && root.name.Local != "NFe" {
		return nil, fmt.Errorf("%w: root element %q", ErrUnsupportedStructure, root.name.Local)
	}
	infNFe := root.find("infNFe")
	if infNFe == nil {
		return nil, fmt.Errorf("%w: infNFe", ErrUnsupportedStructure)
	}

	ide := infNFe.child("ide")
	emit := infNFe.child("emit")
	icmsTot := infNFe.child("total").child("ICMSTot")
	for _, req := range []struct {
		name string
		node *xmlNode
	}{{"ide", ide}, {"emit", emit}, {"total/ICMSTot", icmsTot}} {
		if req.node == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingElement, req.name)
		}
	}

	inv = entity.NewInvoice(entity.SourceXML)
	inv.Number = e.text(ide.textOf("nNF"))
	inv.Series = e.text(ide.textOf("serie"))
	inv.OperationNature = e.text(ide.textOf("natOp"))
	inv.IssueDate = e.issueDate(ide, fileName)

	inv.IssuerTaxID = utils.NormalizeTaxID(emit.textOf("CNPJ"))
	inv.IssuerName = e.text(emit.textOf("xNome"))
	if dest := infNFe.child("dest"); dest != nil {
		recipient := dest.textOf("CNPJ")
		if recipient == "" {
			recipient = dest.textOf("CPF")
		}
		inv.RecipientTaxID = utils.NormalizeTaxID(recipient)
		inv.RecipientName = e.text(dest.textOf("xNome"))
	}

	inv.Total = utils.SanitizeDecimal(icmsTot.textOf("vNF"))
	inv.ICMS = utils.SanitizeDecimal(icmsTot.textOf("vICMS"))
	inv.IPI = utils.SanitizeDecimal(icmsTot.textOf("vIPI"))
	inv.PIS = utils.SanitizeDecimal(icmsTot.textOf("vPIS"))
	inv.COFINS = utils.SanitizeDecimal(icmsTot.textOf("vCOFINS"))

	inv.AccessKey = accessKey(infNFe.attr("Id"), root)
	inv.Items = e.items(infNFe, fileName)
	inv.RawSource = utils.Truncate(string(data), e.limits.RawXMLChars)

	e.logger.Debug("XML extracted",
		zap.String("file", fileName),
		zap.String("number", inv.Number),
		zap.Int("items", len(inv.Items)))

	return inv, nil
}

func (e *XMLExtractor) text(raw string) string {
	return utils.SanitizeText(raw, e.limits.MaxTextLength)
}

// issueDate reads dhEmi (date-time) or the older dEmi (date only). Only the
// calendar date is kept. A zero time is returned when neither parses so the
// validator rejects the record.
func (e *XMLExtractor) issueDate(ide *xmlNode, fileName string) time.Time {
	raw := strings.TrimSpace(ide.textOf("dhEmi"))
	if raw == "" {
		raw = strings.TrimSpace(ide.textOf("dEmi"))
	}
	if i := strings.IndexByte(raw, 'T'); i >= 0 {
		raw = raw[:i]
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		e.logger.Warn("unparseable issue date", zap.String("file", fileName), zap.String("value", raw))
		return time.Time{}
	}
	return d
}

func (e *XMLExtractor) items(infNFe *xmlNode, fileName string) []entity.LineItem {
	dets := infNFe.all("det")
	if len(dets) > e.limits.MaxItems {
		e.logger.Warn("item count exceeds limit, truncating",
			zap.String("file", fileName),
			zap.Int("count", len(dets)),
			zap.Int("limit", e.limits.MaxItems))
		dets = dets[:e.limits.MaxItems]
	}

	items := make([]entity.LineItem, 0, len(dets))
	for _, det := range dets {
		prod := det.child("prod")
		if prod == nil {
			continue
		}
		item := entity.LineItem{
			Code:        utils.SanitizeText(prod.textOf("cProd"), 100),
			Description: e.text(prod.textOf("xProd")),
			NCM:         utils.SanitizeText(prod.textOf("NCM"), 20),
			Quantity:    utils.SanitizeDecimal(prod.textOf("qCom")),
			UnitValue:   utils.SanitizeDecimal(prod.textOf("vUnCom")),
			Total:       utils.SanitizeDecimal(prod.textOf("vProd")),
		}
		item.DeriveTotal()
		items = append(items, item)
	}
	return items
}

// accessKey prefers the infNFe Id attribute and falls back to the
// authorization protocol's chNFe. Unsanitizable keys are kept as digits so
// the validator reports them.
func accessKey(id string, root *xmlNode) string {
	if key, ok := utils.SanitizeAccessKey(id); ok {
		return key
	}
	ch := root.child("protNFe").child("infProt").textOf("chNFe")
	if key, ok := utils.SanitizeAccessKey(ch); ok {
		return key
	}
	return utils.DigitsOnly(id)
}
