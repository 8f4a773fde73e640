package invoice

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testAccessKey = "35240111222333000181550010000001231000001234"

const detTemplate = `<det nItem="%d"><prod><cProd>P%03d</cProd><xProd>PARAFUSO %d</xProd><NCM>73181500</NCM><qCom>10.0000</qCom><vUnCom>150.00</vUnCom><vProd>1500.00</vProd></prod></det>`

func nfeDocument(ns, idAttr, ide, dets string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<nfeProc %s versao="4.00">
  <NFe>
    <infNFe %s versao="4.00">
      %s
      <emit><CNPJ>11222333000181</CNPJ><xNome>ACME   COMERCIO &lt;b&gt;LTDA&lt;/b&gt;</xNome></emit>
      <dest><CNPJ>11444777000161</CNPJ><xNome>CLIENTE SA</xNome></dest>
      %s
      <total><ICMSTot><vICMS>180.00</vICMS><vIPI>0.00</vIPI><vPIS>9.75</vPIS><vCOFINS>45.00</vCOFINS><vNF>1500.00</vNF></ICMSTot></total>
    </infNFe>
  </NFe>
  <protNFe><infProt><chNFe>%s</chNFe></infProt></protNFe>
</nfeProc>`, ns, idAttr, ide, dets, testAccessKey)
}

const defaultIde = `<ide><natOp>VENDA DE MERCADORIA</natOp><serie>1</serie><nNF>123</nNF><dhEmi>2024-01-15T10:30:00-03:00</dhEmi></ide>`

func validXML() []byte {
	return []byte(nfeDocument(
		`xmlns="`+NFeNamespace+`"`,
		`Id="NFe`+testAccessKey+`"`,
		defaultIde,
		fmt.Sprintf(detTemplate, 1, 1, 1),
	))
}

func newTestXMLExtractor(limits Limits) *XMLExtractor {
	return NewXMLExtractor(limits, zap.NewNop())
}

func TestXMLExtractor_Extract_NamespacedEnvelope(t *testing.T) {
	inv, err := newTestXMLExtractor(DefaultLimits()).Extract(validXML(), "nota.xml")
	require.NoError(t, err)
	require.NotNil(t, inv)

	assert.Equal(t, "123", inv.Number)
	assert.Equal(t, "1", inv.Series)
	assert.Equal(t, "VENDA DE MERCADORIA", inv.OperationNature)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, "11.222.333/0001-81", inv.IssuerTaxID)
	assert.Equal(t, "ACME COMERCIO LTDA", inv.IssuerName)
	assert.Equal(t, "11.444.777/0001-61", inv.RecipientTaxID)
	assert.Equal(t, "CLIENTE SA", inv.RecipientName)
	assert.Equal(t, testAccessKey, inv.AccessKey)
	assert.Equal(t, "1500", inv.Total.String())
	assert.Equal(t, "180", inv.ICMS.String())
	assert.Equal(t, "9.75", inv.PIS.String())
	assert.Equal(t, "45", inv.COFINS.String())
	assert.Equal(t, "pending", inv.Status)

	require.Len(t, inv.Items, 1)
	assert.Equal(t, "P001", inv.Items[0].Code)
	assert.Equal(t, "PARAFUSO 1", inv.Items[0].Description)
	assert.Equal(t, "73181500", inv.Items[0].NCM)
	assert.Equal(t, "10", inv.Items[0].Quantity.String())
	assert.Equal(t, "1500", inv.Items[0].Total.String())
}

func TestXMLExtractor_Extract_WithoutNamespace(t *testing.T) {
	doc := `<NFe><infNFe Id="NFe` + testAccessKey + `">
		<ide><natOp>VENDA</natOp><serie>2</serie><nNF>77</nNF><dEmi>2023-12-01</dEmi></ide>
		<emit><CNPJ>11222333000181</CNPJ><xNome>ACME</xNome></emit>
		<det nItem="1"><prod><cProd>A</cProd><xProd>ITEM</xProd><qCom>2</qCom><vUnCom>2.50</vUnCom></prod></det>
		<total><ICMSTot><vNF>5.00</vNF></ICMSTot></total>
	</infNFe></NFe>`

	inv, err := newTestXMLExtractor(DefaultLimits()).Extract([]byte(doc), "plain.xml")
	require.NoError(t, err)

	assert.Equal(t, "77", inv.Number)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, testAccessKey, inv.AccessKey)
	assert.Empty(t, inv.RecipientTaxID)
	assert.True(t, inv.ICMS.IsZero())
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "5", inv.Items[0].Total.String(), "line total derived from quantity and unit value")
}

func TestXMLExtractor_Extract_AccessKeyFromProtocol(t *testing.T) {
	doc := nfeDocument(`xmlns="`+NFeNamespace+`"`, ``, defaultIde, "")

	inv, err := newTestXMLExtractor(DefaultLimits()).Extract([]byte(doc), "prot.xml")
	require.NoError(t, err)
	assert.Equal(t, testAccessKey, inv.AccessKey)
}

func TestXMLExtractor_Extract_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "missing infNFe",
			doc:     `<nfeProc xmlns="` + NFeNamespace + `"><NFe><other/></NFe></nfeProc>`,
			wantErr: ErrUnsupportedStructure,
		},
		{
			name:    "foreign root",
			doc:     `<invoice><infNFe/></invoice>`,
			wantErr: ErrUnsupportedStructure,
		},
		{
			name:    "missing issuer",
			doc:     `<NFe><infNFe>` + defaultIde + `<total><ICMSTot><vNF>1</vNF></ICMSTot></total></infNFe></NFe>`,
			wantErr: ErrMissingElement,
		},
		{
			name:    "missing totals",
			doc:     `<NFe><infNFe>` + defaultIde + `<emit><CNPJ>1</CNPJ></emit><total/></infNFe></NFe>`,
			wantErr: ErrMissingElement,
		},
		{
			name:    "doctype",
			doc:     `<?xml version="1.0"?><!DOCTYPE NFe [<!ENTITY x "boom">]><NFe>&x;</NFe>`,
			wantErr: ErrForbiddenDTD,
		},
		{
			name:    "unbalanced tags",
			doc:     `<NFe><infNFe></NFe>`,
			wantErr: ErrMalformedXML,
		},
		{
			name:    "empty",
			doc:     ``,
			wantErr: ErrMalformedXML,
		},
		{
			name:    "declared latin1",
			doc:     `<?xml version="1.0" encoding="ISO-8859-1"?><NFe/>`,
			wantErr: ErrMalformedXML,
		},
		{
			name:    "invalid utf8",
			doc:     "<NFe><infNFe>\xff</infNFe></NFe>",
			wantErr: ErrNotUTF8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := newTestXMLExtractor(DefaultLimits()).Extract([]byte(tt.doc), "bad.xml")
			assert.Nil(t, inv)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestXMLExtractor_Extract_OversizeRejectedBeforeParse(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	extractor := NewXMLExtractor(DefaultLimits(), zap.New(core))

	data := bytes.Repeat([]byte("<"), DefaultLimits().MaxXMLSize+1)
	inv, err := extractor.Extract(data, "huge.xml")

	assert.Nil(t, inv)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.NotErrorIs(t, err, ErrMalformedXML)
	assert.Equal(t, 1, logs.FilterMessage("XML exceeds size limit").Len())
	assert.Zero(t, logs.FilterMessage("XML rejected").Len())
}

func TestXMLExtractor_Extract_ItemCap(t *testing.T) {
	var dets strings.Builder
	for i := 1; i <= 5; i++ {
		dets.WriteString(fmt.Sprintf(detTemplate, i, i, i))
	}
	doc := nfeDocument(`xmlns="`+NFeNamespace+`"`, `Id="NFe`+testAccessKey+`"`, defaultIde, dets.String())

	limits := DefaultLimits()
	limits.MaxItems = 3
	inv, err := newTestXMLExtractor(limits).Extract([]byte(doc), "many.xml")
	require.NoError(t, err)

	require.Len(t, inv.Items, 3)
	assert.Equal(t, "P003", inv.Items[2].Code)
}

func TestXMLExtractor_Extract_RawSourceBounded(t *testing.T) {
	limits := DefaultLimits()
	limits.RawXMLChars = 64

	inv, err := newTestXMLExtractor(limits).Extract(validXML(), "nota.xml")
	require.NoError(t, err)
	assert.Equal(t, 64, utf8.RuneCountInString(inv.RawSource))
	assert.True(t, strings.HasPrefix(inv.RawSource, "<?xml"))
}

func TestXMLExtractor_ExtractThenValidate(t *testing.T) {
	inv, err := newTestXMLExtractor(DefaultLimits()).Extract(validXML(), "nota.xml")
	require.NoError(t, err)

	v := NewValidator(DefaultLimits(), zap.NewNop())
	v.now = func() time.Time { return time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, v.Validate(inv))
	assert.Equal(t, testAccessKey, inv.AccessKey)
}
