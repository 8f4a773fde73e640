package invoice

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockTextLoader mocks the TextLoader interface
type MockTextLoader struct {
	mock.Mock
}

func (m *MockTextLoader) LoadText(data []byte) (string, error) {
	args := m.Called(data)
	return args.String(0), args.Error(1)
}

const danfeText = `DANFE Documento Auxiliar da Nota Fiscal Eletrônica
Nº 000123   Série: 1
Emitente: ACME COMERCIO LTDA
CNPJ: 11.222.333/0001-81
Data de Emissão: 15/01/2024
Natureza da Operação: VENDA DE MERCADORIA 5102
Valor Total da Nota R$ 1.500,00
Chave de Acesso 3524 0111 2223 3300 0181 5500 1000 0001 2310 0000 1234`

var fixedNow = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestPDFExtractor(loader TextLoader) *PDFExtractor {
	e := NewPDFExtractor(loader, DefaultLimits(), zap.NewNop())
	e.now = func() time.Time { return fixedNow }
	return e
}

func newTestValidator() *Validator {
	v := NewValidator(DefaultLimits(), zap.NewNop())
	v.now = func() time.Time { return fixedNow }
	return v
}

func TestPDFExtractor_Extract_AllPatterns(t *testing.T) {
	loader := new(MockTextLoader)
	loader.On("LoadText", mock.Anything).Return(danfeText, nil)

	inv, err := newTestPDFExtractor(loader).Extract([]byte("%PDF-1.4"), "danfe.pdf")
	require.NoError(t, err)

	assert.Equal(t, "11.222.333/0001-81", inv.IssuerTaxID)
	assert.Equal(t, "000123", inv.Number)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, "1", inv.Series)
	assert.Equal(t, "ACME COMERCIO LTDA", inv.IssuerName)
	assert.Equal(t, "1500", inv.Total.String())
	assert.Equal(t, testAccessKey, inv.AccessKey)
	assert.Equal(t, "VENDA DE MERCADORIA", inv.OperationNature)
	assert.Equal(t, "pdf", string(inv.Source))

	assert.NoError(t, newTestValidator().Validate(inv))
	loader.AssertExpectations(t)
}

func TestPDFExtractor_Extract_ReceivedFromPhrase(t *testing.T) {
	loader := new(MockTextLoader)
	loader.On("LoadText", mock.Anything).Return("Recebemos de DISTRIBUIDORA XYZ os produtos constantes", nil)

	inv, err := newTestPDFExtractor(loader).Extract([]byte("%PDF"), "danfe.pdf")
	require.NoError(t, err)
	assert.Equal(t, "DISTRIBUIDORA XYZ", inv.IssuerName)
}

func TestPDFExtractor_Extract_Defaults(t *testing.T) {
	loader := new(MockTextLoader)
	loader.On("LoadText", mock.Anything).Return("documento sem nenhum campo reconhecível", nil)

	inv, err := newTestPDFExtractor(loader).Extract([]byte("%PDF"), "blank.pdf")
	require.NoError(t, err)

	assert.Equal(t, DefaultPDFTaxID, inv.IssuerTaxID)
	assert.Equal(t, DefaultPDFNumber, inv.Number)
	assert.Equal(t, fixedNow, inv.IssueDate)
	assert.Equal(t, DefaultPDFSeries, inv.Series)
	assert.Equal(t, DefaultPDFIssuer, inv.IssuerName)
	assert.True(t, inv.Total.IsZero())
	assert.Equal(t, DefaultPDFAccessKey, inv.AccessKey)
	assert.Equal(t, DefaultPDFNature, inv.OperationNature)

	fields := make([]string, 0, len(PDFDefaults))
	for _, d := range PDFDefaults {
		assert.NotEmpty(t, d.Trigger, d.Field)
		fields = append(fields, d.Field)
	}
	assert.Equal(t, []string{
		"issuer_tax_id", "number", "issue_date", "series",
		"issuer_name", "total", "access_key", "operation_nature",
	}, fields)
}

func TestPDFExtractor_Extract_InvalidDateFallsBackToNow(t *testing.T) {
	loader := new(MockTextLoader)
	loader.On("LoadText", mock.Anything).Return("Emissão: 31/02/2024", nil)

	inv, err := newTestPDFExtractor(loader).Extract([]byte("%PDF"), "danfe.pdf")
	require.NoError(t, err)
	assert.Equal(t, fixedNow, inv.IssueDate)
}

// A DANFE without a total still yields a record; the validator rejects it.
func TestPDFExtractor_MissingTotalFailsValidation(t *testing.T) {
	loader := new(MockTextLoader)
	loader.On("LoadText", mock.Anything).Return(
		"Nº 123 Série 1 Emitente: ACME CNPJ 11.222.333/0001-81 "+
			"Chave 3524 0111 2223 3300 0181 5500 1000 0001 2310 0000 1234 Emissão 15/01/2024", nil)

	inv, err := newTestPDFExtractor(loader).Extract([]byte("%PDF"), "danfe.pdf")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.True(t, inv.Total.IsZero())

	err = newTestValidator().Validate(inv)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "total", verr.Rule)
}

func TestPDFExtractor_Extract_UnreadablePDF(t *testing.T) {
	loader := new(MockTextLoader)
	loader.On("LoadText", mock.Anything).Return("", errors.New("not a pdf"))

	inv, err := newTestPDFExtractor(loader).Extract([]byte("garbage"), "broken.pdf")
	assert.Nil(t, inv)
	assert.ErrorIs(t, err, ErrUnreadablePDF)
	loader.AssertExpectations(t)
}

func TestPDFExtractor_Extract_TooLarge(t *testing.T) {
	loader := new(MockTextLoader)
	limits := DefaultLimits()
	limits.MaxPDFSize = 8

	e := NewPDFExtractor(loader, limits, zap.NewNop())
	inv, err := e.Extract([]byte("%PDF-1.4 more"), "big.pdf")

	assert.Nil(t, inv)
	assert.ErrorIs(t, err, ErrTooLarge)
	loader.AssertNotCalled(t, "LoadText", mock.Anything)
}

func TestPDFExtractor_Extract_RecoversPanic(t *testing.T) {
	loader := new(MockTextLoader)
	loader.On("LoadText", mock.Anything).Run(func(mock.Arguments) {
		panic("renderer crashed")
	}).Return("", nil)

	inv, err := newTestPDFExtractor(loader).Extract([]byte("%PDF"), "crash.pdf")
	assert.Nil(t, inv)
	assert.ErrorIs(t, err, ErrExtractionPanic)
}

func TestFitzTextLoader_RejectsNonPDF(t *testing.T) {
	_, err := NewFitzTextLoader(zap.NewNop()).LoadText([]byte("definitely not a pdf"))
	assert.ErrorIs(t, err, ErrUnreadablePDF)
}
