package invoice

// FieldDefault documents the value a PDF field takes when its pattern does
// not match the DANFE text.
type FieldDefault struct {
	Field   string
	Default string
	Trigger string
}

const (
	DefaultPDFTaxID     = "00.111.111/0001-11"
	DefaultPDFNumber    = "0"
	DefaultPDFSeries    = "0"
	DefaultPDFIssuer    = "EMITENTE NÃO ENCONTRADO"
	DefaultPDFTotal     = "0"
	DefaultPDFAccessKey = "00000000000000000000000000000000000000000000"
	DefaultPDFNature    = "SEM NATUREZA"
)

// PDFDefaults lists every fallback the PDF extractor applies, in the order
// the patterns are searched.
var PDFDefaults = []FieldDefault{
	{Field: "issuer_tax_id", Default: DefaultPDFTaxID, Trigger: "no \"CNPJ\" label followed by 14-18 digit/punctuation chars"},
	{Field: "number", Default: DefaultPDFNumber, Trigger: "no \"Nº\" or \"N°\" followed by 1-9 digits"},
	{Field: "issue_date", Default: "current time", Trigger: "no \"Emissão\" label with a DD/MM/YYYY date, or the date does not parse"},
	{Field: "series", Default: DefaultPDFSeries, Trigger: "no \"Série\" label followed by 1-3 digits"},
	{Field: "issuer_name", Default: DefaultPDFIssuer, Trigger: "no \"Emitente\" label and no \"recebemos de ... os produtos\" phrase"},
	{Field: "total", Default: DefaultPDFTotal, Trigger: "no \"Valor Total da Nota\" amount"},
	{Field: "access_key", Default: DefaultPDFAccessKey, Trigger: "no run of eleven 4-digit groups"},
	{Field: "operation_nature", Default: DefaultPDFNature, Trigger: "no \"Natureza da Operação\" label followed by words"},
}
