package tabular

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical field names shared by every role.
const (
	FieldNumber      = "numero"
	FieldSeries      = "serie"
	FieldIssuerTaxID = "cnpj_emitente"
	FieldIssuerName  = "nome_emitente"
	FieldIssueDate   = "data_emissao"
	FieldTotal       = "valor_total"
	FieldAccessKey   = "chave_acesso"
	FieldNature      = "natureza_operacao"

	FieldItemNumber      = "numero_nf"
	FieldItemCode        = "codigo_produto"
	FieldItemDescription = "descricao"
	FieldItemNCM         = "ncm"
	FieldItemQuantity    = "quantidade"
	FieldItemUnitValue   = "valor_unitario"
	FieldItemTotal       = "valor_total"
)

var headerSynonyms = map[string][]string{
	FieldNumber:      {"numero", "NÚMERO", "nf_numero", "numero_nf", "num_nf", "NF_NUMERO"},
	FieldSeries:      {"serie", "SÉRIE", "serie_nf", "nf_serie", "SERIE_NF"},
	FieldIssuerTaxID: {"cnpj_emitente", "cnpj_emit", "emitente_cnpj", "CPF/CNPJ Emitente"},
	FieldIssuerName:  {"nome_emitente", "razao_emitente", "emitente_nome", "NOME EMITENTE", "RAZÃO SOCIAL EMITENTE"},
	FieldIssueDate:   {"data_emissao", "dt_emissao", "data_emiss", "DATA EMISSÃO"},
	FieldTotal:       {"valor_total", "vl_total", "total_nf", "VALOR NOTA FISCAL"},
	FieldAccessKey:   {"chave_acesso", "chave_nfe", "chave", "CHAVE DE ACESSO"},
	FieldNature:      {"natureza_operacao", "nat_operacao", "cfop", "NATUREZA DA OPERAÇÃO"},
}

var headerRequired = []string{FieldNumber, FieldIssuerTaxID, FieldIssuerName}

var itemSynonyms = map[string][]string{
	FieldItemNumber: {"numero_nf", "numero", "nf_numero", "numero_nota_fiscal", "num_nf", "numero_da_nota_fiscal"},
	FieldItemCode: {"codigo_produto", "codigo", "cod_produto", "cprod", "numero_produto", "num_produto",
		"codigo_item", "codigo_do_produto", "numero_do_produto"},
	FieldItemDescription: {"descricao", "descricao_produto", "xprod", "produto", "descricao_do_produto",
		"descricao_do_item", "descricao_item", "item_descricao", "descricao_prod",
		"descricao_do_produto_servico", "descricao_produto_servico", "produto_servico"},
	FieldItemNCM:       {"ncm", "codigo_ncm", "codigo_ncm_sh", "codigo_ncmsh", "ncm_sh", "ncmsh"},
	FieldItemQuantity:  {"quantidade", "qtd", "qtde", "qcom", "quantidade_item"},
	FieldItemUnitValue: {"valor_unitario", "vl_unitario", "preco_unitario", "vuncom", "valor_unitario_item", "preco_unitario_item"},
	FieldItemTotal:     {"valor_total", "vl_total", "total_item", "vprod", "valor_total_item"},
}

var itemRequired = []string{FieldItemNumber, FieldItemCode, FieldItemDescription}

var flatRequired = []string{FieldNumber, FieldIssuerTaxID, FieldIssuerName, FieldIssueDate, FieldTotal}

var flatOptional = []string{FieldSeries, FieldAccessKey, FieldNature}

var punctuation = strings.NewReplacer("/", " ", "-", " ", ".", " ", ":", " ")

// NormalizeColumn folds a column name for synonym matching: diacritics are
// stripped, case is folded, separators become underscores.
func NormalizeColumn(name string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		stripped = name
	}
	folded := punctuation.Replace(strings.ToLower(strings.TrimSpace(stripped)))
	return strings.Join(strings.Fields(folded), "_")
}

// columnMap maps canonical field names to column indexes.
type columnMap map[string]int

func (m columnMap) value(row []string, field string) string {
	i, ok := m[field]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (m columnMap) has(field string) bool {
	_, ok := m[field]
	return ok
}

func (m columnMap) missing(required []string) []string {
	var out []string
	for _, f := range required {
		if !m.has(f) {
			out = append(out, f)
		}
	}
	return out
}

// mapBySynonyms resolves columns through a synonym table after normalizing
// both sides. The first matching column wins.
func mapBySynonyms(columns []string, synonyms map[string][]string) columnMap {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		key := NormalizeColumn(col)
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}

	fields := make([]string, 0, len(synonyms))
	for field := range synonyms {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	m := make(columnMap)
	for _, field := range fields {
		for _, syn := range synonyms[field] {
			if i, ok := index[NormalizeColumn(syn)]; ok {
				m[field] = i
				break
			}
		}
	}
	return m
}

// mapLiteral resolves columns by exact name only.
func mapLiteral(columns []string, fields ...[]string) columnMap {
	m := make(columnMap)
	for _, group := range fields {
		for _, field := range group {
			for i, col := range columns {
				if col == field {
					m[field] = i
					break
				}
			}
		}
	}
	return m
}
