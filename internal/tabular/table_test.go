package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		want     string
		encoding string
	}{
		{"utf8", []byte("João"), "João", "utf-8"},
		{"utf8 with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "numero"...), "numero", "utf-8"},
		{"latin1", []byte("Jo\xe3o Ara\xfajo"), "João Araújo", "iso-8859-1"},
		{"windows-1252 quotes", []byte("\x93NF\x94 \x96 A\xe7o"), "“NF” – Aço", "windows-1252"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc, err := Decode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.encoding, enc)
		})
	}
}

func TestParseCSV_DelimiterDetection(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"semicolon", "a;b;c\n1;2;3\n"},
		{"comma", "a,b,c\n1,2,3\n"},
		{"tab", "a\tb\tc\n1\t2\t3\n"},
		{"pipe", "a|b|c\n1|2|3\n"},
		{"crlf", "a;b;c\r\n1;2;3\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseCSV([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, table.Columns)
			assert.Equal(t, [][]string{{"1", "2", "3"}}, table.Rows)
		})
	}
}

func TestParseCSV_SemicolonWinsOverComma(t *testing.T) {
	table, err := ParseCSV([]byte("numero;valor_total\n1;1.500,00\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"numero", "valor_total"}, table.Columns)
	assert.Equal(t, "1.500,00", table.Rows[0][1])
}

func TestParseCSV_RowShapes(t *testing.T) {
	input := "a;b;c\n" +
		"1;2\n" +
		";;\n" +
		"\n" +
		"x;y;z;extra\n" +
		"\"quoted;value\";2;3\n"

	table, err := ParseCSV([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"1", "2", ""},
		{"quoted;value", "2", "3"},
	}, table.Rows)
	assert.Equal(t, 1, table.Skipped)
}

func TestParseCSV_SingleColumn(t *testing.T) {
	_, err := ParseCSV([]byte("numero\n1\n"))
	assert.ErrorIs(t, err, ErrNoColumns)
}

func TestNormalizeColumn(t *testing.T) {
	tests := map[string]string{
		"Descrição do Produto/Serviço": "descricao_do_produto_servico",
		"  NCM-SH ":                    "ncm_sh",
		"Código NCM/SH":                "codigo_ncm_sh",
		"vUnCom":                       "vuncom",
		"DATA EMISSÃO":                 "data_emissao",
		"numero_nf":                    "numero_nf",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeColumn(in), in)
	}
}
