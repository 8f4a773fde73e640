package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"empty", "", 10, ""},
		{"strips control characters", "ACME\x00\x07 LTDA\x7f", 100, "ACME LTDA"},
		{"strips markup", "<b>ACME</b> <script>alert(1)</script>LTDA", 100, "ACME alert(1)LTDA"},
		{"collapses whitespace", "  ACME \t\n  LTDA  ", 100, "ACME LTDA"},
		{"truncates by runes", "AÇÃOÉÊ", 3, "AÇÃ"},
		{"no limit", "ACME LTDA", 0, "ACME LTDA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeText(tt.input, tt.maxLen))
		})
	}
}

func TestSanitizeTaxID(t *testing.T) {
	t.Run("punctuated", func(t *testing.T) {
		got, ok := SanitizeTaxID("11222333000181")
		assert.True(t, ok)
		assert.Equal(t, "11.222.333/0001-81", got)
	})

	t.Run("already punctuated", func(t *testing.T) {
		got, ok := SanitizeTaxID(" 11.222.333/0001-81 ")
		assert.True(t, ok)
		assert.Equal(t, "11.222.333/0001-81", got)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, ok := SanitizeTaxID("123.456.789-09")
		assert.False(t, ok)
	})
}

func TestSanitizeAccessKey(t *testing.T) {
	key := "35240111222333000181550010000001231000001234"

	t.Run("strips marker and spaces", func(t *testing.T) {
		got, ok := SanitizeAccessKey("NFe" + key[:4] + " " + key[4:])
		assert.True(t, ok)
		assert.Equal(t, key, got)
	})

	t.Run("idempotent", func(t *testing.T) {
		inputs := []string{"NFe" + key, key, "3524 0111 2223 3300 0181 5500 1000 0001 2310 0000 1234"}
		for _, in := range inputs {
			once, ok := SanitizeAccessKey(in)
			assert.True(t, ok)
			twice, ok := SanitizeAccessKey(once)
			assert.True(t, ok)
			assert.Equal(t, once, twice)
		}
	})

	t.Run("rejects short keys", func(t *testing.T) {
		_, ok := SanitizeAccessKey("NFe1234")
		assert.False(t, ok)
	})
}

func TestSanitizeNumeric(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"1500.00", 1500},
		{"1500,50", 1500.5},
		{"1.234,56", 1234.56},
		{"R$ 1.234,56", 1234.56},
		{"-10,5", -10.5},
		{"", 0},
		{"abc", 0},
		{"1-2-3", 0},
		{"1.2.3", 0},
		{",", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.want, SanitizeNumeric(tt.input), 1e-9)
		})
	}

	t.Run("never panics on arbitrary input", func(t *testing.T) {
		inputs := []string{strings.Repeat("9", 400), "\x00\xff", "--", "..,,", "1e308", "NaN", "+Inf"}
		for _, in := range inputs {
			assert.NotPanics(t, func() { SanitizeNumeric(in) })
		}
	})
}

func TestSanitizeDecimal(t *testing.T) {
	assert.Equal(t, "1500.5", SanitizeDecimal("R$ 1.500,50").String())
	assert.True(t, SanitizeDecimal("n/a").IsZero())
}

func TestNormalizeTaxID(t *testing.T) {
	assert.Equal(t, "11.222.333/0001-81", NormalizeTaxID("11222333000181"))
	assert.Equal(t, "12345", NormalizeTaxID("12.345"))
	assert.Empty(t, NormalizeTaxID(""))
}
