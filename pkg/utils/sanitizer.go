package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	markupTags   = regexp.MustCompile(`<[^>]*>`)
	whitespace   = regexp.MustCompile(`\s+`)
	nonNumeric   = regexp.MustCompile(`[^\d,.\-]`)
)

// SanitizeText removes control characters and markup tags, collapses runs of
// whitespace into a single space and truncates the result to maxLen runes.
// A non-positive maxLen disables truncation.
func SanitizeText(value string, maxLen int) string {
	if value == "" {
		return ""
	}
	if !utf8.ValidString(value) {
		value = strings.ToValidUTF8(value, "")
	}

	sanitized := controlChars.ReplaceAllString(value, "")
	sanitized = markupTags.ReplaceAllString(sanitized, "")
	sanitized = whitespace.ReplaceAllString(sanitized, " ")
	sanitized = strings.TrimSpace(sanitized)

	if maxLen > 0 && utf8.RuneCountInString(sanitized) > maxLen {
		sanitized = strings.TrimSpace(string([]rune(sanitized)[:maxLen]))
	}
	return sanitized
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// DigitsOnly drops every rune that is not an ASCII digit.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// SanitizeTaxID normalizes a CNPJ to NN.NNN.NNN/NNNN-NN. It reports false
// unless exactly 14 digits remain once punctuation is removed. Check digits
// are not verified here; see ValidCNPJ.
func SanitizeTaxID(raw string) (string, bool) {
	digits := DigitsOnly(raw)
	if len(digits) != 14 {
		return "", false
	}
	return digits[0:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:14], true
}

// SanitizeAccessKey strips the "NFe" marker and any punctuation from an
// access key and reports whether exactly 44 digits are left.
func SanitizeAccessKey(raw string) (string, bool) {
	digits := DigitsOnly(strings.ReplaceAll(raw, "NFe", ""))
	if len(digits) != 44 {
		return "", false
	}
	return digits, true
}

// SanitizeNumeric parses a Brazilian or plain decimal string. When both '.'
// and ',' appear, '.' is a thousands separator and ',' the decimal mark; a
// lone ',' is the decimal mark. Anything unparseable yields 0.
func SanitizeNumeric(raw string) float64 {
	cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(raw), "")
	if cleaned == "" {
		return 0
	}

	if strings.Contains(cleaned, ",") {
		if strings.Contains(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return value
}

// SanitizeDecimal is SanitizeNumeric lifted into a decimal value.
func SanitizeDecimal(raw string) decimal.Decimal {
	return decimal.NewFromFloat(SanitizeNumeric(raw))
}

// NormalizeTaxID returns the punctuated CNPJ when raw carries exactly 14
// digits and the bare digits otherwise, leaving the checksum to validation.
func NormalizeTaxID(raw string) string {
	if formatted, ok := SanitizeTaxID(raw); ok {
		return formatted
	}
	return DigitsOnly(raw)
}
