package utils

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidCNPJ reports whether raw holds a 14-digit CNPJ whose two check digits
// match the modulo 11 algorithm. Sequences of a single repeated digit are
// rejected even though they satisfy the arithmetic.
func ValidCNPJ(raw string) bool {
	digits := DigitsOnly(raw)
	if len(digits) != 14 || allSame(digits) {
		return false
	}

	d := make([]int, 14)
	for i := range digits {
		d[i] = int(digits[i] - '0')
	}

	return d[12] == cnpjCheckDigit(d[:12], cnpjFirstWeights) &&
		d[13] == cnpjCheckDigit(d[:13], cnpjSecondWeights)
}

func cnpjCheckDigit(digits, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
