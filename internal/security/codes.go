package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// CardNumberAlphabet omits characters that are easy to misread on print:
// 0/O, 1/I/L.
const CardNumberAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CardNumberLength is the number of significant characters in a card number.
const CardNumberLength = 16

const cardNumberGroup = 4

// NewCardNumber returns a random card number drawn from CardNumberAlphabet.
func NewCardNumber() (string, error) {
	limit := big.NewInt(int64(len(CardNumberAlphabet)))
	b := make([]byte, CardNumberLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate card number: %w", err)
		}
		b[i] = CardNumberAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeCardNumber upper-cases input and strips the separators people type
// when copying a printed number.
func NormalizeCardNumber(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		switch r {
		case ' ', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidCardNumber reports whether s is a normalized card number.
func ValidCardNumber(s string) bool {
	if len(s) != CardNumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(CardNumberAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// FormatCardNumber groups a normalized number for printing, e.g. ABCD-EFGH-JKMN-PQRS.
func FormatCardNumber(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if i > 0 && i%cardNumberGroup == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// MaskCardNumber hides all but the last group of a card number.
func MaskCardNumber(s string) string {
	if len(s) <= cardNumberGroup {
		return s
	}
	return strings.Repeat("*", len(s)-cardNumberGroup) + s[len(s)-cardNumberGroup:]
}

// NewLookupCode returns a random lookup code. Lookup codes are lowercase
// UUIDv4 strings, so they never collide with the upper-case card number space.
func NewLookupCode() string {
	return uuid.NewString()
}

// NormalizeLookupCode returns the canonical form of a lookup code, or false
// when s is not one.
func NormalizeLookupCode(s string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
