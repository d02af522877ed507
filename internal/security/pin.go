package security

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// PINLength is the fixed number of digits in a card PIN.
const PINLength = 4

// DefaultPINCost is the bcrypt work factor used when none is configured.
const DefaultPINCost = 10

// PINHasher hashes and verifies card PINs with bcrypt.
type PINHasher struct {
	cost int
}

// NewPINHasher returns a hasher using cost, clamped to bcrypt's accepted range.
func NewPINHasher(cost int) *PINHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPINCost
	}
	return &PINHasher{cost: cost}
}

// Hash returns the one-way hash of pin.
func (h *PINHasher) Hash(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

// Verify compares a stored hash with a candidate PIN.
func (h *PINHasher) Verify(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// NewPIN returns a uniformly random PIN of PINLength digits, zero padded.
func NewPIN() (string, error) {
	limit := big.NewInt(10_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%0*d", PINLength, n.Int64()), nil
}

// ValidPIN reports whether pin has the expected shape.
func ValidPIN(pin string) bool {
	if len(pin) != PINLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
