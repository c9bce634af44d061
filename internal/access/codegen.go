// Package access owns the access-code state machine and the orchestration of
// provisioning, revocation, expiry sweeps, and lock status synchronization.
package access

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeGenerator produces short numeric access codes.
type CodeGenerator struct {
	length int
}

// NewCodeGenerator creates a generator for codes of the given digit length.
// Lengths outside 4-8 are clamped.
func NewCodeGenerator(length int) *CodeGenerator {
	if length < 4 {
		length = 4
	}
	if length > 8 {
		length = 8
	}
	return &CodeGenerator{length: length}
}

// Generate returns a random numeric code. Leading zeros are allowed; the
// value is always exactly the configured length.
func (g *CodeGenerator) Generate() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < g.length; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	return fmt.Sprintf("%0*d", g.length, n), nil
}

// Validate checks that a caller-supplied code is all digits within the
// accepted length range.
func (g *CodeGenerator) Validate(code string) error {
	if len(code) < 4 || len(code) > 8 {
		return fmt.Errorf("code must be 4-8 digits")
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return fmt.Errorf("code must contain only digits")
		}
	}
	return nil
}
