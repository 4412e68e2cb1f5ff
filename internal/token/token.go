// Package token generates opaque identifiers from a digits-only alphabet.
// Session tokens and timer ids both come from here.
package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	alphabet = "0123456789"

	// MinLength keeps the keyspace at 10^12 or larger.
	MinLength = 12

	// DefaultLength gives roughly 66 bits of entropy.
	DefaultLength = 20
)

var alphabetSize = big.NewInt(int64(len(alphabet)))

// Digits returns n characters drawn uniformly from 0-9 using crypto/rand.
func Digits(n int) (string, error) {
	if n < MinLength {
		return "", fmt.Errorf("token length too short")
	}
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("read random digit: %w", err)
		}
		b[i] = alphabet[v.Int64()]
	}
	return string(b), nil
}
