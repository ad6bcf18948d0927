package coupon

import (
	"crypto/rand"
	"fmt"
)

// Codes avoid 0/O and 1/I so they survive being read aloud or retyped.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 10
)

// GenerateCode returns a random coupon code. The alphabet has 32 symbols so
// each random byte maps onto it without bias.
func GenerateCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
