package newsletter

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	thumbprintLength   = 40
	thumbprintAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// The token space is 52^40; a collision on a populated table means the
	// random source is broken, not that we got unlucky. Bail out instead of
	// spinning.
	maxThumbprintRetries = 10
)

// ThumbprintGenerator produces the opaque bearer tokens that identify
// pending links.
type ThumbprintGenerator struct{}

// NewThumbprintGenerator returns a generator backed by crypto/rand.
func NewThumbprintGenerator() *ThumbprintGenerator {
	return &ThumbprintGenerator{}
}

// Generate returns a 40-character alphabetic token.
func (g *ThumbprintGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(thumbprintAlphabet)))
	buf := make([]byte, thumbprintLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading random source: %w", err)
		}
		buf[i] = thumbprintAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// GenerateUnique returns a token for which exists reports false, retrying a
// bounded number of times. Exhausting the retries is a configuration-level
// failure, not a recoverable condition.
func (g *ThumbprintGenerator) GenerateUnique(ctx context.Context, exists func(ctx context.Context, thumbprint string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxThumbprintRetries; attempt++ {
		candidate, err := g.Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking thumbprint uniqueness: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no unique thumbprint after %d attempts; random source suspect", maxThumbprintRetries)
}
