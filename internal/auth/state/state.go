// Package state issues the single-use tokens that bind a browser sign-in
// attempt to the relay entry it will produce.
package state

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"go.uber.org/fx"
)

// tokenBytes encodes to 43 base64url characters.
const tokenBytes = 32

// Generator issues attempt-scoped state tokens.
type Generator interface {
	Generate() (string, error)
}

// CryptoGenerator reads from a CSPRNG.
type CryptoGenerator struct {
	reader io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *CryptoGenerator {
	return &CryptoGenerator{reader: rand.Reader}
}

// Generate returns a fresh URL-safe token.
func (g *CryptoGenerator) Generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(g.reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ Generator = (*CryptoGenerator)(nil)

// Module provides the state generator
var Module = fx.Module("state",
	fx.Provide(
		fx.Annotate(
			NewGenerator,
			fx.As(new(Generator)),
		),
	),
)
