package idgen

import (
	"crypto/rand"
	"math/big"
)

// Source supplies the randomness a candidate chain consumes: fresh seeds and
// multiplier increments.
type Source interface {
	// Uint64N returns a uniformly distributed value in [0, n).
	Uint64N(n uint64) (uint64, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(n uint64) (uint64, error)

// Uint64N calls f(n).
func (f SourceFunc) Uint64N(n uint64) (uint64, error) {
	return f(n)
}

// CryptoSource draws from crypto/rand.
type CryptoSource struct{}

// Uint64N returns a cryptographically random value in [0, n).
func (CryptoSource) Uint64N(n uint64) (uint64, error) {
	if n <= 1 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, new(big.Int).SetUint64(n))
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}
