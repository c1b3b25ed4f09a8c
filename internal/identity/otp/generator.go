package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generator produces one-time codes. Pluggable so deployments can pin a fixed
// code in development without touching the state machine.
type Generator interface {
	Code() (string, error)
}

// RandomGenerator draws 6-digit codes from crypto/rand.
type RandomGenerator struct{}

func (RandomGenerator) Code() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// FixedGenerator always returns the same code. Development and demos only.
type FixedGenerator struct {
	Value string
}

func (g FixedGenerator) Code() (string, error) {
	return g.Value, nil
}
