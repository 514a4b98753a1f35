// Package otp issues and verifies short-lived numeric login codes.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	CodeLength = 6
	// MaxAttempts wrong guesses invalidate a code.
	MaxAttempts = 5
)

var (
	ErrCodeMismatch = errors.New("otp does not match")
	ErrCodeExpired  = errors.New("otp expired or not requested")
)

// Store keeps at most one live code per key.
type Store interface {
	// Save replaces any existing code for key.
	Save(ctx context.Context, key, code string, ttl time.Duration) error
	// Verify deletes the code and returns nil when it matches. A wrong code
	// returns ErrCodeMismatch; a missing one returns ErrCodeExpired.
	Verify(ctx context.Context, key, code string) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// Generate returns a uniformly random zero-padded 6 digit code.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
