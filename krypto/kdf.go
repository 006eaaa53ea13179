package krypto

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltLength is the salt size in bytes fixed at vault creation.
	SaltLength = 32
	// KeyLength is the derived key size in bytes (AES-256).
	KeyLength = 32
	// MinIterations is the lowest PBKDF2 iteration count accepted.
	MinIterations = 250_000
	// DefaultIterations is used when no explicit count is configured.
	DefaultIterations = MinIterations
)

var (
	// ErrEmptyPassphrase is returned when deriving from an empty passphrase.
	ErrEmptyPassphrase = errors.New("passphrase is required")
	// ErrInvalidSalt is returned when the salt is not SaltLength bytes.
	ErrInvalidSalt = fmt.Errorf("salt must be %d bytes", SaltLength)
)

// PBKDF2Params captures tunable parameters for PBKDF2-HMAC-SHA512.
type PBKDF2Params struct {
	Iterations int
}

// DefaultPBKDF2Params returns the parameters used for new vaults.
func DefaultPBKDF2Params() PBKDF2Params {
	return PBKDF2Params{Iterations: DefaultIterations}
}

// Validate rejects parameter sets weaker than the floor.
func (p PBKDF2Params) Validate() error {
	if p.Iterations < MinIterations {
		return fmt.Errorf("pbkdf2 iterations must be at least %d, got %d", MinIterations, p.Iterations)
	}
	return nil
}

// DeriveKey runs PBKDF2-HMAC-SHA512 over passphrase and salt and returns the
// result as an opaque Key. The same inputs always yield the same key.
func DeriveKey(passphrase, salt []byte, p PBKDF2Params) (*Key, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) != SaltLength {
		return nil, ErrInvalidSalt
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	raw := pbkdf2.Key(passphrase, salt, p.Iterations, KeyLength, sha512.New)
	return KeyFromBytes(raw)
}

// NewRandomSalt returns a fresh SaltLength-byte salt from crypto/rand.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
