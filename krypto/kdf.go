package krypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltLengthBytes is the enforced salt length for key derivation.
	SaltLengthBytes = 16

	// MaxPBKDF2Iterations caps the iteration count accepted from notebook
	// files. The count is untrusted input; anything above this is rejected
	// rather than burned through.
	MaxPBKDF2Iterations = 5_000_000
)

// PBKDF2Params captures tunable parameters for PBKDF2-HMAC-SHA256.
type PBKDF2Params struct {
	Iterations int
	SaltLen    int
	KeyLen     int
}

// DefaultPBKDF2Params returns sane defaults for deriving a 256-bit key.
func DefaultPBKDF2Params() PBKDF2Params {
	return PBKDF2Params{
		Iterations: 150_000,
		SaltLen:    SaltLengthBytes,
		KeyLen:     32,
	}
}

// DeriveKeyPBKDF2 derives a key using PBKDF2-HMAC-SHA256 with the provided parameters.
func DeriveKeyPBKDF2(password []byte, salt []byte, p PBKDF2Params) ([]byte, error) {
	if len(password) == 0 {
		return nil, errors.New("password is required")
	}
	if len(salt) != SaltLengthBytes {
		return nil, fmt.Errorf("salt must be %d bytes", SaltLengthBytes)
	}
	if p.Iterations <= 0 {
		return nil, errors.New("iteration count must be positive")
	}
	if p.Iterations > MaxPBKDF2Iterations {
		return nil, fmt.Errorf("iteration count %d exceeds maximum %d", p.Iterations, MaxPBKDF2Iterations)
	}
	if p.KeyLen <= 0 {
		return nil, errors.New("key length must be positive")
	}

	key := pbkdf2.Key(password, salt, p.Iterations, p.KeyLen, sha256.New)
	if len(key) != p.KeyLen {
		return nil, fmt.Errorf("derived key has unexpected length %d", len(key))
	}
	return key, nil
}

// NewRandomSalt returns a cryptographically secure random salt of length n bytes.
func NewRandomSalt(n int) ([]byte, error) {
	if n <= 0 {
		n = SaltLengthBytes
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Wipe overwrites sensitive byte slices in place to reduce lifetime in memory.
func Wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
