package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinSaltSize is the shortest salt accepted by Hasher.
	MinSaltSize   = 16
	derivedKeyLen = 32
)

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("crypto: empty password")
	// ErrShortSalt is returned when a salt is shorter than MinSaltSize.
	ErrShortSalt = errors.New("crypto: salt too short")
)

// Hasher derives password hashes with PBKDF2-HMAC-SHA512.
type Hasher struct {
	Iterations int
	SaltSize   int
}

// NewHasher returns a Hasher, clamping the work factor and salt size to safe minimums.
func NewHasher(iterations, saltSize int) Hasher {
	if iterations < 1 {
		iterations = 1
	}
	if saltSize < MinSaltSize {
		saltSize = MinSaltSize
	}
	return Hasher{Iterations: iterations, SaltSize: saltSize}
}

// Salt returns SaltSize bytes from crypto/rand.
func (h Hasher) Salt() ([]byte, error) {
	salt := make([]byte, h.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}

// Derive stretches password with salt and returns the SHA-512 digest of the derived key.
func (h Hasher) Derive(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(salt) < MinSaltSize {
		return nil, ErrShortSalt
	}
	key := pbkdf2.Key([]byte(password), salt, h.Iterations, derivedKeyLen, sha512.New)
	sum := sha512.Sum512(key)
	return sum[:], nil
}

// Hash generates a fresh salt and derives the hash for password.
func (h Hasher) Hash(password string) (salt, hash []byte, err error) {
	salt, err = h.Salt()
	if err != nil {
		return nil, nil, err
	}
	hash, err = h.Derive(password, salt)
	if err != nil {
		return nil, nil, err
	}
	return salt, hash, nil
}

// Verify recomputes the hash for password and compares it in constant time.
func (h Hasher) Verify(password string, salt, expected []byte) bool {
	derived, err := h.Derive(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(derived, expected) == 1
}
