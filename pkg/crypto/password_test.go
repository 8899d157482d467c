package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveDeterministic(t *testing.T) {
	h := NewHasher(10, 16)
	salt := bytes.Repeat([]byte{0x42}, 16)
	first, err := h.Derive("secret", salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := h.Derive("secret", salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical hashes for identical inputs")
	}
	if len(first) != 64 {
		t.Fatalf("expected 64-byte digest, got %d", len(first))
	}
	other, _ := h.Derive("secret", bytes.Repeat([]byte{0x43}, 16))
	if bytes.Equal(first, other) {
		t.Fatal("expected different salts to produce different hashes")
	}
}

func TestDeriveRejectsInvalidInput(t *testing.T) {
	h := NewHasher(1, 16)
	if _, err := h.Derive("", make([]byte, 16)); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if _, err := h.Derive("pw", make([]byte, 8)); !errors.Is(err, ErrShortSalt) {
		t.Fatalf("expected ErrShortSalt, got %v", err)
	}
}

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(1, 4)
	salt, hash, err := h.Hash("pw1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(salt) != MinSaltSize {
		t.Fatalf("expected salt size clamped to %d, got %d", MinSaltSize, len(salt))
	}
	if !h.Verify("pw1", salt, hash) {
		t.Fatal("expected password to verify")
	}
	if h.Verify("pw2", salt, hash) {
		t.Fatal("expected wrong password to fail")
	}
	if h.Verify("pw1", salt, hash[:10]) {
		t.Fatal("expected truncated hash to fail")
	}
}

func TestSaltIsRandom(t *testing.T) {
	h := NewHasher(1, 32)
	a, _ := h.Salt()
	b, _ := h.Salt()
	if bytes.Equal(a, b) {
		t.Fatal("expected distinct salts")
	}
}
