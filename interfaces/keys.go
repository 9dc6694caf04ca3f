package interfaces

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeySize is the width of an account address or caller identity
const PublicKeySize = 32

// PublicKey is a 32-byte ed25519 public key, rendered in base58
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a base58 string into a PublicKey
func ParsePublicKey(s string) (PublicKey, error) {
	var key PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return key, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	if len(raw) != PublicKeySize {
		return key, fmt.Errorf("invalid public key %q: expected %d bytes, got %d", s, PublicKeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey
func PublicKeyFromBytes(raw []byte) (PublicKey, error) {
	var key PublicKey
	if len(raw) != PublicKeySize {
		return key, fmt.Errorf("expected %d bytes, got %d", PublicKeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// NewRandomPublicKey returns the public half of a fresh ed25519 keypair
func NewRandomPublicKey() (PublicKey, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return PublicKeyFromBytes(pub)
}

func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// IsZero reports whether every byte of k is zero
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
