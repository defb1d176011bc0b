package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSealOpen is returned when a sealed payload fails authentication, either
// from a wrong key or from tampered bytes.
var ErrSealOpen = errors.New("sealed snapshot failed to open")

const nonceSize = 24

// Sealer encrypts snapshot payloads at rest with NaCl secretbox. The key is
// derived from the configured passphrase by SHA-256, so any non-empty
// passphrase yields a full-strength 32-byte key.
type Sealer struct {
	key [32]byte
}

// NewSealer derives a sealing key from the passphrase.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("sealing passphrase must not be empty")
	}
	return &Sealer{key: sha256.Sum256([]byte(passphrase))}, nil
}

// Seal encrypts plaintext. The random nonce is prepended to the box.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating seal nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts and authenticates a sealed payload.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, ErrSealOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealOpen
	}
	return plaintext, nil
}
