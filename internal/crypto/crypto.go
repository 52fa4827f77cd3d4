// Package crypto encrypts and decrypts the operator's Kalshi API
// credentials at rest. The usage shape (encrypt before persisting,
// decrypt only in memory at call time) matches
// original_source/backend/common/encryption.py's Fernet helpers; the
// underlying primitive is XChaCha20-Poly1305 (AEAD, 24-byte random
// nonce, base64-encoded output) rather than Fernet, since Fernet itself
// is a Python-ecosystem construction with no equivalent in the corpus.
// golang.org/x/crypto/chacha20poly1305 was already an indirect teacher
// dependency (pulled in via golang.org/x/crypto) and is promoted here to
// a direct, exercised one.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext covers base64/AEAD failures: malformed input,
// truncated nonce, or decryption under the wrong key.
var ErrInvalidCiphertext = errors.New("crypto: invalid or tampered ciphertext")

// Box encrypts and decrypts secrets with a key derived from a configured
// master secret, mirroring _get_fernet()'s "one key, many secrets" shape.
type Box struct {
	key [chacha20poly1305.KeySize]byte
}

// NewBox derives a 32-byte AEAD key from masterSecret via SHA-256. Any
// non-empty masterSecret string works; the derivation exists only to
// accept a human-managed passphrase of arbitrary length.
func NewBox(masterSecret string) (*Box, error) {
	if masterSecret == "" {
		return nil, errors.New("crypto: master secret must not be empty")
	}
	return &Box{key: sha256.Sum256([]byte(masterSecret))}, nil
}

// Encrypt seals plaintext under a random nonce and returns a base64 string
// safe for a VARCHAR column: nonce prepended to the ciphertext, then
// base64-encoded as a single opaque blob.
func (b *Box) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", fmt.Errorf("crypto: build aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It returns ErrInvalidCiphertext for any
// malformed input or a key mismatch, never leaking AEAD internals.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", fmt.Errorf("crypto: build aead: %w", err)
	}

	nonceSize := aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrInvalidCiphertext
	}
	nonce, data := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
