// Package vault encrypts third-party credentials at rest.
//
// Blobs are base64(nonce || ciphertext || tag) sealed with ChaCha20-Poly1305
// under a 256-bit key supplied at startup. A fresh random nonce is drawn for
// every Encrypt call.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"

	"panicless-backend/internal/apperr"
)

const KeySize = chacha20poly1305.KeySize

var (
	ErrInvalidKey = apperr.Internal("encryption key must be exactly 32 bytes (44 base64 characters)", nil)
	ErrDecrypt    = apperr.Authentication("failed to decrypt credential")
	ErrNotText    = apperr.Internal("decrypted credential is not valid UTF-8", nil)
)

type Vault struct {
	aead cipher.AEAD
}

// New builds a vault from a base64 key. Any key that does not decode to
// exactly KeySize bytes is rejected.
func New(keyBase64 string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyBase64))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init chacha20poly1305: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// GenerateKey returns a new random key in the encoding New expects.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonceSize := v.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+v.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out = v.aead.Seal(out, out[:nonceSize], []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt fails closed: malformed input and tag mismatches both return
// ErrDecrypt and never a partial plaintext.
func (v *Vault) Decrypt(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecrypt
	}

	nonceSize := v.aead.NonceSize()
	if len(data) < nonceSize+v.aead.Overhead() {
		return "", ErrDecrypt
	}

	plaintext, err := v.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	if !utf8.Valid(plaintext) {
		return "", ErrNotText
	}

	return string(plaintext), nil
}
