package events

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealerInfo = "shopstate merge-failure token v1"

var ErrMalformedSealedToken = errors.New("malformed sealed token")

// TokenSealer encrypts anonymous session tokens before they are written to a
// topic. Anyone holding the service secret can open them again.
type TokenSealer struct {
	aead cipher.AEAD
}

// NewTokenSealer derives the sealing key from secret with HKDF-SHA256.
func NewTokenSealer(secret string) (*TokenSealer, error) {
	if secret == "" {
		return nil, errors.New("token sealer: empty secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo)), key); err != nil {
		return nil, fmt.Errorf("token sealer: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("token sealer: %w", err)
	}
	return &TokenSealer{aead: aead}, nil
}

// Seal binds the sealed token to accountID, so it only opens for that account.
func (s *TokenSealer) Seal(token, accountID string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(token)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("token sealer: nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(token), []byte(accountID))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *TokenSealer) Open(sealed, accountID string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrMalformedSealedToken
	}
	n := s.aead.NonceSize()
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], []byte(accountID))
	if err != nil {
		return "", ErrMalformedSealedToken
	}
	return string(plain), nil
}
