package utils

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "v1:"

var ErrMalformedSecret = errors.New("malformed secret")

// SecretCodec turns stored token values into bearer tokens and back.
// Callers treat encoded values as opaque.
type SecretCodec interface {
	Encode(plaintext string) (string, error)
	Decode(encoded string) (string, error)
}

// NewSecretCodec returns an XChaCha20-Poly1305 codec for a 32 byte key
// (hex or base64). With an empty key it returns the legacy base64 codec.
// The sealed codec still decodes legacy values so existing rows keep working.
func NewSecretCodec(key string) (SecretCodec, error) {
	if key == "" {
		return legacyCodec{}, nil
	}

	raw, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	return &sealedCodec{aead: aead}, nil
}

func parseKey(key string) ([]byte, error) {
	if raw, err := hex.DecodeString(key); err == nil && len(raw) == chacha20poly1305.KeySize {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == chacha20poly1305.KeySize {
		return raw, nil
	}
	return nil, fmt.Errorf("encryption key must be %d bytes, hex or base64 encoded", chacha20poly1305.KeySize)
}

type legacyCodec struct{}

func (legacyCodec) Encode(plaintext string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (legacyCodec) Decode(encoded string) (string, error) {
	return decodeLegacy(encoded)
}

func decodeLegacy(encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
	if len(raw) == 0 {
		return "", ErrMalformedSecret
	}
	return string(raw), nil
}

type sealedCodec struct {
	aead cipher.AEAD
}

func (c *sealedCodec) Encode(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *sealedCodec) Decode(encoded string) (string, error) {
	if !strings.HasPrefix(encoded, sealedPrefix) {
		return decodeLegacy(encoded)
	}

	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(encoded, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize+c.aead.Overhead() {
		return "", ErrMalformedSecret
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrMalformedSecret)
	}

	return string(plaintext), nil
}
