package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

const vaultPrefix = "v1:"

// Vault turns personal data into opaque domain.Confidential tokens with
// AES-256-GCM. Only the token is ever written to the event log.
type Vault struct {
	aead cipher.AEAD
}

// NewVault takes a base64-encoded 32-byte key.
func NewVault(encodedKey string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("NewVault: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("NewVault: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("NewVault: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("NewVault: %w", err)
	}
	return &Vault{aead: aead}, nil
}

func (v *Vault) Seal(plaintext string) (domain.Confidential, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("Seal: nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return domain.Confidential(vaultPrefix + base64.RawURLEncoding.EncodeToString(sealed)), nil
}

func (v *Vault) Open(token domain.Confidential) (string, error) {
	raw, ok := strings.CutPrefix(string(token), vaultPrefix)
	if !ok {
		return "", errors.New("Open: unknown token format")
	}
	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("Open: decode: %w", err)
	}
	n := v.aead.NonceSize()
	if len(sealed) < n {
		return "", errors.New("Open: token too short")
	}
	plain, err := v.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return "", fmt.Errorf("Open: %w", err)
	}
	return string(plain), nil
}
