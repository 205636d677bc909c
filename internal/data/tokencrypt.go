package data

import (
	"encoding/hex"
	"fmt"

	"github.com/caseworks/report-engine/internal/data/cryptoutil"
)

// TokenCipher encrypts bearer tokens before they reach the report_jobs table
// and decrypts them on the way back out. A nil cipher, or one built without a
// key, passes tokens through unchanged so development setups work without
// configuring encryption.
type TokenCipher struct {
	enc cryptoutil.Encryptor
}

// NewTokenCipher builds a cipher from a hex-encoded AES-256 key. An empty key
// yields a passthrough cipher.
func NewTokenCipher(hexKey string) (*TokenCipher, error) {
	if hexKey == "" {
		return &TokenCipher{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode token encryption key: %w", err)
	}
	enc, err := cryptoutil.NewAESGCMEncryptor(key)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{enc: enc}, nil
}

// Seal returns the storable form of token. Empty tokens stay empty.
func (c *TokenCipher) Seal(token string) (string, error) {
	if c == nil || c.enc == nil || token == "" {
		return token, nil
	}
	return c.enc.Encrypt([]byte(token))
}

// Open returns the plaintext for a stored value. Values without a ciphertext
// prefix predate encryption and pass through unchanged, so enabling a key
// does not break rows already in the table.
func (c *TokenCipher) Open(stored string) (string, error) {
	if c == nil || c.enc == nil || stored == "" {
		return stored, nil
	}
	if !cryptoutil.IsEncrypted(stored) {
		return stored, nil
	}
	plain, err := c.enc.Decrypt(stored)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
