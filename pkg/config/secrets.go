package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SecretProvider resolves encrypted credential values from the config file.
// Injected into Load so tests and alternative key stores can swap it out.
type SecretProvider interface {
	Decrypt(ciphertext string) (string, error)
	Encrypt(plaintext string) (string, error)
}

// MaybeDecrypt passes plain values through untouched and routes ENC[...]
// values to the provider.
func MaybeDecrypt(value string, secrets SecretProvider) (string, error) {
	if !strings.HasPrefix(value, "ENC[") || !strings.HasSuffix(value, "]") {
		return value, nil
	}
	if secrets == nil {
		return "", fmt.Errorf("encrypted value found but no secret provider configured")
	}
	return secrets.Decrypt(strings.TrimSuffix(strings.TrimPrefix(value, "ENC["), "]"))
}

// AESProvider encrypts and decrypts credentials with AES-256-GCM using a
// key stored in a local file.
type AESProvider struct {
	key []byte
}

// NewAESProvider loads the key from keyFile, generating and writing a fresh
// 32-byte key on first use.
func NewAESProvider(keyFile string) (*AESProvider, error) {
	key, err := os.ReadFile(keyFile)
	if os.IsNotExist(err) {
		key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
		if dir := filepath.Dir(keyFile); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create key directory: %w", err)
			}
		}
		if err := os.WriteFile(keyFile, key, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return NewAESProviderFromKey(key)
}

// NewAESProviderFromKey builds a provider from raw key material. Keys are
// truncated or zero-padded to 32 bytes for AES-256.
func NewAESProviderFromKey(key []byte) (*AESProvider, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("empty encryption key")
	}
	k := make([]byte, 32)
	copy(k, key)
	return &AESProvider{key: k}, nil
}

// Encrypt seals the plaintext and returns the base64 payload (nonce
// prepended) without the ENC[] wrapper.
func (p *AESProvider) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (p *AESProvider) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("invalid base64 ciphertext: %w", err)
	}
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}
