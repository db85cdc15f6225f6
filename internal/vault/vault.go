// Package vault encrypts TOTP secrets at rest with AES-256-GCM. Ciphertexts
// are serialized as nonce||ciphertext; the key id used for a given blob is
// tracked by the caller so keys can be rotated.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	KeySize   = 32
	nonceSize = 12
)

var (
	ErrKeySize    = errors.New("vault: key must be 32 bytes")
	ErrCiphertext = errors.New("vault: ciphertext too short")
	// ErrDecrypt covers tag mismatches and any other authentication failure.
	// Decryption never returns partial plaintext.
	ErrDecrypt = errors.New("vault: decryption failed")
)

// Vault performs authenticated encryption under a single injected key. The
// key comes from an external source (KMS, env); the vault never generates or
// persists keys itself.
type Vault struct {
	aead  cipher.AEAD
	keyID string
}

func New(key []byte, keyID string) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Vault{aead: aead, keyID: keyID}, nil
}

func (v *Vault) KeyID() string { return v.keyID }

// Encrypt seals plaintext under a fresh random 96-bit nonce and returns
// nonce||ciphertext.
func (v *Vault) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return v.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a nonce||ciphertext blob. It fails closed: any tampering or
// key mismatch yields ErrDecrypt and no plaintext.
func (v *Vault) Decrypt(blob []byte) (string, error) {
	if len(blob) < nonceSize+v.aead.Overhead() {
		return "", ErrCiphertext
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
