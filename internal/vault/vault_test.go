package vault_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrona/internal/vault"
)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	key := make([]byte, vault.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := vault.New(key, "key-1")
	require.NoError(t, err)
	return v
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	v := newTestVault(t)
	secret := "JBSWY3DPEHPK3PXP"

	blob, err := v.Encrypt(secret)
	require.NoError(t, err)

	got, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestNoncesAreFresh(t *testing.T) {
	t.Parallel()

	v := newTestVault(t)
	a, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b))
}

func TestDecryptFailsClosed(t *testing.T) {
	t.Parallel()

	v := newTestVault(t)
	blob, err := v.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := append([]byte(nil), blob...)
		tampered[len(tampered)-1] ^= 0x01
		got, err := v.Decrypt(tampered)
		assert.ErrorIs(t, err, vault.ErrDecrypt)
		assert.Empty(t, got)
	})

	t.Run("tampered nonce", func(t *testing.T) {
		tampered := append([]byte(nil), blob...)
		tampered[0] ^= 0x01
		_, err := v.Decrypt(tampered)
		assert.ErrorIs(t, err, vault.ErrDecrypt)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := newTestVault(t)
		_, err := other.Decrypt(blob)
		assert.ErrorIs(t, err, vault.ErrDecrypt)
	})

	t.Run("truncated blob", func(t *testing.T) {
		_, err := v.Decrypt(blob[:8])
		assert.ErrorIs(t, err, vault.ErrCiphertext)
	})
}

func TestKeyValidation(t *testing.T) {
	t.Parallel()

	_, err := vault.New(make([]byte, 16), "short")
	assert.ErrorIs(t, err, vault.ErrKeySize)
}
