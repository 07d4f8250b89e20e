package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	_, err := h.Hash("12345")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "secret1"))
	assert.Error(t, h.Compare(hash, "secret2"))
}

func TestAESRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptorFromSecret("local-development-key")
	require.NoError(t, err)

	payload := []byte(`{"resourceType":"Bundle"}`)
	sealed, err := enc.Encrypt(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "Bundle")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)

	sealed[len(sealed)-1] ^= 0xff
	_, err = enc.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestAESRejectsBadKeys(t *testing.T) {
	_, err := NewAESEncryptor([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewAESEncryptorFromSecret("")
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}
