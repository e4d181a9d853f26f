package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func TestNewSealer_RejectsBadKeys(t *testing.T) {
	_, err := NewSealer("not base64!!")
	assert.Error(t, err)

	_, err = NewSealer(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := sealer.Seal("gate-api-secret")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "gate-api-secret")

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "gate-api-secret", plain)
}

func TestSealer_RandomNonce(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	a, err := sealer.Seal("secret")
	require.NoError(t, err)
	b, err := sealer.Seal("secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "sealing the same value twice must not repeat ciphertext")
}

func TestSealer_RejectsTamperedCiphertext(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := sealer.Seal("secret")
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = sealer.Open(sealed)
	assert.Error(t, err)
}

func TestSealer_RejectsTruncatedValue(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	_, err = sealer.Open([]byte{0x01, 0x02})
	assert.Error(t, err)
}
