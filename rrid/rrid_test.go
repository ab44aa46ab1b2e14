package rrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndDecrypt(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	tokenid, token0, err := kp.Create()
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), token0.Pub)

	got, err := kp.Decrypt(token0)
	require.NoError(t, err)
	assert.Equal(t, tokenid, got)
}

func TestRandomizeProducesDifferentBytesSameTokenid(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	tokenid, token0, err := kp.Create()
	require.NoError(t, err)

	fresh, err := Randomize(token0)
	require.NoError(t, err)

	assert.NotEqual(t, token0.Bytes(), fresh.Bytes())

	got, err := kp.Decrypt(fresh)
	require.NoError(t, err)
	assert.Equal(t, tokenid, got)
}

func TestRandomizeChain(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	tokenid, token, err := kp.Create()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		token, err = Randomize(token)
		require.NoError(t, err)
	}

	got, err := kp.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, tokenid, got)
}

func TestDecryptUnknownToken(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	_, token, err := kp1.Create()
	require.NoError(t, err)

	_, err = kp2.Decrypt(token)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestDecryptForgedToken(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, token, err := kp.Create()
	require.NoError(t, err)

	// Flip a byte in S so it decrypts to an unregistered point.
	token.S[0] ^= 0xFF

	_, err = kp.Decrypt(token)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestTokenBytesRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, token, err := kp.Create()
	require.NoError(t, err)

	encoded := token.Bytes()
	assert.Len(t, encoded, TokenLength)

	decoded, err := ParseToken(encoded)
	require.NoError(t, err)
	assert.Equal(t, token, decoded)
}

func TestParseTokenRejectsBadLength(t *testing.T) {
	_, err := ParseToken([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestParseTokenRejectsBadVersion(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	_, token, err := kp.Create()
	require.NoError(t, err)

	b := token.Bytes()
	b[0] = 0x02
	_, err = ParseToken(b)
	assert.Error(t, err)
}

func TestParseTokenRejectsBadPoint(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	_, token, err := kp.Create()
	require.NoError(t, err)

	b := token.Bytes()
	for i := range b[1:33] {
		b[1+i] = 0xFF
	}
	_, err = ParseToken(b)
	assert.Error(t, err)
}

func TestTwoKeypairsDistinctPublicKeys(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, kp1.PublicKey(), kp2.PublicKey())
}
