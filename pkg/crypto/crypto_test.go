package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase58CheckRoundTrip(t *testing.T) {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}

	encoded := Base58CheckEncode(payload)
	decoded, err := Base58CheckDecode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestBase58CheckDecodeRejectsBadChecksum(t *testing.T) {
	encoded := Base58CheckEncode(make([]byte, 20))
	tampered := encoded[:len(encoded)-1] + "9"
	_, err := Base58CheckDecode(tampered)
	assert.Error(t, err)
}

func TestAddressRoundTrip(t *testing.T) {
	key, err := GenerateKeyPair()
	require.NoError(t, err)

	pubHash := PubKeyHash(CompressedPubKey(key.PubKey()))
	addr, err := AddressFromPubKeyHash(pubHash)
	require.NoError(t, err)

	decoded, err := DecodeAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, pubHash, decoded)
}

func TestSignAndVerify(t *testing.T) {
	key, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := Sha256([]byte("hello nanochain"))
	sig, err := Sign(key, msg[:])
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	ok, err := Verify(CompressedPubKey(key.PubKey()), msg[:], sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	key, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := Sha256([]byte("original"))
	sig, err := Sign(key, msg[:])
	require.NoError(t, err)

	other := Sha256([]byte("different"))
	ok, err := Verify(CompressedPubKey(key.PubKey()), other[:], sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignFailsWithoutSecret(t *testing.T) {
	msg := Sha256([]byte("x"))
	_, err := Sign(nil, msg[:])
	assert.Error(t, err)
}

func TestVerifyRejectsMalformedSignatureLength(t *testing.T) {
	key, err := GenerateKeyPair()
	require.NoError(t, err)
	msg := Sha256([]byte("x"))
	_, err = Verify(CompressedPubKey(key.PubKey()), msg[:], []byte{1, 2, 3})
	assert.Error(t, err)
}
