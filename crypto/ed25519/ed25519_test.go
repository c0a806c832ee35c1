package ed25519_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/crypto/ed25519"
)

func TestSignAndValidateEd25519(t *testing.T) {
	privKey := ed25519.GenPrivKey()
	pubKey := privKey.PubKey()

	msg := crypto.CRandBytes(128)
	sig, err := privKey.Sign(msg)
	require.NoError(t, err)

	assert.True(t, pubKey.VerifySignature(msg, sig))

	// Mutate the signature, just one bit.
	sig[7] ^= byte(0x01)

	assert.False(t, pubKey.VerifySignature(msg, sig))
}

func TestEd25519Address(t *testing.T) {
	privKey := ed25519.GenPrivKey()
	pubKey := privKey.PubKey()

	addr := pubKey.Address()
	assert.Len(t, addr.Bytes(), crypto.AddressSize)
	assert.Equal(t, crypto.AddressHash(pubKey.Bytes()), addr)
}

func TestGenPrivKeyFromSecret(t *testing.T) {
	a := ed25519.GenPrivKeyFromSecret([]byte("some secret"))
	b := ed25519.GenPrivKeyFromSecret([]byte("some secret"))
	c := ed25519.GenPrivKeyFromSecret([]byte("another secret"))

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}

func TestGenPrivKeyFromReader(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, ed25519.SeedSize)

	a, err := ed25519.GenPrivKeyFromReader(bytes.NewReader(seed))
	require.NoError(t, err)
	b, err := ed25519.GenPrivKeyFromReader(bytes.NewReader(seed))
	require.NoError(t, err)

	assert.True(t, a.Equals(b))
	assert.Equal(t, ed25519.KeyType, a.Type())
}
