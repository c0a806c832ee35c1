package secp256k1

import (
	"bytes"
	"math/big"
	"testing"

	secp256k1 "github.com/btcsuite/btcd/btcec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvo-net/arvo/crypto"
)

func TestSignAndValidateSecp256k1(t *testing.T) {
	privKey := GenPrivKey()
	pubKey := privKey.PubKey()

	msg := crypto.CRandBytes(128)
	sig, err := privKey.Sign(msg)
	require.NoError(t, err)

	assert.True(t, pubKey.VerifySignature(msg, sig))

	// Mutate the signature, just one bit.
	sig[3] ^= byte(0x01)

	assert.False(t, pubKey.VerifySignature(msg, sig))
}

func Test_genPrivKey(t *testing.T) {
	empty := make([]byte, 32)
	oneB := big.NewInt(1).Bytes()
	onePadded := make([]byte, 32)
	copy(onePadded[32-len(oneB):32], oneB)

	// the first 32 bytes are zero, which is not a valid field element, so
	// generation skips ahead to the padded one.
	validOne := append(empty, onePadded...)

	got := genPrivKey(bytes.NewReader(validOne))
	fe := new(big.Int).SetBytes(got[:])
	require.True(t, fe.Cmp(secp256k1.S256().N) < 0)
	require.True(t, fe.Sign() > 0)
}

// Ensure that signature verification works, and that non-canonical
// signatures fail.
func TestSignatureVerificationAndRejectUpperS(t *testing.T) {
	msg := []byte("We have lingered long enough on the shores of the cosmic ocean.")
	for i := 0; i < 100; i++ {
		priv := GenPrivKey()
		sigStr, err := priv.Sign(msg)
		require.NoError(t, err)
		sig := signatureFromBytes(sigStr)
		require.False(t, sig.S.Cmp(secp256k1halfN) > 0)

		pub := priv.PubKey()
		require.True(t, pub.VerifySignature(msg, sigStr))

		// malleate:
		sig.S.Sub(secp256k1.S256().CurveParams.N, sig.S)
		require.True(t, sig.S.Cmp(secp256k1halfN) > 0)
		malSigStr := serializeSig(sig)

		require.False(t, pub.VerifySignature(msg, malSigStr),
			"VerifySignature incorrect with malleated & invalid S. sig=%v, key=%v",
			sig,
			priv,
		)
	}
}

func TestSecp256k1Address(t *testing.T) {
	priv := GenPrivKey()
	addr := priv.PubKey().Address()
	assert.Len(t, addr.Bytes(), crypto.AddressSize)

	// Address derivation is deterministic.
	assert.Equal(t, addr, priv.PubKey().Address())
	assert.NotEqual(t, addr, GenPrivKey().PubKey().Address())
}
