package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/arvo-net/arvo/crypto/ed25519"
	"github.com/arvo-net/arvo/crypto/secp256k1"
)

func testIntent(t *testing.T) (Intent, ed25519.PrivKey) {
	t.Helper()

	priv := ed25519.GenPrivKey()
	in := Intent{
		OfferAsset:  "BTC",
		OfferAmount: 100,
		WantAsset:   "XTZ",
		WantMin:     90,
		Expiry:      time.Now().Add(time.Hour).UTC(),
		Timestamp:   time.Now().UTC(),
		Nonce:       1,
	}
	require.NoError(t, in.Sign(priv))
	return in, priv
}

func TestIntentSignVerify(t *testing.T) {
	in, priv := testIntent(t)
	require.NoError(t, in.ValidateBasic())
	require.Equal(t, priv.PubKey().Address(), in.Owner())

	t.Run("secp256k1", func(t *testing.T) {
		in := in
		require.NoError(t, in.Sign(secp256k1.GenPrivKey()))
		require.NoError(t, in.ValidateBasic())
	})

	t.Run("tampered amount", func(t *testing.T) {
		in := in
		in.OfferAmount++
		err := in.ValidateBasic()
		require.Error(t, err)
		assert.IsType(t, ErrSignatureInvalid{}, err)
	})

	t.Run("truncated pubkey", func(t *testing.T) {
		in := in
		in.PubKey = in.PubKey[:16]
		require.Error(t, in.ValidateBasic())
	})
}

func TestIntentValidateBasic(t *testing.T) {
	priv := ed25519.GenPrivKey()

	testCases := []struct {
		name   string
		mutate func(*Intent)
	}{
		{"zero offer", func(in *Intent) { in.OfferAmount = 0 }},
		{"zero want", func(in *Intent) { in.WantMin = 0 }},
		{"self trade", func(in *Intent) { in.WantAsset = in.OfferAsset }},
		{"no expiry", func(in *Intent) { in.Expiry = time.Time{} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in, _ := testIntent(t)
			tc.mutate(&in)
			require.NoError(t, in.Sign(priv))
			require.Error(t, in.ValidateBasic())
		})
	}
}

func TestIntentIDStableAcrossEncoding(t *testing.T) {
	in, _ := testIntent(t)
	id := in.ID()

	decoded, err := IntentFromBytes(in.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, decoded.ID())
	require.NoError(t, decoded.ValidateBasic())

	// Different nonce, otherwise identical content: distinct identifier.
	other := in
	other.Nonce++
	require.NotEqual(t, id, other.ID())
}

func TestIntentIDFromString(t *testing.T) {
	in, _ := testIntent(t)
	id := in.ID()

	parsed, err := IntentIDFromString(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = IntentIDFromString("abcd")
	require.Error(t, err)

	_, err = IntentIDFromString("zz")
	require.Error(t, err)
}

func TestIntentExpired(t *testing.T) {
	in, _ := testIntent(t)
	assert.False(t, in.Expired(in.Expiry.Add(-time.Second)))
	assert.True(t, in.Expired(in.Expiry))
	assert.True(t, in.Expired(in.Expiry.Add(time.Second)))
}

func TestMinReceiveFor(t *testing.T) {
	in := Intent{OfferAmount: 100, WantMin: 90}

	assert.EqualValues(t, 90, in.MinReceiveFor(100))
	assert.EqualValues(t, 45, in.MinReceiveFor(50))
	// 1 * 90 / 100 rounds up: partial fills never settle below the rate.
	assert.EqualValues(t, 1, in.MinReceiveFor(1))
	assert.EqualValues(t, 0, in.MinReceiveFor(0))
}

func TestMinFillFor(t *testing.T) {
	in := Intent{OfferAmount: 100, WantMin: 90}

	// The full want is the floor no matter how small the give.
	assert.EqualValues(t, 90, in.MinFillFor(100))
	assert.EqualValues(t, 90, in.MinFillFor(50))
	assert.EqualValues(t, 90, in.MinFillFor(1))
}

// Giving any portion of the offer must never entitle the counterparty to a
// rate better than the signed minimum.
func TestMinReceiveForRate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := Intent{
			OfferAmount: rapid.Uint64Range(1, 1<<30).Draw(t, "offer").(uint64),
			WantMin:     rapid.Uint64Range(1, 1<<30).Draw(t, "want").(uint64),
		}
		give := rapid.Uint64Range(1, in.OfferAmount).Draw(t, "give").(uint64)

		recv := in.MinReceiveFor(give)

		// recv/give >= WantMin/OfferAmount, cross-multiplied to stay exact.
		require.True(t, recv*in.OfferAmount >= give*in.WantMin,
			"rate violated: give %d recv %d", give, recv)

		// Minimality: one unit less breaks the rate (unless already zero).
		if recv > 0 {
			require.True(t, (recv-1)*in.OfferAmount < give*in.WantMin)
		}
	})
}
