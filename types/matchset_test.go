package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arvo-net/arvo/crypto/ed25519"
)

func signedIntent(t *testing.T, offer Asset, offerAmt uint64, want Asset, wantMin uint64) Intent {
	t.Helper()

	in := Intent{
		OfferAsset:  offer,
		OfferAmount: offerAmt,
		WantAsset:   want,
		WantMin:     wantMin,
		Expiry:      time.Now().Add(time.Hour).UTC(),
		Timestamp:   time.Now().UTC(),
	}
	require.NoError(t, in.Sign(ed25519.GenPrivKey()))
	return in
}

func TestMatchSetValidate(t *testing.T) {
	// Alice gives 100 BTC for at least 90 XTZ, Bob gives 95 XTZ for at
	// least 100 BTC. Settling 100 BTC against 90 XTZ satisfies both.
	alice := signedIntent(t, "BTC", 100, "XTZ", 90)
	bob := signedIntent(t, "XTZ", 95, "BTC", 100)

	ms := &MatchSet{Fills: []Fill{
		{Intent: alice, Give: 100, Receive: 90},
		{Intent: bob, Give: 90, Receive: 100},
	}}
	require.NoError(t, ms.Validate())
	require.EqualValues(t, 190, ms.Volume())
}

func TestMatchSetValidateThreeParty(t *testing.T) {
	a := signedIntent(t, "BTC", 10, "ETH", 10)
	b := signedIntent(t, "ETH", 10, "XTZ", 10)
	c := signedIntent(t, "XTZ", 10, "BTC", 10)

	ms := &MatchSet{Fills: []Fill{
		{Intent: a, Give: 10, Receive: 10},
		{Intent: b, Give: 10, Receive: 10},
		{Intent: c, Give: 10, Receive: 10},
	}}
	require.NoError(t, ms.Validate())
}

func TestMatchSetValidateFailures(t *testing.T) {
	alice := signedIntent(t, "BTC", 100, "XTZ", 90)
	bob := signedIntent(t, "XTZ", 95, "BTC", 100)

	valid := func() *MatchSet {
		return &MatchSet{Fills: []Fill{
			{Intent: alice, Give: 100, Receive: 90},
			{Intent: bob, Give: 90, Receive: 100},
		}}
	}

	testCases := []struct {
		name   string
		mutate func(*MatchSet)
	}{
		{"single fill", func(ms *MatchSet) { ms.Fills = ms.Fills[:1] }},
		{"empty fill", func(ms *MatchSet) { ms.Fills[0].Give = 0 }},
		{"over offer", func(ms *MatchSet) {
			ms.Fills[0].Give = 101
			ms.Fills[1].Receive = 101
		}},
		{"below minimum rate", func(ms *MatchSet) {
			ms.Fills[0].Receive = 89
			ms.Fills[1].Give = 89
		}},
		{"below minimum want", func(ms *MatchSet) {
			// Conserved and pro-rata clean, but prorated to half size:
			// neither stated minimum want is actually delivered.
			ms.Fills[0].Give = 50
			ms.Fills[0].Receive = 45
			ms.Fills[1].Give = 45
			ms.Fills[1].Receive = 50
		}},
		{"not conserved", func(ms *MatchSet) { ms.Fills[1].Receive = 99 }},
		{"bad signature", func(ms *MatchSet) { ms.Fills[0].Intent.Signature[0] ^= 0xff }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ms := valid()
			tc.mutate(ms)
			require.Error(t, ms.Validate())
		})
	}
}

func TestMatchSetRoundTrip(t *testing.T) {
	alice := signedIntent(t, "BTC", 100, "XTZ", 90)
	bob := signedIntent(t, "XTZ", 95, "BTC", 100)

	ms := &MatchSet{Fills: []Fill{
		{Intent: alice, Give: 100, Receive: 90},
		{Intent: bob, Give: 90, Receive: 100},
	}}

	decoded, err := MatchSetFromBytes(ms.Bytes())
	require.NoError(t, err)
	require.NoError(t, decoded.Validate())
	require.Equal(t, ms.Volume(), decoded.Volume())
	require.Equal(t, alice.ID(), decoded.Fills[0].Intent.ID())

	_, err = MatchSetFromBytes([]byte("not cbor"))
	require.Error(t, err)
}
