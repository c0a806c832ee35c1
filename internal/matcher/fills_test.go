package matcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/arvo-net/arvo/crypto/ed25519"
	"github.com/arvo-net/arvo/types"
)

func TestComputeFillsSubMinimumCounterparty(t *testing.T) {
	carolPriv, bobPriv := ed25519.GenPrivKey(), ed25519.GenPrivKey()

	carolIntent := types.Intent{
		OfferAsset: "BTC", OfferAmount: 50,
		WantAsset: "XTZ", WantMin: 45,
		Expiry: time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, carolIntent.Sign(carolPriv))

	bobIntent := types.Intent{
		OfferAsset: "XTZ", OfferAmount: 95,
		WantAsset: "BTC", WantMin: 100,
		Expiry: time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, bobIntent.Sign(bobPriv))

	// 50 BTC can never meet bob's 100 BTC minimum: no volume is viable.
	cycle := []*edge{
		{wi: wrapForTest(carolIntent), capacity: 50},
		{wi: wrapForTest(bobIntent), capacity: 95},
	}
	require.Nil(t, computeFills(cycle))
}

// Every match set the sizing logic emits must hold up under full validation:
// per-asset conservation, signed quantity bounds, and each intent's minimum
// want, for rings of any shape.
func TestComputeFillsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.IntRange(2, 4).Draw(t, "ring").(int)

		cycle := make([]*edge, k)
		for j := 0; j < k; j++ {
			offerAmt := rapid.Uint64Range(1, 1_000_000).Draw(t, fmt.Sprintf("offer%d", j)).(uint64)
			in := types.Intent{
				OfferAsset:  types.Asset(fmt.Sprintf("AS%d", j)),
				OfferAmount: offerAmt,
				WantAsset:   types.Asset(fmt.Sprintf("AS%d", (j+1)%k)),
				WantMin:     rapid.Uint64Range(1, 1_000_000).Draw(t, fmt.Sprintf("want%d", j)).(uint64),
				Expiry:      time.Now().Add(time.Hour).UTC(),
				Nonce:       uint64(j),
			}
			require.NoError(t, in.Sign(ed25519.GenPrivKey()))

			cycle[j] = &edge{
				wi:       wrapForTest(in),
				capacity: rapid.Uint64Range(1, offerAmt).Draw(t, fmt.Sprintf("cap%d", j)).(uint64),
			}
		}

		ms := computeFills(cycle)
		if ms == nil {
			return
		}

		require.NoError(t, ms.Validate())
		require.Len(t, ms.Fills, k)
		for i, f := range ms.Fills {
			require.LessOrEqual(t, f.Give, cycle[i].capacity)
			require.GreaterOrEqual(t, f.Receive, f.Intent.WantMin)
		}
	})
}
