package types

import (
	"fmt"
)

// Fill records one intent's participation in a match set: the owner gives
// Give units of the intent's offered asset and receives Receive units of its
// wanted asset. The full signed intent travels with the fill so any validator
// can re-verify authorization without consulting its own pool.
type Fill struct {
	Intent  Intent `cbor:"1,keyasint"`
	Give    uint64 `cbor:"2,keyasint"`
	Receive uint64 `cbor:"3,keyasint"`
}

// MatchSet is a balanced combination of intents forming one candidate
// transaction. It exists only during transaction construction and is never
// persisted independently of the transaction it produces.
type MatchSet struct {
	Fills []Fill `cbor:"1,keyasint"`
}

// Volume is the total quantity settled across all fills, used to rank
// competing candidates.
func (ms *MatchSet) Volume() uint64 {
	var total uint64
	for _, f := range ms.Fills {
		total += f.Give
	}
	return total
}

// Validate checks the match-set invariants:
//
//   - every fill's intent carries a valid signature and trades within its
//     signed quantity (Give <= OfferAmount),
//   - every fill receives at least its intent's stated minimum want, and at
//     least the pro-rata minimum for the quantity given,
//   - per-asset conservation: the sum of each asset given equals the sum
//     received across all participants.
func (ms *MatchSet) Validate() error {
	if len(ms.Fills) < 2 {
		return fmt.Errorf("match set has %d fills, need at least 2", len(ms.Fills))
	}

	given := make(map[Asset]uint64)
	received := make(map[Asset]uint64)

	for i := range ms.Fills {
		f := &ms.Fills[i]
		id := f.Intent.ID()

		if err := f.Intent.ValidateBasic(); err != nil {
			return fmt.Errorf("intent %s: %w", id, err)
		}
		if f.Give == 0 || f.Receive == 0 {
			return fmt.Errorf("intent %s has an empty fill", id)
		}
		if f.Give > f.Intent.OfferAmount {
			return fmt.Errorf("intent %s gives %d, more than its signed maximum %d",
				id, f.Give, f.Intent.OfferAmount)
		}
		if min := f.Intent.MinFillFor(f.Give); f.Receive < min {
			return fmt.Errorf("intent %s receives %d, below its minimum %d for giving %d",
				id, f.Receive, min, f.Give)
		}

		given[f.Intent.OfferAsset] += f.Give
		received[f.Intent.WantAsset] += f.Receive
	}

	for asset, g := range given {
		if r := received[asset]; r != g {
			return fmt.Errorf("asset %s not conserved: %d given, %d received", asset, g, r)
		}
	}
	for asset := range received {
		if _, ok := given[asset]; !ok {
			return fmt.Errorf("asset %s received but never given", asset)
		}
	}

	return nil
}

// Bytes returns the match set's canonical encoding: the transaction Code
// payload of a settlement, and the commitment preimage together with the
// nonce.
func (ms *MatchSet) Bytes() []byte {
	bz, err := MarshalCanonical(ms)
	if err != nil {
		panic(err)
	}
	return bz
}

// MatchSetFromBytes decodes a canonical match-set encoding.
func MatchSetFromBytes(bz []byte) (*MatchSet, error) {
	var ms MatchSet
	if err := UnmarshalCanonical(bz, &ms); err != nil {
		return nil, fmt.Errorf("malformed match set: %w", err)
	}
	return &ms, nil
}
