package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/arvo-net/arvo/crypto"
	"github.com/arvo-net/arvo/crypto/ed25519"
	"github.com/arvo-net/arvo/crypto/secp256k1"
)

// IntentIDSize is the size of an intent identifier in bytes.
const IntentIDSize = 32

// IntentID uniquely identifies an intent. It is the SHA-256 of the intent's
// canonical sign-bytes, so identical content always carries the same
// identifier regardless of which peer relays it.
type IntentID [IntentIDSize]byte

func (id IntentID) String() string { return hex.EncodeToString(id[:]) }

// Bytes returns the identifier as a byte slice.
func (id IntentID) Bytes() []byte { return id[:] }

// IntentIDFromString parses an IntentID from its hex form.
func IntentIDFromString(s string) (IntentID, error) {
	var id IntentID
	bz, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid intent id %q: %w", s, err)
	}
	if len(bz) != IntentIDSize {
		return id, fmt.Errorf("invalid intent id length %d", len(bz))
	}
	copy(id[:], bz)
	return id, nil
}

// Intent is a signed, partially-specified desire to trade: "give up to
// OfferAmount of OfferAsset for at least WantMin of WantAsset". The network
// treats intents as read-only; matching consumes quantity but never alters
// the signed content.
type Intent struct {
	// PubKeyType and PubKey identify and authenticate the owner. The owner
	// account address is derived from the public key.
	PubKeyType string `cbor:"1,keyasint"`
	PubKey     []byte `cbor:"2,keyasint"`

	OfferAsset  Asset  `cbor:"3,keyasint"`
	OfferAmount uint64 `cbor:"4,keyasint"`
	WantAsset   Asset  `cbor:"5,keyasint"`
	WantMin     uint64 `cbor:"6,keyasint"`

	// Expiry bounds the intent's validity window. Timestamp is the owner's
	// submission time and breaks priority ties during matching.
	Expiry    time.Time `cbor:"7,keyasint"`
	Timestamp time.Time `cbor:"8,keyasint"`

	// Nonce distinguishes otherwise identical intents from the same owner.
	Nonce uint64 `cbor:"9,keyasint"`

	Signature []byte `cbor:"10,keyasint"`
}

// signedIntentBody is the portion of an intent covered by the signature and
// by the content-derived identifier.
type signedIntentBody struct {
	PubKeyType  string    `cbor:"1,keyasint"`
	PubKey      []byte    `cbor:"2,keyasint"`
	OfferAsset  Asset     `cbor:"3,keyasint"`
	OfferAmount uint64    `cbor:"4,keyasint"`
	WantAsset   Asset     `cbor:"5,keyasint"`
	WantMin     uint64    `cbor:"6,keyasint"`
	Expiry      time.Time `cbor:"7,keyasint"`
	Timestamp   time.Time `cbor:"8,keyasint"`
	Nonce       uint64    `cbor:"9,keyasint"`
}

func (in *Intent) signBytes() []byte {
	bz, err := MarshalCanonical(signedIntentBody{
		PubKeyType:  in.PubKeyType,
		PubKey:      in.PubKey,
		OfferAsset:  in.OfferAsset,
		OfferAmount: in.OfferAmount,
		WantAsset:   in.WantAsset,
		WantMin:     in.WantMin,
		Expiry:      in.Expiry,
		Timestamp:   in.Timestamp,
		Nonce:       in.Nonce,
	})
	if err != nil {
		panic(err)
	}
	return bz
}

// Bytes returns the canonical encoding of the full signed intent, as carried
// on the wire.
func (in *Intent) Bytes() []byte {
	bz, err := MarshalCanonical(in)
	if err != nil {
		panic(err)
	}
	return bz
}

// IntentFromBytes decodes a canonical intent encoding.
func IntentFromBytes(bz []byte) (Intent, error) {
	var in Intent
	if err := UnmarshalCanonical(bz, &in); err != nil {
		return in, fmt.Errorf("failed to decode intent: %w", err)
	}
	return in, nil
}

// ID derives the intent's content identifier.
func (in *Intent) ID() IntentID {
	var id IntentID
	copy(id[:], crypto.Checksum(in.signBytes()))
	return id
}

// Owner returns the address of the submitting account.
func (in *Intent) Owner() crypto.Address {
	pub, err := PubKeyFromTypeAndBytes(in.PubKeyType, in.PubKey)
	if err != nil {
		return crypto.Address{}
	}
	return pub.Address()
}

// Sign populates PubKeyType, PubKey and Signature from the given key.
func (in *Intent) Sign(priv crypto.PrivKey) error {
	in.PubKeyType = priv.Type()
	in.PubKey = priv.PubKey().Bytes()

	sig, err := priv.Sign(in.signBytes())
	if err != nil {
		return err
	}
	in.Signature = sig
	return nil
}

// ValidateBasic performs stateless sanity checks and signature verification.
func (in *Intent) ValidateBasic() error {
	if in.OfferAmount == 0 {
		return errors.New("intent offers zero quantity")
	}
	if in.WantMin == 0 {
		return errors.New("intent wants zero quantity")
	}
	if in.OfferAsset == in.WantAsset {
		return fmt.Errorf("intent trades %s against itself", in.OfferAsset)
	}
	if in.Expiry.IsZero() {
		return errors.New("intent has no expiry")
	}

	pub, err := PubKeyFromTypeAndBytes(in.PubKeyType, in.PubKey)
	if err != nil {
		return ErrSignatureInvalid{Reason: err.Error()}
	}
	if !pub.VerifySignature(in.signBytes(), in.Signature) {
		return ErrSignatureInvalid{Reason: "intent signature verification failed"}
	}

	return nil
}

// Expired reports whether the intent's validity window has passed at now.
func (in *Intent) Expired(now time.Time) bool {
	return !now.Before(in.Expiry)
}

// MinRate returns the minimum acceptable wanted-per-offered exchange rate as
// an exact rational: WantMin / OfferAmount.
func (in *Intent) MinRate() *big.Rat {
	return new(big.Rat).SetFrac(
		new(big.Int).SetUint64(in.WantMin),
		new(big.Int).SetUint64(in.OfferAmount),
	)
}

// MinReceiveFor returns the least acceptable amount of WantAsset in exchange
// for giving `give` units of OfferAsset: ceil(give * WantMin / OfferAmount).
func (in *Intent) MinReceiveFor(give uint64) uint64 {
	num := new(big.Int).Mul(new(big.Int).SetUint64(give), new(big.Int).SetUint64(in.WantMin))
	den := new(big.Int).SetUint64(in.OfferAmount)

	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Uint64()
}

// MinFillFor returns the least acceptable amount of WantAsset in exchange for
// giving `give` units of OfferAsset within a single match. WantMin is an
// absolute floor on the received amount, not a rate to prorate down: an
// intent wanting at least 100 is never settled for less, however little of
// its offer the match consumes.
func (in *Intent) MinFillFor(give uint64) uint64 {
	if r := in.MinReceiveFor(give); r > in.WantMin {
		return r
	}
	return in.WantMin
}

// PubKeyFromTypeAndBytes reconstructs a public key from its scheme name and
// raw bytes. New schemes must be registered here.
func PubKeyFromTypeAndBytes(keyType string, bz []byte) (crypto.PubKey, error) {
	switch keyType {
	case ed25519.KeyType:
		if len(bz) != ed25519.PubKeySize {
			return nil, fmt.Errorf("invalid ed25519 pubkey size %d", len(bz))
		}
		return ed25519.PubKey(bz), nil

	case secp256k1.KeyType:
		if len(bz) != secp256k1.PubKeySize {
			return nil, fmt.Errorf("invalid secp256k1 pubkey size %d", len(bz))
		}
		return secp256k1.PubKey(bz), nil

	default:
		return nil, fmt.Errorf("unsupported key type %q", keyType)
	}
}
