package types

import (
	"errors"
	"fmt"

	"github.com/arvo-net/arvo/crypto"
)

// CancelIntent is an owner-signed request to withdraw a live intent from the
// pool. Cancellation is local to each node's pool; settlements already
// ordered against the intent are unaffected.
type CancelIntent struct {
	ID         IntentID `cbor:"1,keyasint"`
	PubKeyType string   `cbor:"2,keyasint"`
	PubKey     []byte   `cbor:"3,keyasint"`
	Signature  []byte   `cbor:"4,keyasint"`
}

type signedCancelBody struct {
	ID         IntentID `cbor:"1,keyasint"`
	PubKeyType string   `cbor:"2,keyasint"`
	PubKey     []byte   `cbor:"3,keyasint"`
}

func (c *CancelIntent) signBytes() []byte {
	bz, err := MarshalCanonical(signedCancelBody{
		ID:         c.ID,
		PubKeyType: c.PubKeyType,
		PubKey:     c.PubKey,
	})
	if err != nil {
		panic(err)
	}
	return bz
}

// Sign populates PubKeyType, PubKey and Signature from the given key.
func (c *CancelIntent) Sign(priv crypto.PrivKey) error {
	c.PubKeyType = priv.Type()
	c.PubKey = priv.PubKey().Bytes()

	sig, err := priv.Sign(c.signBytes())
	if err != nil {
		return err
	}
	c.Signature = sig
	return nil
}

// Owner returns the address of the requesting account.
func (c *CancelIntent) Owner() crypto.Address {
	pub, err := PubKeyFromTypeAndBytes(c.PubKeyType, c.PubKey)
	if err != nil {
		return crypto.Address{}
	}
	return pub.Address()
}

// ValidateBasic verifies the request's signature.
func (c *CancelIntent) ValidateBasic() error {
	if c.ID == (IntentID{}) {
		return errors.New("missing intent id")
	}

	pub, err := PubKeyFromTypeAndBytes(c.PubKeyType, c.PubKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	if !pub.VerifySignature(c.signBytes(), c.Signature) {
		return ErrSignatureInvalid{Reason: "cancel request signature does not verify"}
	}
	return nil
}
