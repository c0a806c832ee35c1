package types

import (
	"encoding/hex"
	"fmt"

	"github.com/arvo-net/arvo/crypto"
)

// TxKeySize is the size of a transaction key in bytes.
const TxKeySize = 32

// TxKey uniquely identifies a transaction by the SHA-256 of its canonical
// encoding.
type TxKey [TxKeySize]byte

func (k TxKey) String() string { return hex.EncodeToString(k[:]) }

// TxStatus tracks a transaction through the validator's state machine.
type TxStatus int32

const (
	TxStatusProposed TxStatus = iota
	TxStatusStaged
	TxStatusAccepted
	TxStatusRejected
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusProposed:
		return "proposed"
	case TxStatusStaged:
		return "staged"
	case TxStatusAccepted:
		return "accepted"
	case TxStatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// IntentRef records how much of an intent a settlement transaction consumes.
type IntentRef struct {
	ID   IntentID `cbor:"1,keyasint"`
	Give uint64   `cbor:"2,keyasint"`
}

// TxSig is an authorization signature over a transaction's sign-bytes. A
// transaction may carry any number of them; predicates receive the set of
// signer addresses.
type TxSig struct {
	PubKeyType string `cbor:"1,keyasint"`
	PubKey     []byte `cbor:"2,keyasint"`
	Signature  []byte `cbor:"3,keyasint"`
}

// Transaction is an ordered sequence of writes plus the opaque executable
// code that produced them. It is immutable once proposed; the validator
// either commits the whole diff or discards it without trace.
type Transaction struct {
	// Submitter is the account that constructed and committed to this
	// transaction. Reveals are matched against commitments per submitter.
	Submitter crypto.Address `cbor:"1,keyasint"`

	// Code is the transaction's executable payload. The engine never
	// interprets it; it travels with the diff for predicate inspection and
	// audit.
	Code []byte `cbor:"2,keyasint"`

	Diff Diff `cbor:"3,keyasint"`

	// IntentRefs lists the intents this transaction settles, if any. The
	// validator enforces that no referenced intent is consumed beyond its
	// signed quantity.
	IntentRefs []IntentRef `cbor:"4,keyasint"`

	// Nonce reveals the commitment nonce for match-set transactions. Empty
	// for transactions outside the commit-reveal flow.
	Nonce []byte `cbor:"5,keyasint"`

	// Auth carries authorization signatures over the transaction's
	// sign-bytes, e.g. the owner signature on a predicate-replacement
	// transaction. Settlement transactions usually carry none; the signed
	// intents inside the match set authorize them.
	Auth []TxSig `cbor:"6,keyasint"`
}

// SignBytes returns the canonical encoding signed by Auth entries: the
// transaction with Auth stripped.
func (tx *Transaction) SignBytes() []byte {
	clone := *tx
	clone.Auth = nil
	bz, err := MarshalCanonical(&clone)
	if err != nil {
		panic(err)
	}
	return bz
}

// AddSignature signs the transaction with priv and appends the signature to
// Auth.
func (tx *Transaction) AddSignature(priv crypto.PrivKey) error {
	sig, err := priv.Sign(tx.SignBytes())
	if err != nil {
		return err
	}
	tx.Auth = append(tx.Auth, TxSig{
		PubKeyType: priv.Type(),
		PubKey:     priv.PubKey().Bytes(),
		Signature:  sig,
	})
	return nil
}

// Signers verifies every Auth entry and returns the authenticated signer
// addresses. A single invalid signature fails the whole transaction.
func (tx *Transaction) Signers() ([]crypto.Address, error) {
	signBytes := tx.SignBytes()
	signers := make([]crypto.Address, 0, len(tx.Auth))

	for _, sig := range tx.Auth {
		pub, err := PubKeyFromTypeAndBytes(sig.PubKeyType, sig.PubKey)
		if err != nil {
			return nil, ErrSignatureInvalid{Reason: err.Error()}
		}
		if !pub.VerifySignature(signBytes, sig.Signature) {
			return nil, ErrSignatureInvalid{Reason: "transaction signature verification failed"}
		}
		signers = append(signers, pub.Address())
	}

	return signers, nil
}

// Key derives the transaction's content key.
func (tx *Transaction) Key() TxKey {
	bz, err := MarshalCanonical(tx)
	if err != nil {
		panic(err)
	}
	var key TxKey
	copy(key[:], crypto.Checksum(bz))
	return key
}

// TouchedAccounts derives the transaction's touched-account set from its
// diff's key prefixes.
func (tx *Transaction) TouchedAccounts() []crypto.Address {
	return AccountsTouched(tx.Diff)
}
