package types

import (
	"encoding/hex"

	"github.com/arvo-net/arvo/crypto"
)

// CommitmentNonceSize is the size of the locally-generated nonce mixed into a
// commitment hash.
const CommitmentNonceSize = 32

// Commitment is a hiding, binding commitment to a match set, published to the
// ordering layer before the match set's content. An adversary observing only
// gossiped intents cannot construct a valid competing reveal, because the
// nonce never leaves the committing node until the reveal.
type Commitment struct {
	Submitter crypto.Address `cbor:"1,keyasint"`
	Hash      []byte         `cbor:"2,keyasint"`

	// ExpiryHeight is the last ordered height at which a reveal for this
	// commitment is eligible.
	ExpiryHeight int64 `cbor:"3,keyasint"`
}

// CommitmentHash computes the binding hash over a match set's canonical
// encoding and the committing node's nonce.
func CommitmentHash(ms *MatchSet, nonce []byte) []byte {
	preimage := append(ms.Bytes(), nonce...)
	return crypto.Checksum(preimage)
}

// RevealHash recomputes the commitment hash a revealed transaction must match:
// the transaction's match-set content rebuilt from its intent refs is carried
// in Code, and the nonce travels in the transaction itself.
func RevealHash(tx *Transaction) []byte {
	return crypto.Checksum(append(append([]byte(nil), tx.Code...), tx.Nonce...))
}

func (c *Commitment) String() string {
	return "Commitment{" + c.Submitter.String() + "/" + hex.EncodeToString(c.Hash) + "}"
}
