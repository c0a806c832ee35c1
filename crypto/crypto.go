package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// HashSize is the size in bytes of a Checksum.
	HashSize = sha256.Size

	// AddressSize is the size of a pubkey-derived address.
	AddressSize = 20
)

// Address identifies an account: the truncated SHA-256 hash of the account
// owner's public key. Addresses prefix the account's region of the ledger
// keyspace.
type Address [AddressSize]byte

// AddressHash computes a truncated SHA-256 hash of bz for use as an address.
func AddressHash(bz []byte) Address {
	h := sha256.Sum256(bz)
	var addr Address
	copy(addr[:], h[:AddressSize])
	return addr
}

// AddressFromBytes converts a byte slice of exactly AddressSize bytes.
func AddressFromBytes(bz []byte) (Address, error) {
	var addr Address
	if len(bz) != AddressSize {
		return addr, fmt.Errorf("invalid address length %d, expected %d", len(bz), AddressSize)
	}
	copy(addr[:], bz)
	return addr, nil
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// String renders the address as uppercase hex.
func (a Address) String() string {
	return fmt.Sprintf("%X", a[:])
}

// AddressFromString parses an address from its hex form.
func AddressFromString(s string) (Address, error) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return AddressFromBytes(bz)
}

// Checksum returns the SHA-256 of bz.
func Checksum(bz []byte) []byte {
	h := sha256.Sum256(bz)
	return h[:]
}

// PubKey is a public key usable for signature verification.
type PubKey interface {
	Address() Address
	Bytes() []byte
	VerifySignature(msg []byte, sig []byte) bool
	Equals(PubKey) bool
	Type() string
}

// PrivKey is a private key usable for signing.
type PrivKey interface {
	Bytes() []byte
	Sign(msg []byte) ([]byte, error)
	PubKey() PubKey
	Equals(PrivKey) bool
	Type() string
}
