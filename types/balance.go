package types

import (
	"encoding/binary"
	"fmt"
)

// Balances are stored as fixed-width big-endian uint64 values. An absent key
// reads as a zero balance.

// EncodeBalance encodes an asset balance for storage.
func EncodeBalance(amount uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, amount)
	return bz
}

// DecodeBalance decodes a stored asset balance. nil decodes to zero.
func DecodeBalance(bz []byte) (uint64, error) {
	if bz == nil {
		return 0, nil
	}
	if len(bz) != 8 {
		return 0, fmt.Errorf("corrupt balance record (%d bytes)", len(bz))
	}
	return binary.BigEndian.Uint64(bz), nil
}

// IntentConsumption is the system record tracking how much of an intent has
// been settled across all committed transactions.
type IntentConsumption struct {
	Consumed uint64 `cbor:"1,keyasint"`
	Total    uint64 `cbor:"2,keyasint"`
}

// EncodeIntentConsumption encodes an intent consumption record.
func EncodeIntentConsumption(rec IntentConsumption) []byte {
	bz, err := MarshalCanonical(rec)
	if err != nil {
		panic(err)
	}
	return bz
}

// DecodeIntentConsumption decodes a stored consumption record. nil decodes to
// a zero record.
func DecodeIntentConsumption(bz []byte) (IntentConsumption, error) {
	var rec IntentConsumption
	if bz == nil {
		return rec, nil
	}
	if err := UnmarshalCanonical(bz, &rec); err != nil {
		return rec, fmt.Errorf("corrupt intent consumption record: %w", err)
	}
	return rec, nil
}
