package types

import (
	"github.com/fxamacker/cbor/v2"
)

// Intent identifiers and commitment hashes are derived from encoded content,
// so every encoder in the system must produce identical bytes for identical
// values. The CBOR core deterministic profile guarantees that.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeUnixMicro

	var err error
	cborEnc, err = encOpts.EncMode()
	if err != nil {
		panic(err)
	}

	decOpts := cbor.DecOptions{}
	cborDec, err = decOpts.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCanonical encodes v using the deterministic CBOR profile shared by
// every component that hashes or signs encoded values.
func MarshalCanonical(v interface{}) ([]byte, error) {
	return cborEnc.Marshal(v)
}

// UnmarshalCanonical decodes data produced by MarshalCanonical.
func UnmarshalCanonical(data []byte, v interface{}) error {
	return cborDec.Unmarshal(data, v)
}
