package types

import (
	"bytes"
)

// Write records one key transition produced by speculatively applying a
// transaction: the value observed before the transaction (nil when the key
// was absent) and the value after it (nil when the key is deleted).
type Write struct {
	Key []byte `cbor:"1,keyasint"`
	Old []byte `cbor:"2,keyasint"`
	New []byte `cbor:"3,keyasint"`
}

// Diff is the ordered sequence of writes a transaction proposes. A Diff never
// mutates the store directly; it is applied through a staged view and only
// reaches committed state if validation accepts the whole transaction.
type Diff []Write

// Get returns the post-state value for key within the diff, with ok=false if
// the diff does not touch the key.
func (d Diff) Get(key []byte) ([]byte, bool) {
	// Later writes to the same key win, so scan from the back.
	for i := len(d) - 1; i >= 0; i-- {
		if bytes.Equal(d[i].Key, key) {
			return d[i].New, true
		}
	}
	return nil, false
}

// PreValue returns the recorded pre-state value for key, with ok=false if the
// diff does not touch the key.
func (d Diff) PreValue(key []byte) ([]byte, bool) {
	for _, w := range d {
		if bytes.Equal(w.Key, key) {
			return w.Old, true
		}
	}
	return nil, false
}

// Copy returns a deep copy of the diff. Transactions are immutable once
// proposed; copies protect against callers holding the original slices.
func (d Diff) Copy() Diff {
	out := make(Diff, len(d))
	for i, w := range d {
		out[i] = Write{
			Key: append([]byte(nil), w.Key...),
			Old: append([]byte(nil), w.Old...),
			New: append([]byte(nil), w.New...),
		}
	}
	return out
}
