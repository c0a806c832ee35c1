package state

import (
	"github.com/arvo-net/arvo/types"
)

// StagedView exposes reads that see a diff's pending writes layered over the
// committed store, without mutating committed state. Any number of staged
// views may coexist against the same committed snapshot; only one can be
// committed per version.
type StagedView struct {
	store   *Store
	version int64
	diff    types.Diff
	writes  map[string][]byte

	committed bool
	discarded bool
}

// Read returns the post-diff value for key: pending writes first, committed
// state underneath.
func (v *StagedView) Read(key []byte) ([]byte, bool, error) {
	if value, ok := v.writes[string(key)]; ok {
		if value == nil {
			// pending delete
			return nil, false, nil
		}
		return value, true, nil
	}
	return v.store.Read(key)
}

// PreRead returns the committed, pre-diff value for key. Predicates are
// always loaded through PreRead so a transaction cannot use a predicate it is
// simultaneously installing to approve itself.
func (v *StagedView) PreRead(key []byte) ([]byte, bool, error) {
	return v.store.Read(key)
}

// Diff returns the full diff the view stages. The slice is owned by the view;
// callers must not mutate it.
func (v *StagedView) Diff() types.Diff {
	return v.diff
}

// Version returns the committed version this view was staged against.
func (v *StagedView) Version() int64 {
	return v.version
}
