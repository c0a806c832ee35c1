package state

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	dbm "github.com/tendermint/tm-db"

	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

// versionKey is the meta key holding the committed version counter. Ledger
// keys produced by the types package are orderedcode-encoded and always start
// with their namespace tag ('a' or 's'), so a raw "meta/" prefix cannot
// collide with them.
var versionKey = []byte("meta/version")

// Store is the ledger's durable substrate: a versioned key/value mapping over
// a tm-db backend. All mutation flows through staged views; Commit is the
// single serialization point.
//
// A failed atomic commit is the one fatal condition in the system. The store
// halts and every subsequent commit fails with ErrStoreHalted until an
// operator intervenes.
type Store struct {
	logger log.Logger
	db     dbm.DB

	mtx     sync.RWMutex
	version int64
	halted  bool
}

// NewStore opens a store over db, restoring the committed version counter.
func NewStore(logger log.Logger, db dbm.DB) (*Store, error) {
	s := &Store{
		logger: logger,
		db:     db,
	}

	raw, err := db.Get(versionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load store version: %w", err)
	}
	if raw != nil {
		if len(raw) != 8 {
			return nil, fmt.Errorf("corrupt store version record (%d bytes)", len(raw))
		}
		s.version = int64(binary.BigEndian.Uint64(raw))
	}

	return s, nil
}

// Version returns the committed version counter. It increases by one with
// every committed staged view.
func (s *Store) Version() int64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.version
}

// Halted reports whether the store refuses further commits.
func (s *Store) Halted() bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.halted
}

// Read returns the committed value for key, with ok=false when the key is
// absent.
func (s *Store) Read(key []byte) ([]byte, bool, error) {
	value, err := s.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// Stage speculatively applies diff over the current committed state and
// returns a staged view. The committed store is not mutated. Staging fails
// with ErrStaleView when a recorded pre-state value no longer matches the
// committed value, meaning a competing transaction has invalidated the
// diff's assumptions.
func (s *Store) Stage(diff types.Diff) (*StagedView, error) {
	s.mtx.RLock()
	version := s.version
	s.mtx.RUnlock()

	writes := make(map[string][]byte, len(diff))
	for _, w := range diff {
		committed, _, err := s.Read(w.Key)
		if err != nil {
			return nil, err
		}
		if !bytesEqual(committed, w.Old) {
			return nil, types.ErrStaleView
		}
		writes[string(w.Key)] = w.New
	}

	return &StagedView{
		store:   s,
		version: version,
		diff:    diff.Copy(),
		writes:  writes,
	}, nil
}

// Commit atomically applies all of a staged view's writes and bumps the
// version counter; either every write applies or none do. Only a view staged
// against the current version may commit; callers holding a stale view must
// re-stage and re-validate.
func (s *Store) Commit(view *StagedView) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.halted {
		return types.ErrStoreHalted
	}
	if view.discarded {
		return fmt.Errorf("commit of discarded staged view")
	}
	if view.version != s.version {
		return types.ErrStaleView
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, w := range view.diff {
		var err error
		if w.New == nil {
			err = batch.Delete(w.Key)
		} else {
			err = batch.Set(w.Key, w.New)
		}
		if err != nil {
			s.halt("batch build failed", err)
			return types.ErrStoreHalted
		}
	}

	newVersion := make([]byte, 8)
	binary.BigEndian.PutUint64(newVersion, uint64(s.version+1))
	if err := batch.Set(versionKey, newVersion); err != nil {
		s.halt("batch build failed", err)
		return types.ErrStoreHalted
	}

	if err := batch.WriteSync(); err != nil {
		s.halt("atomic write failed", err)
		return types.ErrStoreHalted
	}

	s.version++
	view.committed = true
	return nil
}

// Discard drops a staged view without touching committed state.
func (s *Store) Discard(view *StagedView) {
	view.discarded = true
	view.writes = nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// halt latches the store into its halted state. Everything already committed
// stays readable; no further commits are possible.
func (s *Store) halt(reason string, err error) {
	s.halted = true
	s.logger.Error("state store halted; operator intervention required",
		"reason", reason,
		"err", err,
	)
}

// bytesEqual distinguishes an absent value (nil) from a stored empty value.
func bytesEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}
