package intentpool

import (
	"sort"
	"sync"
	"time"

	"github.com/arvo-net/arvo/internal/libs/clist"
	"github.com/arvo-net/arvo/types"
)

// IntentInfo are parameters that get passed when attempting to add an intent
// to the pool.
type IntentInfo struct {
	// SenderID is the internal peer ID used in the pool to identify the
	// sender, storing two bytes with each intent instead of the full node ID.
	SenderID uint16

	// SenderNodeID is the actual node ID of the sender.
	SenderNodeID types.NodeID
}

// WrappedIntent defines a wrapper around a signed intent with additional
// metadata that is used for indexing.
type WrappedIntent struct {
	// intent is the signed intent as received.
	intent types.Intent

	// id is the intent's content-derived identifier and the primary key used
	// in the pool.
	id types.IntentID

	// size is the canonical encoded size, counted against the pool's byte
	// budget.
	size int64

	// remaining is the unconsumed offer amount. Settlements decrement it;
	// the intent leaves the pool when it reaches zero.
	remaining uint64

	// timestamp is the time at which the node first received the intent, the
	// tie-break fallback for intents signed without a submission time.
	timestamp time.Time

	// peers records a mapping of all peers that sent the intent.
	peers map[uint16]struct{}

	// gossipEl references the linked-list element in the gossip index.
	gossipEl *clist.CElement

	// removed marks the intent as removed from the pool. A removed intent
	// can still be referenced by a match the engine assembled earlier.
	removed bool
}

// Intent returns the wrapped signed intent.
func (wi *WrappedIntent) Intent() types.Intent { return wi.intent }

// ID returns the intent's content-derived identifier.
func (wi *WrappedIntent) ID() types.IntentID { return wi.id }

// Remaining returns the unconsumed offer amount.
func (wi *WrappedIntent) Remaining() uint64 { return wi.remaining }

// Timestamp returns the local arrival time.
func (wi *WrappedIntent) Timestamp() time.Time { return wi.timestamp }

// Priority returns the signed submission time used to break matching ties,
// falling back to the local arrival time when the owner left it unset.
func (wi *WrappedIntent) Priority() time.Time {
	if !wi.intent.Timestamp.IsZero() {
		return wi.intent.Timestamp
	}
	return wi.timestamp
}

func (wi *WrappedIntent) Size() int64 { return wi.size }

// intentStore implements a thread-safe mapping of live intents keyed by
// identifier, with a secondary index by owner address.
//
// NOTE: concurrent read-only access to a *WrappedIntent object is OK.
// Mutative access goes through the store so the indexes stay consistent.
type intentStore struct {
	mtx     sync.RWMutex
	intents map[types.IntentID]*WrappedIntent
	byOwner map[string]map[types.IntentID]*WrappedIntent
}

func newIntentStore() *intentStore {
	return &intentStore{
		intents: make(map[types.IntentID]*WrappedIntent),
		byOwner: make(map[string]map[types.IntentID]*WrappedIntent),
	}
}

// Size returns the total number of intents in the store.
func (s *intentStore) Size() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return len(s.intents)
}

// GetAllIntents returns all the intents currently in the store.
func (s *intentStore) GetAllIntents() []*WrappedIntent {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	wis := make([]*WrappedIntent, 0, len(s.intents))
	for _, wi := range s.intents {
		wis = append(wis, wi)
	}
	return wis
}

// GetIntent returns a *WrappedIntent by identifier.
func (s *intentStore) GetIntent(id types.IntentID) *WrappedIntent {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.intents[id]
}

// GetIntentsByOwner returns every live intent signed by owner.
func (s *intentStore) GetIntentsByOwner(owner string) []*WrappedIntent {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	wis := make([]*WrappedIntent, 0, len(s.byOwner[owner]))
	for _, wi := range s.byOwner[owner] {
		wis = append(wis, wi)
	}
	return wis
}

// IsIntentRemoved returns true if an intent by identifier is marked as
// removed and false otherwise.
func (s *intentStore) IsIntentRemoved(id types.IntentID) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	wi, ok := s.intents[id]
	if ok {
		return wi.removed
	}
	return false
}

// SetIntent stores a *WrappedIntent, indexed by identifier and owner.
func (s *intentStore) SetIntent(wi *WrappedIntent) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	owner := wi.intent.Owner().String()
	if s.byOwner[owner] == nil {
		s.byOwner[owner] = make(map[types.IntentID]*WrappedIntent)
	}
	s.byOwner[owner][wi.id] = wi
	s.intents[wi.id] = wi
}

// RemoveIntent removes a *WrappedIntent from the store, deleting all of its
// indexes.
func (s *intentStore) RemoveIntent(wi *WrappedIntent) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	owner := wi.intent.Owner().String()
	if owned := s.byOwner[owner]; owned != nil {
		delete(owned, wi.id)
		if len(owned) == 0 {
			delete(s.byOwner, owner)
		}
	}
	delete(s.intents, wi.id)
	wi.removed = true
}

// IntentHasPeer returns true if an intent by identifier has a given peer ID
// recorded as a sender. If the intent does not exist, false is returned.
func (s *intentStore) IntentHasPeer(id types.IntentID, peerID uint16) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	wi := s.intents[id]
	if wi == nil {
		return false
	}

	_, ok := wi.peers[peerID]
	return ok
}

// GetOrSetPeerByIntentID looks up a WrappedIntent by identifier and adds the
// given peerID to its set of senders. It returns true if the peer was
// already recorded and false otherwise. If the intent does not exist, it
// returns (nil, false).
func (s *intentStore) GetOrSetPeerByIntentID(id types.IntentID, peerID uint16) (*WrappedIntent, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	wi := s.intents[id]
	if wi == nil {
		return nil, false
	}

	if wi.peers == nil {
		wi.peers = make(map[uint16]struct{})
	}

	if _, ok := wi.peers[peerID]; ok {
		return wi, true
	}

	wi.peers[peerID] = struct{}{}
	return wi, false
}

// WrappedIntentList implements a thread-safe list of *WrappedIntent objects
// that can be used to build generic intent indexes in the pool. It accepts a
// comparator function, less(a, b *WrappedIntent) bool, that compares two
// WrappedIntent references which is used during Insert in order to determine
// sorted order. If less returns true, a <= b.
type WrappedIntentList struct {
	mtx     sync.RWMutex
	intents []*WrappedIntent
	less    func(*WrappedIntent, *WrappedIntent) bool
}

func NewWrappedIntentList(less func(*WrappedIntent, *WrappedIntent) bool) *WrappedIntentList {
	return &WrappedIntentList{
		intents: make([]*WrappedIntent, 0),
		less:    less,
	}
}

// Size returns the number of WrappedIntent objects in the list.
func (wil *WrappedIntentList) Size() int {
	wil.mtx.RLock()
	defer wil.mtx.RUnlock()

	return len(wil.intents)
}

// Front returns the first WrappedIntent in sort order, or nil when the list
// is empty.
func (wil *WrappedIntentList) Front() *WrappedIntent {
	wil.mtx.RLock()
	defer wil.mtx.RUnlock()

	if len(wil.intents) == 0 {
		return nil
	}
	return wil.intents[0]
}

// Reset resets the list of intents to an empty list.
func (wil *WrappedIntentList) Reset() {
	wil.mtx.Lock()
	defer wil.mtx.Unlock()

	wil.intents = make([]*WrappedIntent, 0)
}

// Insert inserts a WrappedIntent reference into the sorted list based on the
// list's comparator function.
func (wil *WrappedIntentList) Insert(wi *WrappedIntent) {
	wil.mtx.Lock()
	defer wil.mtx.Unlock()

	i := sort.Search(len(wil.intents), func(i int) bool {
		return wil.less(wil.intents[i], wi)
	})

	if i == len(wil.intents) {
		// insert at the end
		wil.intents = append(wil.intents, wi)
		return
	}

	// Make space for the inserted element by shifting values at the insertion
	// index up one index.
	wil.intents = append(wil.intents[:i+1], wil.intents[i:]...)
	wil.intents[i] = wi
}

// Remove attempts to remove a WrappedIntent from the sorted list.
func (wil *WrappedIntentList) Remove(wi *WrappedIntent) {
	wil.mtx.Lock()
	defer wil.mtx.Unlock()

	i := sort.Search(len(wil.intents), func(i int) bool {
		return wil.less(wil.intents[i], wi)
	})

	// Since the list is sorted, we evaluate all elements starting at i. If
	// the element does not exist we may evaluate the entire remainder of the
	// list, but callers are not expected to remove non-existing elements.
	for i < len(wil.intents) {
		if wil.intents[i] == wi {
			wil.intents = append(wil.intents[:i], wil.intents[i+1:]...)
			return
		}

		i++
	}
}
