package gossip

import (
	"fmt"
	"sync"

	"github.com/arvo-net/arvo/types"
)

const (
	// UnknownPeerID is the peer ID used when running the node's own
	// submissions through the pool.
	UnknownPeerID uint16 = 0

	// MaxActiveIDs is the maximum number of simultaneously connected peers.
	MaxActiveIDs = 1<<16 - 1
)

// PeerIDs maps node IDs to compact uint16 identifiers so the pool stores two
// bytes per sender instead of the full node ID.
type PeerIDs struct {
	mtx       sync.RWMutex
	peerMap   map[types.NodeID]uint16
	nextID    uint16              // assumes a node never has over 65536 active peers
	activeIDs map[uint16]struct{} // used to check if a given peer ID is in use
}

func NewPeerIDs() *PeerIDs {
	return &PeerIDs{
		peerMap: make(map[types.NodeID]uint16),

		// reserve UnknownPeerID for local submissions
		activeIDs: map[uint16]struct{}{UnknownPeerID: {}},
		nextID:    1,
	}
}

// ReserveForPeer searches for the next unused ID and assigns it to the
// provided peer.
func (ids *PeerIDs) ReserveForPeer(peerID types.NodeID) {
	ids.mtx.Lock()
	defer ids.mtx.Unlock()

	curID := ids.nextPeerID()
	ids.peerMap[peerID] = curID
	ids.activeIDs[curID] = struct{}{}
}

// Reclaim returns the ID reserved for the peer back to the unused pool.
func (ids *PeerIDs) Reclaim(peerID types.NodeID) {
	ids.mtx.Lock()
	defer ids.mtx.Unlock()

	removedID, ok := ids.peerMap[peerID]
	if ok {
		delete(ids.activeIDs, removedID)
		delete(ids.peerMap, peerID)
	}
}

// GetForPeer returns the ID reserved for the peer.
func (ids *PeerIDs) GetForPeer(peerID types.NodeID) uint16 {
	ids.mtx.RLock()
	defer ids.mtx.RUnlock()

	return ids.peerMap[peerID]
}

// nextPeerID returns the next unused peer ID. The mutex must already be
// held.
func (ids *PeerIDs) nextPeerID() uint16 {
	if len(ids.activeIDs) == MaxActiveIDs {
		panic(fmt.Sprintf("node has maximum %d active IDs and wanted to get one more", MaxActiveIDs))
	}

	_, idExists := ids.activeIDs[ids.nextID]
	for idExists {
		ids.nextID++
		_, idExists = ids.activeIDs[ids.nextID]
	}

	curID := ids.nextID
	ids.nextID++

	return curID
}
