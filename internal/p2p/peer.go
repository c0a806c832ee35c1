package p2p

import (
	"sync"

	"github.com/arvo-net/arvo/types"
)

// PeerStatus is a peer status.
type PeerStatus string

const (
	PeerStatusUp   PeerStatus = "up"   // connected and ready
	PeerStatusDown PeerStatus = "down" // disconnected
)

// PeerScore is a numeric score assigned to a peer. Higher-scored peers are
// favored when the gossip layer samples a fan-out subset.
type PeerScore uint8

// DefaultPeerScore is assigned to peers the node knows nothing about.
const DefaultPeerScore PeerScore = 10

// PeerUpdate is a peer update event sent via PeerUpdates.
type PeerUpdate struct {
	NodeID types.NodeID
	Status PeerStatus
	Score  PeerScore
}

// PeerUpdates is a peer update subscription with notifications about peer
// events (currently just status changes). It must be closed by the
// subscriber once no longer used.
type PeerUpdates struct {
	updatesCh chan PeerUpdate

	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewPeerUpdates creates a new PeerUpdates subscription. The caller can
// provide a non-zero buffer size to tune how many updates may queue before
// the router blocks.
func NewPeerUpdates(buf int) *PeerUpdates {
	return &PeerUpdates{
		updatesCh: make(chan PeerUpdate, buf),
		doneCh:    make(chan struct{}),
	}
}

// Updates returns a channel with peer updates.
func (pu *PeerUpdates) Updates() <-chan PeerUpdate {
	return pu.updatesCh
}

// SendUpdate delivers an update to the subscriber unless it has closed.
func (pu *PeerUpdates) SendUpdate(update PeerUpdate) {
	select {
	case <-pu.doneCh:
	case pu.updatesCh <- update:
	}
}

// Close closes the subscription.
func (pu *PeerUpdates) Close() {
	pu.closeOnce.Do(func() {
		close(pu.doneCh)
	})
}

// Done returns a channel that is closed when the subscription is closed.
func (pu *PeerUpdates) Done() <-chan struct{} {
	return pu.doneCh
}
