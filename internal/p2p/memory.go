package p2p

import (
	"fmt"
	"sync"

	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

// MemoryNetwork is an in-process network that routes envelopes between the
// nodes attached to it. It is the transport used by single-process
// deployments and by tests; every node sees every other node as a peer.
type MemoryNetwork struct {
	logger log.Logger

	mtx   sync.RWMutex
	nodes map[types.NodeID]*MemoryNode
}

// NewMemoryNetwork creates a new in-process network.
func NewMemoryNetwork(logger log.Logger) *MemoryNetwork {
	return &MemoryNetwork{
		logger: logger,
		nodes:  map[types.NodeID]*MemoryNode{},
	}
}

// CreateNode attaches a new node to the network. Existing nodes observe it
// as a peer coming up, and vice versa.
func (n *MemoryNetwork) CreateNode(id types.NodeID) (*MemoryNode, error) {
	node := &MemoryNode{
		logger:   n.logger.With("node", id),
		network:  n,
		id:       id,
		channels: map[ChannelID]chan Envelope{},
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()

	if _, ok := n.nodes[id]; ok {
		return nil, fmt.Errorf("node %q already exists", id)
	}
	n.nodes[id] = node

	for _, other := range n.nodes {
		if other.id == id {
			continue
		}
		other.sendPeerUpdate(PeerUpdate{NodeID: id, Status: PeerStatusUp, Score: DefaultPeerScore})
		node.pendingPeers = append(node.pendingPeers,
			PeerUpdate{NodeID: other.id, Status: PeerStatusUp, Score: DefaultPeerScore})
	}

	return node, nil
}

// RemoveNode detaches a node; its peers observe it going down.
func (n *MemoryNetwork) RemoveNode(id types.NodeID) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	if _, ok := n.nodes[id]; !ok {
		return
	}
	delete(n.nodes, id)

	for _, other := range n.nodes {
		other.sendPeerUpdate(PeerUpdate{NodeID: id, Status: PeerStatusDown})
	}
}

// deliver routes an envelope to the destination's inbound queue for the
// given channel. Full queues drop the envelope; gossip retransmits.
func (n *MemoryNetwork) deliver(chID ChannelID, e Envelope) {
	n.mtx.RLock()
	defer n.mtx.RUnlock()

	if e.Broadcast {
		for _, node := range n.nodes {
			if node.id == e.From {
				continue
			}
			node.receive(chID, e)
		}
		return
	}

	node, ok := n.nodes[e.To]
	if !ok {
		return
	}
	node.receive(chID, e)
}

// MemoryNode is one endpoint on a MemoryNetwork.
type MemoryNode struct {
	logger  log.Logger
	network *MemoryNetwork
	id      types.NodeID

	mtx      sync.RWMutex
	channels map[ChannelID]chan Envelope
	subs     []*PeerUpdates
	// pendingPeers are the peers present before this node subscribed; they
	// are replayed to the first subscription.
	pendingPeers []PeerUpdate
}

// NodeID returns the node's ID.
func (mn *MemoryNode) NodeID() types.NodeID { return mn.id }

// OpenChannel opens a channel with bounded inbound and outbound queues. The
// returned Channel is owned by the calling reactor.
func (mn *MemoryNode) OpenChannel(id ChannelID, queueCap int) (*Channel, error) {
	in := make(chan Envelope, queueCap)
	out := make(chan Envelope, queueCap)
	errCh := make(chan PeerError, queueCap)

	mn.mtx.Lock()
	if _, ok := mn.channels[id]; ok {
		mn.mtx.Unlock()
		return nil, fmt.Errorf("channel %v already open", id)
	}
	mn.channels[id] = in
	mn.mtx.Unlock()

	ch := NewChannel(id, in, out, errCh)

	go mn.routeOut(id, out)
	go mn.routeErrors(errCh)

	return ch, nil
}

// PeerUpdates returns a subscription to peer status changes. Peers already
// connected are replayed as up events.
func (mn *MemoryNode) PeerUpdates() *PeerUpdates {
	sub := NewPeerUpdates(64)

	mn.mtx.Lock()
	mn.subs = append(mn.subs, sub)
	pending := mn.pendingPeers
	mn.pendingPeers = nil
	mn.mtx.Unlock()

	for _, update := range pending {
		sub.SendUpdate(update)
	}
	return sub
}

// Close detaches the node from the network.
func (mn *MemoryNode) Close() {
	mn.network.RemoveNode(mn.id)

	mn.mtx.Lock()
	defer mn.mtx.Unlock()
	for _, sub := range mn.subs {
		sub.Close()
	}
	mn.subs = nil
}

func (mn *MemoryNode) routeOut(chID ChannelID, out <-chan Envelope) {
	for e := range out {
		if !e.Broadcast && e.To == "" {
			mn.logger.Error("dropping envelope without destination", "channel", chID)
			continue
		}
		e.From = mn.id
		mn.network.deliver(chID, e)
	}
}

func (mn *MemoryNode) routeErrors(errCh <-chan PeerError) {
	for pErr := range errCh {
		mn.logger.Error("peer error, disconnecting peer",
			"peer", pErr.NodeID,
			"err", pErr.Err,
		)
		mn.network.RemoveNode(pErr.NodeID)
	}
}

func (mn *MemoryNode) receive(chID ChannelID, e Envelope) {
	mn.mtx.RLock()
	in, ok := mn.channels[chID]
	mn.mtx.RUnlock()
	if !ok {
		return
	}

	select {
	case in <- e:
	default:
		mn.logger.Debug("inbound queue full, dropping envelope",
			"channel", chID,
			"from", e.From,
		)
	}
}

func (mn *MemoryNode) sendPeerUpdate(update PeerUpdate) {
	mn.mtx.RLock()
	subs := mn.subs
	noSubs := len(mn.subs) == 0
	mn.mtx.RUnlock()

	if noSubs {
		mn.mtx.Lock()
		mn.pendingPeers = append(mn.pendingPeers, update)
		mn.mtx.Unlock()
		return
	}
	for _, sub := range subs {
		sub.SendUpdate(update)
	}
}
