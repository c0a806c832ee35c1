// Package p2p carries gossip traffic between nodes. Reactors exchange typed
// envelopes over channels; a router (in-process for tests, networked in
// deployment) moves envelopes between peers and reports membership changes
// through PeerUpdates.
package p2p

import (
	"sync"

	"github.com/arvo-net/arvo/types"
)

// ChannelID is an arbitrary channel ID.
type ChannelID uint16

// Message is the payload type exchanged over channels. Implementations are
// encoded canonically on the wire.
type Message interface {
	// ValidateBasic performs stateless sanity checks on a decoded message.
	ValidateBasic() error
}

// Envelope specifies the message receiver and sender.
type Envelope struct {
	From      types.NodeID // Message sender, or empty for outbound messages.
	To        types.NodeID // Message receiver, or empty for inbound messages.
	Broadcast bool         // Send message to all connected peers, ignoring To.
	Message   Message      // Payload.
}

// PeerError is a peer error reported by a reactor to the router. The router
// disconnects any peer a reactor reports.
type PeerError struct {
	NodeID types.NodeID
	Err    error
}

// Channel is a bidirectional channel for message exchange with peers. A
// Channel is safe for concurrent use by multiple goroutines.
type Channel struct {
	closeOnce sync.Once

	// id defines the unique channel ID.
	id ChannelID

	// inCh is a channel for receiving inbound messages. Envelope.From is
	// always set.
	inCh chan Envelope

	// outCh is a channel for sending outbound messages. Envelope.To or
	// Broadcast must be set, otherwise the message is discarded.
	outCh chan Envelope

	// errCh is a channel for reporting peer errors to the router, typically
	// used when peers send an invalid or malignant message.
	errCh chan PeerError

	// doneCh is used to signal that a Channel is closed. A Channel is
	// bidirectional and should be closed by the reactor, whereas the router
	// is responsible for explicitly closing the internal In channel.
	doneCh chan struct{}
}

// NewChannel returns a reference to a new Channel. It is the reactor's
// responsibility to close the Channel. After a channel is closed, the router
// may safely and explicitly close the internal In channel.
func NewChannel(id ChannelID, in, out chan Envelope, errCh chan PeerError) *Channel {
	return &Channel{
		id:     id,
		inCh:   in,
		outCh:  out,
		errCh:  errCh,
		doneCh: make(chan struct{}),
	}
}

// ID returns the Channel's ID.
func (c *Channel) ID() ChannelID {
	return c.id
}

// In returns a read-only inbound go channel. This go channel should be used
// by reactors to consume Envelopes sent from peers.
func (c *Channel) In() <-chan Envelope {
	return c.inCh
}

// Out returns a write-only outbound go channel. This go channel should be
// used by reactors to route Envelopes to other peers.
func (c *Channel) Out() chan<- Envelope {
	return c.outCh
}

// Error returns a write-only outbound go channel designated for peer errors
// only.
func (c *Channel) Error() chan<- PeerError {
	return c.errCh
}

// Close closes the outbound channel and marks the Channel as done. Any send
// on the Out or Error channel will panic after the Channel is closed.
//
// NOTE: after a Channel is closed, the router may safely assume it can no
// longer send on the internal inCh, however it should NEVER explicitly close
// it as that could result in panics by sending on a closed channel.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.doneCh)
		close(c.outCh)
		close(c.errCh)
	})
}

// Done returns the Channel's internal channel that should be used by a
// router to signal when it is safe to send on the internal inCh go channel.
func (c *Channel) Done() <-chan struct{} {
	return c.doneCh
}
