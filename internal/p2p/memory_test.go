package p2p

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

const testChannel = ChannelID(0x99)

type testMessage struct {
	Body string
}

func (m testMessage) ValidateBasic() error { return nil }

func testNodeID(b byte) types.NodeID {
	nk := types.GenNodeKey()
	_ = b
	return nk.ID
}

func recvEnvelope(t *testing.T, ch *Channel) Envelope {
	t.Helper()
	select {
	case e := <-ch.In():
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func recvPeerUpdate(t *testing.T, sub *PeerUpdates) PeerUpdate {
	t.Helper()
	select {
	case update := <-sub.Updates():
		return update
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for peer update")
		return PeerUpdate{}
	}
}

func TestMemoryNetworkDelivery(t *testing.T) {
	network := NewMemoryNetwork(log.NewNopLogger())

	n1, err := network.CreateNode(testNodeID(1))
	require.NoError(t, err)
	n2, err := network.CreateNode(testNodeID(2))
	require.NoError(t, err)

	ch1, err := n1.OpenChannel(testChannel, 16)
	require.NoError(t, err)
	ch2, err := n2.OpenChannel(testChannel, 16)
	require.NoError(t, err)
	defer ch1.Close()
	defer ch2.Close()

	ch1.Out() <- Envelope{To: n2.NodeID(), Message: testMessage{Body: "hello"}}

	e := recvEnvelope(t, ch2)
	assert.Equal(t, n1.NodeID(), e.From)
	assert.Equal(t, testMessage{Body: "hello"}, e.Message)
}

func TestMemoryNetworkBroadcast(t *testing.T) {
	network := NewMemoryNetwork(log.NewNopLogger())

	var nodes []*MemoryNode
	var channels []*Channel
	for i := 0; i < 3; i++ {
		n, err := network.CreateNode(testNodeID(byte(i)))
		require.NoError(t, err)
		ch, err := n.OpenChannel(testChannel, 16)
		require.NoError(t, err)
		defer ch.Close()

		nodes = append(nodes, n)
		channels = append(channels, ch)
	}

	channels[0].Out() <- Envelope{Broadcast: true, Message: testMessage{Body: "all"}}

	for _, ch := range channels[1:] {
		e := recvEnvelope(t, ch)
		assert.Equal(t, nodes[0].NodeID(), e.From)
	}

	// The sender does not hear its own broadcast.
	select {
	case e := <-channels[0].In():
		t.Fatalf("sender received own broadcast: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryNetworkPeerUpdates(t *testing.T) {
	network := NewMemoryNetwork(log.NewNopLogger())

	n1, err := network.CreateNode(testNodeID(1))
	require.NoError(t, err)
	sub1 := n1.PeerUpdates()
	defer sub1.Close()

	// A node joining after the subscription shows up as a live update.
	n2, err := network.CreateNode(testNodeID(2))
	require.NoError(t, err)

	update := recvPeerUpdate(t, sub1)
	assert.Equal(t, n2.NodeID(), update.NodeID)
	assert.Equal(t, PeerStatusUp, update.Status)

	// A node subscribing late sees existing peers replayed.
	sub2 := n2.PeerUpdates()
	defer sub2.Close()

	update = recvPeerUpdate(t, sub2)
	assert.Equal(t, n1.NodeID(), update.NodeID)
	assert.Equal(t, PeerStatusUp, update.Status)

	// Departure is observed as down.
	network.RemoveNode(n2.NodeID())
	update = recvPeerUpdate(t, sub1)
	assert.Equal(t, n2.NodeID(), update.NodeID)
	assert.Equal(t, PeerStatusDown, update.Status)
}

func TestMemoryNetworkPeerErrorDisconnects(t *testing.T) {
	network := NewMemoryNetwork(log.NewNopLogger())

	n1, err := network.CreateNode(testNodeID(1))
	require.NoError(t, err)
	n2, err := network.CreateNode(testNodeID(2))
	require.NoError(t, err)

	sub1 := n1.PeerUpdates()
	defer sub1.Close()

	ch1, err := n1.OpenChannel(testChannel, 16)
	require.NoError(t, err)
	defer ch1.Close()

	ch1.Error() <- PeerError{NodeID: n2.NodeID(), Err: errors.New("misbehaving")}

	update := recvPeerUpdate(t, sub1)
	assert.Equal(t, n2.NodeID(), update.NodeID)
	assert.Equal(t, PeerStatusDown, update.Status)
}

func TestMemoryNodeDuplicateChannel(t *testing.T) {
	network := NewMemoryNetwork(log.NewNopLogger())

	n, err := network.CreateNode(testNodeID(1))
	require.NoError(t, err)

	ch, err := n.OpenChannel(testChannel, 16)
	require.NoError(t, err)
	defer ch.Close()

	_, err = n.OpenChannel(testChannel, 16)
	require.Error(t, err)
}
