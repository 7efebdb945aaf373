package node

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/config"
	"github.com/mwc-validation-node/go-node/consensus"
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/peer"
	"github.com/mwc-validation-node/go-node/telemetry"
)

type stubDialer struct{}

func (stubDialer) Dial(ctx context.Context, address string) (PeerConn, error) {
	panic("not used by these tests")
}

func testNode(t *testing.T) *Node {
	t.Helper()
	facade := crypto.NewDefaultFacade(nil, nil)
	genesis := testGenesis()
	chain, err := NewChain(facade, consensus.MainnetParams(), telemetry.Nop(), genesis)
	require.NoError(t, err)

	cfg := &config.NodeConfig{Network: consensus.Mainnet, BaseFee: config.DefaultBaseFee, DesiredPeerCapabilities: uint32(peer.CapabilityFullNode)}
	n := New(cfg, facade, telemetry.Nop(), peer.Magic{0x1, 0x2}, stubDialer{}, chain, genesis, Callbacks{})
	t.Cleanup(n.pools.Stop)
	return n
}

func connectedPeer(t *testing.T, address string) *peer.Peer {
	t.Helper()
	local, _ := net.Pipe()
	t.Cleanup(func() { _ = local.Close() })
	p := peer.New(local, peer.Magic{0x1, 0x2}, address, telemetry.Nop())
	require.NoError(t, peer.Fire(context.Background(), p.State.Connection, "connected"))
	require.NoError(t, peer.Fire(context.Background(), p.State.Connection, "healthy"))
	return p
}

func TestAdmitInboundRegistersUpToDesiredPeersCap(t *testing.T) {
	n := testNode(t)
	for i := 0; i < DesiredPeers; i++ {
		p := connectedPeer(t, addressFor(i))
		require.True(t, n.AdmitInbound(p))
	}
	overflow := connectedPeer(t, "overflow:1")
	require.False(t, n.AdmitInbound(overflow))
}

func TestAdmitInboundRejectsDuplicateAddress(t *testing.T) {
	n := testNode(t)
	p1 := connectedPeer(t, "10.0.0.1:1")
	require.True(t, n.AdmitInbound(p1))

	p2 := connectedPeer(t, "10.0.0.1:1")
	require.False(t, n.AdmitInbound(p2))
}

func TestPickSyncPeerLocatedPrefersHighestDifficulty(t *testing.T) {
	n := testNode(t)
	low := connectedPeer(t, "1.1.1.1:1")
	low.TotalDifficulty = 10
	high := connectedPeer(t, "2.2.2.2:1")
	high.TotalDifficulty = 50

	n.mu.Lock()
	n.peers[low.Address] = low
	n.peers[high.Address] = high
	best := n.pickSyncPeerLocked()
	n.mu.Unlock()

	require.Same(t, high, best)
}

func TestPickSyncPeerLockedIgnoresUnhealthyPeers(t *testing.T) {
	n := testNode(t)
	local, _ := net.Pipe()
	t.Cleanup(func() { _ = local.Close() })
	unhealthy := peer.New(local, peer.Magic{0x1, 0x2}, "3.3.3.3:1", telemetry.Nop())
	unhealthy.TotalDifficulty = 9999

	n.mu.Lock()
	n.peers[unhealthy.Address] = unhealthy
	best := n.pickSyncPeerLocked()
	n.mu.Unlock()

	require.Nil(t, best)
}

func TestTipLockedReflectsChainSyncedHeight(t *testing.T) {
	n := testNode(t)
	n.mu.Lock()
	tip := n.tipLocked()
	n.mu.Unlock()
	require.Equal(t, uint64(0), tip.Height)
}

func TestQueueTransactionAndQueueBlockAppendToPendingLists(t *testing.T) {
	n := testNode(t)
	tx := &model.Transaction{}
	n.QueueTransaction(tx)
	n.mu.Lock()
	require.Len(t, n.pendingTxs, 1)
	n.mu.Unlock()

	block := &model.Block{}
	n.QueueBlock(block)
	n.mu.Lock()
	require.Len(t, n.pendingBlocks, 1)
	n.mu.Unlock()
}

func TestReapDisconnectedPeersRemovesOnlyDisconnectedOnes(t *testing.T) {
	n := testNode(t)
	healthy := connectedPeer(t, "healthy:1")

	local, _ := net.Pipe()
	t.Cleanup(func() { _ = local.Close() })
	gone := peer.New(local, peer.Magic{0x1, 0x2}, "gone:1", telemetry.Nop())
	require.NoError(t, peer.Fire(context.Background(), gone.State.Connection, "disconnect"))

	n.mu.Lock()
	n.peers[healthy.Address] = healthy
	n.peers[gone.Address] = gone
	n.syncingPeer = gone
	n.syncing = true
	n.mu.Unlock()

	n.reapDisconnectedPeers()

	n.mu.Lock()
	defer n.mu.Unlock()
	_, stillThere := n.peers[gone.Address]
	require.False(t, stillThere)
	_, healthyStillThere := n.peers[healthy.Address]
	require.True(t, healthyStillThere)
	require.False(t, n.syncing)
	require.Nil(t, n.syncingPeer)
}

func addressFor(i int) string {
	return "peer-" + string(rune('a'+i)) + ":1"
}
