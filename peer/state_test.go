package peer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStateStartsInInitialStates(t *testing.T) {
	s := NewState()
	require.Equal(t, ConnStateConnecting, s.Connection.Current())
	require.Equal(t, SyncStateNotSyncing, s.Sync.Current())
	require.Equal(t, CommStateIdle, s.Communication.Current())
}

func TestConnectionFSMFollowsHandshakeSequence(t *testing.T) {
	ctx := context.Background()
	s := NewState()

	require.NoError(t, Fire(ctx, s.Connection, "connected"))
	require.Equal(t, ConnStateConnected, s.Connection.Current())

	require.NoError(t, Fire(ctx, s.Connection, "healthy"))
	require.Equal(t, ConnStateConnectedAndHealthy, s.Connection.Current())

	require.NoError(t, Fire(ctx, s.Connection, "disconnect"))
	require.Equal(t, ConnStateDisconnected, s.Connection.Current())
}

func TestConnectionFSMRejectsHealthyBeforeConnected(t *testing.T) {
	ctx := context.Background()
	s := NewState()

	err := Fire(ctx, s.Connection, "healthy")
	require.Error(t, err)
	require.Equal(t, ConnStateConnecting, s.Connection.Current())
}

func TestConnectionFSMDisconnectReachableFromAnyState(t *testing.T) {
	ctx := context.Background()
	s := NewState()
	require.NoError(t, Fire(ctx, s.Connection, "disconnect"))
	require.Equal(t, ConnStateDisconnected, s.Connection.Current())
}

func TestCommunicationFSMFollowsHandshakeSequence(t *testing.T) {
	ctx := context.Background()
	s := NewState()

	require.NoError(t, Fire(ctx, s.Communication, "hand_sent"))
	require.Equal(t, CommStateHandSent, s.Communication.Current())

	require.NoError(t, Fire(ctx, s.Communication, "peer_addresses_requested"))
	require.Equal(t, CommStatePeerAddressesRequested, s.Communication.Current())

	require.NoError(t, Fire(ctx, s.Communication, "peer_addresses_received"))
	require.Equal(t, CommStatePeerAddressesReceived, s.Communication.Current())

	// A repeat address request (e.g. the steady-state re-request ticker) is
	// allowed from PeerAddressesReceived, not just from HandSent.
	require.NoError(t, Fire(ctx, s.Communication, "peer_addresses_requested"))
	require.Equal(t, CommStatePeerAddressesRequested, s.Communication.Current())
}

func TestCommunicationFSMRejectsPeerAddressesReceivedBeforeRequested(t *testing.T) {
	ctx := context.Background()
	s := NewState()
	err := Fire(ctx, s.Communication, "peer_addresses_received")
	require.Error(t, err)
	require.Equal(t, CommStateIdle, s.Communication.Current())
}

func TestSyncFSMHeaderSyncCycle(t *testing.T) {
	ctx := context.Background()
	s := NewState()

	require.NoError(t, Fire(ctx, s.Sync, "request_headers"))
	require.Equal(t, SyncStateRequestingHeaders, s.Sync.Current())

	require.NoError(t, Fire(ctx, s.Sync, "headers_requested"))
	require.Equal(t, SyncStateRequestedHeaders, s.Sync.Current())

	require.NoError(t, Fire(ctx, s.Sync, "request_block"))
	require.Equal(t, SyncStateRequestingBlock, s.Sync.Current())

	require.NoError(t, Fire(ctx, s.Sync, "block_requested"))
	require.Equal(t, SyncStateRequestedBlock, s.Sync.Current())

	require.NoError(t, Fire(ctx, s.Sync, "process_block"))
	require.Equal(t, SyncStateProcessingBlock, s.Sync.Current())

	require.NoError(t, Fire(ctx, s.Sync, "block_done"))
	require.Equal(t, SyncStateNotSyncing, s.Sync.Current())
}

func TestSyncFSMTxHashSetCycle(t *testing.T) {
	ctx := context.Background()
	s := NewState()

	require.NoError(t, Fire(ctx, s.Sync, "request_headers"))
	require.NoError(t, Fire(ctx, s.Sync, "headers_requested"))
	require.NoError(t, Fire(ctx, s.Sync, "request_tx_hash_set"))
	require.Equal(t, SyncStateRequestingTxHashSet, s.Sync.Current())

	require.NoError(t, Fire(ctx, s.Sync, "tx_hash_set_requested"))
	require.Equal(t, SyncStateRequestedTxHashSet, s.Sync.Current())

	require.NoError(t, Fire(ctx, s.Sync, "process_tx_hash_set"))
	require.Equal(t, SyncStateProcessingTxHashSet, s.Sync.Current())

	require.NoError(t, Fire(ctx, s.Sync, "tx_hash_set_done"))
	require.Equal(t, SyncStateNotSyncing, s.Sync.Current())
}

func TestSyncFSMAbortSyncReturnsToNotSyncingMidFlight(t *testing.T) {
	ctx := context.Background()
	s := NewState()

	require.NoError(t, Fire(ctx, s.Sync, "request_headers"))
	require.NoError(t, Fire(ctx, s.Sync, "abort_sync"))
	require.Equal(t, SyncStateNotSyncing, s.Sync.Current())
}

func TestSyncFSMRejectsBlockRequestBeforeHeadersRequested(t *testing.T) {
	ctx := context.Background()
	s := NewState()
	err := Fire(ctx, s.Sync, "request_block")
	require.Error(t, err)
	require.Equal(t, SyncStateNotSyncing, s.Sync.Current())
}

func TestFireWrapsUnderlyingTransitionError(t *testing.T) {
	ctx := context.Background()
	s := NewState()
	err := Fire(ctx, s.Sync, "block_done")
	require.Error(t, err)
	require.Contains(t, err.Error(), "block_done")
}
