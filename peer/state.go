package peer

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Connection states (§4.9).
const (
	ConnStateConnecting          = "connecting"
	ConnStateConnected           = "connected"
	ConnStateConnectedAndHealthy = "connected_and_healthy"
	ConnStateDisconnected        = "disconnected"
)

// Syncing states (§4.9).
const (
	SyncStateNotSyncing          = "not_syncing"
	SyncStateRequestingHeaders   = "requesting_headers"
	SyncStateRequestedHeaders    = "requested_headers"
	SyncStateRequestingTxHashSet = "requesting_tx_hash_set"
	SyncStateRequestedTxHashSet  = "requested_tx_hash_set"
	SyncStateProcessingTxHashSet = "processing_tx_hash_set"
	SyncStateRequestingBlock     = "requesting_block"
	SyncStateRequestedBlock      = "requested_block"
	SyncStateProcessingBlock     = "processing_block"
)

// Communication states (§4.9).
const (
	CommStateIdle                    = "idle"
	CommStateHandSent                = "hand_sent"
	CommStatePeerAddressesRequested  = "peer_addresses_requested"
	CommStatePeerAddressesReceived   = "peer_addresses_received"
)

// newConnectionFSM builds the connection sub-machine: Connecting ->
// Connected -> ConnectedAndHealthy, with a Disconnected sink reachable
// from any state.
func newConnectionFSM() *fsm.FSM {
	return fsm.NewFSM(
		ConnStateConnecting,
		fsm.Events{
			{Name: "connected", Src: []string{ConnStateConnecting}, Dst: ConnStateConnected},
			{Name: "healthy", Src: []string{ConnStateConnected}, Dst: ConnStateConnectedAndHealthy},
			{Name: "disconnect", Src: []string{ConnStateConnecting, ConnStateConnected, ConnStateConnectedAndHealthy}, Dst: ConnStateDisconnected},
		},
		fsm.Callbacks{},
	)
}

// newSyncFSM builds the sync sub-machine driven by the node during §4.10's
// sync phases.
func newSyncFSM() *fsm.FSM {
	return fsm.NewFSM(
		SyncStateNotSyncing,
		fsm.Events{
			{Name: "request_headers", Src: []string{SyncStateNotSyncing, SyncStateRequestedHeaders}, Dst: SyncStateRequestingHeaders},
			{Name: "headers_requested", Src: []string{SyncStateRequestingHeaders}, Dst: SyncStateRequestedHeaders},
			{Name: "request_tx_hash_set", Src: []string{SyncStateRequestedHeaders}, Dst: SyncStateRequestingTxHashSet},
			{Name: "tx_hash_set_requested", Src: []string{SyncStateRequestingTxHashSet}, Dst: SyncStateRequestedTxHashSet},
			{Name: "process_tx_hash_set", Src: []string{SyncStateRequestedTxHashSet}, Dst: SyncStateProcessingTxHashSet},
			{Name: "tx_hash_set_done", Src: []string{SyncStateProcessingTxHashSet}, Dst: SyncStateNotSyncing},
			{Name: "request_block", Src: []string{SyncStateRequestedHeaders, SyncStateRequestedBlock}, Dst: SyncStateRequestingBlock},
			{Name: "block_requested", Src: []string{SyncStateRequestingBlock}, Dst: SyncStateRequestedBlock},
			{Name: "process_block", Src: []string{SyncStateRequestedBlock}, Dst: SyncStateProcessingBlock},
			{Name: "block_done", Src: []string{SyncStateProcessingBlock}, Dst: SyncStateNotSyncing},
			{Name: "abort_sync", Src: []string{
				SyncStateRequestingHeaders, SyncStateRequestedHeaders,
				SyncStateRequestingTxHashSet, SyncStateRequestedTxHashSet, SyncStateProcessingTxHashSet,
				SyncStateRequestingBlock, SyncStateRequestedBlock, SyncStateProcessingBlock,
			}, Dst: SyncStateNotSyncing},
		},
		fsm.Callbacks{},
	)
}

// newCommunicationFSM builds the handshake communication sub-machine.
func newCommunicationFSM() *fsm.FSM {
	return fsm.NewFSM(
		CommStateIdle,
		fsm.Events{
			{Name: "hand_sent", Src: []string{CommStateIdle}, Dst: CommStateHandSent},
			{Name: "peer_addresses_requested", Src: []string{CommStateHandSent, CommStatePeerAddressesReceived}, Dst: CommStatePeerAddressesRequested},
			{Name: "peer_addresses_received", Src: []string{CommStatePeerAddressesRequested}, Dst: CommStatePeerAddressesReceived},
		},
		fsm.Callbacks{},
	)
}

// State bundles the three orthogonal state machines §4.9 describes for a
// single peer connection.
type State struct {
	Connection    *fsm.FSM
	Sync          *fsm.FSM
	Communication *fsm.FSM
}

// NewState builds the fresh per-peer state, all sub-machines in their
// initial states.
func NewState() *State {
	return &State{
		Connection:    newConnectionFSM(),
		Sync:          newSyncFSM(),
		Communication: newCommunicationFSM(),
	}
}

// Fire is a small convenience wrapper that wraps an fsm transition error
// with fmt.Errorf, naming the event and the current state.
func Fire(ctx context.Context, machine *fsm.FSM, event string) error {
	if err := machine.Event(ctx, event); err != nil {
		return fmt.Errorf("peer state transition %q from %q: %w", event, machine.Current(), err)
	}
	return nil
}
