package persist

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/accum"
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/mmr"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/serialize"
)

func TestHealthyPeersRoundTrip(t *testing.T) {
	peers := []HealthyPeer{
		{Address: "10.0.0.1:3414", LastSeen: time.Unix(1700000000, 0), Capabilities: 1},
		{Address: "peer.onion:3414", LastSeen: time.Unix(1700000100, 0), Capabilities: 3},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHealthyPeers(&buf, peers))

	got, err := ReadHealthyPeers(&buf)
	require.NoError(t, err)
	require.Equal(t, peers, got)
}

func TestOutputMMRRoundTripsThroughWriteReadMMR(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	hasher := accum.HasherFromFacade(facade)

	m := mmr.New(hasher, accum.NewOutputSum(facade))
	for i := byte(1); i <= 3; i++ {
		_, err := m.Append(accum.OutputLeaf{Output: model.Output{Features: model.FeaturePlain, Commitment: model.Commitment{i}}})
		require.NoError(t, err)
	}
	wantRoot, err := m.Root()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMMR(&buf, m, OutputCodec()))

	restored, err := ReadMMR(&buf, hasher, accum.NewOutputSum(facade), OutputCodec())
	require.NoError(t, err)

	gotRoot, err := restored.Root()
	require.NoError(t, err)
	require.Equal(t, wantRoot, gotRoot)
	require.Equal(t, m.NumberOfLeaves(), restored.NumberOfLeaves())

	leaf, ok := restored.Leaf(1)
	require.True(t, ok)
	require.Equal(t, model.Commitment{2}, leaf.(accum.OutputLeaf).Output.Commitment)
}

func TestFullStateRoundTrip(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	hasher := accum.HasherFromFacade(facade)
	kernelPV := serialize.ProtocolVersion(1)

	headers := mmr.New(hasher, mmr.TrivialSum{})
	_, err := headers.Append(accum.HeaderLeaf{Header: model.Header{Height: 0, EdgeBits: 29}})
	require.NoError(t, err)

	kernels := mmr.New(hasher, accum.NewKernelSum(facade))
	_, err = kernels.Append(accum.KernelLeaf{Kernel: model.Kernel{Excess: model.Commitment{7}}})
	require.NoError(t, err)

	outputs := mmr.New(hasher, accum.NewOutputSum(facade))
	_, err = outputs.Append(accum.OutputLeaf{Output: model.Output{Commitment: model.Commitment{8}}})
	require.NoError(t, err)

	rangeproofs := mmr.New(hasher, mmr.TrivialSum{})
	_, err = rangeproofs.Append(accum.RangeproofLeaf{Rangeproof: model.Rangeproof{}})
	require.NoError(t, err)

	state := &State{
		Headers:           headers,
		Kernels:           kernels,
		Outputs:           outputs,
		Rangeproofs:       rangeproofs,
		SyncedHeaderIndex: 42,
		HealthyPeers:      []HealthyPeer{{Address: "1.2.3.4:3414", LastSeen: time.Unix(1700000000, 0), Capabilities: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, state, kernelPV))

	restored, err := Read(&buf, hasher, accum.NewKernelSum(facade), accum.NewOutputSum(facade), kernelPV)
	require.NoError(t, err)

	require.Equal(t, state.SyncedHeaderIndex, restored.SyncedHeaderIndex)
	require.Equal(t, state.HealthyPeers, restored.HealthyPeers)

	wantHeaderRoot, err := state.Headers.Root()
	require.NoError(t, err)
	gotHeaderRoot, err := restored.Headers.Root()
	require.NoError(t, err)
	require.Equal(t, wantHeaderRoot, gotHeaderRoot)
}
