package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/accum"
	"github.com/mwc-validation-node/go-node/consensus"
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/telemetry"
)

func testGenesis() consensus.GenesisBlock {
	header := model.Header{Height: 0, OutputMMRSize: 1, KernelMMRSize: 1}
	kernel := model.Kernel{Features: model.KernelCoinbase, Excess: model.Commitment{0xAA}}
	output := model.Output{Features: model.FeatureCoinbase, Commitment: model.Commitment{0xAA}}
	rangeproof := model.Rangeproof{Proof: []byte{1, 2, 3}}
	return consensus.NewGenesisBlock(header, kernel, output, rangeproof)
}

// buildNextHeader mirrors applyBlockBody's own append order (outputs +
// rangeproofs, then input pruning, then kernels) against a shadow chain
// that is extended block by block in lockstep with the chain under test, so
// the header this helper returns carries the exact roots/sizes the real
// ApplyBlock call will independently compute and check.
func buildNextHeader(t *testing.T, shadow *Chain, height uint64, body *model.Block) model.Header {
	t.Helper()

	for i := range body.Outputs {
		_, err := shadow.Outputs.Append(accum.OutputLeaf{Output: body.Outputs[i]})
		require.NoError(t, err)
		_, err = shadow.Rangeproofs.Append(accum.RangeproofLeaf{Rangeproof: body.Rangeproofs[i]})
		require.NoError(t, err)
	}
	for i := range body.Inputs {
		idx, ok, err := shadow.Outputs.LookupOne(body.Inputs[i].Commitment[:])
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, shadow.Outputs.Prune(idx, true))
		require.NoError(t, shadow.Rangeproofs.Prune(idx, true))
	}

	outputRoot, err := shadow.Outputs.Root()
	require.NoError(t, err)
	rangeproofRoot, err := shadow.Rangeproofs.Root()
	require.NoError(t, err)

	for i := range body.Kernels {
		_, err := shadow.Kernels.Append(accum.KernelLeaf{Kernel: body.Kernels[i]})
		require.NoError(t, err)
	}
	kernelRoot, err := shadow.Kernels.Root()
	require.NoError(t, err)

	return model.Header{
		Height:         height,
		OutputMMRSize:  shadow.Outputs.NumberOfNodes(),
		KernelMMRSize:  shadow.Kernels.NumberOfNodes(),
		OutputRoot:     outputRoot,
		RangeproofRoot: rangeproofRoot,
		KernelRoot:     kernelRoot,
	}
}

func TestApplyBlockAcceptsBalancedCoinbaseOnlyBlock(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	params := consensus.MainnetParams()
	genesis := testGenesis()

	chain, err := NewChain(facade, params, telemetry.Nop(), genesis)
	require.NoError(t, err)
	shadow, err := NewChain(facade, params, telemetry.Nop(), genesis)
	require.NoError(t, err)

	r := blinding(5)
	reward := uint64(1000)
	out, err := facade.PedersenCommit(r, reward)
	require.NoError(t, err)

	body := &model.Block{
		Outputs:     []model.Output{{Features: model.FeatureCoinbase, Commitment: out}},
		Rangeproofs: []model.Rangeproof{{Proof: []byte{9}}},
		Kernels:     []model.Kernel{{Features: model.KernelCoinbase, Excess: out}},
	}

	header := buildNextHeader(t, shadow, 1, body)
	err = chain.ApplyBlock(header, body, reward, model.Scalar{})
	require.NoError(t, err)
	require.Equal(t, uint64(1), chain.SyncedHeaderIndex)

	got, idx, ok := chain.Lookup(out)
	require.True(t, ok)
	require.Equal(t, uint64(1), idx)
	require.Equal(t, out, got.Commitment)
}

func TestApplyBlockRejectsWrongKernelRoot(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	params := consensus.MainnetParams()
	genesis := testGenesis()

	chain, err := NewChain(facade, params, telemetry.Nop(), genesis)
	require.NoError(t, err)
	shadow, err := NewChain(facade, params, telemetry.Nop(), genesis)
	require.NoError(t, err)

	r := blinding(5)
	reward := uint64(1000)
	out, err := facade.PedersenCommit(r, reward)
	require.NoError(t, err)

	body := &model.Block{
		Outputs:     []model.Output{{Features: model.FeatureCoinbase, Commitment: out}},
		Rangeproofs: []model.Rangeproof{{Proof: []byte{9}}},
		Kernels:     []model.Kernel{{Features: model.KernelCoinbase, Excess: out}},
	}

	header := buildNextHeader(t, shadow, 1, body)
	header.KernelRoot = model.Hash{0xFF} // corrupt

	err = chain.ApplyBlock(header, body, reward, model.Scalar{})
	require.Error(t, err)
	// The synced index must have been decremented back, and the body MMRs
	// rewound, leaving the chain able to retry at the same height.
	require.Equal(t, uint64(0), chain.SyncedHeaderIndex)
	require.Equal(t, genesis.Header.OutputMMRSize, chain.Outputs.NumberOfNodes())
}

func TestApplyBlockRejectsImmatureCoinbaseSpend(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	params := consensus.MainnetParams()
	genesis := testGenesis()

	chain, err := NewChain(facade, params, telemetry.Nop(), genesis)
	require.NoError(t, err)
	shadow, err := NewChain(facade, params, telemetry.Nop(), genesis)
	require.NoError(t, err)

	rIn := blinding(1)
	reward := uint64(1000)
	in, err := facade.PedersenCommit(rIn, reward)
	require.NoError(t, err)

	// Height 1: mint the coinbase this test then tries to spend immediately.
	body1 := &model.Block{
		Outputs:     []model.Output{{Features: model.FeatureCoinbase, Commitment: in}},
		Rangeproofs: []model.Rangeproof{{Proof: []byte{9}}},
		Kernels:     []model.Kernel{{Features: model.KernelCoinbase, Excess: in}},
	}
	header1 := buildNextHeader(t, shadow, 1, body1)
	require.NoError(t, chain.ApplyBlock(header1, body1, reward, model.Scalar{}))

	rOut := blinding(2)
	out, err := facade.PedersenCommit(rOut, reward)
	require.NoError(t, err)
	offsetScalar, err := facade.ScalarSum([]model.Scalar{rOut}, []model.Scalar{rIn})
	require.NoError(t, err)
	excess, err := facade.PedersenCommit(offsetScalar, 0)
	require.NoError(t, err)

	body2 := &model.Block{
		Inputs:      []model.Input{{Features: model.InputFeatureCoinbase, Commitment: in}},
		Outputs:     []model.Output{{Features: model.FeaturePlain, Commitment: out}},
		Rangeproofs: []model.Rangeproof{{Proof: []byte{1}}},
		Kernels:     []model.Kernel{{Features: model.KernelPlain, Excess: excess}},
	}

	header2 := buildNextHeader(t, shadow, 2, body2)

	err = chain.ApplyBlock(header2, body2, 0, model.Scalar{})
	require.Error(t, err, "coinbase minted one block ago must still be immature against MainnetParams' 1440-block maturity")
}

func TestTotalDifficultyReflectsCurrentTip(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	params := consensus.MainnetParams()
	genesis := testGenesis()
	genesis.Header.TotalDifficulty = 10

	chain, err := NewChain(facade, params, telemetry.Nop(), genesis)
	require.NoError(t, err)
	require.Equal(t, uint64(10), chain.TotalDifficulty())
}

func blinding(b byte) model.Scalar {
	var s model.Scalar
	s[31] = b
	return s
}
