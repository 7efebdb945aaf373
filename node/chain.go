package node

import (
	"math/rand"
	"sync"

	"github.com/mwc-validation-node/go-node/accum"
	"github.com/mwc-validation-node/go-node/consensus"
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/mempool"
	"github.com/mwc-validation-node/go-node/mmr"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/telemetry"
	"github.com/mwc-validation-node/go-node/validate"
)

// Callbacks are the user hooks §4.10 lists: registration is only accepted
// before Start (the "forbid registration after start" redesign note of
// §9), since the monitor loop reads them without a lock once running.
type Callbacks struct {
	OnStartSyncing  func()
	OnSynced        func(height uint64)
	OnBlock         func(height uint64, block *model.Block)
	OnError         func(err error)
	OnPeerEvent     func(address string, event string)
	OnTxHashSet     func(height uint64)
	OnMempoolEvent  func(accepted *model.Transaction, replaced []*model.Transaction)
}

// Chain bundles the four MMRs and the height index the node validates
// against (§3's Node state, minus peer machinery which lives in
// supervisor.go). Exported separately from Node so apply_block and the
// archive-install path can be unit tested without a full supervisor.
type Chain struct {
	mu sync.RWMutex

	Facade crypto.Facade
	Params *consensus.Params
	Log    *telemetry.Logger

	Headers     *mmr.MMR
	Kernels     *mmr.MMR
	Outputs     *mmr.MMR
	Rangeproofs *mmr.MMR

	SyncedHeaderIndex uint64

	// headerByHeight indexes Headers leaves by height, since header
	// leaves carry no mmr lookup key (accum.HeaderLeaf.LookupKey is
	// always false — see accum/leaves.go).
	headerByHeight map[uint64]model.Header
}

// NewChain builds the four empty MMRs wired to facade and seeds the
// genesis block (§4.5).
func NewChain(facade crypto.Facade, params *consensus.Params, log *telemetry.Logger, genesis consensus.GenesisBlock) (*Chain, error) {
	hasher := accum.HasherFromFacade(facade)
	c := &Chain{
		Facade:         facade,
		Params:         params,
		Log:            log,
		Headers:        mmr.New(hasher, mmr.TrivialSum{}),
		Kernels:        mmr.New(hasher, accum.NewKernelSum(facade)),
		Outputs:        mmr.New(hasher, accum.NewOutputSum(facade)),
		Rangeproofs:    mmr.New(hasher, mmr.TrivialSum{}),
		headerByHeight: make(map[uint64]model.Header),
	}
	if err := c.installGenesis(genesis); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) installGenesis(g consensus.GenesisBlock) error {
	if _, err := c.Headers.Append(accum.HeaderLeaf{Header: g.Header}); err != nil {
		return err
	}
	c.headerByHeight[g.Header.Height] = g.Header
	if _, err := c.Outputs.Append(accum.OutputLeaf{Output: g.Output}); err != nil {
		return err
	}
	if _, err := c.Rangeproofs.Append(accum.RangeproofLeaf{Rangeproof: g.Rangeproof}); err != nil {
		return err
	}
	if _, err := c.Kernels.Append(accum.KernelLeaf{Kernel: g.Kernel}); err != nil {
		return err
	}
	c.SyncedHeaderIndex = g.Header.Height
	return nil
}

// unspendableStart mirrors mempool's rule: a coinbase output created at
// height h cannot be spent until leaf_index < unspendable_start(spendHeight).
func unspendableStart(height, maturity uint64) uint64 {
	if height < maturity {
		return 0
	}
	return height - maturity
}

// Lookup implements mempool.UTXOSet against the live Outputs MMR.
func (c *Chain) Lookup(commitment model.Commitment) (model.Output, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok, err := c.Outputs.LookupOne(commitment[:])
	if err != nil || !ok {
		return model.Output{}, 0, false
	}
	leaf, ok := c.Outputs.Leaf(idx)
	if !ok {
		return model.Output{}, 0, false
	}
	return leaf.(accum.OutputLeaf).Output, idx, true
}

var _ mempool.UTXOSet = (*Chain)(nil)

// previousHeader returns the header at height-1; for height 0 there is
// none and the second result is false (callers only invoke this for
// height >= 1).
func (c *Chain) previousHeader(height uint64) (model.Header, bool) {
	h, ok := c.headerByHeight[height-1]
	return h, ok
}

// ApplyBlock runs §4.6's apply_block algorithm: rewind the three body
// MMRs to the previous header's recorded sizes, replay the new block's
// outputs/inputs/kernels, and verify every root and balance check before
// committing the new tip. On any failure the synced index is reset to the
// previous header's height and the body MMRs are rewound back to it; if
// that rewind itself fails the chain is unrecoverable at this height and
// the caller (supervisor) must reset to genesis.
func (c *Chain) ApplyBlock(header model.Header, body *model.Block, feesOrReward uint64, kernelOffsetDelta model.Scalar) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.previousHeader(header.Height)
	if !ok {
		return errors.NewInvalidBlock("no previous header at height %d", header.Height)
	}

	if err := c.rewindBodyMMRs(prev); err != nil {
		return errors.NewStateCorrupt("rewind to previous header failed: %v", err)
	}

	if err := c.applyBlockBody(header, body, feesOrReward, kernelOffsetDelta); err != nil {
		if rerr := c.rewindBodyMMRs(prev); rerr != nil {
			return errors.NewStateCorrupt("rewind after rejected block failed, resetting to genesis: %v", rerr)
		}
		c.SyncedHeaderIndex = prev.Height
		return err
	}

	c.SyncedHeaderIndex = header.Height
	return nil
}

func (c *Chain) rewindBodyMMRs(to model.Header) error {
	if err := c.Kernels.Rewind(to.KernelMMRSize); err != nil {
		return err
	}
	if err := c.Outputs.Rewind(to.OutputMMRSize); err != nil {
		return err
	}
	if err := c.Rangeproofs.Rewind(to.OutputMMRSize); err != nil {
		return err
	}
	return nil
}

func (c *Chain) applyBlockBody(header model.Header, body *model.Block, feesOrReward uint64, kernelOffsetDelta model.Scalar) error {
	// Step 2: outputs, rejecting any live commitment collision.
	for i := range body.Outputs {
		if _, _, found := c.lookupLocked(body.Outputs[i].Commitment); found {
			return errors.NewInvalidBlock("output %s already live", body.Outputs[i].Commitment)
		}
		if _, err := c.Outputs.Append(accum.OutputLeaf{Output: body.Outputs[i]}); err != nil {
			return err
		}
		if _, err := c.Rangeproofs.Append(accum.RangeproofLeaf{Rangeproof: body.Rangeproofs[i]}); err != nil {
			return err
		}
	}

	// Step 3: inputs, spending and pruning the referenced output.
	for i := range body.Inputs {
		in := body.Inputs[i]
		idx, ok, err := c.Outputs.LookupOne(in.Commitment[:])
		if err != nil || !ok {
			return errors.NewInvalidBlock("input %s has no live output", in.Commitment)
		}
		leaf, _ := c.Outputs.Leaf(idx)
		out := leaf.(accum.OutputLeaf).Output
		effective := in.Features
		if effective == model.InputFeatureSameAsOutput {
			if out.Features == model.FeatureCoinbase {
				effective = model.InputFeatureCoinbase
			} else {
				effective = model.InputFeaturePlain
			}
		}
		wantsCoinbase := effective == model.InputFeatureCoinbase
		isCoinbase := out.Features == model.FeatureCoinbase
		if wantsCoinbase != isCoinbase {
			return errors.NewInvalidBlock("input %s features conflict with spent output", in.Commitment)
		}
		if isCoinbase {
			if header.Height < c.Params.CoinbaseMaturity || idx >= unspendableStart(header.Height, c.Params.CoinbaseMaturity) {
				return errors.NewInvalidBlock("coinbase output %s not yet mature", in.Commitment)
			}
		}
		if err := c.Outputs.Prune(idx, true); err != nil {
			return err
		}
		if err := c.Rangeproofs.Prune(idx, true); err != nil {
			return err
		}
	}

	// Step 4: sizes and roots.
	if c.Outputs.NumberOfNodes() != header.OutputMMRSize || c.Rangeproofs.NumberOfNodes() != header.OutputMMRSize {
		return errors.NewInvalidBlock("output/rangeproof mmr size mismatch against header")
	}
	outputRoot, err := c.Outputs.Root()
	if err != nil {
		return err
	}
	rangeproofRoot, err := c.Rangeproofs.Root()
	if err != nil {
		return err
	}
	if outputRoot != header.OutputRoot || rangeproofRoot != header.RangeproofRoot {
		return errors.NewInvalidBlock("output/rangeproof root mismatch against header")
	}

	// Step 5: kernels.
	for i := range body.Kernels {
		if _, err := c.Kernels.Append(accum.KernelLeaf{Kernel: body.Kernels[i]}); err != nil {
			return err
		}
	}
	if c.Kernels.NumberOfNodes() != header.KernelMMRSize {
		return errors.NewInvalidBlock("kernel mmr size mismatch against header")
	}
	kernelRoot, err := c.Kernels.Root()
	if err != nil {
		return err
	}
	if kernelRoot != header.KernelRoot {
		return errors.NewInvalidBlock("kernel root mismatch against header")
	}

	// Step 6: kernel sums.
	if err := validate.VerifyKernelSums(c.Facade, validate.KernelSumInputs{
		Outputs:           body.Outputs,
		Inputs:            body.Inputs,
		FeesOrRewardTotal: feesOrReward,
		Kernels:           body.Kernels,
		KernelOffset:      kernelOffsetDelta,
	}); err != nil {
		return err
	}

	c.headerByHeight[header.Height] = header
	if _, err := c.Headers.Append(accum.HeaderLeaf{Header: header}); err != nil {
		return err
	}
	return nil
}

func (c *Chain) lookupLocked(commitment model.Commitment) (model.Output, uint64, bool) {
	idx, ok, err := c.Outputs.LookupOne(commitment[:])
	if err != nil || !ok {
		return model.Output{}, 0, false
	}
	leaf, ok := c.Outputs.Leaf(idx)
	if !ok {
		return model.Output{}, 0, false
	}
	return leaf.(accum.OutputLeaf).Output, idx, true
}

// TotalDifficulty returns the current tip's total difficulty, or 0 before
// genesis is installed.
func (c *Chain) TotalDifficulty() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.headerByHeight[c.SyncedHeaderIndex]
	if !ok {
		return 0
	}
	return h.TotalDifficulty
}

// randomTieBreak picks a uniformly random index among equal-difficulty
// candidates (§4.10 step 7's "random among ties").
func randomTieBreak(rng *rand.Rand, n int) int {
	if n <= 1 {
		return 0
	}
	return rng.Intn(n)
}
