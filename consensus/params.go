// Package consensus holds the fixed chain parameters and pure consensus
// functions (§4.5): retargeting, block weight, the reward schedule, and
// the per-height header version schedule. Nothing here touches network or
// storage state — apply_block in the node package is the only caller that
// combines this with live chain state.
package consensus

// Network selects which constant set Params resolves to.
type Network int

const (
	Mainnet Network = iota
	Floonet
)

// Params is the full set of §4.5's fixed parameters for one network.
type Params struct {
	Network Network

	BlockTimeSeconds            int64
	DifficultyAdjustmentWindow  uint64
	CoinbaseMaturity            uint64
	CutThroughHorizon           uint64
	StateSyncHeightThreshold    uint64

	MaximumBlockWeight uint64
	BlockInputWeight   uint64
	BlockOutputWeight  uint64
	BlockKernelWeight  uint64
	CoinbaseWeight     uint64

	MinimumDifficulty        uint64
	MinimumSecondaryScaling  uint32
	C29EdgeBits              uint8
	C31EdgeBits              uint8
	MaximumEdgeBits          uint8

	C29HeadersAdjustmentDampFactor  uint64
	C29HeadersAdjustmentClampFactor uint64

	WindowDurationAdjustmentDampFactor  uint64
	WindowDurationAdjustmentClampFactor uint64

	// HalvingIntervalBlocks and InitialReward define the block subsidy
	// schedule: InitialReward >> (height / HalvingIntervalBlocks).
	InitialReward         uint64
	HalvingIntervalBlocks uint64

	// MaximumInputsPerBlock, MaximumOutputsPerBlock, MaximumKernelsPerBlock
	// bound the mempool's next_block template and insert() admission
	// (§4.7); they are independent of the weight budget itself.
	MaximumInputsPerBlock  uint64
	MaximumOutputsPerBlock uint64
	MaximumKernelsPerBlock uint64

	BannedBlockHashes map[string]struct{}
}

// MainnetParams mirrors the public MWC mainnet constants this validator
// tracks. Values follow the Mimblewimble-family convention this chain
// forked from: 60 second blocks, a 60-header (1-hour) difficulty window,
// 1440-block (1-day) coinbase maturity.
func MainnetParams() *Params {
	return &Params{
		Network: Mainnet,

		BlockTimeSeconds:           60,
		DifficultyAdjustmentWindow: 60,
		CoinbaseMaturity:           1440,
		CutThroughHorizon:          1440,
		StateSyncHeightThreshold:   1440 * 2,

		MaximumBlockWeight: 40000,
		BlockInputWeight:   1,
		BlockOutputWeight:  21,
		BlockKernelWeight:  3,
		CoinbaseWeight:     21 + 3,

		MinimumDifficulty:       1,
		MinimumSecondaryScaling: 1,
		C29EdgeBits:             29,
		C31EdgeBits:             31,
		MaximumEdgeBits:         31,

		C29HeadersAdjustmentDampFactor:  3,
		C29HeadersAdjustmentClampFactor: 2,

		WindowDurationAdjustmentDampFactor:  3,
		WindowDurationAdjustmentClampFactor: 2,

		InitialReward:         2_380_952_380,
		HalvingIntervalBlocks: 365 * 24 * 60,

		MaximumInputsPerBlock:  4000,
		MaximumOutputsPerBlock: 4000,
		MaximumKernelsPerBlock: 4000,

		BannedBlockHashes: map[string]struct{}{},
	}
}

// FloonetParams is mainnet's parameters with the shorter maturity/halving
// windows the public testnet uses for faster iteration.
func FloonetParams() *Params {
	p := MainnetParams()
	p.Network = Floonet
	p.CoinbaseMaturity = 60
	p.CutThroughHorizon = 60
	p.HalvingIntervalBlocks = 1000
	return p
}

// BlockWeight computes the weighted cost of a block or transaction body
// (§4.4's `consensus.block_weight`).
func (p *Params) BlockWeight(numInputs, numOutputs, numKernels int) uint64 {
	in := uint64(numInputs) * p.BlockInputWeight
	out := uint64(numOutputs) * p.BlockOutputWeight
	ker := uint64(numKernels) * p.BlockKernelWeight
	if out+ker < in {
		return 0
	}
	return out + ker - in
}

// Reward returns the coinbase subsidy at height, halving every
// HalvingIntervalBlocks.
func (p *Params) Reward(height uint64) uint64 {
	halvings := height / p.HalvingIntervalBlocks
	if halvings >= 64 {
		return 0
	}
	return p.InitialReward >> halvings
}

// HeaderVersion returns the consensus header version active at height,
// per §4.5's per-height schedule. This validator has only ever observed
// version 1 through 4 on mainnet/floonet; version 4 is what introduced
// NoRecentDuplicate kernel support (§4.7 step 8).
func (p *Params) HeaderVersion(height uint64) uint16 {
	switch {
	case height >= p.HalvingIntervalBlocks*3:
		return 4
	case height >= p.HalvingIntervalBlocks*2:
		return 3
	case height >= p.HalvingIntervalBlocks:
		return 2
	default:
		return 1
	}
}

// C29Ratio returns the target fraction (0..100) of proofs in the
// difficulty window expected to use the easier C29 graph size at height,
// phasing it out over time in favour of C31+ (the "second fork" the
// Mimblewimble reference clients use to push miners off small-graph ASICs).
func (p *Params) C29Ratio(height uint64) uint64 {
	if height >= p.HalvingIntervalBlocks {
		return 0
	}
	return 90
}

// IsBannedBlockHash reports whether a block hash is on the network's
// banned list (historical chain-split remediation).
func (p *Params) IsBannedBlockHash(hexHash string) bool {
	_, banned := p.BannedBlockHashes[hexHash]
	return banned
}
