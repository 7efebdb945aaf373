package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/model"
)

func TestRewardHalves(t *testing.T) {
	p := MainnetParams()
	first := p.Reward(0)
	require.Equal(t, p.InitialReward, first)

	atHalving := p.Reward(p.HalvingIntervalBlocks)
	require.Equal(t, first/2, atHalving)

	atDoubleHalving := p.Reward(p.HalvingIntervalBlocks * 2)
	require.Equal(t, first/4, atDoubleHalving)
}

func TestBlockWeightSaturatesNegativeNetAtZero(t *testing.T) {
	p := MainnetParams()
	// A single input with no outputs/kernels nets below zero under the
	// in/out/kernel weight formula; BlockWeight saturates at zero rather
	// than underflowing.
	require.Equal(t, uint64(0), p.BlockWeight(1, 0, 0))
}

func TestRetargetWindowSynthesizesPreGenesisEntries(t *testing.T) {
	p := MainnetParams()
	genesis := model.Header{
		Timestamp:        1000,
		TotalDifficulty:  100,
		SecondaryScaling: 1,
		EdgeBits:         29,
	}

	window := p.RetargetWindow(nil, genesis)
	require.Len(t, window, int(p.DifficultyAdjustmentWindow))
	for _, e := range window {
		require.Equal(t, genesis.TotalDifficulty, e.TotalDifficulty)
		require.Equal(t, genesis.EdgeBits, e.EdgeBits)
	}
}

func TestRetargetWindowKeepsMostRecentEntries(t *testing.T) {
	p := MainnetParams()
	genesis := model.Header{Timestamp: 0, TotalDifficulty: 1, SecondaryScaling: 1, EdgeBits: 29}

	var ancestors []WindowEntry
	for i := 0; i < int(p.DifficultyAdjustmentWindow)+5; i++ {
		ancestors = append(ancestors, WindowEntry{
			Timestamp:       int64(i) * p.BlockTimeSeconds,
			TotalDifficulty: uint64(i) + 1,
		})
	}

	window := p.RetargetWindow(ancestors, genesis)
	require.Len(t, window, int(p.DifficultyAdjustmentWindow))
	require.Equal(t, ancestors[len(ancestors)-1], window[len(window)-1])
}

func TestRetargetEmptyWindowFallsBackToMinimum(t *testing.T) {
	p := MainnetParams()
	difficulty, scaling := p.Retarget(1, nil)
	require.Equal(t, p.MinimumDifficulty, difficulty)
	require.Equal(t, p.MinimumSecondaryScaling, scaling)
}
