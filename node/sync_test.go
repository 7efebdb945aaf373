package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/model"
)

// seedHeaders installs bare headers at heights 1..tip directly into the
// chain's height index, bypassing ApplyBlock, since locator only reads
// headerByHeight/SyncedHeaderIndex.
func seedHeaders(n *Node, tip uint64) {
	for h := uint64(1); h <= tip; h++ {
		n.chain.headerByHeight[h] = model.Header{Height: h}
	}
	n.chain.SyncedHeaderIndex = tip
}

func hashOfHeightLocked(n *Node, height uint64) [32]byte {
	h := n.chain.headerByHeight[height]
	return n.facade.Blake2b256(h.HashSerialize())
}

func TestLocatorStartsAtTipAndEndsAtGenesis(t *testing.T) {
	n := testNode(t)
	seedHeaders(n, 100)

	loc := n.locator()
	require.NotEmpty(t, loc)
	require.LessOrEqual(t, len(loc), LocatorCap)

	require.Equal(t, hashOfHeightLocked(n, 100), loc[0])
	require.Equal(t, hashOfHeightLocked(n, 0), loc[len(loc)-1])
}

// TestLocatorStepsDoubleBackwardFromTip pins down the exact doubling-backward
// checkpoint sequence: each step subtracts the current doubling step from
// height, then doubles the step for the next round, stopping once height
// reaches 0.
func TestLocatorStepsDoubleBackwardFromTip(t *testing.T) {
	n := testNode(t)
	seedHeaders(n, 1000)

	loc := n.locator()

	expectedHeights := []uint64{1000, 999, 997, 993, 985, 969, 937, 873, 745, 489, 0}
	var expected [][32]byte
	for _, h := range expectedHeights {
		expected = append(expected, hashOfHeightLocked(n, h))
	}
	require.Equal(t, expected, loc)
}

func TestLocatorCapsAtLocatorCapEntries(t *testing.T) {
	n := testNode(t)
	seedHeaders(n, 1<<30)

	loc := n.locator()
	require.Len(t, loc, LocatorCap)
}

func TestLocatorAtGenesisOnlyReturnsGenesis(t *testing.T) {
	n := testNode(t)
	loc := n.locator()
	require.Len(t, loc, 1)
	require.Equal(t, hashOfHeightLocked(n, 0), loc[0])
}
