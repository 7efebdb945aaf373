package accum

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/mmr"
	"github.com/mwc-validation-node/go-node/model"
)

func TestHasherFromFacadeDelegatesToBlake2b(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	hasher := HasherFromFacade(facade)

	data := []byte("leaf-bytes")
	require.Equal(t, facade.Blake2b256(data), hasher(data))
}

func TestOutputLeafLookupKeyIsItsCommitment(t *testing.T) {
	out := model.Output{Features: model.FeaturePlain, Commitment: model.Commitment{9}}
	leaf := OutputLeaf{Output: out}

	key, ok := leaf.LookupKey()
	require.True(t, ok)
	require.Equal(t, out.Commitment[:], key)
	require.Equal(t, out.HashSerialize(), leaf.Serialize())
}

func TestKernelLeafLookupKeyIsItsExcess(t *testing.T) {
	k := model.Kernel{Excess: model.Commitment{4}}
	leaf := KernelLeaf{Kernel: k}

	key, ok := leaf.LookupKey()
	require.True(t, ok)
	require.Equal(t, k.Excess[:], key)
}

func TestHeaderAndRangeproofLeavesHaveNoLookupKey(t *testing.T) {
	_, ok := HeaderLeaf{Header: model.Header{}}.LookupKey()
	require.False(t, ok)

	_, ok = RangeproofLeaf{Rangeproof: model.Rangeproof{}}.LookupKey()
	require.False(t, ok)
}

func TestCommitmentSumTracksOutputAddAndSubtract(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	sum := NewOutputSum(facade)

	_, set := sum.Value()
	require.False(t, set)

	var r model.Scalar
	r[31] = 1
	commitment, err := facade.PedersenCommit(r, 100)
	require.NoError(t, err)

	sum.Add(OutputLeaf{Output: model.Output{Commitment: commitment}}, mmr.Appended)
	value, set := sum.Value()
	require.True(t, set)
	require.Equal(t, commitment, value)

	sum.Subtract(OutputLeaf{Output: model.Output{Commitment: commitment}}, mmr.Pruned)
	value, set = sum.Value()
	require.True(t, set)

	identity, err := facade.CommitSum(nil, nil)
	require.NoError(t, err)
	require.Equal(t, identity, value, "adding then subtracting the same commitment returns to the identity")
}

func TestCommitmentSumCloneIsIndependent(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)
	sum := NewKernelSum(facade)

	var r model.Scalar
	r[31] = 2
	excess, err := facade.PedersenCommit(r, 0)
	require.NoError(t, err)
	sum.Add(KernelLeaf{Kernel: model.Kernel{Excess: excess}}, mmr.Appended)

	clone := sum.Clone()

	var r2 model.Scalar
	r2[31] = 3
	excess2, err := facade.PedersenCommit(r2, 0)
	require.NoError(t, err)
	sum.Add(KernelLeaf{Kernel: model.Kernel{Excess: excess2}}, mmr.Appended)

	originalValue, _ := sum.Value()
	cloneValue, _ := clone.(*CommitmentSum).Value()
	require.NotEqual(t, originalValue, cloneValue, "mutating the original after Clone must not affect the clone")
}
