package mempool

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/consensus"
	"github.com/mwc-validation-node/go-node/model"
)

// fakeUTXO is a minimal in-memory UTXOSet for exercising Insert/Cleanup
// without a real chain.
type fakeUTXO struct {
	outputs map[model.Commitment]fakeEntry
}

type fakeEntry struct {
	output    model.Output
	leafIndex uint64
}

func newFakeUTXO() *fakeUTXO { return &fakeUTXO{outputs: make(map[model.Commitment]fakeEntry)} }

func (u *fakeUTXO) Lookup(c model.Commitment) (model.Output, uint64, bool) {
	e, ok := u.outputs[c]
	return e.output, e.leafIndex, ok
}

func (u *fakeUTXO) put(c model.Commitment, features model.OutputFeatures, leafIndex uint64) {
	u.outputs[c] = fakeEntry{output: model.Output{Features: features, Commitment: c}, leafIndex: leafIndex}
}

// identityHash is a real content hash (just not the production Blake2b
// facade), so that distinct transactions pool under distinct keys.
func identityHash(b []byte) model.Hash {
	return sha256.Sum256(b)
}

func sumScalars(scalars []model.Scalar) (model.Scalar, error) {
	var sum model.Scalar
	for _, s := range scalars {
		for i := range sum {
			sum[i] ^= s[i]
		}
	}
	return sum, nil
}

func commitment(b byte) model.Commitment {
	var c model.Commitment
	c[0] = b
	return c
}

// kernelHashOf mirrors TxPool's own kernelHash indexing (content hash of a
// single kernel), for tests driving the GetTransaction/TransactionKernel
// presence probe through TransactionByKernelHash.
func kernelHashOf(k model.Kernel) model.Hash {
	return identityHash(k.HashSerialize())
}

func newPool(t *testing.T, utxo UTXOSet, baseFee uint64) *TxPool {
	t.Helper()
	return New(consensus.MainnetParams(), utxo, baseFee, identityHash, sumScalars)
}

func plainTx(inCommitment, outCommitment model.Commitment, fee uint64) *model.Transaction {
	tx := &model.Transaction{
		Body: model.Block{
			Outputs:     []model.Output{{Features: model.FeaturePlain, Commitment: outCommitment}},
			Rangeproofs: []model.Rangeproof{{}},
			Kernels:     []model.Kernel{{Features: model.KernelPlain, Fee: fee, Excess: outCommitment}},
		},
	}
	if inCommitment != (model.Commitment{}) {
		tx.Body.Inputs = []model.Input{{Features: model.InputFeaturePlain, Commitment: inCommitment}}
	}
	return tx
}

func TestInsertAcceptsSpendableInput(t *testing.T) {
	utxo := newFakeUTXO()
	in := commitment(1)
	out := commitment(2)
	utxo.put(in, model.FeaturePlain, 0)

	p := newPool(t, utxo, 1)
	tx := plainTx(in, out, 10_000_000)

	require.NoError(t, p.Insert(tx, Tip{Height: 100}, nil))
	require.Equal(t, 1, p.Len())

	got, ok := p.TransactionByKernelHash(kernelHashOf(tx.Body.Kernels[0]))
	require.True(t, ok)
	require.Same(t, tx, got)
}

func TestInsertRejectsImmatureCoinbaseInput(t *testing.T) {
	utxo := newFakeUTXO()
	in := commitment(1)
	out := commitment(2)
	utxo.put(in, model.FeatureCoinbase, 99)

	p := newPool(t, utxo, 1)
	tx := plainTx(in, out, 10_000_000)

	err := p.Insert(tx, Tip{Height: 100}, nil)
	require.Error(t, err)
	require.Equal(t, 0, p.Len())
}

func TestInsertAcceptsMaturedCoinbaseInput(t *testing.T) {
	utxo := newFakeUTXO()
	in := commitment(1)
	out := commitment(2)
	utxo.put(in, model.FeatureCoinbase, 0)

	p := newPool(t, utxo, 1)
	tx := plainTx(in, out, 10_000_000)

	require.NoError(t, p.Insert(tx, Tip{Height: 100 + consensus.MainnetParams().CoinbaseMaturity}, nil))
	require.Equal(t, 1, p.Len())
}

func TestInsertRejectsFeeBelowRequired(t *testing.T) {
	utxo := newFakeUTXO()
	in := commitment(1)
	utxo.put(in, model.FeaturePlain, 0)

	p := newPool(t, utxo, 1_000_000_000)
	tx := plainTx(in, commitment(2), 1)

	err := p.Insert(tx, Tip{Height: 100}, nil)
	require.Error(t, err)
}

func TestInsertReplacesByFeeWhenSpendingSameInput(t *testing.T) {
	utxo := newFakeUTXO()
	in := commitment(1)
	utxo.put(in, model.FeaturePlain, 0)

	p := newPool(t, utxo, 1)
	low := plainTx(in, commitment(2), 10_000_000)
	require.NoError(t, p.Insert(low, Tip{Height: 100}, nil))

	var acceptedReplaced []*model.Transaction
	high := plainTx(in, commitment(3), 20_000_000)
	err := p.Insert(high, Tip{Height: 100}, func(accepted *model.Transaction, replaced []*model.Transaction) {
		acceptedReplaced = replaced
	})
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())
	require.Len(t, acceptedReplaced, 1)
	require.Same(t, low, acceptedReplaced[0])

	_, ok := p.TransactionByKernelHash(kernelHashOf(low.Body.Kernels[0]))
	require.False(t, ok)
	_, ok = p.TransactionByKernelHash(kernelHashOf(high.Body.Kernels[0]))
	require.True(t, ok)
}

func TestInsertRejectsReplacementWithoutHigherFee(t *testing.T) {
	utxo := newFakeUTXO()
	in := commitment(1)
	utxo.put(in, model.FeaturePlain, 0)

	p := newPool(t, utxo, 1)
	first := plainTx(in, commitment(2), 20_000_000)
	require.NoError(t, p.Insert(first, Tip{Height: 100}, nil))

	second := plainTx(in, commitment(3), 10_000_000)
	err := p.Insert(second, Tip{Height: 100}, nil)
	require.Error(t, err)
	require.Equal(t, 1, p.Len())
}

func TestCleanupEvictsTransactionsWhoseInputMaturedCoinbaseIsNoLongerSpendable(t *testing.T) {
	utxo := newFakeUTXO()
	in := commitment(1)
	out := commitment(2)
	utxo.put(in, model.FeatureCoinbase, 50)

	p := newPool(t, utxo, 1)
	tx := plainTx(in, out, 10_000_000)
	require.NoError(t, p.Insert(tx, Tip{Height: 50 + consensus.MainnetParams().CoinbaseMaturity}, nil))
	require.Equal(t, 1, p.Len())

	// A reorg back to a tip where the same coinbase is once again immature
	// relative to the new chain (leaf index unchanged, maturity window
	// shifted) must evict the now-invalid transaction.
	p.Cleanup(Tip{Height: 0})
	require.Equal(t, 0, p.Len())
}

func TestCleanupDropsDependentsTransitively(t *testing.T) {
	utxo := newFakeUTXO()
	in := commitment(1)
	mid := commitment(2)
	tip := commitment(3)
	utxo.put(in, model.FeatureCoinbase, 50)

	p := newPool(t, utxo, 1)
	base := plainTx(in, mid, 10_000_000)
	require.NoError(t, p.Insert(base, Tip{Height: 50 + consensus.MainnetParams().CoinbaseMaturity}, nil))
	dependent := plainTx(mid, tip, 10_000_000)
	require.NoError(t, p.Insert(dependent, Tip{Height: 50 + consensus.MainnetParams().CoinbaseMaturity}, nil))
	require.Equal(t, 2, p.Len())

	p.Cleanup(Tip{Height: 0})
	require.Equal(t, 0, p.Len())
}

func TestNextBlockSelectsByDescendingFeeAndAppendsCoinbase(t *testing.T) {
	utxo := newFakeUTXO()
	utxo.put(commitment(1), model.FeaturePlain, 0)
	utxo.put(commitment(5), model.FeaturePlain, 0)

	p := newPool(t, utxo, 1)
	low := plainTx(commitment(1), commitment(2), 10_000_000)
	high := plainTx(commitment(5), commitment(6), 20_000_000)
	require.NoError(t, p.Insert(low, Tip{Height: 100}, nil))
	require.NoError(t, p.Insert(high, Tip{Height: 100}, nil))

	factory := func(reward uint64) (model.Output, model.Kernel, error) {
		out := model.Output{Features: model.FeatureCoinbase, Commitment: commitment(99)}
		ker := model.Kernel{Features: model.KernelCoinbase, Excess: commitment(99)}
		return out, ker, nil
	}

	tmpl, err := p.NextBlock(Tip{Height: 100}, 1_000, factory)
	require.NoError(t, err)
	require.Len(t, tmpl.Body.Kernels, 3) // both pooled txs plus coinbase
	require.Equal(t, commitment(6), tmpl.Body.Outputs[0].Commitment, "higher-fee tx selected first")
	require.Equal(t, commitment(99), tmpl.Body.Outputs[len(tmpl.Body.Outputs)-1].Commitment, "coinbase appended last")
}

func TestNextBlockSkipsCandidateWhoseInputDoesNotResolve(t *testing.T) {
	utxo := newFakeUTXO()
	p := newPool(t, utxo, 1)
	// Input commitment(1) resolves against neither the UTXO set nor an
	// already-selected output, so NextBlock must skip this candidate.
	tx := plainTx(commitment(1), commitment(2), 10_000_000)
	err := p.Insert(tx, Tip{Height: 100}, nil)
	// Plain-featured inputs aren't pre-checked by Insert (only SameAsOutput
	// is), so the insert itself succeeds; NextBlock is what filters it out.
	require.NoError(t, err)

	factory := func(reward uint64) (model.Output, model.Kernel, error) {
		return model.Output{Commitment: commitment(99)}, model.Kernel{Excess: commitment(99)}, nil
	}
	tmpl, err := p.NextBlock(Tip{Height: 100}, 0, factory)
	require.NoError(t, err)
	require.Len(t, tmpl.Body.Kernels, 1, "only the coinbase kernel, the unresolved candidate was skipped")
}

func TestHashesReturnsOnePerPooledTransaction(t *testing.T) {
	utxo := newFakeUTXO()
	utxo.put(commitment(1), model.FeaturePlain, 0)
	utxo.put(commitment(5), model.FeaturePlain, 0)
	p := newPool(t, utxo, 1)
	require.NoError(t, p.Insert(plainTx(commitment(1), commitment(2), 10_000_000), Tip{Height: 100}, nil))
	require.NoError(t, p.Insert(plainTx(commitment(5), commitment(6), 10_000_000), Tip{Height: 100}, nil))

	require.Len(t, p.Hashes(), 2)
}
