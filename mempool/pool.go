// Package mempool implements the fee-prioritized, replacement-aware
// transaction pool of §4.7: insertion with conflict/replacement
// resolution, tip-move cleanup, and block-template assembly.
package mempool

import (
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/mwc-validation-node/go-node/consensus"
	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
)

// UTXOSet is the read-only view into the chain's live outputs the mempool
// needs: resolving SameAsOutput input features, checking coinbase
// maturity, and next_block's input-exists check.
type UTXOSet interface {
	Lookup(commitment model.Commitment) (output model.Output, leafIndex uint64, found bool)
}

// Tip is the chain state the mempool validates pending transactions
// against.
type Tip struct {
	Height        uint64
	HeaderVersion uint16
}

// pooled wraps a transaction with its serialisation hash (used as the
// pool's identity key) and total fee.
type pooled struct {
	tx   *model.Transaction
	hash model.Hash
	fee  uint64
}

// TxPool is the §4.7 mempool: one pool instance tracks every
// not-yet-mined transaction still consistent with the current tip.
type TxPool struct {
	mu sync.Mutex

	params  *consensus.Params
	utxo    UTXOSet
	baseFee uint64

	transactions map[model.Hash]*pooled
	// outputs maps a pooled output's commitment to the transaction that
	// created it.
	outputs map[model.Commitment]model.Hash
	// spends maps a commitment a pooled transaction spends to that
	// transaction, detecting double-spend conflicts within the pool.
	spends map[model.Commitment]model.Hash
	fees   map[uint64]map[model.Hash]struct{}
	// kernelHash indexes pooled transactions by each of their kernels'
	// content hash, serving the GetTransaction/TransactionKernel presence
	// probe.
	kernelHash map[model.Hash]model.Hash

	hash      model.HashFunc
	scalarSum ScalarSumFunc
}

// ScalarSumFunc computes the modular sum of scalars via the crypto
// facade (crypto.Facade.ScalarSum with an empty negatives list); injected
// the same way model.HashFunc is, so this package never imports crypto.
type ScalarSumFunc func(positives []model.Scalar) (model.Scalar, error)

// New builds an empty pool validating against the given UTXO view.
func New(params *consensus.Params, utxo UTXOSet, baseFee uint64, hash model.HashFunc, scalarSum ScalarSumFunc) *TxPool {
	return &TxPool{
		params:       params,
		utxo:         utxo,
		baseFee:      baseFee,
		transactions: make(map[model.Hash]*pooled),
		outputs:      make(map[model.Commitment]model.Hash),
		spends:       make(map[model.Commitment]model.Hash),
		fees:         make(map[uint64]map[model.Hash]struct{}),
		kernelHash:   make(map[model.Hash]model.Hash),
		hash:         hash,
		scalarSum:    scalarSum,
	}
}

func (p *TxPool) txHash(tx *model.Transaction) model.Hash {
	buf := tx.KernelOffset[:]
	for i := range tx.Body.Inputs {
		buf = append(buf, tx.Body.Inputs[i].HashSerialize()...)
	}
	for i := range tx.Body.Outputs {
		buf = append(buf, tx.Body.Outputs[i].HashSerialize()...)
	}
	for i := range tx.Body.Kernels {
		buf = append(buf, tx.Body.Kernels[i].HashSerialize()...)
	}
	return p.hash(buf)
}

func requiredFee(weight, baseFee uint64) uint64 {
	return weight * baseFee
}

// resolveInputFeatures looks up a SameAsOutput input's effective features
// from either the live UTXO set or another pooled transaction's output.
func (p *TxPool) resolveInputFeatures(in model.Input) (model.OutputFeatures, bool) {
	if out, _, ok := p.utxo.Lookup(in.Commitment); ok {
		return out.Features, true
	}
	if txHash, ok := p.outputs[in.Commitment]; ok {
		tx := p.transactions[txHash].tx
		for _, o := range tx.Body.Outputs {
			if o.Commitment == in.Commitment {
				return o.Features, true
			}
		}
	}
	return 0, false
}

// unspendableStart returns the leaf-index boundary at or above which coinbase
// outputs are still immature at the given height (§4.6/§4.7).
func unspendableStart(height uint64, maturity uint64) uint64 {
	if height < maturity {
		return 0
	}
	return height - maturity
}

// Insert runs §4.7's 9-step admission algorithm. onAccept, if non-nil, is
// invoked after a successful insert with the accepted and any replaced
// transactions (the "invoke user callbacks" of step 9).
func (p *TxPool) Insert(tx *model.Transaction, tip Tip, onAccept func(accepted *model.Transaction, replaced []*model.Transaction)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	weight := p.params.BlockWeight(len(tx.Body.Inputs), len(tx.Body.Outputs), len(tx.Body.Kernels))
	withCoinbase := p.params.BlockWeight(len(tx.Body.Inputs), len(tx.Body.Outputs)+1, len(tx.Body.Kernels)+1)
	if withCoinbase > p.params.MaximumBlockWeight {
		return errors.NewInvalidTransaction("transaction does not leave room for a coinbase")
	}
	if uint64(len(tx.Body.Inputs)) > p.params.MaximumInputsPerBlock-1 ||
		uint64(len(tx.Body.Outputs)) > p.params.MaximumOutputsPerBlock-1 ||
		uint64(len(tx.Body.Kernels)) > p.params.MaximumKernelsPerBlock-1 {
		return errors.NewInvalidTransaction("transaction exceeds per-block element limits")
	}

	for _, in := range tx.Body.Inputs {
		if in.Features == model.InputFeatureSameAsOutput {
			if _, ok := p.resolveInputFeatures(in); !ok {
				return errors.NewInvalidTransaction("input %s spends an unknown output", in.Commitment)
			}
		}
	}

	h := p.txHash(tx)
	if _, exists := p.transactions[h]; exists {
		return errors.NewInvalidTransaction("transaction already pooled")
	}
	fee := tx.TotalFee()
	if fee < requiredFee(weight, p.baseFee) {
		return errors.NewInvalidTransaction("fee %d below required fee for weight %d", fee, weight)
	}

	replaced, err := p.collectConflicts(tx)
	if err != nil {
		return err
	}
	var replacedFees uint64
	for _, r := range replaced {
		replacedFees += r.fee
	}
	if len(replaced) > 0 && fee <= replacedFees {
		return errors.NewInvalidTransaction("replacement fee %d does not exceed replaced fees %d", fee, replacedFees)
	}

	for _, in := range tx.Body.Inputs {
		out, leafIndex, ok := p.utxo.Lookup(in.Commitment)
		if ok && out.Features == model.FeatureCoinbase {
			if leafIndex >= unspendableStart(tip.Height+1, p.params.CoinbaseMaturity) {
				return errors.NewInvalidTransaction("input spends an immature coinbase")
			}
		}
	}
	for _, k := range tx.Body.Kernels {
		if k.Features == model.KernelHeightLocked && k.LockHeight > tip.Height+1 {
			return errors.NewInvalidTransaction("kernel lock_height %d not yet reached", k.LockHeight)
		}
		if k.Features == model.KernelNoRecentDuplicate && tip.HeaderVersion < 4 {
			return errors.NewInvalidTransaction("NRD kernels are not active at header version %d", tip.HeaderVersion)
		}
	}

	replacedTxs := make([]*model.Transaction, 0, len(replaced))
	for _, r := range replaced {
		replacedTxs = append(replacedTxs, r.tx)
		p.remove(r.hash)
	}

	entry := &pooled{tx: tx, hash: h, fee: fee}
	p.transactions[h] = entry
	for _, o := range tx.Body.Outputs {
		p.outputs[o.Commitment] = h
	}
	for _, in := range tx.Body.Inputs {
		p.spends[in.Commitment] = h
	}
	for i := range tx.Body.Kernels {
		p.kernelHash[p.hash(tx.Body.Kernels[i].HashSerialize())] = h
	}
	set, ok := p.fees[fee]
	if !ok {
		set = make(map[model.Hash]struct{})
		p.fees[fee] = set
	}
	set[h] = struct{}{}

	if onAccept != nil {
		onAccept(tx, replacedTxs)
	}
	return nil
}

// collectConflicts finds every pooled transaction that conflicts with tx
// (an output it would re-create, or an input it would double-spend),
// transitively including dependents whose inputs consume a conflicting
// transaction's outputs.
func (p *TxPool) collectConflicts(tx *model.Transaction) ([]*pooled, error) {
	conflicting := make(map[model.Hash]struct{})
	for _, o := range tx.Body.Outputs {
		if h, ok := p.outputs[o.Commitment]; ok {
			conflicting[h] = struct{}{}
		}
	}
	for _, in := range tx.Body.Inputs {
		if h, ok := p.spends[in.Commitment]; ok {
			conflicting[h] = struct{}{}
		}
	}

	changed := true
	for changed {
		changed = false
		for h := range conflicting {
			entry := p.transactions[h]
			for _, o := range entry.tx.Body.Outputs {
				if dep, ok := p.spends[o.Commitment]; ok {
					if _, already := conflicting[dep]; !already {
						conflicting[dep] = struct{}{}
						changed = true
					}
				}
			}
		}
	}

	out := make([]*pooled, 0, len(conflicting))
	for h := range conflicting {
		out = append(out, p.transactions[h])
	}
	return out, nil
}

// remove drops a pooled transaction from every index without running
// conflict/replacement checks.
func (p *TxPool) remove(h model.Hash) {
	entry, ok := p.transactions[h]
	if !ok {
		return
	}
	for _, o := range entry.tx.Body.Outputs {
		delete(p.outputs, o.Commitment)
	}
	for _, in := range entry.tx.Body.Inputs {
		delete(p.spends, in.Commitment)
	}
	for i := range entry.tx.Body.Kernels {
		delete(p.kernelHash, p.hash(entry.tx.Body.Kernels[i].HashSerialize()))
	}
	if set, ok := p.fees[entry.fee]; ok {
		delete(set, h)
		if len(set) == 0 {
			delete(p.fees, entry.fee)
		}
	}
	delete(p.transactions, h)
}

// Len reports how many transactions are currently pooled.
func (p *TxPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transactions)
}

// Hashes returns every pooled transaction's hash, in no particular order.
func (p *TxPool) Hashes() []model.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Keys(p.transactions)
}

// TransactionByKernelHash looks up the pooled transaction carrying a
// kernel whose content hash matches kernelHash, serving the
// GetTransaction/TransactionKernel presence probe.
func (p *TxPool) TransactionByKernelHash(kernelHash model.Hash) (*model.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.kernelHash[kernelHash]
	if !ok {
		return nil, false
	}
	entry, ok := p.transactions[h]
	if !ok {
		return nil, false
	}
	return entry.tx, true
}

// Cleanup evicts every transaction that no longer fits the (possibly newly
// reorganised) tip: those whose inputs no longer resolve, whose coinbase
// inputs are still immature, or that fail the lock-height check. It repeats
// the pass until nothing more drops, so dependants of a dropped
// transaction go too.
func (p *TxPool) Cleanup(tip Tip) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		var toDrop []model.Hash
		for h, entry := range p.transactions {
			if !p.stillValid(entry.tx, tip) {
				toDrop = append(toDrop, h)
			}
		}
		if len(toDrop) == 0 {
			return
		}
		for _, h := range toDrop {
			p.remove(h)
		}
	}
}

func (p *TxPool) stillValid(tx *model.Transaction, tip Tip) bool {
	for _, in := range tx.Body.Inputs {
		out, leafIndex, ok := p.utxo.Lookup(in.Commitment)
		if !ok {
			if _, pooledOutput := p.outputs[in.Commitment]; !pooledOutput {
				return false
			}
			continue
		}
		if out.Features == model.FeatureCoinbase && leafIndex >= unspendableStart(tip.Height+1, p.params.CoinbaseMaturity) {
			return false
		}
	}
	for _, k := range tx.Body.Kernels {
		if k.Features == model.KernelHeightLocked && k.LockHeight > tip.Height+1 {
			return false
		}
	}
	return true
}

// CoinbaseFactory produces the coinbase output/kernel pair for a block
// template at the computed reward (§4.7's next_block).
type CoinbaseFactory func(reward uint64) (model.Output, model.Kernel, error)

// Template is a candidate block body plus the aggregate kernel offset
// next_block computed across every selected transaction.
type Template struct {
	Body         model.Block
	KernelOffset model.Scalar
}

// NextBlock greedily selects pooled transactions by descending fee,
// skipping any whose inputs don't resolve against the UTXO set plus
// already-selected outputs, or that collide with already-selected
// kernels/outputs/inputs, then appends a coinbase pair from factory at the
// height's reward (§4.7).
func (p *TxPool) NextBlock(tip Tip, reward uint64, factory CoinbaseFactory) (*Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fees := make([]uint64, 0, len(p.fees))
	for f := range p.fees {
		fees = append(fees, f)
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] > fees[j] })

	var candidates []*pooled
	for _, f := range fees {
		hashes := make([]model.Hash, 0, len(p.fees[f]))
		for h := range p.fees[f] {
			hashes = append(hashes, h)
		}
		sort.Slice(hashes, func(i, j int) bool { return string(hashes[i][:]) < string(hashes[j][:]) })
		for _, h := range hashes {
			candidates = append(candidates, p.transactions[h])
		}
	}

	selectedOutputs := make(map[model.Commitment]struct{})
	selectedInputs := make(map[model.Commitment]struct{})
	selectedKernels := make(map[model.Commitment]struct{})

	var inputs []model.Input
	var outputs []model.Output
	var proofs []model.Rangeproof
	var kernels []model.Kernel
	var offsets []model.Scalar

	for _, c := range candidates {
		if !p.inputsResolve(c.tx, selectedOutputs) {
			continue
		}
		collides := false
		for _, o := range c.tx.Body.Outputs {
			if _, ok := selectedOutputs[o.Commitment]; ok {
				collides = true
				break
			}
		}
		for _, in := range c.tx.Body.Inputs {
			if _, ok := selectedInputs[in.Commitment]; ok {
				collides = true
				break
			}
		}
		for _, k := range c.tx.Body.Kernels {
			if _, ok := selectedKernels[k.Excess]; ok {
				collides = true
				break
			}
		}
		if collides {
			continue
		}

		inputs = append(inputs, c.tx.Body.Inputs...)
		outputs = append(outputs, c.tx.Body.Outputs...)
		proofs = append(proofs, c.tx.Body.Rangeproofs...)
		kernels = append(kernels, c.tx.Body.Kernels...)
		offsets = append(offsets, c.tx.KernelOffset)
		for _, o := range c.tx.Body.Outputs {
			selectedOutputs[o.Commitment] = struct{}{}
		}
		for _, in := range c.tx.Body.Inputs {
			selectedInputs[in.Commitment] = struct{}{}
		}
		for _, k := range c.tx.Body.Kernels {
			selectedKernels[k.Excess] = struct{}{}
		}
	}

	coinbaseOutput, coinbaseKernel, err := factory(reward)
	if err != nil {
		return nil, errors.NewFatal("build coinbase: %v", err)
	}
	outputs = append(outputs, coinbaseOutput)
	proofs = append(proofs, model.Rangeproof{})
	kernels = append(kernels, coinbaseKernel)

	offsetSum, err := p.scalarSum(offsets)
	if err != nil {
		return nil, errors.NewFatal("sum kernel offsets: %v", err)
	}

	return &Template{
		Body: model.Block{
			Inputs:      inputs,
			Outputs:     outputs,
			Rangeproofs: proofs,
			Kernels:     kernels,
		},
		KernelOffset: offsetSum,
	}, nil
}

// inputsResolve reports whether every input of tx is satisfiable against
// either the live UTXO set or an output already selected into the
// in-progress template.
func (p *TxPool) inputsResolve(tx *model.Transaction, selectedOutputs map[model.Commitment]struct{}) bool {
	for _, in := range tx.Body.Inputs {
		if _, ok := selectedOutputs[in.Commitment]; ok {
			continue
		}
		if _, _, ok := p.utxo.Lookup(in.Commitment); ok {
			continue
		}
		return false
	}
	return true
}
