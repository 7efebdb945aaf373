package model

import (
	"bytes"

	"github.com/mwc-validation-node/go-node/errors"
)

// HashFunc computes a leaf's canonical digest; callers inject the node's
// crypto facade (crypto.Blake2b256) so this package never imports crypto
// (see DESIGN.md — avoids an import cycle with the validate/consensus
// layers that do depend on model).
type HashFunc func([]byte) Hash

// WeightFunc computes consensus.BlockWeight for the given element counts,
// injected the same way as HashFunc so model stays independent of the
// consensus package's network-parameter machinery.
type WeightFunc func(numInputs, numOutputs, numKernels int) uint64

// Block is the at-rest, ordered-list body shared by blocks and
// transactions (§3). Construction enforces every invariant of §4.4 except
// the kernel-sum balance and rangeproof checks, which need the crypto
// facade and run at acceptance time (validate package).
type Block struct {
	Inputs      []Input
	Outputs     []Output
	Rangeproofs []Rangeproof
	Kernels     []Kernel
}

// BuildOptions configures NewBlock's structural checks.
type BuildOptions struct {
	IsTransaction      bool // tighter weight budget, forbids Coinbase features
	MaximumBlockWeight uint64
	CoinbaseWeight     uint64
	Weight             WeightFunc
	Hash               HashFunc
}

// NewBlock validates the sorted-and-unique, cut-through, NRD-uniqueness and
// weight invariants of §4.4 and, for transaction-mode bodies, the
// no-coinbase-features rule. It never performs kernel-sum or rangeproof
// checks (those require the crypto facade; see validate package).
func NewBlock(inputs []Input, outputs []Output, proofs []Rangeproof, kernels []Kernel, opt BuildOptions) (*Block, error) {
	if len(outputs) != len(proofs) {
		return nil, errors.NewInvalidBlock("output count %d does not match rangeproof count %d", len(outputs), len(proofs))
	}

	budget := opt.MaximumBlockWeight
	if opt.IsTransaction {
		budget -= opt.CoinbaseWeight
	}
	if w := opt.Weight(len(inputs), len(outputs), len(kernels)); w > budget {
		return nil, errors.NewInvalidBlock("block weight %d exceeds budget %d", w, budget)
	}

	if opt.IsTransaction {
		for i := range outputs {
			if outputs[i].Features == FeatureCoinbase {
				return nil, errors.NewInvalidTransaction("transaction output %d carries coinbase features", i)
			}
		}
		for i := range kernels {
			if kernels[i].Features == KernelCoinbase {
				return nil, errors.NewInvalidTransaction("transaction kernel %d carries coinbase features", i)
			}
		}
	}

	if err := sortedAndUnique(inputs, func(i *Input) []byte { return i.HashSerialize() }, opt.Hash); err != nil {
		return nil, errors.NewInvalidBlock("inputs not sorted and unique: %v", err)
	}
	if err := sortedAndUnique(outputs, func(o *Output) []byte { return o.HashSerialize() }, opt.Hash); err != nil {
		return nil, errors.NewInvalidBlock("outputs not sorted and unique: %v", err)
	}
	if err := sortedAndUnique(kernels, func(k *Kernel) []byte { return k.HashSerialize() }, opt.Hash); err != nil {
		return nil, errors.NewInvalidBlock("kernels not sorted and unique: %v", err)
	}

	if err := uniqueNRDExcesses(kernels); err != nil {
		return nil, err
	}

	if err := validCutThrough(inputs, outputs); err != nil {
		return nil, err
	}

	return &Block{Inputs: inputs, Outputs: outputs, Rangeproofs: proofs, Kernels: kernels}, nil
}

// sortedAndUnique checks that serialised-Blake2b hashes of items are
// strictly increasing (§4.4).
func sortedAndUnique[T any](items []T, ser func(*T) []byte, hash HashFunc) error {
	var prev Hash
	for i := range items {
		h := hash(ser(&items[i]))
		if i > 0 && bytes.Compare(h[:], prev[:]) <= 0 {
			return errors.NewInvalidBlock("item %d out of order or duplicate", i)
		}
		prev = h
	}
	return nil
}

func uniqueNRDExcesses(kernels []Kernel) error {
	seen := make(map[Commitment]struct{})
	for i := range kernels {
		if kernels[i].Features != KernelNoRecentDuplicate {
			continue
		}
		if _, ok := seen[kernels[i].Excess]; ok {
			return errors.NewInvalidBlock("duplicate NRD kernel excess %s", kernels[i].Excess)
		}
		seen[kernels[i].Excess] = struct{}{}
	}
	return nil
}

func validCutThrough(inputs []Input, outputs []Output) error {
	spent := make(map[Commitment]struct{}, len(inputs))
	for i := range inputs {
		spent[inputs[i].Commitment] = struct{}{}
	}
	for i := range outputs {
		if _, ok := spent[outputs[i].Commitment]; ok {
			return errors.NewInvalidBlock("cut-through violation: commitment %s is both spent and created", outputs[i].Commitment)
		}
	}
	return nil
}
