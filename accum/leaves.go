// Package accum wires the chain's four leaf types (headers, kernels,
// outputs, rangeproofs) into mmr.Leaf/mmr.Sum, and builds the crypto.Facade
// hash function the generic mmr package is parameterised over. Nothing in
// mmr or model depends on this package; it exists purely to avoid an import
// cycle between mmr (generic), model (data) and crypto (verification).
package accum

import (
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/mmr"
	"github.com/mwc-validation-node/go-node/model"
)

// HasherFromFacade adapts a crypto.Facade's Blake2b256 into an mmr.Hasher.
func HasherFromFacade(f crypto.Facade) mmr.Hasher {
	return func(b []byte) model.Hash { return f.Blake2b256(b) }
}

// HeaderLeaf adapts model.Header to mmr.Leaf. Headers carry no lookup key;
// the header MMR is looked up by height through a separate index kept by
// the node package.
type HeaderLeaf struct {
	Header model.Header
}

func (l HeaderLeaf) Serialize() []byte        { return l.Header.HashSerialize() }
func (l HeaderLeaf) LookupKey() ([]byte, bool) { return nil, false }

// KernelLeaf adapts model.Kernel to mmr.Leaf, indexed by its excess
// commitment (the supplemented GetTransaction/TransactionKernel lookup
// path in SPEC_FULL.md).
type KernelLeaf struct {
	Kernel model.Kernel
}

func (l KernelLeaf) Serialize() []byte { return l.Kernel.HashSerialize() }

func (l KernelLeaf) LookupKey() ([]byte, bool) {
	return append([]byte{}, l.Kernel.Excess[:]...), true
}

// OutputLeaf adapts model.Output to mmr.Leaf, indexed by its commitment so
// spends can be resolved without a linear scan.
type OutputLeaf struct {
	Output model.Output
}

func (l OutputLeaf) Serialize() []byte { return l.Output.HashSerialize() }

func (l OutputLeaf) LookupKey() ([]byte, bool) {
	key := l.Output.LookupKey()
	return append([]byte{}, key[:]...), true
}

// RangeproofLeaf adapts model.Rangeproof to mmr.Leaf. Rangeproofs are
// positional companions to outputs and carry no independent lookup key.
type RangeproofLeaf struct {
	Rangeproof model.Rangeproof
}

func (l RangeproofLeaf) Serialize() []byte         { return l.Rangeproof.HashSerialize() }
func (l RangeproofLeaf) LookupKey() ([]byte, bool) { return nil, false }
