package accum

import (
	"fmt"

	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/mmr"
	"github.com/mwc-validation-node/go-node/model"
)

// CommitmentSum is the Sum implementation shared by the Output and Kernel
// MMRs: the Pedersen-commitment sum of every live leaf's commitment,
// maintained incrementally so the UTXO-set/kernel-excess balance check of
// §4.4 never needs to re-sum the whole set. commitmentOf extracts the
// relevant commitment from whichever leaf type this instance was built for.
type CommitmentSum struct {
	facade      crypto.Facade
	commitmentOf func(mmr.Leaf) model.Commitment
	value       model.Commitment
	set         bool
}

// NewOutputSum builds the running commitment sum for an Output MMR.
func NewOutputSum(f crypto.Facade) *CommitmentSum {
	return &CommitmentSum{facade: f, commitmentOf: func(l mmr.Leaf) model.Commitment {
		return l.(OutputLeaf).Output.Commitment
	}}
}

// NewKernelSum builds the running excess-commitment sum for a Kernel MMR.
func NewKernelSum(f crypto.Facade) *CommitmentSum {
	return &CommitmentSum{facade: f, commitmentOf: func(l mmr.Leaf) model.Commitment {
		return l.(KernelLeaf).Kernel.Excess
	}}
}

// Value returns the current accumulated commitment. The zero value
// (set == false) represents the identity: callers that need a
// model.Commitment regardless should treat an unset sum as the
// commitment to zero.
func (s *CommitmentSum) Value() (model.Commitment, bool) { return s.value, s.set }

func (s *CommitmentSum) combine(c model.Commitment, add bool) {
	var positives, negatives []model.Commitment
	if s.set {
		positives = append(positives, s.value)
	}
	if add {
		positives = append(positives, c)
	} else {
		negatives = append(negatives, c)
	}
	next, err := s.facade.CommitSum(positives, negatives)
	if err != nil {
		panic(fmt.Sprintf("accum: commitment sum invariant violated: %v", err))
	}
	s.value = next
	s.set = true
}

func (s *CommitmentSum) Add(leaf mmr.Leaf, _ mmr.AdditionReason) {
	s.combine(s.commitmentOf(leaf), true)
}

func (s *CommitmentSum) Subtract(leaf mmr.Leaf, _ mmr.SubtractionReason) {
	s.combine(s.commitmentOf(leaf), false)
}

func (s *CommitmentSum) Clone() mmr.Sum {
	clone := *s
	return &clone
}

var (
	_ mmr.Sum = (*CommitmentSum)(nil)
	_ mmr.Leaf = HeaderLeaf{}
	_ mmr.Leaf = KernelLeaf{}
	_ mmr.Leaf = OutputLeaf{}
	_ mmr.Leaf = RangeproofLeaf{}
)
