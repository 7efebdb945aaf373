package model

// Header is the per-block-height header of §3. EdgeBits/ProofNonces carry
// the Cuckoo Cycle proof of work (§4.5); the four MMR roots commit the
// node's accumulator state as of this block.
type Header struct {
	Version             uint16
	Height              uint64
	Timestamp           int64 // signed Unix seconds
	PreviousBlockHash    Hash
	PreviousHeaderRoot  Hash // MMR root of all prior headers
	OutputRoot          Hash
	RangeproofRoot      Hash
	KernelRoot          Hash
	TotalKernelOffset   Scalar
	OutputMMRSize       uint64
	KernelMMRSize       uint64
	TotalDifficulty     uint64
	SecondaryScaling    uint32
	Nonce               uint64
	EdgeBits            uint8
	ProofNonces         [42]uint64
}

// MaxEdgeBits bounds EdgeBits (§3: edge_bits ∈ (0, MAX_EDGE_BITS]).
const MaxEdgeBits = 63

// ProofNonceCount is the fixed cycle length verified by the PoW verifier.
const ProofNonceCount = 42

// AscendingProofNonces reports whether ProofNonces is strictly ascending,
// part of the header well-formedness invariant of §3.
func (h *Header) AscendingProofNonces() bool {
	for i := 1; i < len(h.ProofNonces); i++ {
		if h.ProofNonces[i] <= h.ProofNonces[i-1] {
			return false
		}
	}
	return true
}

// NoncesWithinEdgeBits reports whether every proof nonce fits within
// 2^EdgeBits - 1 (§3).
func (h *Header) NoncesWithinEdgeBits() bool {
	if h.EdgeBits == 0 || h.EdgeBits > MaxEdgeBits {
		return false
	}
	limit := uint64(1)<<h.EdgeBits - 1
	for _, n := range h.ProofNonces {
		if n > limit {
			return false
		}
	}
	return true
}
