package model

import (
	"encoding/binary"
)

// HashSerialize produces the canonical byte encoding of a leaf used for MMR
// node hashing (§4.3: "blake2b_256(BE64(p) || leaf.serialize())") and for
// the sorted-and-unique ordering checks of §4.4. This canonical form is
// independent of the wire protocol_version negotiated with a given peer
// (see DESIGN.md): peers may speak an older wire dialect, but the node's
// internal accumulators and consensus hashes are always computed over one
// fixed, fully-populated layout.
func (h *Header) HashSerialize() []byte {
	buf := make([]byte, 0, 2+8+8+32*5+32+8+8+8+4+8+1+42*8)
	buf = appendU16(buf, h.Version)
	buf = appendU64(buf, h.Height)
	buf = appendU64(buf, uint64(h.Timestamp))
	buf = append(buf, h.PreviousBlockHash[:]...)
	buf = append(buf, h.PreviousHeaderRoot[:]...)
	buf = append(buf, h.OutputRoot[:]...)
	buf = append(buf, h.RangeproofRoot[:]...)
	buf = append(buf, h.KernelRoot[:]...)
	buf = append(buf, h.TotalKernelOffset[:]...)
	buf = appendU64(buf, h.OutputMMRSize)
	buf = appendU64(buf, h.KernelMMRSize)
	buf = appendU64(buf, h.TotalDifficulty)
	buf = appendU32(buf, h.SecondaryScaling)
	buf = appendU64(buf, h.Nonce)
	buf = append(buf, h.EdgeBits)
	for _, n := range h.ProofNonces {
		buf = appendU64(buf, n)
	}
	return buf
}

// PowPreimage is the canonical byte sequence whose Blake2b-256 seeds the
// SipHash keys for Cuckoo Cycle verification (§4.6): every header field
// except edge_bits and the proof nonces themselves.
func (h *Header) PowPreimage() []byte {
	buf := make([]byte, 0, 2+8+8+32*5+32+8+8+8+4+8)
	buf = appendU16(buf, h.Version)
	buf = appendU64(buf, h.Height)
	buf = appendU64(buf, uint64(h.Timestamp))
	buf = append(buf, h.PreviousBlockHash[:]...)
	buf = append(buf, h.PreviousHeaderRoot[:]...)
	buf = append(buf, h.OutputRoot[:]...)
	buf = append(buf, h.RangeproofRoot[:]...)
	buf = append(buf, h.KernelRoot[:]...)
	buf = append(buf, h.TotalKernelOffset[:]...)
	buf = appendU64(buf, h.OutputMMRSize)
	buf = appendU64(buf, h.KernelMMRSize)
	buf = appendU64(buf, h.TotalDifficulty)
	buf = appendU32(buf, h.SecondaryScaling)
	buf = appendU64(buf, h.Nonce)
	return buf
}

func (in *Input) HashSerialize() []byte {
	buf := make([]byte, 0, 1+33)
	buf = append(buf, byte(in.Features))
	buf = append(buf, in.Commitment[:]...)
	return buf
}

func (o *Output) HashSerialize() []byte {
	buf := make([]byte, 0, 1+33)
	buf = append(buf, byte(o.Features))
	buf = append(buf, o.Commitment[:]...)
	return buf
}

func (r *Rangeproof) HashSerialize() []byte {
	buf := make([]byte, 0, 2+len(r.Proof))
	buf = appendU16(buf, uint16(len(r.Proof)))
	buf = append(buf, r.Proof...)
	return buf
}

func (k *Kernel) HashSerialize() []byte {
	buf := make([]byte, 0, 1+8+8+8+33+64)
	buf = append(buf, byte(k.Features))
	buf = appendU64(buf, k.Fee)
	switch k.Features {
	case KernelHeightLocked:
		buf = appendU64(buf, k.LockHeight)
	case KernelNoRecentDuplicate:
		buf = appendU64(buf, k.RelativeHeight)
	}
	buf = append(buf, k.Excess[:]...)
	buf = append(buf, k.Signature[:]...)
	return buf
}

func appendU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
