package serialize

import (
	"io"

	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
)

// EncodeHeader writes a header in the fixed layout of §4.2. Header
// encoding does not vary across protocol versions.
func EncodeHeader(w io.Writer, h *model.Header) error {
	if err := writeU16(w, h.Version); err != nil {
		return err
	}
	if err := writeU64(w, h.Height); err != nil {
		return err
	}
	if err := writeU64(w, uint64(h.Timestamp)); err != nil {
		return err
	}
	for _, hash := range []model.Hash{h.PreviousBlockHash, h.PreviousHeaderRoot, h.OutputRoot, h.RangeproofRoot, h.KernelRoot} {
		if _, err := w.Write(hash[:]); err != nil {
			return errors.NewIO("write hash: %v", err)
		}
	}
	if _, err := w.Write(h.TotalKernelOffset[:]); err != nil {
		return errors.NewIO("write offset: %v", err)
	}
	if err := writeU64(w, h.OutputMMRSize); err != nil {
		return err
	}
	if err := writeU64(w, h.KernelMMRSize); err != nil {
		return err
	}
	if err := writeU64(w, h.TotalDifficulty); err != nil {
		return err
	}
	if err := writeU32(w, h.SecondaryScaling); err != nil {
		return err
	}
	if err := writeU64(w, h.Nonce); err != nil {
		return err
	}
	if _, err := w.Write([]byte{h.EdgeBits}); err != nil {
		return errors.NewIO("write edge_bits: %v", err)
	}
	return writeProofNonces(w, h.EdgeBits, h.ProofNonces)
}

// writeProofNonces packs 42 proof nonces into ceil(42*edge_bits/8) bytes,
// zero-padding any trailing bits (§4.2: "trailing bits... must be zero").
func writeProofNonces(w io.Writer, edgeBits uint8, nonces [42]uint64) error {
	nbytes := (42*int(edgeBits) + 7) / 8
	buf := make([]byte, nbytes)
	var bitOff uint
	for _, n := range nonces {
		packBits(buf, bitOff, uint(edgeBits), n)
		bitOff += uint(edgeBits)
	}
	_, err := w.Write(buf)
	if err != nil {
		return errors.NewIO("write proof nonces: %v", err)
	}
	return nil
}

func packBits(buf []byte, bitOffset, width uint, value uint64) {
	for i := uint(0); i < width; i++ {
		bit := (value >> (width - 1 - i)) & 1
		pos := bitOffset + i
		if bit == 1 {
			buf[pos/8] |= 1 << (7 - pos%8)
		}
	}
}

func unpackBits(buf []byte, bitOffset, width uint) uint64 {
	var v uint64
	for i := uint(0); i < width; i++ {
		pos := bitOffset + i
		bit := (buf[pos/8] >> (7 - pos%8)) & 1
		v = v<<1 | uint64(bit)
	}
	return v
}

// DecodeHeader reads a header and verifies no trailing bits are set in the
// packed proof-nonce byte string.
func DecodeHeader(r io.Reader) (*model.Header, error) {
	h := &model.Header{}
	var err error
	if h.Version, err = readU16(r); err != nil {
		return nil, err
	}
	if h.Height, err = readU64(r); err != nil {
		return nil, err
	}
	ts, err := readU64(r)
	if err != nil {
		return nil, err
	}
	h.Timestamp = int64(ts)

	if h.PreviousBlockHash, err = readHash(r); err != nil {
		return nil, err
	}
	if h.PreviousHeaderRoot, err = readHash(r); err != nil {
		return nil, err
	}
	if h.OutputRoot, err = readHash(r); err != nil {
		return nil, err
	}
	if h.RangeproofRoot, err = readHash(r); err != nil {
		return nil, err
	}
	if h.KernelRoot, err = readHash(r); err != nil {
		return nil, err
	}
	if h.TotalKernelOffset, err = readScalar(r); err != nil {
		return nil, err
	}
	if h.OutputMMRSize, err = readU64(r); err != nil {
		return nil, err
	}
	if h.KernelMMRSize, err = readU64(r); err != nil {
		return nil, err
	}
	if h.TotalDifficulty, err = readU64(r); err != nil {
		return nil, err
	}
	if h.SecondaryScaling, err = readU32(r); err != nil {
		return nil, err
	}
	if h.Nonce, err = readU64(r); err != nil {
		return nil, err
	}

	var edgeBitsBuf [1]byte
	if _, err := io.ReadFull(r, edgeBitsBuf[:]); err != nil {
		return nil, errors.NewIO("read edge_bits: %v", err)
	}
	h.EdgeBits = edgeBitsBuf[0]
	if h.EdgeBits == 0 || h.EdgeBits > model.MaxEdgeBits {
		return nil, errors.NewInvalidHeader("edge_bits %d out of range", h.EdgeBits)
	}

	nbytes := (42*int(h.EdgeBits) + 7) / 8
	buf := make([]byte, nbytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.NewIO("read proof nonces: %v", err)
	}
	var bitOff uint
	for i := range h.ProofNonces {
		h.ProofNonces[i] = unpackBits(buf, bitOff, uint(h.EdgeBits))
		bitOff += uint(h.EdgeBits)
	}
	// trailing bits in the final byte must be zero.
	if rem := bitOff % 8; rem != 0 {
		mask := byte(0xFF >> rem)
		if buf[len(buf)-1]&mask != 0 {
			return nil, errors.NewInvalidHeader("non-zero trailing bits in proof-nonce encoding")
		}
	}

	return h, nil
}
