// Package serialize implements the protocol-version-aware wire and archive
// encoders/decoders of §4.2. Multi-byte integers are big-endian on the
// wire unless documented otherwise. Every Decode function reads exactly the
// bytes its layout defines from the stream; whether bytes follow is not
// checked here.
package serialize

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
)

// ProtocolVersion selects the wire encoding of inputs/outputs/rangeproofs/
// kernels (§4.2). Versions 4 and above reuse the protocol-3 kernel layout;
// from protocol 2 on, the NRD relative height is written as a u16 (see
// EncodeKernel).
type ProtocolVersion uint32

const (
	ProtocolV0 ProtocolVersion = iota
	ProtocolV1
	ProtocolV2
	ProtocolV3
	ProtocolV4Plus
)

// HeaderLength returns the exact serialised length of a header at the given
// edge_bits, matching §4.2's formula.
func HeaderLength(edgeBits uint8) int {
	proofNonceBits := (42*int(edgeBits) + 7) / 8
	return 2 + 8 + 8 + 5*32 + 32 + 8 + 8 + 8 + 4 + 8 + 1 + proofNonceBits
}

// reader/writer helpers shared by every Encode/Decode pair below.

func writeU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.NewIO("read u16: %v", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.NewIO("read u32: %v", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.NewIO("read u64: %v", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readHash(r io.Reader) (model.Hash, error) {
	var h model.Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return h, errors.NewIO("read hash: %v", err)
	}
	return h, nil
}

func readScalar(r io.Reader) (model.Scalar, error) {
	var s model.Scalar
	if _, err := io.ReadFull(r, s[:]); err != nil {
		return s, errors.NewIO("read scalar: %v", err)
	}
	return s, nil
}

func readCommitment(r io.Reader) (model.Commitment, error) {
	var c model.Commitment
	if _, err := io.ReadFull(r, c[:]); err != nil {
		return c, errors.NewIO("read commitment: %v", err)
	}
	return c, nil
}

func readSignature(r io.Reader) (model.Signature, error) {
	var s model.Signature
	if _, err := io.ReadFull(r, s[:]); err != nil {
		return s, errors.NewIO("read signature: %v", err)
	}
	return s, nil
}

// bufReader is an io.Reader that is also an io.ByteReader, as bufio.Reader
// is; the Decode functions above take a plain io.Reader.
type bufReader interface {
	io.Reader
	io.ByteReader
}

var _ bufReader = (*bufio.Reader)(nil)
