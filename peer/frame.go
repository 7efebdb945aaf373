package peer

import (
	"encoding/binary"
	"io"

	"github.com/mwc-validation-node/go-node/errors"
)

// FrameHeaderLength is the fixed 11-byte frame header: magic(2) | type(1)
// | payload_length(u64 big-endian) (§4.9).
const FrameHeaderLength = 2 + 1 + 8

// Magic identifies the network (mainnet/floonet carry distinct bytes).
type Magic [2]byte

// WriteFrame writes a message's frame header and payload. Callers supply
// already-encoded payload bytes (serialize-package output for
// header/block/transaction payloads, ad hoc encoders for the small control
// messages).
func WriteFrame(w io.Writer, magic Magic, t Type, payload []byte) error {
	if uint64(len(payload)) > MaxPayload(t) {
		return errors.NewProtocolViolation("payload length %d exceeds maximum %d for type %d", len(payload), MaxPayload(t), t)
	}
	var hdr [FrameHeaderLength]byte
	hdr[0], hdr[1] = magic[0], magic[1]
	hdr[2] = byte(t)
	binary.BigEndian.PutUint64(hdr[3:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.NewIO("write frame header: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		return errors.NewIO("write frame payload: %v", err)
	}
	return nil
}

// FrameHeader is a decoded frame header, before its payload is read.
type FrameHeader struct {
	Magic         Magic
	Type          Type
	PayloadLength uint64
}

// ReadFrameHeader reads and validates a frame header against the
// network's magic bytes and the 4x-max-payload ceiling of §4.9. It does
// not read the payload itself, so the caller can apply a read deadline or
// stream large payloads (TxHashSetArchive's attachment) separately.
func ReadFrameHeader(r io.Reader, magic Magic) (*FrameHeader, error) {
	var hdr [FrameHeaderLength]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.NewIO("read frame header: %v", err)
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] {
		return nil, errors.NewProtocolViolation("frame magic mismatch")
	}
	t := Type(hdr[2])
	length := binary.BigEndian.Uint64(hdr[3:])
	if length > 4*MaxPayload(t) {
		return nil, errors.NewProtocolViolation("payload length %d exceeds 4x maximum for type %d", length, t)
	}
	return &FrameHeader{Magic: Magic{hdr[0], hdr[1]}, Type: t, PayloadLength: length}, nil
}

// ReadPayload reads exactly PayloadLength bytes following a decoded frame
// header.
func (h *FrameHeader) ReadPayload(r io.Reader) ([]byte, error) {
	buf := make([]byte, h.PayloadLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.NewIO("read frame payload: %v", err)
	}
	return buf, nil
}
