package peer

import (
	"encoding/binary"
	"io"

	"github.com/mwc-validation-node/go-node/errors"
)

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

func writeString(w io.Writer, s string) error {
	if err := writeU64(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

const maxStringLength = 4096

func readString(r io.Reader) (string, error) {
	n, err := readU64(r)
	if err != nil {
		return "", err
	}
	if n > maxStringLength {
		return "", errors.NewProtocolViolation("string length %d exceeds maximum", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// EncodeNetworkAddress writes a NetworkAddress per §6's family-tagged
// encoding.
func EncodeNetworkAddress(w io.Writer, a NetworkAddress) error {
	if _, err := w.Write([]byte{byte(a.Family)}); err != nil {
		return err
	}
	switch a.Family {
	case AddressIPv4:
		if _, err := w.Write(a.IP[:4]); err != nil {
			return err
		}
		return writeU16(w, a.Port)
	case AddressIPv6:
		if _, err := w.Write(a.IP[:16]); err != nil {
			return err
		}
		return writeU16(w, a.Port)
	case AddressOnionService:
		return writeString(w, a.Onion)
	default:
		return errors.NewProtocolViolation("unknown network address family %d", a.Family)
	}
}

func DecodeNetworkAddress(r io.Reader) (NetworkAddress, error) {
	var fb [1]byte
	if _, err := io.ReadFull(r, fb[:]); err != nil {
		return NetworkAddress{}, errors.NewIO("read address family: %v", err)
	}
	a := NetworkAddress{Family: NetworkAddressFamily(fb[0])}
	switch a.Family {
	case AddressIPv4:
		if _, err := io.ReadFull(r, a.IP[:4]); err != nil {
			return NetworkAddress{}, errors.NewIO("read ipv4: %v", err)
		}
		port, err := readU16(r)
		if err != nil {
			return NetworkAddress{}, errors.NewIO("read port: %v", err)
		}
		a.Port = port
		return a, nil
	case AddressIPv6:
		if _, err := io.ReadFull(r, a.IP[:16]); err != nil {
			return NetworkAddress{}, errors.NewIO("read ipv6: %v", err)
		}
		port, err := readU16(r)
		if err != nil {
			return NetworkAddress{}, errors.NewIO("read port: %v", err)
		}
		a.Port = port
		return a, nil
	case AddressOnionService:
		s, err := readString(r)
		if err != nil {
			return NetworkAddress{}, err
		}
		if err := validateOnionAddress(s); err != nil {
			return NetworkAddress{}, err
		}
		a.Onion = s
		return a, nil
	default:
		return NetworkAddress{}, errors.NewProtocolViolation("unknown network address family %d", a.Family)
	}
}

func validateOnionAddress(s string) error {
	const suffix = ".onion"
	if len(s) <= len(suffix) || s[len(s)-len(suffix):] != suffix {
		return errors.NewProtocolViolation("onion address missing .onion suffix")
	}
	for _, c := range s {
		if c == '[' || c == ']' || c == ':' {
			return errors.NewProtocolViolation("onion address carries a forbidden character")
		}
	}
	return nil
}

// EncodeHand/DecodeHand implement the Hand payload (§4.9 step 1, §6 cap
// 128 bytes).
func EncodeHand(w io.Writer, h *Hand) error {
	if err := writeU32(w, h.Version); err != nil {
		return err
	}
	if err := writeU32(w, uint32(h.Capabilities)); err != nil {
		return err
	}
	if err := writeU64(w, h.Nonce); err != nil {
		return err
	}
	if err := writeU64(w, h.TotalDifficulty); err != nil {
		return err
	}
	if err := EncodeNetworkAddress(w, h.ClientAddress); err != nil {
		return err
	}
	if err := EncodeNetworkAddress(w, h.ServerAddress); err != nil {
		return err
	}
	if err := writeString(w, h.UserAgent); err != nil {
		return err
	}
	if _, err := w.Write(h.GenesisHash[:]); err != nil {
		return err
	}
	return writeU64(w, h.BaseFee)
}

func DecodeHand(r io.Reader) (*Hand, error) {
	h := &Hand{}
	var err error
	if h.Version, err = readU32(r); err != nil {
		return nil, err
	}
	caps, err := readU32(r)
	if err != nil {
		return nil, err
	}
	h.Capabilities = Capability(caps)
	if h.Nonce, err = readU64(r); err != nil {
		return nil, err
	}
	if h.TotalDifficulty, err = readU64(r); err != nil {
		return nil, err
	}
	if h.ClientAddress, err = DecodeNetworkAddress(r); err != nil {
		return nil, err
	}
	if h.ServerAddress, err = DecodeNetworkAddress(r); err != nil {
		return nil, err
	}
	if h.UserAgent, err = readString(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, h.GenesisHash[:]); err != nil {
		return nil, err
	}
	if h.BaseFee, err = readU64(r); err != nil {
		return nil, err
	}
	return h, nil
}

func EncodeShake(w io.Writer, s *Shake) error {
	if err := writeU32(w, s.Version); err != nil {
		return err
	}
	if err := writeU32(w, uint32(s.Capabilities)); err != nil {
		return err
	}
	if err := writeU64(w, s.TotalDifficulty); err != nil {
		return err
	}
	if err := writeString(w, s.UserAgent); err != nil {
		return err
	}
	if _, err := w.Write(s.GenesisHash[:]); err != nil {
		return err
	}
	return writeU64(w, s.BaseFee)
}

func DecodeShake(r io.Reader) (*Shake, error) {
	s := &Shake{}
	var err error
	if s.Version, err = readU32(r); err != nil {
		return nil, err
	}
	caps, err := readU32(r)
	if err != nil {
		return nil, err
	}
	s.Capabilities = Capability(caps)
	if s.TotalDifficulty, err = readU64(r); err != nil {
		return nil, err
	}
	if s.UserAgent, err = readString(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, s.GenesisHash[:]); err != nil {
		return nil, err
	}
	if s.BaseFee, err = readU64(r); err != nil {
		return nil, err
	}
	return s, nil
}

func EncodePing(w io.Writer, p *Ping) error {
	if err := writeU64(w, p.TotalDifficulty); err != nil {
		return err
	}
	return writeU64(w, p.Height)
}

func DecodePing(r io.Reader) (*Ping, error) {
	p := &Ping{}
	var err error
	if p.TotalDifficulty, err = readU64(r); err != nil {
		return nil, err
	}
	if p.Height, err = readU64(r); err != nil {
		return nil, err
	}
	return p, nil
}

func EncodePong(w io.Writer, p *Pong) error {
	if err := writeU64(w, p.TotalDifficulty); err != nil {
		return err
	}
	return writeU64(w, p.Height)
}

func DecodePong(r io.Reader) (*Pong, error) {
	p := &Pong{}
	var err error
	if p.TotalDifficulty, err = readU64(r); err != nil {
		return nil, err
	}
	if p.Height, err = readU64(r); err != nil {
		return nil, err
	}
	return p, nil
}

func EncodeBanReason(w io.Writer, b *BanReason) error {
	if _, err := w.Write([]byte{b.Code}); err != nil {
		return err
	}
	return writeString(w, b.Reason)
}

func DecodeBanReason(r io.Reader) (*BanReason, error) {
	var cb [1]byte
	if _, err := io.ReadFull(r, cb[:]); err != nil {
		return nil, err
	}
	reason, err := readString(r)
	if err != nil {
		return nil, err
	}
	return &BanReason{Code: cb[0], Reason: reason}, nil
}

func EncodeTxHashSetRequest(w io.Writer, t *TxHashSetRequest) error {
	if _, err := w.Write(t.Hash[:]); err != nil {
		return err
	}
	return writeU64(w, t.Height)
}

func DecodeTxHashSetRequest(r io.Reader) (*TxHashSetRequest, error) {
	t := &TxHashSetRequest{}
	if _, err := io.ReadFull(r, t.Hash[:]); err != nil {
		return nil, err
	}
	var err error
	if t.Height, err = readU64(r); err != nil {
		return nil, err
	}
	return t, nil
}

func EncodeTxHashSetArchive(w io.Writer, t *TxHashSetArchive) error {
	if _, err := w.Write(t.Hash[:]); err != nil {
		return err
	}
	if err := writeU64(w, t.Height); err != nil {
		return err
	}
	return writeU64(w, t.AttachmentLength)
}

func DecodeTxHashSetArchive(r io.Reader) (*TxHashSetArchive, error) {
	t := &TxHashSetArchive{}
	if _, err := io.ReadFull(r, t.Hash[:]); err != nil {
		return nil, err
	}
	var err error
	if t.Height, err = readU64(r); err != nil {
		return nil, err
	}
	if t.AttachmentLength, err = readU64(r); err != nil {
		return nil, err
	}
	return t, nil
}

func EncodeGetTransaction(w io.Writer, g *GetTransaction) error {
	_, err := w.Write(g.KernelHash[:])
	return err
}

func DecodeGetTransaction(r io.Reader) (*GetTransaction, error) {
	g := &GetTransaction{}
	if _, err := io.ReadFull(r, g.KernelHash[:]); err != nil {
		return nil, err
	}
	return g, nil
}

func EncodeTransactionKernel(w io.Writer, t *TransactionKernel) error {
	_, err := w.Write(t.KernelHash[:])
	return err
}

func DecodeTransactionKernel(r io.Reader) (*TransactionKernel, error) {
	t := &TransactionKernel{}
	if _, err := io.ReadFull(r, t.KernelHash[:]); err != nil {
		return nil, err
	}
	return t, nil
}

func EncodeGetPeerAddresses(w io.Writer, g *GetPeerAddresses) error {
	return writeU32(w, uint32(g.Capabilities))
}

func DecodeGetPeerAddresses(r io.Reader) (*GetPeerAddresses, error) {
	caps, err := readU32(r)
	if err != nil {
		return nil, err
	}
	return &GetPeerAddresses{Capabilities: Capability(caps)}, nil
}

func EncodePeerAddresses(w io.Writer, a *PeerAddresses) error {
	if err := writeU32(w, uint32(len(a.Addresses))); err != nil {
		return err
	}
	for i := range a.Addresses {
		if err := EncodeNetworkAddress(w, a.Addresses[i]); err != nil {
			return err
		}
	}
	return nil
}

func DecodePeerAddresses(r io.Reader) (*PeerAddresses, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	a := &PeerAddresses{}
	for i := uint32(0); i < count; i++ {
		addr, err := DecodeNetworkAddress(r)
		if err != nil {
			return nil, err
		}
		a.Addresses = append(a.Addresses, addr)
	}
	return a, nil
}

// EncodeGetHeaders/DecodeGetHeaders encode a locator as a bare
// concatenation of 32-byte hashes (no count prefix; the reader consumes
// until the payload is exhausted, mirroring Headers' own framing).
func EncodeGetHeaders(w io.Writer, g *GetHeaders) error {
	for _, h := range g.Locator {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}
	return nil
}

func DecodeGetHeaders(r io.Reader) (*GetHeaders, error) {
	g := &GetHeaders{}
	for {
		var h [32]byte
		_, err := io.ReadFull(r, h[:])
		if err == io.EOF {
			return g, nil
		}
		if err != nil {
			return nil, errors.NewIO("read locator entry: %v", err)
		}
		g.Locator = append(g.Locator, h)
	}
}
