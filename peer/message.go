// Package peer implements the wire protocol of §4.9/§6: message framing,
// the handshake sequence, and the per-peer connection state machine.
package peer

import "github.com/mwc-validation-node/go-node/model"

// Type is the wire message type byte (§4.9).
type Type uint8

const (
	TypeErrorResponse Type = iota
	TypeHand
	TypeShake
	TypePing
	TypePong
	TypeGetPeerAddresses
	TypePeerAddresses
	TypeGetHeaders
	TypeHeader
	TypeHeaders
	TypeGetBlock
	TypeBlock
	TypeGetCompactBlock
	TypeCompactBlock
	TypeStemTransaction
	TypeTransaction
	TypeTxHashSetRequest
	TypeTxHashSetArchive
	TypeBanReason
	TypeGetTransaction
	TypeTransactionKernel
	TypeTorAddress
	TypeUnknown
)

// MaxBlockLength bounds Block/StemTransaction/Transaction/CompactBlock
// payloads (§6); set generously enough for MAXIMUM_BLOCK_WEIGHT at
// MAXIMUM_*_LENGTH element counts.
const MaxBlockLength = 12_000_000

// MaxPayload returns the maximum payload length §6 allows for type t.
func MaxPayload(t Type) uint64 {
	switch t {
	case TypeErrorResponse:
		return 0
	case TypeHand:
		return 128
	case TypeShake:
		return 88
	case TypePing, TypePong:
		return 16
	case TypeGetPeerAddresses:
		return 4
	case TypePeerAddresses:
		return 4 + 19*256
	case TypeGetHeaders:
		return 1 + 32*20
	case TypeHeader:
		return 365
	case TypeHeaders:
		return 2 + 365*512
	case TypeGetBlock, TypeGetCompactBlock, TypeGetTransaction, TypeTransactionKernel:
		return 32
	case TypeBlock, TypeStemTransaction, TypeTransaction:
		return MaxBlockLength
	case TypeCompactBlock:
		return MaxBlockLength / 10
	case TypeTxHashSetRequest:
		return 40
	case TypeTxHashSetArchive:
		return 64
	case TypeBanReason:
		return 64
	case TypeTorAddress:
		return 128
	default:
		return 0
	}
}

// Capability is the peer-capabilities bitset advertised in Shake/
// PeerAddresses (§6).
type Capability uint32

const (
	CapabilityFullHist Capability = 1 << iota
	CapabilityFullNode
	CapabilityTxHashSetHist
)

// NetworkAddressFamily selects the wire encoding of a NetworkAddress (§6).
type NetworkAddressFamily uint8

const (
	AddressIPv4 NetworkAddressFamily = iota
	AddressIPv6
	AddressOnionService
)

// NetworkAddress is a peer address as carried on the wire (§6).
type NetworkAddress struct {
	Family  NetworkAddressFamily
	IP      [16]byte // first 4 bytes significant for IPv4
	Port    uint16
	Onion   string // only for AddressOnionService, must end in ".onion"
}

// Hand is the outbound handshake opener (§4.9 step 1).
type Hand struct {
	Version         uint32
	Capabilities    Capability
	Nonce           uint64
	TotalDifficulty uint64
	ClientAddress   NetworkAddress
	ServerAddress   NetworkAddress
	UserAgent       string
	GenesisHash     [32]byte
	BaseFee         uint64
}

// Shake answers a Hand (§4.9 step 2).
type Shake struct {
	Version         uint32
	Capabilities    Capability
	TotalDifficulty uint64
	UserAgent       string
	GenesisHash     [32]byte
	BaseFee         uint64
}

// Ping/Pong carry the sender's total difficulty/height watermark.
type Ping struct {
	TotalDifficulty uint64
	Height          uint64
}

type Pong struct {
	TotalDifficulty uint64
	Height          uint64
}

// GetPeerAddresses requests addresses with at least the given capability.
type GetPeerAddresses struct {
	Capabilities Capability
}

type PeerAddresses struct {
	Addresses []NetworkAddress
}

// GetHeaders carries a locator: known-hash checkpoints doubling backward
// from the tip (§4.10 phase A).
type GetHeaders struct {
	Locator []([32]byte)
}

type Headers struct {
	// Encoded serialize.Header bytes, kept opaque here since header
	// encoding is protocol-version dependent (serialize package).
	Raw [][]byte
}

type GetBlock struct {
	Hash [32]byte
}

type Block struct {
	Raw []byte
}

type GetCompactBlock struct {
	Hash [32]byte
}

type CompactBlock struct {
	Raw []byte
}

type StemTransaction struct {
	Raw []byte
}

type Transaction struct {
	Raw []byte
}

type TxHashSetRequest struct {
	Hash   [32]byte
	Height uint64
}

type TxHashSetArchive struct {
	Hash             [32]byte
	Height           uint64
	AttachmentLength uint64
}

// BanReason is the supplemented typed ban message (SPEC_FULL.md): original
// clients send a free-text reason; this validator also accepts/derives a
// typed code so peers can react programmatically instead of string
// matching.
type BanReason struct {
	Code   uint8
	Reason string
}

const (
	BanReasonUnknown uint8 = iota
	BanReasonProtocolViolation
	BanReasonInvalidBlock
	BanReasonInvalidTransaction
	BanReasonSyncStuck
	BanReasonRateLimited
)

// GetTransaction/TransactionKernel are the supplemented kernel-hash
// presence probe pair (SPEC_FULL.md): GetTransaction asks whether a peer's
// mempool holds a transaction whose kernel hashes to KernelHash;
// TransactionKernel echoes the same hash back as an acknowledgement. Both
// carry a single 32-byte Blake2b digest (mwc-node's own max-payload table
// caps both at 32 bytes) — the matched transaction itself still travels
// over the ordinary Transaction/StemTransaction path, not this pair.
type GetTransaction struct {
	KernelHash model.Hash
}

type TransactionKernel struct {
	KernelHash model.Hash
}

type TorAddress struct {
	Address string
}

type ErrorResponse struct {
	Code    uint32
	Message string
}
