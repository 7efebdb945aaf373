package peer

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/telemetry"
)

// Steady-state timing constants (§4.9).
const (
	PingInterval              = 10 * time.Second
	PeerAddressesInterval     = 10 * time.Minute
	SyncStuckDuration         = 2 * time.Hour
	RateLimitInterval         = time.Minute
	MaxSent                   = 500
	MaxReceived               = 500
	ReservedForProtocol       = 20
	CommunicationReadTimeout  = 3 * time.Minute
)

// Peer is one connection's framing, handshake state and rate-limited
// send/receive counters. It owns Conn and the buffers around it; the Node
// owns the Peer by shared reference (§3's lifecycle note).
type Peer struct {
	ID      string
	Address string
	Conn    io.ReadWriteCloser
	Magic   Magic

	State *State

	Capabilities    Capability
	TotalDifficulty uint64
	Height          uint64
	BaseFee         uint64
	UserAgent       string
	ProtocolVersion uint32

	closing atomic.Bool

	sendLimiter *rate.Limiter
	recvLimiter *rate.Limiter

	mu              sync.Mutex
	lastRead        time.Time
	lastDifficulty  uint64
	lastDifficultyAt time.Time

	log *telemetry.Logger
}

// New wraps an already-connected stream (TCP or SOCKS5-dialed) in a Peer,
// ready for the outbound handshake.
func New(conn io.ReadWriteCloser, magic Magic, address string, log *telemetry.Logger) *Peer {
	now := time.Now()
	return &Peer{
		ID:      uuid.NewString(),
		Address: address,
		Conn:    conn,
		Magic:   magic,
		State:   NewState(),
		// Burst equals the per-interval cap; refill continuously over
		// RateLimitInterval so a full window's worth is always available.
		sendLimiter:      rate.NewLimiter(rate.Every(RateLimitInterval/MaxSent), MaxSent),
		recvLimiter:      rate.NewLimiter(rate.Every(RateLimitInterval/MaxReceived), MaxReceived),
		lastRead:         now,
		lastDifficultyAt: now,
		log:              log.With("peer", address),
	}
}

// Closing reports whether Close has been called.
func (p *Peer) Closing() bool { return p.closing.Load() }

// Close marks the peer closing and closes its underlying connection.
func (p *Peer) Close() error {
	p.closing.Store(true)
	return p.Conn.Close()
}

// Send writes a framed message, consuming one unit of the send-rate
// budget. protocolCritical messages (Ping/Pong/BanReason) draw from the
// reserved headroom rather than the general 480-message budget, per
// §4.9's "reserve 20 for protocol-critical messages".
func (p *Peer) Send(t Type, payload []byte, protocolCritical bool) error {
	if !protocolCritical && p.sendLimiter.Tokens() <= ReservedForProtocol {
		return errors.NewProtocolViolation("send budget saturated for peer %s", p.Address)
	}
	if !p.sendLimiter.Allow() {
		return errors.NewProtocolViolation("send rate limit exceeded for peer %s", p.Address)
	}
	return WriteFrame(p.Conn, p.Magic, t, payload)
}

// ReadFrame reads one frame, enforcing the per-interval receive budget and
// updating the read-silence watermark used for CommunicationReadTimeout.
func (p *Peer) ReadFrame() (*FrameHeader, []byte, error) {
	if !p.recvLimiter.Allow() {
		return nil, nil, errors.NewProtocolViolation("receive rate limit exceeded for peer %s", p.Address)
	}
	hdr, err := ReadFrameHeader(p.Conn, p.Magic)
	if err != nil {
		return nil, nil, err
	}
	payload, err := hdr.ReadPayload(p.Conn)
	if err != nil {
		return nil, nil, err
	}
	p.mu.Lock()
	p.lastRead = time.Now()
	p.mu.Unlock()
	return hdr, payload, nil
}

// ReadAttachment reads exactly n bytes directly off the connection,
// bypassing frame decoding. TxHashSetArchive carries its attachment this
// way: the attachment_length bytes follow the envelope message and precede
// the next frame boundary (§4.9), so the caller must drain them before
// issuing another ReadFrame on this peer.
func (p *Peer) ReadAttachment(n uint64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.Conn, buf); err != nil {
		return nil, errors.NewIO("read attachment: %v", err)
	}
	p.mu.Lock()
	p.lastRead = time.Now()
	p.mu.Unlock()
	return buf, nil
}

// ReadSilenceExceeded reports whether no frame has been read for longer
// than CommunicationReadTimeout.
func (p *Peer) ReadSilenceExceeded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastRead) > CommunicationReadTimeout
}

// ObserveDifficulty records a newly advertised total_difficulty watermark,
// used by SyncStuck detection (§4.9 steady state).
func (p *Peer) ObserveDifficulty(td uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if td > p.lastDifficulty {
		p.lastDifficulty = td
		p.lastDifficultyAt = time.Now()
	}
	p.TotalDifficulty = td
}

// Stuck reports whether the peer's advertised difficulty exceeds ours
// (the caller supplies ours) and it hasn't increased in SyncStuckDuration.
func (p *Peer) Stuck(ourDifficulty uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TotalDifficulty > ourDifficulty && time.Since(p.lastDifficultyAt) > SyncStuckDuration
}

// Handshake performs the outbound sequence of §4.9 steps 1-4: send Hand,
// expect Shake, validate genesis hash and total difficulty, then request
// peer addresses.
func (p *Peer) Handshake(ctx context.Context, hand *Hand, genesisHash [32]byte, genesisTotalDifficulty uint64, requiredCapabilities Capability) error {
	var buf bytes.Buffer
	if err := EncodeHand(&buf, hand); err != nil {
		return err
	}
	if err := p.Send(TypeHand, buf.Bytes(), true); err != nil {
		return err
	}
	if err := Fire(ctx, p.State.Communication, "hand_sent"); err != nil {
		return err
	}

	hdr, payload, err := p.ReadFrame()
	if err != nil {
		return err
	}
	if hdr.Type != TypeShake {
		return errors.NewProtocolViolation("expected Shake, got type %d", hdr.Type)
	}
	shake, err := DecodeShake(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if shake.GenesisHash != genesisHash {
		return errors.NewProtocolViolation("genesis hash mismatch")
	}
	if shake.TotalDifficulty < genesisTotalDifficulty {
		return errors.NewProtocolViolation("peer total difficulty below genesis")
	}
	p.Capabilities = shake.Capabilities
	p.ProtocolVersion = shake.Version
	p.UserAgent = shake.UserAgent
	p.BaseFee = shake.BaseFee
	p.ObserveDifficulty(shake.TotalDifficulty)
	if err := Fire(ctx, p.State.Connection, "connected"); err != nil {
		return err
	}

	var gbuf bytes.Buffer
	if err := writeU32(&gbuf, uint32(CapabilityFullNode)); err != nil {
		return err
	}
	if err := p.Send(TypeGetPeerAddresses, gbuf.Bytes(), true); err != nil {
		return err
	}
	if err := Fire(ctx, p.State.Communication, "peer_addresses_requested"); err != nil {
		return err
	}

	if p.Capabilities&requiredCapabilities != requiredCapabilities {
		return errors.NewProtocolViolation("peer lacks required capabilities")
	}
	return nil
}

// CompleteHandshake transitions into ConnectedAndHealthy once
// PeerAddresses has been received and capabilities were already checked by
// Handshake.
func (p *Peer) CompleteHandshake(ctx context.Context) error {
	if err := Fire(ctx, p.State.Communication, "peer_addresses_received"); err != nil {
		return err
	}
	return Fire(ctx, p.State.Connection, "healthy")
}
