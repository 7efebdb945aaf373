package node

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/peer"
	"github.com/mwc-validation-node/go-node/serialize"
)

// maxRecentBlocks bounds the in-memory cache of recently applied block
// bodies that GetBlock requests are served from; this node archives MMR
// state, not historical bodies, so only blocks seen since startup (or
// freshly mined) are servable.
const maxRecentBlocks = 64

// rememberBlock records a just-applied block body for GetBlock serving,
// evicting the oldest entry once maxRecentBlocks is exceeded.
func (n *Node) rememberBlock(hash model.Hash, body *model.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.recentBlocks == nil {
		n.recentBlocks = make(map[model.Hash]*model.Block)
	}
	if _, exists := n.recentBlocks[hash]; !exists {
		n.recentBlockOrder = append(n.recentBlockOrder, hash)
		if len(n.recentBlockOrder) > maxRecentBlocks {
			oldest := n.recentBlockOrder[0]
			n.recentBlockOrder = n.recentBlockOrder[1:]
			delete(n.recentBlocks, oldest)
		}
	}
	n.recentBlocks[hash] = body
}

func (n *Node) recentBlock(hash model.Hash) (*model.Block, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.recentBlocks[hash]
	return b, ok
}

// isSyncPeer reports whether p is currently the node's active sync peer,
// i.e. whether a sync-phase goroutine already owns reading its connection.
func (n *Node) isSyncPeer(p *peer.Peer) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.syncing && n.syncingPeer == p
}

// runPeerLoop drives §4.9's steady-state behavior for one
// connected_and_healthy peer: a maintenance side sending Ping and
// re-requesting peer addresses on their fixed intervals while watching for
// read silence or a stuck difficulty watermark, and a read side serving
// the peer's own requests and absorbing gossip. It runs until either side
// gives up, then closes the connection.
func (n *Node) runPeerLoop(ctx context.Context, p *peer.Peer) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.peerMaintenanceLoop(gctx, p) })
	g.Go(func() error { return n.peerReadLoop(gctx, p) })
	_ = g.Wait()
	p.Close()
}

// peerMaintenanceLoop implements the timer-driven half of §4.9's steady
// state: Ping every PingInterval, GetPeerAddresses every
// PeerAddressesInterval, and a disconnect/ban if the peer has gone silent
// past CommunicationReadTimeout or its advertised difficulty has been
// stuck above ours for longer than SyncStuckDuration.
func (n *Node) peerMaintenanceLoop(ctx context.Context, p *peer.Peer) error {
	pingTicker := time.NewTicker(peer.PingInterval)
	defer pingTicker.Stop()
	addrTicker := time.NewTicker(peer.PeerAddressesInterval)
	defer addrTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingTicker.C:
			if p.Closing() {
				return errors.NewIO("peer %s closing", p.Address)
			}
			if p.ReadSilenceExceeded() {
				cause := errors.NewProtocolViolation("no frames read within %s", peer.CommunicationReadTimeout)
				n.banPeer(p, peer.BanReasonSyncStuck, cause)
				return cause
			}
			if p.Stuck(n.chain.TotalDifficulty()) {
				cause := errors.NewProtocolViolation("peer stuck behind our chain past %s", peer.SyncStuckDuration)
				n.banPeer(p, peer.BanReasonSyncStuck, cause)
				return cause
			}
			var buf bytes.Buffer
			ping := &peer.Ping{TotalDifficulty: n.chain.TotalDifficulty(), Height: n.chain.SyncedHeaderIndex}
			if err := peer.EncodePing(&buf, ping); err != nil {
				return err
			}
			_ = p.Send(peer.TypePing, buf.Bytes(), true)
		case <-addrTicker.C:
			var buf bytes.Buffer
			req := &peer.GetPeerAddresses{Capabilities: peer.CapabilityFullNode}
			if err := peer.EncodeGetPeerAddresses(&buf, req); err != nil {
				return err
			}
			if err := p.Send(peer.TypeGetPeerAddresses, buf.Bytes(), true); err != nil {
				return err
			}
			_ = peer.Fire(ctx, p.State.Communication, "peer_addresses_requested")
		}
	}
}

// peerReadLoop is the single reader driving inbound traffic for p once it
// is not the active sync peer: it stands aside while a sync-phase
// goroutine owns the connection (sync's own readWithTimeout calls), and
// otherwise reads and dispatches one frame at a time.
func (n *Node) peerReadLoop(ctx context.Context, p *peer.Peer) error {
	const standAsideInterval = 200 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Closing() {
			return errors.NewIO("peer %s closing", p.Address)
		}
		if n.isSyncPeer(p) {
			time.Sleep(standAsideInterval)
			continue
		}
		hdr, payload, err := p.ReadFrame()
		if err != nil {
			return err
		}
		if err := n.dispatchInbound(ctx, p, hdr, payload); err != nil {
			n.banPeer(p, peer.BanReasonProtocolViolation, err)
			return err
		}
	}
}

// dispatchInbound handles one frame not already consumed by a sync phase:
// liveness messages, peer-address exchange, transaction/block gossip, and
// serving the peer's own Get* requests.
func (n *Node) dispatchInbound(ctx context.Context, p *peer.Peer, hdr *peer.FrameHeader, payload []byte) error {
	switch hdr.Type {
	case peer.TypePing:
		ping, err := peer.DecodePing(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		p.ObserveDifficulty(ping.TotalDifficulty)
		p.Height = ping.Height
		var buf bytes.Buffer
		pong := &peer.Pong{TotalDifficulty: n.chain.TotalDifficulty(), Height: n.chain.SyncedHeaderIndex}
		if err := peer.EncodePong(&buf, pong); err != nil {
			return err
		}
		return p.Send(peer.TypePong, buf.Bytes(), true)

	case peer.TypePong:
		pong, err := peer.DecodePong(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		p.ObserveDifficulty(pong.TotalDifficulty)
		p.Height = pong.Height
		return nil

	case peer.TypeGetPeerAddresses:
		req, err := peer.DecodeGetPeerAddresses(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		return n.servePeerAddresses(p, req.Capabilities)

	case peer.TypePeerAddresses:
		addrs, err := peer.DecodePeerAddresses(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		for _, a := range addrs.Addresses {
			if s, ok := networkAddressToString(a); ok {
				n.pools.AddUnused(s)
			}
		}
		_ = peer.Fire(ctx, p.State.Communication, "peer_addresses_received")
		return nil

	case peer.TypeGetHeaders:
		req, err := peer.DecodeGetHeaders(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		return n.serveGetHeaders(p, req.Locator)

	case peer.TypeGetBlock:
		if len(payload) != 32 {
			return errors.NewProtocolViolation("malformed GetBlock payload")
		}
		var hash model.Hash
		copy(hash[:], payload)
		return n.serveGetBlock(p, hash)

	case peer.TypeGetTransaction:
		req, err := peer.DecodeGetTransaction(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		return n.serveGetTransaction(p, req.KernelHash)

	case peer.TypeTransaction, peer.TypeStemTransaction:
		tx, err := serialize.DecodeTransaction(bytes.NewReader(payload), serialize.ProtocolVersion(p.ProtocolVersion))
		if err != nil {
			return err
		}
		n.mu.Lock()
		tip := n.tipLocked()
		n.mu.Unlock()
		if err := n.mempool.Insert(tx, tip, n.callbacks.OnMempoolEvent); err == nil {
			n.QueueTransaction(tx)
		}
		return nil

	case peer.TypeBlock:
		return n.acceptGossipedBlock(p, payload)

	case peer.TypeBanReason:
		reason, err := peer.DecodeBanReason(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		return errors.NewProtocolViolation("peer banned us: %s", reason.Reason)

	default:
		// Unsolicited/unknown traffic outside the handled set (TransactionKernel
		// replies, compact blocks, Tor addresses) is not yet consumed by this
		// node; ignore rather than tearing down the connection over it.
		return nil
	}
}

func (n *Node) servePeerAddresses(p *peer.Peer, _ peer.Capability) error {
	resp := &peer.PeerAddresses{}
	for _, item := range n.pools.Healthy.Items() {
		addr, ok := stringToNetworkAddress(item.Key())
		if !ok {
			continue
		}
		resp.Addresses = append(resp.Addresses, addr)
		if len(resp.Addresses) >= 19 {
			break
		}
	}
	var buf bytes.Buffer
	if err := peer.EncodePeerAddresses(&buf, resp); err != nil {
		return err
	}
	return p.Send(peer.TypePeerAddresses, buf.Bytes(), true)
}

// serveGetHeaders finds the highest locator entry this node recognises
// and returns up to 512 headers immediately following it, or from genesis
// if nothing in the locator matched.
func (n *Node) serveGetHeaders(p *peer.Peer, locator [][32]byte) error {
	n.chain.mu.RLock()
	start := uint64(0)
	for _, want := range locator {
		for height, h := range n.chain.headerByHeight {
			if n.facade.Blake2b256(h.HashSerialize()) == model.Hash(want) {
				if height+1 > start {
					start = height + 1
				}
			}
		}
	}
	var buf bytes.Buffer
	count := 0
	for height := start; count < 512; height++ {
		h, ok := n.chain.headerByHeight[height]
		if !ok {
			break
		}
		if err := serialize.EncodeHeader(&buf, &h); err != nil {
			n.chain.mu.RUnlock()
			return err
		}
		count++
	}
	n.chain.mu.RUnlock()
	return p.Send(peer.TypeHeaders, buf.Bytes(), false)
}

func (n *Node) serveGetBlock(p *peer.Peer, hash model.Hash) error {
	body, ok := n.recentBlock(hash)
	if !ok {
		return nil
	}
	raw, err := n.encodeBlock(body, p.ProtocolVersion)
	if err != nil {
		return err
	}
	return p.Send(peer.TypeBlock, raw, false)
}

// serveGetTransaction answers a kernel-hash presence probe: if this
// node's mempool holds a matching transaction, it echoes the hash back via
// TransactionKernel. The transaction bytes themselves, if the peer wants
// them, travel over the ordinary Transaction/StemTransaction gossip path.
func (n *Node) serveGetTransaction(p *peer.Peer, kernelHash model.Hash) error {
	if _, ok := n.mempool.TransactionByKernelHash(kernelHash); !ok {
		return nil
	}
	var buf bytes.Buffer
	if err := peer.EncodeTransactionKernel(&buf, &peer.TransactionKernel{KernelHash: kernelHash}); err != nil {
		return err
	}
	return p.Send(peer.TypeTransactionKernel, buf.Bytes(), false)
}

// acceptGossipedBlock applies an unsolicited Block body against the
// header this node already holds for synced_header_index+1, the only
// height a freshly mined/relayed body can be meaningfully validated at
// without a prior announcement message.
func (n *Node) acceptGossipedBlock(p *peer.Peer, payload []byte) error {
	n.mu.Lock()
	nextHeight := n.chain.SyncedHeaderIndex + 1
	n.mu.Unlock()

	header, ok := n.chain.headerByHeight[nextHeight]
	if !ok {
		return nil
	}
	body, err := serialize.DecodeBlockBody(bytes.NewReader(payload), serialize.ProtocolVersion(p.ProtocolVersion))
	if err != nil {
		return err
	}

	n.chain.mu.RLock()
	prevHeader, ok := n.chain.previousHeader(header.Height)
	n.chain.mu.RUnlock()
	if !ok {
		return nil
	}
	kernelOffsetDelta, err := n.facade.ScalarSum([]model.Scalar{header.TotalKernelOffset}, []model.Scalar{prevHeader.TotalKernelOffset})
	if err != nil {
		return err
	}
	feeOrReward := n.feesOrReward(header, body)
	if err := n.chain.ApplyBlock(header, body, feeOrReward, kernelOffsetDelta); err != nil {
		return nil
	}
	hash := n.facade.Blake2b256(header.HashSerialize())
	n.rememberBlock(hash, body)
	n.mempool.Cleanup(n.tipLocked())
	if n.callbacks.OnBlock != nil {
		n.callbacks.OnBlock(nextHeight, body)
	}
	return nil
}

// stringToNetworkAddress parses a "host:port" candidate address (as stored
// in the candidate pools) into its wire NetworkAddress form.
func stringToNetworkAddress(address string) (peer.NetworkAddress, bool) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return peer.NetworkAddress{}, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return peer.NetworkAddress{}, false
	}
	if len(host) > 6 && host[len(host)-6:] == ".onion" {
		return peer.NetworkAddress{Family: peer.AddressOnionService, Onion: host, Port: uint16(port)}, true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return peer.NetworkAddress{}, false
	}
	if v4 := ip.To4(); v4 != nil {
		a := peer.NetworkAddress{Family: peer.AddressIPv4, Port: uint16(port)}
		copy(a.IP[:4], v4)
		return a, true
	}
	a := peer.NetworkAddress{Family: peer.AddressIPv6, Port: uint16(port)}
	copy(a.IP[:16], ip.To16())
	return a, true
}

// networkAddressToString is stringToNetworkAddress's inverse, used to fold
// a PeerAddresses reply back into the candidate pools.
func networkAddressToString(a peer.NetworkAddress) (string, bool) {
	switch a.Family {
	case peer.AddressIPv4:
		ip := net.IP(a.IP[:4])
		return net.JoinHostPort(ip.String(), strconv.Itoa(int(a.Port))), true
	case peer.AddressIPv6:
		ip := net.IP(a.IP[:16])
		return net.JoinHostPort(ip.String(), strconv.Itoa(int(a.Port))), true
	case peer.AddressOnionService:
		return net.JoinHostPort(a.Onion, strconv.Itoa(int(a.Port))), true
	default:
		return "", false
	}
}
