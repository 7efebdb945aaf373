package node

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/dcrd/lru"
	"golang.org/x/sync/singleflight"

	"github.com/mwc-validation-node/go-node/config"
	"github.com/mwc-validation-node/go-node/consensus"
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/mempool"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/peer"
	"github.com/mwc-validation-node/go-node/serialize"
	"github.com/mwc-validation-node/go-node/telemetry"
)

// §4.10's fixed timing/sizing constants.
const (
	DesiredPeers              = 8
	MinToStartSyncing         = 4
	DelayBeforeSyncing        = 60 * time.Second
	PeerEventOccurredTimeout  = 1 * time.Second
	RemoveRandomPeerInterval  = 6 * time.Hour
	MaxReorgsDuringHeaderSync = 3
	MaxReorgsDuringBlockSync  = 2

	// recentHashCacheSize sizes the seen-hash cache (decred/dcrd/lru) that
	// New allocates; no code path adds to or reads from that cache.
	recentHashCacheSize = 8192
)

// Dialer abstracts connecting to a peer address, so the node never imports
// net or the SOCKS5 machinery directly (see dialer package).
type Dialer interface {
	Dial(ctx context.Context, address string) (PeerConn, error)
}

// PeerConn is the minimal connected-stream surface a Dialer hands back.
type PeerConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Node is the top-level supervisor of §4.10: it owns the chain state, the
// mempool, the four candidate pools, the active peer set, and drives the
// monitor loop and sync phases.
type Node struct {
	cfg    *config.NodeConfig
	params *consensus.Params
	facade crypto.Facade
	log    *telemetry.Logger
	magic  peer.Magic
	dialer Dialer

	genesisHash       [32]byte
	genesisDifficulty uint64

	rng *rand.Rand

	mu          sync.Mutex
	chain       *Chain
	mempool     *mempool.TxPool
	peers       map[string]*peer.Peer
	syncing     bool
	syncingPeer *peer.Peer
	healthySince time.Time

	pools *CandidatePools
	seen  *lru.Cache // recently seen header/block hashes (string keys)

	// dialGroup collapses concurrent connectOutbound attempts at the same
	// address into one in-flight dial, so a slow DNS-seed refresh can't
	// pile up duplicate connections to the same candidate.
	dialGroup singleflight.Group

	pendingTxs    []*model.Transaction
	pendingBlocks []*model.Block

	// recentBlocks/recentBlockOrder cache recently applied block bodies so
	// GetBlock requests from other peers have something to serve; see
	// node/steady_state.go.
	recentBlocks     map[model.Hash]*model.Block
	recentBlockOrder []model.Hash

	callbacks Callbacks
	started   bool
	metrics   *telemetry.Metrics

	// rootCtx is the context passed to Start, reused by AdmitInbound to
	// spawn a steady-state loop for peers accepted after the node is
	// already running.
	rootCtx context.Context

	lastRemoveRandom time.Time
}

// SetMetrics attaches the prometheus gauges/counters the tick loop updates.
// Optional: a nil metrics handle (the default) leaves instrumentation off.
func (n *Node) SetMetrics(m *telemetry.Metrics) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metrics = m
}

// New builds a Node around an installed genesis chain. Callbacks are
// supplied here only; no method registers or replaces them later, so the
// monitor loop reads them without a lock.
func New(cfg *config.NodeConfig, facade crypto.Facade, log *telemetry.Logger, magic peer.Magic, dialer Dialer, chain *Chain, genesis consensus.GenesisBlock, callbacks Callbacks) *Node {
	params := cfg.Params()
	mp := mempool.New(params, chain, cfg.BaseFee, func(b []byte) model.Hash { return facade.Blake2b256(b) },
		func(positives []model.Scalar) (model.Scalar, error) { return facade.ScalarSum(positives, nil) })

	genesisHash := facade.Blake2b256(genesis.Header.HashSerialize())

	return &Node{
		cfg:               cfg,
		params:            params,
		facade:            facade,
		log:               log,
		magic:             magic,
		dialer:            dialer,
		genesisHash:       genesisHash,
		genesisDifficulty: genesis.Header.TotalDifficulty,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		chain:             chain,
		mempool:           mp,
		peers:             make(map[string]*peer.Peer),
		pools:             NewCandidatePools(),
		seen:              lru.NewCache(uint(recentHashCacheSize)),
		callbacks:         callbacks,
		rootCtx:           context.Background(),
	}
}

// RegisterDNSSeeds pushes a network's fixed seed hostnames plus any
// operator-supplied custom seeds into the unused-candidate pool (§4.8).
func (n *Node) RegisterDNSSeeds(fixed []string) {
	for _, s := range fixed {
		n.pools.AddUnused(s)
	}
	for _, s := range n.cfg.CustomDNSSeed {
		n.pools.AddUnused(s)
	}
}

// Start launches the monitor loop and blocks until ctx is cancelled.
// Calling Start twice, or mutating callbacks afterward, is a programmer
// error (§9).
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		panic("node: Start called twice")
	}
	n.started = true
	n.healthySince = time.Time{}
	n.rootCtx = ctx
	n.mu.Unlock()

	defer n.pools.Stop()

	ticker := time.NewTicker(PeerEventOccurredTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.tick(ctx)
		}
	}
}

// tick runs one pass of the §4.10 monitor loop's 8 numbered steps.
func (n *Node) tick(ctx context.Context) {
	n.broadcastPendingTransactions()
	n.broadcastPendingBlock()
	n.reapDisconnectedPeers()
	n.maybeRemoveRandomPeer()
	n.acceptInboundPeers()
	n.fillOutboundPeers(ctx)
	n.maybeStartSyncing(ctx)
	n.pools.cleanupPass()
	n.reportMetrics()
}

func (n *Node) reportMetrics() {
	n.mu.Lock()
	m := n.metrics
	peerCount := len(n.peers)
	mempoolSize := n.mempool.Len()
	height := n.tipLocked().Height
	n.mu.Unlock()

	if m == nil {
		return
	}
	m.PeerCount.Set(float64(peerCount))
	m.MempoolSize.Set(float64(mempoolSize))
	m.ChainHeight.Set(float64(height))
}

// step 1
func (n *Node) broadcastPendingTransactions() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pendingTxs) == 0 {
		return
	}
	var remaining []*model.Transaction
	for _, tx := range n.pendingTxs {
		sentToAny := false
		for _, p := range n.peers {
			if p.State.Connection.Current() != peer.ConnStateConnectedAndHealthy {
				continue
			}
			if p.BaseFee > n.cfg.BaseFee {
				continue
			}
			raw, err := n.encodeTransaction(tx, p.ProtocolVersion)
			if err != nil {
				continue
			}
			if err := p.Send(peer.TypeTransaction, raw, false); err == nil {
				sentToAny = true
			}
		}
		if sentToAny {
			n.mempool.Insert(tx, n.tipLocked(), n.callbacks.OnMempoolEvent)
		} else {
			remaining = append(remaining, tx)
		}
	}
	n.pendingTxs = remaining
}

// step 2
func (n *Node) broadcastPendingBlock() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pendingBlocks) == 0 {
		return
	}
	block := n.pendingBlocks[0]
	blockDifficulty := n.chain.TotalDifficulty()
	delivered := false
	for _, p := range n.peers {
		if p.State.Connection.Current() != peer.ConnStateConnectedAndHealthy {
			continue
		}
		if p.TotalDifficulty >= blockDifficulty {
			continue
		}
		raw, err := n.encodeBlock(block, p.ProtocolVersion)
		if err != nil {
			continue
		}
		if err := p.Send(peer.TypeBlock, raw, false); err == nil {
			delivered = true
		}
	}
	if delivered {
		n.pendingBlocks = n.pendingBlocks[1:]
	}
}

// step 3
func (n *Node) reapDisconnectedPeers() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for addr, p := range n.peers {
		if p.State.Connection.Current() != peer.ConnStateDisconnected {
			continue
		}
		if n.syncingPeer == p {
			n.syncing = false
			n.syncingPeer = nil
		}
		n.pools.MarkDisconnected(addr)
		delete(n.peers, addr)
		if n.callbacks.OnPeerEvent != nil {
			n.callbacks.OnPeerEvent(addr, "disconnected")
		}
	}
}

// step 4
func (n *Node) maybeRemoveRandomPeer() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.peers) < DesiredPeers {
		return
	}
	anyHealthyAcceptsBroadcast := false
	var candidates []*peer.Peer
	for _, p := range n.peers {
		if p.State.Connection.Current() == peer.ConnStateConnectedAndHealthy && p.State.Sync.Current() == peer.SyncStateNotSyncing {
			candidates = append(candidates, p)
			anyHealthyAcceptsBroadcast = true
		}
	}
	due := time.Since(n.lastRemoveRandom) >= RemoveRandomPeerInterval
	if !due && anyHealthyAcceptsBroadcast {
		return
	}
	if len(candidates) == 0 {
		return
	}
	victim := candidates[randomTieBreak(n.rng, len(candidates))]
	victim.Close()
	n.lastRemoveRandom = time.Now()
}

// step 5 — inbound acceptance is left to an externally run listener that
// calls AdmitInbound (cmd/node opens no listener); this
// hook exists so the monitor loop has a place to log/observe backlog, per
// the teacher's convention of keeping accept() off the hot tick path.
func (n *Node) acceptInboundPeers() {}

// AdmitInbound registers an already-handshaken inbound connection. It
// refuses once the total peer count reaches DesiredPeers, or when the exact
// address is already registered; inbound peers have no cap of their own,
// and a second port on an already-connected IP is not refused.
func (n *Node) AdmitInbound(p *peer.Peer) bool {
	n.mu.Lock()
	if len(n.peers) >= DesiredPeers {
		n.mu.Unlock()
		return false
	}
	if _, exists := n.peers[p.Address]; exists {
		n.mu.Unlock()
		return false
	}
	n.peers[p.Address] = p
	ctx := n.rootCtx
	n.mu.Unlock()

	go n.runPeerLoop(ctx, p)
	return true
}

// step 6
func (n *Node) fillOutboundPeers(ctx context.Context) {
	n.mu.Lock()
	count := len(n.peers)
	n.mu.Unlock()
	if count >= DesiredPeers {
		return
	}
	need := DesiredPeers - count
	addrs := n.pools.DrainUnused(need)
	for _, addr := range addrs {
		go n.connectOutbound(ctx, addr)
	}
}

func (n *Node) connectOutbound(ctx context.Context, address string) {
	_, err, _ := n.dialGroup.Do(address, func() (interface{}, error) {
		n.dialAndRegister(ctx, address)
		return nil, nil
	})
	_ = err
}

func (n *Node) dialAndRegister(ctx context.Context, address string) {
	conn, err := n.dialer.Dial(ctx, address)
	if err != nil {
		n.pools.MarkDisconnected(address)
		return
	}
	p := peer.New(conn, n.magic, address, n.log)
	hand := &peer.Hand{
		Version:         1,
		Capabilities:    peer.Capability(n.cfg.DesiredPeerCapabilities),
		Nonce:           n.rng.Uint64(),
		TotalDifficulty: n.chain.TotalDifficulty(),
		UserAgent:       "mwc-validation-node",
		GenesisHash:     n.genesisHash,
		BaseFee:         n.cfg.BaseFee,
	}
	if err := p.Handshake(ctx, hand, n.genesisHash, n.genesisDifficulty, peer.Capability(n.cfg.DesiredPeerCapabilities)); err != nil {
		p.Close()
		n.pools.MarkDisconnected(address)
		return
	}
	if err := p.CompleteHandshake(ctx); err != nil {
		p.Close()
		n.pools.MarkDisconnected(address)
		return
	}
	n.mu.Lock()
	n.peers[address] = p
	n.mu.Unlock()
	n.pools.MarkHealthy(address, uint32(p.Capabilities))
	if n.callbacks.OnPeerEvent != nil {
		n.callbacks.OnPeerEvent(address, "connected")
	}
	go n.runPeerLoop(ctx, p)
}

// step 7
func (n *Node) maybeStartSyncing(ctx context.Context) {
	n.mu.Lock()
	if n.syncing {
		n.mu.Unlock()
		return
	}
	healthy := n.pools.HealthyCount()
	if n.healthySince.IsZero() && healthy >= 1 {
		n.healthySince = time.Now()
	}
	ready := healthy >= MinToStartSyncing || (healthy >= 1 && time.Since(n.healthySince) >= DelayBeforeSyncing)
	if !ready {
		n.mu.Unlock()
		return
	}
	best := n.pickSyncPeerLocked()
	if best == nil {
		n.mu.Unlock()
		return
	}
	n.syncing = true
	n.syncingPeer = best
	n.mu.Unlock()

	if n.callbacks.OnStartSyncing != nil {
		n.callbacks.OnStartSyncing()
	}
	go n.runSync(ctx, best)
}

func (n *Node) pickSyncPeerLocked() *peer.Peer {
	var best []*peer.Peer
	var bestDiff uint64
	for _, p := range n.peers {
		if p.State.Connection.Current() != peer.ConnStateConnectedAndHealthy {
			continue
		}
		if p.TotalDifficulty > bestDiff {
			bestDiff = p.TotalDifficulty
			best = []*peer.Peer{p}
		} else if p.TotalDifficulty == bestDiff && bestDiff > 0 {
			best = append(best, p)
		}
	}
	if len(best) == 0 {
		return nil
	}
	return best[randomTieBreak(n.rng, len(best))]
}

// tipLocked builds a mempool.Tip snapshot; callers must hold n.mu.
func (n *Node) tipLocked() mempool.Tip {
	height := n.chain.SyncedHeaderIndex
	return mempool.Tip{Height: height, HeaderVersion: n.params.HeaderVersion(height)}
}

// QueueTransaction enqueues a transaction for broadcast (step 1) once a
// healthy peer accepts it.
func (n *Node) QueueTransaction(tx *model.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingTxs = append(n.pendingTxs, tx)
}

// QueueBlock enqueues a freshly mined/relayed block for broadcast (step 2).
func (n *Node) QueueBlock(block *model.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingBlocks = append(n.pendingBlocks, block)
}

// cleanupPass runs the four candidate pools' periodic cleanup (step 8).
// jellydator/ttlcache already evicts expired entries on its own schedule
// (NewCandidatePools starts each cache's background loop); this exists as
// the named hook §4.10 calls for and is where an operator-visible sweep
// metric would be recorded.
func (p *CandidatePools) cleanupPass() {}

// encodeTransaction/encodeBlock serialize for the wire at a peer's
// negotiated protocol version (§4.2).
func (n *Node) encodeTransaction(tx *model.Transaction, version uint32) ([]byte, error) {
	var buf bytes.Buffer
	if err := serialize.EncodeTransaction(&buf, tx, serialize.ProtocolVersion(version)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encodeBlock(block *model.Block, version uint32) ([]byte, error) {
	var buf bytes.Buffer
	if err := serialize.EncodeBlockBody(&buf, block, serialize.ProtocolVersion(version)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
