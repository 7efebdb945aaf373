package node

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/mwc-validation-node/go-node/accum"
	"github.com/mwc-validation-node/go-node/archive"
	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/mmr"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/peer"
	"github.com/mwc-validation-node/go-node/pow"
	"github.com/mwc-validation-node/go-node/serialize"
	"github.com/mwc-validation-node/go-node/validate"
)

// §4.10's sync-phase timeouts and retry caps.
const (
	RequestedHeadersTimeout       = 30 * time.Second
	RequestedBlockTimeout         = 30 * time.Second
	GetTxHashSetAttachmentTimeout = 60 * time.Minute
	LocatorCap                    = 20
)

// runSync drives the chosen peer through phase A, then phase B when the new
// tip is more than CutThroughHorizon ahead, then phase C, finally releasing
// the syncing flag whatever the outcome. An error in any phase bans the
// peer with BanReasonSyncStuck.
func (n *Node) runSync(ctx context.Context, p *peer.Peer) {
	defer func() {
		n.mu.Lock()
		n.syncing = false
		n.syncingPeer = nil
		n.mu.Unlock()
	}()

	newTip, err := n.syncHeaders(ctx, p)
	if err != nil {
		n.banPeer(p, peer.BanReasonSyncStuck, err)
		return
	}

	if newTip.Height > n.chain.SyncedHeaderIndex && newTip.Height-n.chain.SyncedHeaderIndex > n.params.CutThroughHorizon {
		if err := n.syncTxHashSet(ctx, p, newTip); err != nil {
			n.banPeer(p, peer.BanReasonSyncStuck, err)
			return
		}
	}

	if err := n.syncBlocks(ctx, p, newTip.Height); err != nil {
		n.banPeer(p, peer.BanReasonSyncStuck, err)
		return
	}

	if n.callbacks.OnSynced != nil {
		n.callbacks.OnSynced(n.chain.SyncedHeaderIndex)
	}
}

func (n *Node) banPeer(p *peer.Peer, code uint8, cause error) {
	n.log.Warnf("banning peer %s: %v", p.Address, cause)
	var buf bytes.Buffer
	_ = peer.EncodeBanReason(&buf, &peer.BanReason{Code: code, Reason: cause.Error()})
	_ = p.Send(peer.TypeBanReason, buf.Bytes(), true)
	p.Close()
	n.pools.Ban(p.Address)
}

// locator builds the doubling-backward checkpoint list of §4.10 phase A.
func (n *Node) locator() [][32]byte {
	n.chain.mu.RLock()
	defer n.chain.mu.RUnlock()
	var out [][32]byte
	height := n.chain.SyncedHeaderIndex
	step := uint64(1)
	for len(out) < LocatorCap {
		h, ok := n.chain.headerByHeight[height]
		if ok {
			out = append(out, n.facade.Blake2b256(h.HashSerialize()))
		}
		if height == 0 {
			break
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
		step *= 2
	}
	return out
}

type tipInfo struct {
	Height uint64
}

// syncHeaders runs phase A: repeated GetHeaders/Headers rounds until the
// peer reports fewer than a full page. Each header goes straight into the
// chain's own header MMR (n.chain.Headers); no separate per-peer header MMR
// is kept.
func (n *Node) syncHeaders(ctx context.Context, p *peer.Peer) (tipInfo, error) {
	reorgs := 0
	var lastHeight uint64

	for {
		if err := peer.Fire(ctx, p.State.Sync, "request_headers"); err != nil {
			return tipInfo{}, err
		}
		req := &peer.GetHeaders{Locator: n.locator()}
		var buf bytes.Buffer
		if err := peer.EncodeGetHeaders(&buf, req); err != nil {
			return tipInfo{}, err
		}
		if err := p.Send(peer.TypeGetHeaders, buf.Bytes(), true); err != nil {
			return tipInfo{}, err
		}
		if err := peer.Fire(ctx, p.State.Sync, "headers_requested"); err != nil {
			return tipInfo{}, err
		}

		hdr, payload, err := n.readWithTimeout(p, RequestedHeadersTimeout)
		if err != nil {
			return tipInfo{}, err
		}
		if hdr.Type != peer.TypeHeaders {
			return tipInfo{}, errors.NewProtocolViolation("expected Headers, got type %d", hdr.Type)
		}

		headers, err := decodeHeadersPayload(payload)
		if err != nil {
			return tipInfo{}, err
		}

		for i := range headers {
			if err := n.appendOrReorgHeader(headers[i]); err != nil {
				reorgs++
				if reorgs > MaxReorgsDuringHeaderSync {
					return tipInfo{}, errors.NewProtocolViolation("exceeded max reorgs during header sync: %v", err)
				}
				continue
			}
			lastHeight = headers[i].Height
		}

		if len(headers) < 512 {
			break
		}
	}
	return tipInfo{Height: lastHeight}, nil
}

func decodeHeadersPayload(payload []byte) ([]model.Header, error) {
	r := bytes.NewReader(payload)
	var out []model.Header
	for r.Len() > 0 {
		h, err := serialize.DecodeHeader(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, nil
}

// appendOrReorgHeader appends a header that extends the known chain, or
// rewinds the header MMR to the fork point first if it forks off (§4.6's
// "reorg is driven by the peer state machine" note).
func (n *Node) appendOrReorgHeader(h model.Header) error {
	n.chain.mu.Lock()
	defer n.chain.mu.Unlock()

	if _, ok := n.chain.previousHeader(h.Height); !ok && h.Height > 0 {
		return errors.NewInvalidHeader("header at height %d has no known parent", h.Height)
	}
	if existing, ok := n.chain.headerByHeight[h.Height]; ok {
		existingHash := n.facade.Blake2b256(existing.HashSerialize())
		newHash := n.facade.Blake2b256(h.HashSerialize())
		if existingHash == newHash {
			return nil
		}
		// Fork: rewind the header MMR to this height and replace.
		if err := n.chain.Headers.Rewind(mmr.NodeCount(h.Height)); err != nil {
			return errors.NewStateCorrupt("header mmr rewind during reorg failed: %v", err)
		}
	}
	if err := pow.VerifyHeader(n.facade, &h, n.params.C29EdgeBits, n.params.C31EdgeBits, n.params.MaximumEdgeBits); err != nil {
		return err
	}
	if _, err := n.chain.Headers.Append(accum.HeaderLeaf{Header: h}); err != nil {
		return err
	}
	n.chain.headerByHeight[h.Height] = h
	return nil
}

// syncTxHashSet runs phase B: request and install a transaction-hash-set
// snapshot taken STATE_SYNC_HEIGHT_THRESHOLD blocks behind the peer's tip.
func (n *Node) syncTxHashSet(ctx context.Context, p *peer.Peer, tip tipInfo) error {
	if err := peer.Fire(ctx, p.State.Sync, "request_tx_hash_set"); err != nil {
		return err
	}
	snapshotHeight := tip.Height - n.params.StateSyncHeightThreshold

	header, ok := n.chain.headerByHeight[snapshotHeight]
	if !ok {
		return errors.NewInvalidBlock("no known header at snapshot height %d", snapshotHeight)
	}
	hash := n.facade.Blake2b256(header.HashSerialize())

	var reqBuf bytes.Buffer
	if err := peer.EncodeTxHashSetRequest(&reqBuf, &peer.TxHashSetRequest{Hash: hash, Height: snapshotHeight}); err != nil {
		return err
	}
	if err := p.Send(peer.TypeTxHashSetRequest, reqBuf.Bytes(), true); err != nil {
		return err
	}
	if err := peer.Fire(ctx, p.State.Sync, "tx_hash_set_requested"); err != nil {
		return err
	}

	hdr, payload, err := n.readWithTimeout(p, GetTxHashSetAttachmentTimeout)
	if err != nil {
		return err
	}
	if hdr.Type != peer.TypeTxHashSetArchive {
		return errors.NewProtocolViolation("expected TxHashSetArchive, got type %d", hdr.Type)
	}
	archiveMsg, err := peer.DecodeTxHashSetArchive(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if archiveMsg.Hash != hash || archiveMsg.Height != snapshotHeight {
		return errors.NewProtocolViolation("tx hash set archive does not match the requested snapshot")
	}
	attachment, err := p.ReadAttachment(archiveMsg.AttachmentLength)
	if err != nil {
		return err
	}

	if err := peer.Fire(ctx, p.State.Sync, "process_tx_hash_set"); err != nil {
		return err
	}

	reader, err := archive.NewZipReader(bytes.NewReader(attachment), int64(len(attachment)))
	if err != nil {
		return errors.NewInvalidBlock("decode tx hash set attachment: %v", err)
	}
	if err := n.InstallTxHashSet(reader, header); err != nil {
		return err
	}

	return peer.Fire(ctx, p.State.Sync, "tx_hash_set_done")
}

// InstallTxHashSet rebuilds the three body MMRs from an archive snapshot,
// checks the snapshot header's MMR sizes and roots, the rangeproofs and the
// kernel sum against it (§4.10 phase B), and replaces the chain's current
// MMRs under lock on success. Earlier headers' kernel roots are not checked.
func (n *Node) InstallTxHashSet(r archive.Reader, atHeader model.Header) error {
	hasher := accum.HasherFromFacade(n.facade)

	kernels, err := rebuildMMR(r, archive.EntryKernelHashes, archive.EntryKernelLeaves, hasher, accum.NewKernelSum(n.facade), decodeKernelLeaf)
	if err != nil {
		return errors.NewInvalidBlock("rebuild kernel mmr: %v", err)
	}
	outputs, err := rebuildMMR(r, archive.EntryOutputHashes, archive.EntryOutputLeaves, hasher, accum.NewOutputSum(n.facade), decodeOutputLeaf)
	if err != nil {
		return errors.NewInvalidBlock("rebuild output mmr: %v", err)
	}
	rangeproofs, err := rebuildMMR(r, archive.EntryRangeproofHashes, archive.EntryRangeproofLeaves, hasher, mmr.TrivialSum{}, decodeRangeproofLeaf)
	if err != nil {
		return errors.NewInvalidBlock("rebuild rangeproof mmr: %v", err)
	}

	if kernels.NumberOfNodes() != atHeader.KernelMMRSize {
		return errors.NewInvalidBlock("kernel mmr size mismatch against snapshot header")
	}
	root, err := kernels.Root()
	if err != nil || root != atHeader.KernelRoot {
		return errors.NewInvalidBlock("kernel mmr root mismatch against snapshot header")
	}
	if outputs.NumberOfNodes() != atHeader.OutputMMRSize || rangeproofs.NumberOfNodes() != atHeader.OutputMMRSize {
		return errors.NewInvalidBlock("output/rangeproof mmr size mismatch against snapshot header")
	}
	outRoot, err := outputs.Root()
	if err != nil || outRoot != atHeader.OutputRoot {
		return errors.NewInvalidBlock("output mmr root mismatch against snapshot header")
	}
	proofRoot, err := rangeproofs.Root()
	if err != nil || proofRoot != atHeader.RangeproofRoot {
		return errors.NewInvalidBlock("rangeproof mmr root mismatch against snapshot header")
	}

	if err := n.verifySnapshotRangeproofs(outputs, rangeproofs); err != nil {
		return err
	}
	if err := n.verifySnapshotKernelSum(outputs, kernels); err != nil {
		return err
	}

	n.chain.mu.Lock()
	n.chain.Kernels = kernels
	n.chain.Outputs = outputs
	n.chain.Rangeproofs = rangeproofs
	n.chain.SyncedHeaderIndex = atHeader.Height
	n.chain.mu.Unlock()

	n.mempool.Cleanup(n.tipLocked())
	if n.callbacks.OnTxHashSet != nil {
		n.callbacks.OnTxHashSet(atHeader.Height)
	}
	return nil
}

func (n *Node) verifySnapshotRangeproofs(outputs, rangeproofs *mmr.MMR) error {
	for i := uint64(0); i < outputs.NumberOfLeaves(); i++ {
		outLeaf, ok := outputs.Leaf(i)
		if !ok {
			continue
		}
		proofLeaf, ok := rangeproofs.Leaf(i)
		if !ok {
			continue
		}
		out := outLeaf.(accum.OutputLeaf).Output
		proof := proofLeaf.(accum.RangeproofLeaf).Rangeproof
		if err := validate.VerifyRangeproofs(n.facade, []model.Output{out}, []model.Rangeproof{proof}); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) verifySnapshotKernelSum(outputs, kernels *mmr.MMR) error {
	var outs []model.Output
	for i := uint64(0); i < outputs.NumberOfLeaves(); i++ {
		if l, ok := outputs.Leaf(i); ok {
			outs = append(outs, l.(accum.OutputLeaf).Output)
		}
	}
	var kerns []model.Kernel
	var feeTotal uint64
	for i := uint64(0); i < kernels.NumberOfLeaves(); i++ {
		if l, ok := kernels.Leaf(i); ok {
			k := l.(accum.KernelLeaf).Kernel
			kerns = append(kerns, k)
			feeTotal += k.Fee
		}
	}
	return validate.VerifyKernelSums(n.facade, validate.KernelSumInputs{
		Outputs:           outs,
		FeesOrRewardTotal: feeTotal,
		Kernels:           kerns,
	})
}

// syncBlocks runs phase C: request and apply blocks one at a time from
// synced_header_index+1 through peerTipHeight.
func (n *Node) syncBlocks(ctx context.Context, p *peer.Peer, peerTipHeight uint64) error {
	reorgs := 0
	for height := n.chain.SyncedHeaderIndex + 1; height <= peerTipHeight; height++ {
		if err := peer.Fire(ctx, p.State.Sync, "request_block"); err != nil {
			return err
		}
		header, ok := n.chain.headerByHeight[height]
		if !ok {
			return errors.NewInvalidBlock("no known header at height %d", height)
		}
		hash := n.facade.Blake2b256(header.HashSerialize())

		if err := p.Send(peer.TypeGetBlock, hash[:], true); err != nil {
			return err
		}
		if err := peer.Fire(ctx, p.State.Sync, "block_requested"); err != nil {
			return err
		}

		hdr, payload, err := n.readWithTimeout(p, RequestedBlockTimeout)
		if err != nil {
			reorgs++
			if reorgs > MaxReorgsDuringBlockSync {
				return errors.NewProtocolViolation("exceeded max reorgs during block sync, falling back to header sync: %v", err)
			}
			height--
			continue
		}
		if hdr.Type != peer.TypeBlock {
			return errors.NewProtocolViolation("expected Block, got type %d", hdr.Type)
		}

		if err := peer.Fire(ctx, p.State.Sync, "process_block"); err != nil {
			return err
		}
		body, err := serialize.DecodeBlockBody(bytes.NewReader(payload), serialize.ProtocolVersion(p.ProtocolVersion))
		if err != nil {
			return err
		}
		feeOrReward := n.feesOrReward(header, body)
		n.chain.mu.RLock()
		prevHeader, ok := n.chain.previousHeader(header.Height)
		n.chain.mu.RUnlock()
		if !ok {
			return errors.NewInvalidBlock("no known previous header for height %d", header.Height)
		}
		kernelOffsetDelta, err := n.facade.ScalarSum([]model.Scalar{header.TotalKernelOffset}, []model.Scalar{prevHeader.TotalKernelOffset})
		if err != nil {
			return err
		}
		if err := n.chain.ApplyBlock(header, body, feeOrReward, kernelOffsetDelta); err != nil {
			return err
		}
		n.rememberBlock(hash, body)
		n.mempool.Cleanup(n.tipLocked())
		if n.callbacks.OnBlock != nil {
			n.callbacks.OnBlock(height, body)
		}
		if err := peer.Fire(ctx, p.State.Sync, "block_done"); err != nil {
			return err
		}
	}
	return nil
}

// feesOrReward computes the coinbase-side balance-check input: for a block
// containing a coinbase kernel this is the subsidy, otherwise the sum of
// kernel fees (§4.4/§4.6).
func (n *Node) feesOrReward(header model.Header, body *model.Block) uint64 {
	for i := range body.Kernels {
		if body.Kernels[i].IsCoinbase() {
			return n.params.Reward(header.Height)
		}
	}
	var total uint64
	for i := range body.Kernels {
		total += body.Kernels[i].Fee
	}
	return total
}

// readWithTimeout polls ReadFrame until a frame arrives or the deadline
// passes (§4.9's "socket reads are non-blocking and poll-driven").
func (n *Node) readWithTimeout(p *peer.Peer, timeout time.Duration) (*peer.FrameHeader, []byte, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 100 * time.Millisecond
	for {
		hdr, payload, err := p.ReadFrame()
		if err == nil {
			return hdr, payload, nil
		}
		if time.Now().After(deadline) {
			return nil, nil, errors.NewIO("timed out waiting for response: %v", err)
		}
		time.Sleep(pollInterval)
	}
}

func decodeKernelLeaf(b []byte) (mmr.Leaf, error) {
	k, err := serialize.DecodeKernel(bytes.NewReader(b), serialize.ProtocolV4Plus)
	if err != nil {
		return nil, err
	}
	return accum.KernelLeaf{Kernel: *k}, nil
}

func decodeOutputLeaf(b []byte) (mmr.Leaf, error) {
	o, err := serialize.DecodeOutput(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return accum.OutputLeaf{Output: *o}, nil
}

func decodeRangeproofLeaf(b []byte) (mmr.Leaf, error) {
	p, err := serialize.DecodeRangeproof(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return accum.RangeproofLeaf{Rangeproof: *p}, nil
}

// rebuildMMR reads parallel hash/leaf streams from an archive and feeds
// them to mmr.BuildFromArchive. The hashes entry is a u64 node count
// followed by that many 32-byte hashes in position order; the leaves entry
// is a u64 leaf count followed by (u64 leaf index, u32 length, payload)
// triples. persist.go lays out the same MMR fields differently on disk (u64
// payload lengths, and sparse position/hash pairs).
func rebuildMMR(r archive.Reader, hashesEntry, leavesEntry string, hasher mmr.Hasher, sum mmr.Sum, decode func([]byte) (mmr.Leaf, error)) (*mmr.MMR, error) {
	hashesFile, err := r.Open(hashesEntry)
	if err != nil {
		return nil, err
	}
	defer hashesFile.Close()

	size, err := readU64(hashesFile)
	if err != nil {
		return nil, err
	}
	hashes := make([]model.Hash, size)
	for i := range hashes {
		if _, err := io.ReadFull(hashesFile, hashes[i][:]); err != nil {
			return nil, err
		}
	}

	leavesFile, err := r.Open(leavesEntry)
	if err != nil {
		return nil, err
	}
	defer leavesFile.Close()

	leafCount, err := readU64(leavesFile)
	if err != nil {
		return nil, err
	}
	leaves := make([]mmr.ArchiveLeaf, leafCount)
	for i := range leaves {
		idx, err := readU64(leavesFile)
		if err != nil {
			return nil, err
		}
		length, err := readU32(leavesFile)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(leavesFile, buf); err != nil {
			return nil, err
		}
		leaf, err := decode(buf)
		if err != nil {
			return nil, err
		}
		leaves[i] = mmr.ArchiveLeaf{Index: idx, Leaf: leaf}
	}

	return mmr.BuildFromArchive(hasher, sum, size, hashes, leaves, nil)
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
