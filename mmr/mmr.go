package mmr

import (
	"encoding/binary"
	"sort"

	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
)

// Hasher computes a node's digest from its canonical byte preimage; the
// node injects crypto.Blake2b256 here so this package has no dependency on
// the crypto facade (§4.1 consumers stay at the edges).
type Hasher func([]byte) model.Hash

// MMR is the generic append-only, rewindable, prunable accumulator of
// §4.3. One instance exists per leaf type (Header, Kernel, Output,
// Rangeproof); the node package wires the four together.
type MMR struct {
	Hasher Hasher

	numberOfLeaves uint64
	numberOfNodes  uint64

	unprunedLeaves map[uint64]Leaf   // leaf index -> leaf
	unprunedHashes map[uint64]model.Hash // node position -> hash
	lookup         map[string]map[uint64]struct{}
	lookupUnique   bool

	sum Sum

	pruneHistory map[uint64]map[uint64]struct{} // leaves-at-prune-time -> leaf indices
	pruneList    map[uint64]Leaf                // leaf index -> leaf

	minimumSize uint64
}

// New builds an empty MMR. sum is the zero-value aggregate (e.g.
// TrivialSum{} for headers, a Pedersen-commitment accumulator for
// outputs/kernels).
func New(hasher Hasher, sum Sum) *MMR {
	return &MMR{
		Hasher:         hasher,
		unprunedLeaves: make(map[uint64]Leaf),
		unprunedHashes: make(map[uint64]model.Hash),
		lookup:         make(map[string]map[uint64]struct{}),
		sum:            sum,
		pruneHistory:   make(map[uint64]map[uint64]struct{}),
		pruneList:      make(map[uint64]Leaf),
	}
}

func (m *MMR) NumberOfLeaves() uint64 { return m.numberOfLeaves }
func (m *MMR) NumberOfNodes() uint64  { return m.numberOfNodes }
func (m *MMR) MinimumSize() uint64    { return m.minimumSize }
func (m *MMR) Sum() Sum               { return m.sum }

// UnprunedHashes returns a copy of the node-position -> hash map for every
// position whose hash is still retained (live internal nodes and leaves,
// plus pruned-but-not-yet-compacted internal hashes). Used by the persist
// package to write the state file's hash table (§6).
func (m *MMR) UnprunedHashes() map[uint64]model.Hash {
	out := make(map[uint64]model.Hash, len(m.unprunedHashes))
	for k, v := range m.unprunedHashes {
		out[k] = v
	}
	return out
}

// PrunedLeafIndices returns every leaf index still held in prune_list
// (pruned leaves not yet dropped by SetMinimumSize).
func (m *MMR) PrunedLeafIndices() []uint64 {
	out := make([]uint64, 0, len(m.pruneList))
	for idx := range m.pruneList {
		out = append(out, idx)
	}
	return out
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func (m *MMR) leafHash(pos uint64, leaf Leaf) model.Hash {
	buf := append(be64(pos), leaf.Serialize()...)
	return m.Hasher(buf)
}

func (m *MMR) internalHash(pos uint64, left, right model.Hash) model.Hash {
	buf := append(be64(pos), left[:]...)
	buf = append(buf, right[:]...)
	return m.Hasher(buf)
}

// Append adds a new leaf, incrementally extending internal-node hashes
// O(log n) and updating the running sum and lookup index (§4.3).
func (m *MMR) Append(leaf Leaf) (uint64, error) {
	leafIndex := m.numberOfLeaves
	pos := m.numberOfNodes

	h := m.leafHash(pos, leaf)
	m.unprunedHashes[pos] = h
	m.unprunedLeaves[leafIndex] = leaf
	m.numberOfNodes++
	m.numberOfLeaves++

	i := pos
	for Height(i) < Height(i+1) {
		leftHash, ok := m.unprunedHashes[LeftSibling(i)]
		if !ok {
			return 0, errors.NewStateCorrupt("mmr append: missing left sibling hash at %d", LeftSibling(i))
		}
		rightHash := m.unprunedHashes[i]
		parentPos := m.numberOfNodes
		m.unprunedHashes[parentPos] = m.internalHash(parentPos, leftHash, rightHash)
		m.numberOfNodes++
		i = parentPos
	}

	m.sum.Add(leaf, Appended)
	if key, ok := leaf.LookupKey(); ok {
		m.addLookup(key, leafIndex)
	}
	return leafIndex, nil
}

func (m *MMR) addLookup(key []byte, leafIndex uint64) {
	k := string(key)
	set, ok := m.lookup[k]
	if !ok {
		set = make(map[uint64]struct{})
		m.lookup[k] = set
	}
	set[leafIndex] = struct{}{}
}

func (m *MMR) removeLookup(key []byte, leafIndex uint64) {
	k := string(key)
	set, ok := m.lookup[k]
	if !ok {
		return
	}
	delete(set, leafIndex)
	if len(set) == 0 {
		delete(m.lookup, k)
	}
}

// Lookup returns the live leaf indices registered under key, in ascending
// order.
func (m *MMR) Lookup(key []byte) []uint64 {
	set, ok := m.lookup[string(key)]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LookupOne returns the single live leaf index registered under key. It is
// an error to call this for a leaf type that allows duplicate lookup
// values and has more than one live match.
func (m *MMR) LookupOne(key []byte) (uint64, bool, error) {
	indices := m.Lookup(key)
	switch len(indices) {
	case 0:
		return 0, false, nil
	case 1:
		return indices[0], true, nil
	default:
		return 0, false, errors.NewStateCorrupt("lookup key has %d live matches, expected a unique key", len(indices))
	}
}

// Leaf returns the live leaf at index, and false if it is absent or
// pruned.
func (m *MMR) Leaf(index uint64) (Leaf, bool) {
	l, ok := m.unprunedLeaves[index]
	return l, ok
}

// RootAtSize computes the deterministic root at any past valid size s ≤
// NumberOfNodes(), folding peaks right to left (§4.3). Returns the
// all-zero hash for s == 0.
func (m *MMR) RootAtSize(s uint64) (model.Hash, error) {
	if s == 0 {
		return model.Hash{}, nil
	}
	peaks := PeakPositions(s)
	if peaks == nil {
		return model.Hash{}, errors.NewStateCorrupt("invalid mmr size %d", s)
	}
	hashes := make([]model.Hash, len(peaks))
	for i, p := range peaks {
		h, ok := m.unprunedHashes[p]
		if !ok {
			return model.Hash{}, errors.NewStateCorrupt("missing peak hash at position %d for size %d", p, s)
		}
		hashes[i] = h
	}
	root := hashes[len(hashes)-1]
	sizeBytes := be64(s)
	for i := len(hashes) - 2; i >= 0; i-- {
		buf := append(append([]byte{}, sizeBytes...), hashes[i][:]...)
		buf = append(buf, root[:]...)
		root = m.Hasher(buf)
	}
	return root, nil
}

// Root computes the root at the current size.
func (m *MMR) Root() (model.Hash, error) { return m.RootAtSize(m.numberOfNodes) }

// Prune removes a live leaf. A soft prune (permanent == false) only drops
// the leaf and its sum contribution, recording it in prune_history so a
// later Rewind back across this point can restore it. A permanent prune
// additionally walks up from the leaf's position dropping ancestor node
// hashes whose sibling subtree is itself already fully pruned, per §4.3.
func (m *MMR) Prune(leafIndex uint64, permanent bool) error {
	leaf, ok := m.unprunedLeaves[leafIndex]
	if !ok {
		return errors.NewStateCorrupt("prune: leaf %d is not live", leafIndex)
	}

	if key, ok := leaf.LookupKey(); ok {
		m.removeLookup(key, leafIndex)
	}
	m.sum.Subtract(leaf, Pruned)
	delete(m.unprunedLeaves, leafIndex)

	m.pruneList[leafIndex] = leaf
	set, ok := m.pruneHistory[m.numberOfLeaves]
	if !ok {
		set = make(map[uint64]struct{})
		m.pruneHistory[m.numberOfLeaves] = set
	}
	set[leafIndex] = struct{}{}

	if !permanent {
		return nil
	}

	pos := LeafPosition(leafIndex)
	delete(m.unprunedHashes, pos)

	i := pos
	for {
		parent := Parent(i)
		if parent >= m.numberOfNodes {
			break
		}
		var sibling uint64
		if LeftChild(parent) == i {
			sibling = RightChild(parent)
		} else {
			sibling = LeftChild(parent)
		}
		if _, live := m.unprunedHashes[sibling]; live {
			break
		}
		delete(m.unprunedHashes, parent)
		i = parent
	}
	return nil
}

// Rewind truncates the MMR back to size (a valid node count no smaller
// than minimum_size), restoring any leaves pruned at or after that size
// from prune_history and dropping every node hash at or beyond it.
func (m *MMR) Rewind(size uint64) error {
	if size < m.minimumSize {
		return errors.NewStateCorrupt("rewind target %d is below minimum size %d", size, m.minimumSize)
	}
	if !ValidSize(size) {
		return errors.NewStateCorrupt("rewind target %d is not a valid mmr size", size)
	}
	if size > m.numberOfNodes {
		return errors.NewStateCorrupt("rewind target %d exceeds current size %d", size, m.numberOfNodes)
	}

	targetLeaves := NumberOfLeavesAtSize(size)

	for leavesAt, indices := range m.pruneHistory {
		if leavesAt < targetLeaves {
			continue
		}
		for leafIndex := range indices {
			leaf, ok := m.pruneList[leafIndex]
			if !ok {
				continue
			}
			if LeafPosition(leafIndex) >= size {
				continue
			}
			m.unprunedLeaves[leafIndex] = leaf
			m.sum.Add(leaf, Restored)
			if key, ok := leaf.LookupKey(); ok {
				m.addLookup(key, leafIndex)
			}
			delete(m.pruneList, leafIndex)
		}
		delete(m.pruneHistory, leavesAt)
	}

	for leafIndex := range m.unprunedLeaves {
		if LeafPosition(leafIndex) >= size {
			leaf := m.unprunedLeaves[leafIndex]
			if key, ok := leaf.LookupKey(); ok {
				m.removeLookup(key, leafIndex)
			}
			m.sum.Subtract(leaf, Rewinded)
			delete(m.unprunedLeaves, leafIndex)
		}
	}
	for pos := range m.unprunedHashes {
		if pos >= size {
			delete(m.unprunedHashes, pos)
		}
	}

	m.numberOfNodes = size
	m.numberOfLeaves = targetLeaves
	return nil
}

// SetMinimumSize advances the rewind horizon monotonically. Every
// prune_history entry now unreachable by any future Rewind is compacted:
// its leaves are dropped from prune_list for good and the entry itself is
// forgotten, freeing the memory a soft prune deliberately kept around.
func (m *MMR) SetMinimumSize(size uint64) error {
	if size < m.minimumSize {
		return errors.NewStateCorrupt("minimum size must be monotonic: %d < %d", size, m.minimumSize)
	}
	targetLeaves := NumberOfLeavesAtSize(size)
	for leavesAt, indices := range m.pruneHistory {
		if leavesAt >= targetLeaves {
			continue
		}
		for leafIndex := range indices {
			delete(m.pruneList, leafIndex)
		}
		delete(m.pruneHistory, leavesAt)
	}
	m.minimumSize = size
	return nil
}

// ArchiveLeaf pairs a leaf with its index for BuildFromArchive's leaf
// stream.
type ArchiveLeaf struct {
	Index uint64
	Leaf  Leaf
}

// BuildFromArchive reconstructs an MMR from a tx-hash-set style archive: a
// dense stream of every node hash in position order, the subset of
// positions that are live leaves (with their leaf data), and the set of
// leaf indices already permanently pruned. This is the bulk-load path used
// when syncing via state download instead of block-by-block replay (§4.3,
// §6).
func BuildFromArchive(hasher Hasher, sum Sum, size uint64, hashes []model.Hash, leaves []ArchiveLeaf, prunedLeafIndices []uint64) (*MMR, error) {
	if !ValidSize(size) {
		return nil, errors.NewStateCorrupt("archive size %d is not a valid mmr size", size)
	}
	if uint64(len(hashes)) != size {
		return nil, errors.NewStateCorrupt("archive supplies %d hashes, expected %d", len(hashes), size)
	}

	m := New(hasher, sum)
	m.numberOfNodes = size
	m.numberOfLeaves = NumberOfLeavesAtSize(size)
	for pos, h := range hashes {
		m.unprunedHashes[uint64(pos)] = h
	}
	for _, al := range leaves {
		m.unprunedLeaves[al.Index] = al.Leaf
		m.sum.Add(al.Leaf, Appended)
		if key, ok := al.Leaf.LookupKey(); ok {
			m.addLookup(key, al.Index)
		}
	}
	for _, idx := range prunedLeafIndices {
		if _, stillLive := m.unprunedLeaves[idx]; stillLive {
			return nil, errors.NewStateCorrupt("leaf %d listed as both live and pruned in archive", idx)
		}
		m.pruneHistory[m.numberOfLeaves] = map[uint64]struct{}{idx: {}}
	}
	return m, nil
}
