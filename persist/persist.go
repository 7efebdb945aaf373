// Package persist implements the flat-stream node-state serialisation of
// §6: the four MMRs, the synced header index, and the healthy-peer map.
// Nothing here is a SQL store or key/value database — a deliberately
// simple append-once-per-save stream format, matching spec.md's call for a
// "thin serialize/deserialise of the in-memory state" rather than a real
// storage engine.
package persist

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/mwc-validation-node/go-node/accum"
	"github.com/mwc-validation-node/go-node/mmr"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/serialize"
)

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU64(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU64(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// LeafCodec encodes/decodes one MMR's leaf type to/from its on-disk byte
// form. The four accum leaf wrappers each get one, built from the
// serialize package's wire codecs so the on-disk layout matches the wire
// layout rather than inventing a third encoding.
type LeafCodec struct {
	Encode func(mmr.Leaf) ([]byte, error)
	Decode func([]byte) (mmr.Leaf, error)
}

func HeaderCodec() LeafCodec {
	return LeafCodec{
		Encode: func(l mmr.Leaf) ([]byte, error) {
			h := l.(accum.HeaderLeaf).Header
			var buf bytes.Buffer
			if err := serialize.EncodeHeader(&buf, &h); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		Decode: func(b []byte) (mmr.Leaf, error) {
			h, err := serialize.DecodeHeader(bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			return accum.HeaderLeaf{Header: *h}, nil
		},
	}
}

func KernelCodec(pv serialize.ProtocolVersion) LeafCodec {
	return LeafCodec{
		Encode: func(l mmr.Leaf) ([]byte, error) {
			k := l.(accum.KernelLeaf).Kernel
			var buf bytes.Buffer
			if err := serialize.EncodeKernel(&buf, &k, pv); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		Decode: func(b []byte) (mmr.Leaf, error) {
			k, err := serialize.DecodeKernel(bytes.NewReader(b), pv)
			if err != nil {
				return nil, err
			}
			return accum.KernelLeaf{Kernel: *k}, nil
		},
	}
}

func OutputCodec() LeafCodec {
	return LeafCodec{
		Encode: func(l mmr.Leaf) ([]byte, error) {
			o := l.(accum.OutputLeaf).Output
			var buf bytes.Buffer
			if err := serialize.EncodeOutput(&buf, &o); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		Decode: func(b []byte) (mmr.Leaf, error) {
			o, err := serialize.DecodeOutput(bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			return accum.OutputLeaf{Output: *o}, nil
		},
	}
}

func RangeproofCodec() LeafCodec {
	return LeafCodec{
		Encode: func(l mmr.Leaf) ([]byte, error) {
			p := l.(accum.RangeproofLeaf).Rangeproof
			var buf bytes.Buffer
			if err := serialize.EncodeRangeproof(&buf, &p); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		Decode: func(b []byte) (mmr.Leaf, error) {
			p, err := serialize.DecodeRangeproof(bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			return accum.RangeproofLeaf{Rangeproof: *p}, nil
		},
	}
}

// WriteMMR writes one MMR's state in this order: number_of_leaves,
// number_of_nodes and minimum_size; the live leaf count followed by
// (leaf index, length-prefixed bytes) pairs; the unpruned hash count
// followed by (position, hash) pairs. The lookup table is rebuilt from the
// leaves by mmr.BuildFromArchive at load time. prune_history, prune_list
// and the running sum are not written, so a reloaded MMR keeps no record
// of earlier prunes.
func WriteMMR(w io.Writer, m *mmr.MMR, codec LeafCodec) error {
	if err := writeU64(w, m.NumberOfLeaves()); err != nil {
		return err
	}
	if err := writeU64(w, m.NumberOfNodes()); err != nil {
		return err
	}
	if err := writeU64(w, m.MinimumSize()); err != nil {
		return err
	}

	var leafIndices []uint64
	for i := uint64(0); i < m.NumberOfLeaves(); i++ {
		if _, ok := m.Leaf(i); ok {
			leafIndices = append(leafIndices, i)
		}
	}
	if err := writeU64(w, uint64(len(leafIndices))); err != nil {
		return err
	}
	for _, idx := range leafIndices {
		leaf, _ := m.Leaf(idx)
		raw, err := codec.Encode(leaf)
		if err != nil {
			return err
		}
		if err := writeU64(w, idx); err != nil {
			return err
		}
		if err := writeBytes(w, raw); err != nil {
			return err
		}
	}

	hashes := m.UnprunedHashes()
	if err := writeU64(w, uint64(len(hashes))); err != nil {
		return err
	}
	for pos, h := range hashes {
		if err := writeU64(w, pos); err != nil {
			return err
		}
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}

	return nil
}

// ReadMMR reconstructs an MMR from the stream WriteMMR produced.
func ReadMMR(r io.Reader, hasher mmr.Hasher, sum mmr.Sum, codec LeafCodec) (*mmr.MMR, error) {
	_, err := readU64(r) // number_of_leaves, recomputed by BuildFromArchive from size
	if err != nil {
		return nil, err
	}
	numberOfNodes, err := readU64(r)
	if err != nil {
		return nil, err
	}
	minimumSize, err := readU64(r)
	if err != nil {
		return nil, err
	}

	leafCount, err := readU64(r)
	if err != nil {
		return nil, err
	}
	leaves := make([]mmr.ArchiveLeaf, leafCount)
	for i := range leaves {
		idx, err := readU64(r)
		if err != nil {
			return nil, err
		}
		raw, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		leaf, err := codec.Decode(raw)
		if err != nil {
			return nil, err
		}
		leaves[i] = mmr.ArchiveLeaf{Index: idx, Leaf: leaf}
	}

	hashCount, err := readU64(r)
	if err != nil {
		return nil, err
	}
	hashes := make([]model.Hash, numberOfNodes)
	for i := uint64(0); i < hashCount; i++ {
		pos, err := readU64(r)
		if err != nil {
			return nil, err
		}
		var h model.Hash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, err
		}
		if pos < numberOfNodes {
			hashes[pos] = h
		}
	}

	m, err := mmr.BuildFromArchive(hasher, sum, numberOfNodes, hashes, leaves, nil)
	if err != nil {
		return nil, err
	}
	if err := m.SetMinimumSize(minimumSize); err != nil {
		return nil, err
	}
	return m, nil
}

// HealthyPeer is the on-disk form of a node.HealthyPeerInfo entry.
type HealthyPeer struct {
	Address      string
	LastSeen     time.Time
	Capabilities uint32
}

// WriteHealthyPeers writes the healthy-peer map (§6).
func WriteHealthyPeers(w io.Writer, peers []HealthyPeer) error {
	if err := writeU64(w, uint64(len(peers))); err != nil {
		return err
	}
	for _, p := range peers {
		if err := writeBytes(w, []byte(p.Address)); err != nil {
			return err
		}
		if err := writeU64(w, uint64(p.LastSeen.Unix())); err != nil {
			return err
		}
		if err := writeU64(w, uint64(p.Capabilities)); err != nil {
			return err
		}
	}
	return nil
}

// ReadHealthyPeers reads back the healthy-peer map.
func ReadHealthyPeers(r io.Reader) ([]HealthyPeer, error) {
	count, err := readU64(r)
	if err != nil {
		return nil, err
	}
	out := make([]HealthyPeer, count)
	for i := range out {
		addr, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		lastSeen, err := readU64(r)
		if err != nil {
			return nil, err
		}
		caps, err := readU64(r)
		if err != nil {
			return nil, err
		}
		out[i] = HealthyPeer{Address: string(addr), LastSeen: time.Unix(int64(lastSeen), 0), Capabilities: uint32(caps)}
	}
	return out, nil
}

// State is the full node-state snapshot §6 describes: the four MMRs, the
// synced header index, and the healthy-peer map.
type State struct {
	Headers, Kernels, Outputs, Rangeproofs *mmr.MMR
	SyncedHeaderIndex                      uint64
	HealthyPeers                           []HealthyPeer
}

// Write serialises a full State to w in the fixed field order §6 lists.
func Write(w io.Writer, s *State, kernelPV serialize.ProtocolVersion) error {
	if err := WriteMMR(w, s.Headers, HeaderCodec()); err != nil {
		return err
	}
	if err := WriteMMR(w, s.Kernels, KernelCodec(kernelPV)); err != nil {
		return err
	}
	if err := WriteMMR(w, s.Outputs, OutputCodec()); err != nil {
		return err
	}
	if err := WriteMMR(w, s.Rangeproofs, RangeproofCodec()); err != nil {
		return err
	}
	if err := writeU64(w, s.SyncedHeaderIndex); err != nil {
		return err
	}
	return WriteHealthyPeers(w, s.HealthyPeers)
}

// Read reconstructs a full State from the stream Write produced.
func Read(r io.Reader, hasher mmr.Hasher, kernelSum, outputSum mmr.Sum, kernelPV serialize.ProtocolVersion) (*State, error) {
	headers, err := ReadMMR(r, hasher, mmr.TrivialSum{}, HeaderCodec())
	if err != nil {
		return nil, err
	}
	kernels, err := ReadMMR(r, hasher, kernelSum, KernelCodec(kernelPV))
	if err != nil {
		return nil, err
	}
	outputs, err := ReadMMR(r, hasher, outputSum, OutputCodec())
	if err != nil {
		return nil, err
	}
	rangeproofs, err := ReadMMR(r, hasher, mmr.TrivialSum{}, RangeproofCodec())
	if err != nil {
		return nil, err
	}
	syncedHeight, err := readU64(r)
	if err != nil {
		return nil, err
	}
	peers, err := ReadHealthyPeers(r)
	if err != nil {
		return nil, err
	}
	return &State{
		Headers:           headers,
		Kernels:           kernels,
		Outputs:           outputs,
		Rangeproofs:       rangeproofs,
		SyncedHeaderIndex: syncedHeight,
		HealthyPeers:      peers,
	}, nil
}
