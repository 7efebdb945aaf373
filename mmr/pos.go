package mmr

import "math/bits"

// Positional algebra for the Merkle Mountain Range (§4.3), ported from the
// tested 1-based "jump left to the all-ones ancestor" technique used by
// forestrie-go-merklelog/mmr (itself citing the Grin pmmr.rs this spec
// derives from) and re-expressed over the 0-based node positions spec.md
// works in.

func bitLength64(x uint64) uint64 {
	return uint64(bits.Len64(x))
}

// allOnes1 reports whether the 1-based position pos is of the form 2^k-1
// (a perfect peak, every bit set).
func allOnes1(pos uint64) bool {
	return pos&(pos+1) == 0
}

// jumpLeftPerfect1 jumps from a 1-based position to the left-most node at
// the same height, by subtracting the size of the largest perfect tree
// that precedes it.
func jumpLeftPerfect1(pos uint64) uint64 {
	msb := uint64(1) << (bitLength64(pos) - 1)
	return pos - (msb - 1)
}

// posHeight1 computes a node's height given its 1-based position.
func posHeight1(pos uint64) uint64 {
	for !allOnes1(pos) {
		pos = jumpLeftPerfect1(pos)
	}
	return bitLength64(pos) - 1
}

// Height returns the height of the tree rooted at 0-based position i
// (§4.3: "recursively subtract the largest peak 2^k−1 that fits within
// i+1").
func Height(i uint64) uint64 {
	return posHeight1(i + 1)
}

// Parent returns the 0-based position of i's parent.
func Parent(i uint64) uint64 {
	h := Height(i)
	if h < Height(i+1) {
		return i + 1
	}
	return i + (uint64(1) << (h + 1))
}

// LeftChild returns the 0-based position of i's left child. i must not be
// a leaf (Height(i) > 0).
func LeftChild(i uint64) uint64 {
	h := Height(i)
	return i - (uint64(1) << h)
}

// RightChild returns the 0-based position of i's right child.
func RightChild(i uint64) uint64 { return i - 1 }

// LeftSibling returns the 0-based position of i's left sibling.
func LeftSibling(i uint64) uint64 {
	h := Height(i)
	return i - (uint64(1)<<(h+1) - 1)
}

// RightSibling returns the 0-based position of i's right sibling.
func RightSibling(i uint64) uint64 {
	h := Height(i)
	return i + (uint64(1)<<(h+1) - 1)
}

// LeafPosition returns the 0-based node position of the L'th (0-based)
// appended leaf: 2L - popcount(L) (§4.3).
func LeafPosition(leafIndex uint64) uint64 {
	return 2*leafIndex - uint64(bits.OnesCount64(leafIndex))
}

// NodeCount returns the total node count s for a forest with n leaves:
// 2n - popcount(n) (§4.3).
func NodeCount(numLeaves uint64) uint64 {
	return 2*numLeaves - uint64(bits.OnesCount64(numLeaves))
}

// jumpRightSibling1 moves from a 1-based position to its right sibling at
// the same height.
func jumpRightSibling1(pos uint64) uint64 {
	return pos + (uint64(1) << (posHeight1(pos) + 1)) - 1
}

// leftChild1 returns the 1-based position of pos's left child, and false
// if pos is already a leaf (height 0).
func leftChild1(pos uint64) (uint64, bool) {
	h := posHeight1(pos)
	if h == 0 {
		return 0, false
	}
	return pos - (uint64(1) << h), true
}

// ValidSize reports whether s is achievable as a node count after some
// append history (§4.3): equivalently, there is no position whose sibling
// exists without a corresponding parent.
func ValidSize(s uint64) bool {
	if s == 0 {
		return true
	}
	return posHeight1(s+1) <= posHeight1(s)
}

// PeakPositions returns the 0-based positions of every peak in an MMR of
// the given (valid) size, ordered left to right (highest peak first). It
// returns nil for size 0 or an invalid size.
func PeakPositions(s uint64) []uint64 {
	if s == 0 || !ValidSize(s) {
		return nil
	}

	top := uint64(1)
	for top-1 <= s {
		top <<= 1
	}
	top = (top >> 1) - 1
	if top == 0 {
		return nil
	}

	peaks1 := []uint64{top}
	peak := top
outer:
	for {
		peak = jumpRightSibling1(peak)
		for peak > s {
			if lc, ok := leftChild1(peak); ok {
				peak = lc
				continue
			}
			break outer
		}
		peaks1 = append(peaks1, peak)
	}

	out := make([]uint64, len(peaks1))
	for i, p := range peaks1 {
		out[i] = p - 1
	}
	return out
}

// NumberOfLeavesAtSize returns the leaf count corresponding to a valid
// node-count size, by summing 2^height over each peak.
func NumberOfLeavesAtSize(s uint64) uint64 {
	var n uint64
	for _, p := range PeakPositions(s) {
		h := Height(p)
		n += (uint64(1) << h)
	}
	return n
}
