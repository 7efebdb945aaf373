// Package pow verifies Cuckoo Cycle proof-of-work solutions (§4.5/§4.6):
// deriving SipHash-2-4 keys from a header's canonical preimage, generating
// graph edges from proof nonces, and checking the 42-edge cycle structure
// for both the legacy C29 and the general C31+ graph families.
package pow

import (
	"encoding/binary"

	"github.com/mwc-validation-node/go-node/errors"
)

// Keys holds the four little-endian u64 SipHash-2-4 keys derived from a
// header's Blake2b-256 PoW preimage hash, per §4.5.
type Keys [4]uint64

// DeriveKeys splits a 32-byte Blake2b-256 digest into the 4 SipHash keys.
func DeriveKeys(digest [32]byte) Keys {
	var k Keys
	for i := 0; i < 4; i++ {
		k[i] = binary.LittleEndian.Uint64(digest[i*8 : i*8+8])
	}
	return k
}

const (
	sipInitV0 = 0x736f6d6570736575
	sipInitV1 = 0x646f72616e646f6d
	sipInitV2 = 0x6c7967656e657261
	sipInitV3 = 0x7465646279746573
)

func rotl(x uint64, n uint) uint64 {
	return (x << n) | (x >> (64 - n))
}

func sipRound(v0, v1, v2, v3 *uint64) {
	*v0 += *v1
	*v1 = rotl(*v1, 13)
	*v1 ^= *v0
	*v0 = rotl(*v0, 32)
	*v2 += *v3
	*v3 = rotl(*v3, 16)
	*v3 ^= *v2
	*v0 += *v3
	*v3 = rotl(*v3, 21)
	*v3 ^= *v0
	*v2 += *v1
	*v1 = rotl(*v1, 17)
	*v1 ^= *v2
	*v2 = rotl(*v2, 32)
}

// sipHash24 is Cuckoo Cycle's single-block, 4-key SipHash-2-4: the keyed
// state is initialised directly from keys[0..3] (not folded through a
// 128-bit SipHash key as the generic 2-key construction does), one 8-byte
// message word carries the nonce, 2 compression rounds run before the
// length-finalisation XOR and 4 finalisation rounds run after, matching
// the Cuckoo Cycle reference algorithm the spec describes in §4.5.
func sipHash24(keys Keys, nonce uint64) uint64 {
	v0 := keys[0] ^ sipInitV0
	v1 := keys[1] ^ sipInitV1
	v2 := keys[2] ^ sipInitV2
	v3 := keys[3] ^ sipInitV3

	v3 ^= nonce
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)
	v0 ^= nonce

	v2 ^= 0xff
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)

	return v0 ^ v1 ^ v2 ^ v3
}

// sipblock implements §4.5's `sipblock(keys, n, rot)`: compute SipHash-2-4
// over the 64 nonces sharing n's block of 64, rotate the n'th value left by
// rot, and return it XORed with the rest of the block.
func sipblock(keys Keys, n uint64, rot uint) uint64 {
	base := n &^ 63
	var block [64]uint64
	for i := uint64(0); i < 64; i++ {
		block[i] = sipHash24(keys, base+i)
	}
	acc := rotl(block[n&63], rot)
	for i := uint64(0); i < 64; i++ {
		if i != n&63 {
			acc ^= block[i]
		}
	}
	return acc
}

// sipnode implements the C31+ node function: SipHash-2-4 of (2*nonce+uorv),
// per §4.5.
func sipnode(keys Keys, nonce uint64, uorv uint64) uint64 {
	return sipHash24(keys, 2*nonce+uorv)
}

var errInvalidCycle = errors.NewInvalidBlock("invalid cuckoo cycle proof of work")
