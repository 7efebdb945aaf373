// Package model defines the wire/consensus data types of §3: headers,
// inputs, outputs, rangeproofs, kernels, blocks and transactions, plus the
// construction-time invariants of §4.4.
package model

import "encoding/hex"

// Hash is a 32-byte Blake2b digest, used for header hashes and MMR roots.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the all-zero hash (the empty-MMR root, or an
// unset field).
func (h Hash) IsZero() bool { return h == Hash{} }

// Commitment is a 33-byte compressed Pedersen commitment.
type Commitment [33]byte

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }

// Scalar is a 32-byte secp256k1 scalar (blinding factor, kernel offset).
type Scalar [32]byte

// Signature is a 64-byte aggregate Schnorr signature.
type Signature [64]byte

// BulletproofLength is the fixed opaque length of a rangeproof body,
// excluding its length prefix on the wire (§3, BULLETPROOF_LENGTH).
const BulletproofLength = 675

// Feature bytes shared by inputs/outputs.
type OutputFeatures uint8

const (
	FeaturePlain OutputFeatures = iota
	FeatureCoinbase
)

// InputFeatures extends OutputFeatures with SameAsOutput, resolved at
// validation time against the spent output (§3).
type InputFeatures uint8

const (
	InputFeaturePlain InputFeatures = iota
	InputFeatureCoinbase
	InputFeatureSameAsOutput
)

// KernelFeatures selects which of the fee/lock_height/relative_height
// fields a kernel carries on the wire (§4.2).
type KernelFeatures uint8

const (
	KernelPlain KernelFeatures = iota
	KernelCoinbase
	KernelHeightLocked
	KernelNoRecentDuplicate
)
