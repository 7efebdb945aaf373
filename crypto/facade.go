// Package crypto is the facade of §4.1: the node's sole door to the
// low-level cryptographic primitives that spec.md deliberately keeps out of
// scope (Blake2b, secp256k1 Pedersen commitments, bulletproof rangeproofs,
// Schnorr signatures). Hashing and commitment-sum arithmetic are wired to
// real implementations (golang.org/x/crypto/blake2b,
// github.com/decred/dcrd/dcrec/secp256k1/v4) because the MMR and kernel-sum
// balance checks need them to run at all; rangeproof and signature
// verification stay behind pluggable interfaces, since spec.md excludes
// their internals by name.
package crypto

import "github.com/mwc-validation-node/go-node/model"

// RangeproofVerifier verifies a bulletproof rangeproof against a
// commitment and the fixed 64-bit range. Production wiring plugs in a real
// bulletproof library; DefaultFacade ships a verifier that always accepts,
// documented as a test/reference stand-in (see DESIGN.md).
type RangeproofVerifier interface {
	Verify(proof model.Rangeproof, commitment model.Commitment) bool
}

// SignatureVerifier verifies an aggregate Schnorr signature over a kernel's
// message against its excess commitment (used as the public key).
type SignatureVerifier interface {
	VerifySignature(sig model.Signature, message []byte, excess model.Commitment) bool
}

// Facade is the full set of operations §4.1 names.
type Facade interface {
	Blake2b256(data []byte) model.Hash

	CommitmentParse(b [33]byte) (model.Commitment, error)
	CommitmentSerialize(c model.Commitment) [33]byte

	// PedersenCommit computes r*G + v*H.
	PedersenCommit(blinding model.Scalar, value uint64) (model.Commitment, error)

	// CommitSum computes the Pedersen-commitment sum of positives minus
	// negatives, used by kernel-sum balance checks (§4.4).
	CommitSum(positives, negatives []model.Commitment) (model.Commitment, error)

	// ScalarSum sums 32-byte scalars, positives minus negatives mod the
	// group order (used for the block kernel offset subtraction of §4.4).
	ScalarSum(positives, negatives []model.Scalar) (model.Scalar, error)

	ScalarVerify(s model.Scalar) bool

	RangeproofVerifier
	SignatureVerifier
}
