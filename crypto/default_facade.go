package crypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
)

// DefaultFacade is the production Facade: Blake2b-256 hashing and
// secp256k1 scalar/point arithmetic for Pedersen commitments, grounded on
// the teacher pack's secp256k1 dependency (decred/dcrd/dcrec/secp256k1,
// present in bsv-blockchain-teranode's indirect requires). Rangeproof and
// signature verification are injected, defaulting to AcceptAllVerifier —
// production deployments plug in a real bulletproof/Schnorr library.
type DefaultFacade struct {
	Rangeproofs RangeproofVerifier
	Signatures  SignatureVerifier
}

// NewDefaultFacade builds a DefaultFacade with the given pluggable
// verifiers. Passing nil for either uses AcceptAllVerifier.
func NewDefaultFacade(rp RangeproofVerifier, sig SignatureVerifier) *DefaultFacade {
	if rp == nil {
		rp = AcceptAllVerifier{}
	}
	if sig == nil {
		sig = AcceptAllVerifier{}
	}
	return &DefaultFacade{Rangeproofs: rp, Signatures: sig}
}

// AcceptAllVerifier is a reference/test stand-in for the rangeproof and
// signature verifiers excluded from spec scope: it accepts everything.
// Never wire this into a node validating real consensus state.
type AcceptAllVerifier struct{}

func (AcceptAllVerifier) Verify(model.Rangeproof, model.Commitment) bool { return true }
func (AcceptAllVerifier) VerifySignature(model.Signature, []byte, model.Commitment) bool {
	return true
}

var (
	_ RangeproofVerifier = AcceptAllVerifier{}
	_ SignatureVerifier  = AcceptAllVerifier{}
	_ Facade             = (*DefaultFacade)(nil)
)

func (h *DefaultFacade) Blake2b256(data []byte) model.Hash {
	sum := blake2b.Sum256(data)
	return model.Hash(sum)
}

func (h *DefaultFacade) CommitmentParse(b [33]byte) (model.Commitment, error) {
	if _, err := secp256k1.ParsePubKey(b[:]); err != nil {
		return model.Commitment{}, errors.NewInvalidTransaction("invalid commitment: %v", err)
	}
	return model.Commitment(b), nil
}

func (h *DefaultFacade) CommitmentSerialize(c model.Commitment) [33]byte { return [33]byte(c) }

func (h *DefaultFacade) PedersenCommit(blinding model.Scalar, value uint64) (model.Commitment, error) {
	r := new(secp256k1.ModNScalar)
	if overflow := r.SetByteSlice(blinding[:]); overflow {
		return model.Commitment{}, errors.NewInvalidTransaction("blinding factor overflows scalar field")
	}

	var rG secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(r, &rG)

	vH := scalarMultH(value)

	var sum secp256k1.JacobianPoint
	secp256k1.AddNonConst(&rG, &vH, &sum)
	sum.ToAffine()

	return jacobianToCommitment(&sum), nil
}

// CommitSum computes the Pedersen-commitment sum of positives minus
// negatives by summing the underlying secp256k1 points (negation flips the
// affine Y coordinate), used by the kernel-sum balance check of §4.4.
func (h *DefaultFacade) CommitSum(positives, negatives []model.Commitment) (model.Commitment, error) {
	var acc secp256k1.JacobianPoint
	first := true

	add := func(c model.Commitment, negate bool) error {
		pk, err := secp256k1.ParsePubKey(c[:])
		if err != nil {
			return errors.NewInvalidTransaction("invalid commitment in sum: %v", err)
		}
		var p secp256k1.JacobianPoint
		pk.AsJacobian(&p)
		if negate {
			p.Y.Negate(1)
			p.Y.Normalize()
		}
		if first {
			acc = p
			first = false
			return nil
		}
		var next secp256k1.JacobianPoint
		secp256k1.AddNonConst(&acc, &p, &next)
		acc = next
		return nil
	}

	for _, c := range positives {
		if err := add(c, false); err != nil {
			return model.Commitment{}, err
		}
	}
	for _, c := range negatives {
		if err := add(c, true); err != nil {
			return model.Commitment{}, err
		}
	}

	if first {
		// empty sum: the identity commitment is 0*G + 0*H.
		var zero secp256k1.ModNScalar
		var p secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(&zero, &p)
		p.ToAffine()
		return jacobianToCommitment(&p), nil
	}

	acc.ToAffine()
	return jacobianToCommitment(&acc), nil
}

// ScalarSum sums 32-byte scalars mod the group order, positives minus
// negatives, used for the block kernel offset subtraction of §4.4.
func (h *DefaultFacade) ScalarSum(positives, negatives []model.Scalar) (model.Scalar, error) {
	sum := new(secp256k1.ModNScalar)
	for _, s := range positives {
		v := new(secp256k1.ModNScalar)
		if v.SetByteSlice(s[:]) {
			return model.Scalar{}, errors.NewInvalidTransaction("scalar overflows field")
		}
		sum.Add(v)
	}
	for _, s := range negatives {
		v := new(secp256k1.ModNScalar)
		if v.SetByteSlice(s[:]) {
			return model.Scalar{}, errors.NewInvalidTransaction("scalar overflows field")
		}
		sum.Add(v.Negate())
	}
	var out model.Scalar
	b := sum.Bytes()
	copy(out[:], b[:])
	return out, nil
}

func (h *DefaultFacade) ScalarVerify(s model.Scalar) bool {
	v := new(secp256k1.ModNScalar)
	overflow := v.SetByteSlice(s[:])
	return !overflow
}

func (h *DefaultFacade) Verify(proof model.Rangeproof, commitment model.Commitment) bool {
	return h.Rangeproofs.Verify(proof, commitment)
}

func (h *DefaultFacade) VerifySignature(sig model.Signature, message []byte, excess model.Commitment) bool {
	return h.Signatures.VerifySignature(sig, message, excess)
}

// generatorH is the fixed second Pedersen generator, derived once by
// try-and-increment: a fixed seed string and a 4-byte little-endian counter
// are hashed, the digest is read as an X coordinate behind a 0x02 prefix,
// and the first counter value that parses as a curve point is used.
var generatorH = deriveGeneratorH()

func deriveGeneratorH() secp256k1.JacobianPoint {
	seed := []byte("MWC-Validation-Node-Go/secondary-generator-H")
	for ctr := uint32(0); ; ctr++ {
		h := blake2b.Sum256(append(append([]byte{}, seed...), byte(ctr), byte(ctr>>8), byte(ctr>>16), byte(ctr>>24)))
		var fx secp256k1.FieldVal
		if overflow := fx.SetByteSlice(h[:]); overflow {
			continue
		}
		if pk, err := secp256k1.ParsePubKey(append([]byte{0x02}, h[:]...)); err == nil {
			var p secp256k1.JacobianPoint
			pk.AsJacobian(&p)
			return p
		}
	}
}

// scalarMultH computes value*H for the fixed secondary generator. value is
// built up as (value>>32)*2^32 + (value&0xffffffff) entirely within the
// scalar field since secp256k1.ModNScalar only exposes SetInt(uint32).
func scalarMultH(value uint64) secp256k1.JacobianPoint {
	var scalar secp256k1.ModNScalar
	scalar.SetInt(uint32(value >> 32))
	for i := 0; i < 32; i++ {
		scalar.Add(&scalar)
	}
	var lo secp256k1.ModNScalar
	lo.SetInt(uint32(value))
	scalar.Add(&lo)

	var out secp256k1.JacobianPoint
	h := generatorH
	secp256k1.ScalarMultNonConst(&scalar, &h, &out)
	return out
}

func jacobianToCommitment(p *secp256k1.JacobianPoint) model.Commitment {
	pk := secp256k1.NewPublicKey(&p.X, &p.Y)
	var out model.Commitment
	copy(out[:], pk.SerializeCompressed())
	return out
}
