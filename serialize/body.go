package serialize

import (
	"io"

	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
)

// EncodeInput writes an input. Protocol 0-2 encode the features byte;
// protocol 3+ omit it (SameAsOutput is resolved from context instead, per
// §4.2).
func EncodeInput(w io.Writer, in *model.Input, pv ProtocolVersion) error {
	if pv <= ProtocolV2 {
		if _, err := w.Write([]byte{byte(in.Features)}); err != nil {
			return errors.NewIO("write input features: %v", err)
		}
	}
	if _, err := w.Write(in.Commitment[:]); err != nil {
		return errors.NewIO("write input commitment: %v", err)
	}
	return nil
}

// DecodeInput reads an input. For protocol 3+, Features is set to
// InputFeatureSameAsOutput and must be resolved by the caller against the
// spent output (§3).
func DecodeInput(r io.Reader, pv ProtocolVersion) (*model.Input, error) {
	in := &model.Input{}
	if pv <= ProtocolV2 {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, errors.NewIO("read input features: %v", err)
		}
		in.Features = model.InputFeatures(b[0])
	} else {
		in.Features = model.InputFeatureSameAsOutput
	}
	c, err := readCommitment(r)
	if err != nil {
		return nil, err
	}
	in.Commitment = c
	return in, nil
}

func EncodeOutput(w io.Writer, o *model.Output) error {
	if _, err := w.Write([]byte{byte(o.Features)}); err != nil {
		return errors.NewIO("write output features: %v", err)
	}
	if _, err := w.Write(o.Commitment[:]); err != nil {
		return errors.NewIO("write output commitment: %v", err)
	}
	return nil
}

func DecodeOutput(r io.Reader) (*model.Output, error) {
	var fb [1]byte
	if _, err := io.ReadFull(r, fb[:]); err != nil {
		return nil, errors.NewIO("read output features: %v", err)
	}
	c, err := readCommitment(r)
	if err != nil {
		return nil, err
	}
	return &model.Output{Features: model.OutputFeatures(fb[0]), Commitment: c}, nil
}

func EncodeRangeproof(w io.Writer, p *model.Rangeproof) error {
	if len(p.Proof) > model.BulletproofLength {
		return errors.NewInvalidBlock("rangeproof length %d exceeds maximum %d", len(p.Proof), model.BulletproofLength)
	}
	if err := writeU16(w, uint16(len(p.Proof))); err != nil {
		return err
	}
	if _, err := w.Write(p.Proof); err != nil {
		return errors.NewIO("write rangeproof: %v", err)
	}
	return nil
}

func DecodeRangeproof(r io.Reader) (*model.Rangeproof, error) {
	n, err := readU16(r)
	if err != nil {
		return nil, err
	}
	if int(n) > model.BulletproofLength {
		return nil, errors.NewInvalidBlock("rangeproof length %d exceeds maximum %d", n, model.BulletproofLength)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.NewIO("read rangeproof: %v", err)
	}
	return &model.Rangeproof{Proof: buf}, nil
}

// EncodeKernel writes a kernel. Protocols 0-1 always carry (fee,
// lock_height) regardless of features; protocols 2-3 carry only the
// fields the feature variant needs, per the map in §4.2:
//
//	Plain:              fee
//	Coinbase:           (none)
//	HeightLocked:       fee, lock_height
//	NoRecentDuplicate:  fee, relative_height (u16)
func EncodeKernel(w io.Writer, k *model.Kernel, pv ProtocolVersion) error {
	if _, err := w.Write([]byte{byte(k.Features)}); err != nil {
		return errors.NewIO("write kernel features: %v", err)
	}

	if pv <= ProtocolV1 {
		if err := writeU64(w, k.Fee); err != nil {
			return err
		}
		if err := writeU64(w, k.LockHeight); err != nil {
			return err
		}
	} else {
		switch k.Features {
		case model.KernelPlain:
			if err := writeU64(w, k.Fee); err != nil {
				return err
			}
		case model.KernelCoinbase:
			// no trailing fields
		case model.KernelHeightLocked:
			if err := writeU64(w, k.Fee); err != nil {
				return err
			}
			if err := writeU64(w, k.LockHeight); err != nil {
				return err
			}
		case model.KernelNoRecentDuplicate:
			if err := writeU64(w, k.Fee); err != nil {
				return err
			}
			if err := writeU16(w, uint16(k.RelativeHeight)); err != nil {
				return err
			}
		default:
			return errors.NewInvalidBlock("unknown kernel features %d", k.Features)
		}
	}

	if _, err := w.Write(k.Excess[:]); err != nil {
		return errors.NewIO("write kernel excess: %v", err)
	}
	if _, err := w.Write(k.Signature[:]); err != nil {
		return errors.NewIO("write kernel signature: %v", err)
	}
	return nil
}

// DecodeKernel reads a kernel per the same protocol-dependent field map as
// EncodeKernel.
func DecodeKernel(r io.Reader, pv ProtocolVersion) (*model.Kernel, error) {
	var fb [1]byte
	if _, err := io.ReadFull(r, fb[:]); err != nil {
		return nil, errors.NewIO("read kernel features: %v", err)
	}
	k := &model.Kernel{Features: model.KernelFeatures(fb[0])}

	if pv <= ProtocolV1 {
		var err error
		if k.Fee, err = readU64(r); err != nil {
			return nil, err
		}
		if k.LockHeight, err = readU64(r); err != nil {
			return nil, err
		}
	} else {
		var err error
		switch k.Features {
		case model.KernelPlain:
			if k.Fee, err = readU64(r); err != nil {
				return nil, err
			}
		case model.KernelCoinbase:
			// no trailing fields
		case model.KernelHeightLocked:
			if k.Fee, err = readU64(r); err != nil {
				return nil, err
			}
			if k.LockHeight, err = readU64(r); err != nil {
				return nil, err
			}
		case model.KernelNoRecentDuplicate:
			if k.Fee, err = readU64(r); err != nil {
				return nil, err
			}
			rel, err := readU16(r)
			if err != nil {
				return nil, err
			}
			k.RelativeHeight = uint64(rel)
		default:
			return nil, errors.NewInvalidBlock("unknown kernel features %d", k.Features)
		}
	}

	excess, err := readCommitment(r)
	if err != nil {
		return nil, err
	}
	k.Excess = excess
	sig, err := readSignature(r)
	if err != nil {
		return nil, err
	}
	k.Signature = sig
	return k, nil
}
