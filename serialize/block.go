package serialize

import (
	"io"

	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
)

// EncodeBlockBody writes the ordered input/output/rangeproof/kernel lists
// shared by blocks and transactions, each list length-prefixed as a u64
// count.
func EncodeBlockBody(w io.Writer, b *model.Block, pv ProtocolVersion) error {
	if err := writeU64(w, uint64(len(b.Inputs))); err != nil {
		return err
	}
	for i := range b.Inputs {
		if err := EncodeInput(w, &b.Inputs[i], pv); err != nil {
			return err
		}
	}
	if err := writeU64(w, uint64(len(b.Outputs))); err != nil {
		return err
	}
	for i := range b.Outputs {
		if err := EncodeOutput(w, &b.Outputs[i]); err != nil {
			return err
		}
	}
	if err := writeU64(w, uint64(len(b.Rangeproofs))); err != nil {
		return err
	}
	for i := range b.Rangeproofs {
		if err := EncodeRangeproof(w, &b.Rangeproofs[i]); err != nil {
			return err
		}
	}
	if err := writeU64(w, uint64(len(b.Kernels))); err != nil {
		return err
	}
	for i := range b.Kernels {
		if err := EncodeKernel(w, &b.Kernels[i], pv); err != nil {
			return err
		}
	}
	return nil
}

// MaxBodyListLength bounds a single input/output/rangeproof/kernel count
// while decoding, guarding against a hostile length prefix forcing a huge
// allocation before any bytes are actually read.
const MaxBodyListLength = 1 << 20

// DecodeBlockBody reads a block body. Protocol-3+ inputs are returned with
// Features == InputFeatureSameAsOutput; the caller resolves the effective
// feature against the spent output (node.Chain and mempool.TxPool do).
func DecodeBlockBody(r io.Reader, pv ProtocolVersion) (*model.Block, error) {
	b := &model.Block{}

	n, err := readU64(r)
	if err != nil {
		return nil, err
	}
	if n > MaxBodyListLength {
		return nil, errors.NewInvalidBlock("input count %d exceeds maximum", n)
	}
	b.Inputs = make([]model.Input, n)
	for i := range b.Inputs {
		in, err := DecodeInput(r, pv)
		if err != nil {
			return nil, err
		}
		b.Inputs[i] = *in
	}

	n, err = readU64(r)
	if err != nil {
		return nil, err
	}
	if n > MaxBodyListLength {
		return nil, errors.NewInvalidBlock("output count %d exceeds maximum", n)
	}
	b.Outputs = make([]model.Output, n)
	for i := range b.Outputs {
		o, err := DecodeOutput(r)
		if err != nil {
			return nil, err
		}
		b.Outputs[i] = *o
	}

	n, err = readU64(r)
	if err != nil {
		return nil, err
	}
	if n > MaxBodyListLength {
		return nil, errors.NewInvalidBlock("rangeproof count %d exceeds maximum", n)
	}
	b.Rangeproofs = make([]model.Rangeproof, n)
	for i := range b.Rangeproofs {
		p, err := DecodeRangeproof(r)
		if err != nil {
			return nil, err
		}
		b.Rangeproofs[i] = *p
	}

	n, err = readU64(r)
	if err != nil {
		return nil, err
	}
	if n > MaxBodyListLength {
		return nil, errors.NewInvalidBlock("kernel count %d exceeds maximum", n)
	}
	b.Kernels = make([]model.Kernel, n)
	for i := range b.Kernels {
		k, err := DecodeKernel(r, pv)
		if err != nil {
			return nil, err
		}
		b.Kernels[i] = *k
	}

	return b, nil
}

// EncodeTransaction writes a transaction: its kernel offset scalar
// followed by its body.
func EncodeTransaction(w io.Writer, t *model.Transaction, pv ProtocolVersion) error {
	if _, err := w.Write(t.KernelOffset[:]); err != nil {
		return errors.NewIO("write kernel offset: %v", err)
	}
	return EncodeBlockBody(w, &t.Body, pv)
}

func DecodeTransaction(r io.Reader, pv ProtocolVersion) (*model.Transaction, error) {
	offset, err := readScalar(r)
	if err != nil {
		return nil, err
	}
	body, err := DecodeBlockBody(r, pv)
	if err != nil {
		return nil, err
	}
	return &model.Transaction{Body: *body, KernelOffset: offset}, nil
}
