package model

// Transaction is a Block body plus the kernel offset scalar that blinds the
// aggregate of its kernels (§3). It is validated as a Block in "transaction
// mode" — no Coinbase features, tighter weight (NewBlock's
// BuildOptions.IsTransaction).
type Transaction struct {
	Body         Block
	KernelOffset Scalar
}

// NewTransaction validates body via NewBlock in transaction mode and pairs
// it with the given kernel offset.
func NewTransaction(inputs []Input, outputs []Output, proofs []Rangeproof, kernels []Kernel, offset Scalar, opt BuildOptions) (*Transaction, error) {
	opt.IsTransaction = true
	body, err := NewBlock(inputs, outputs, proofs, kernels, opt)
	if err != nil {
		return nil, err
	}
	return &Transaction{Body: *body, KernelOffset: offset}, nil
}

// TotalFee sums the fees of every kernel in the transaction.
func (t *Transaction) TotalFee() uint64 {
	var total uint64
	for i := range t.Body.Kernels {
		total += t.Body.Kernels[i].Fee
	}
	return total
}
