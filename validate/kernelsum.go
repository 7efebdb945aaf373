// Package validate orchestrates the cryptographic checks that construction
// (model.NewBlock) can't perform on its own because they need the crypto
// facade: kernel-sum balance and rangeproof verification (§4.4).
package validate

import (
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/errors"
	"github.com/mwc-validation-node/go-node/model"
)

// KernelSumInputs bundles everything VerifyKernelSums needs beyond the
// block body itself (§4.4's balance equation).
type KernelSumInputs struct {
	Outputs []model.Output
	Inputs  []model.Input
	// FeesOrRewardTotal is the sum of every kernel's fee field, or the coinbase
	// reward for a coinbase block (commit(0, reward) on the inputs side,
	// per §4.4).
	FeesOrRewardTotal uint64
	Kernels           []model.Kernel
	// KernelOffset is header.total_kernel_offset - previous_header's, via
	// scalar subtraction (the caller computes this once per block).
	KernelOffset model.Scalar
}

// VerifyKernelSums checks:
//
//	sum(outputs.commit) - sum(inputs.commit) - commit(0, feesOrReward)
//	  == sum(kernels.excess) + commit(kernelOffset, 0)
func VerifyKernelSums(facade crypto.Facade, in KernelSumInputs) error {
	outputCommitments := make([]model.Commitment, len(in.Outputs))
	for i, o := range in.Outputs {
		outputCommitments[i] = o.Commitment
	}
	inputCommitments := make([]model.Commitment, len(in.Inputs))
	for i, inp := range in.Inputs {
		inputCommitments[i] = inp.Commitment
	}
	feeCommitment, err := facade.PedersenCommit(model.Scalar{}, in.FeesOrRewardTotal)
	if err != nil {
		return errors.NewInvalidBlock("commit fees/reward: %v", err)
	}

	lhs, err := facade.CommitSum(outputCommitments, append(append([]model.Commitment{}, inputCommitments...), feeCommitment))
	if err != nil {
		return errors.NewInvalidBlock("sum lhs commitments: %v", err)
	}

	excesses := make([]model.Commitment, len(in.Kernels))
	for i, k := range in.Kernels {
		excesses[i] = k.Excess
	}
	offsetCommitment, err := facade.PedersenCommit(in.KernelOffset, 0)
	if err != nil {
		return errors.NewInvalidBlock("commit kernel offset: %v", err)
	}
	rhs, err := facade.CommitSum(append(append([]model.Commitment{}, excesses...), offsetCommitment), nil)
	if err != nil {
		return errors.NewInvalidBlock("sum rhs commitments: %v", err)
	}

	if lhs != rhs {
		return errors.NewInvalidBlock("kernel sum balance check failed")
	}
	return nil
}

// VerifyKernelSignatures checks every kernel's aggregate Schnorr signature
// against its excess commitment and fee/lock-height-dependent message
// (§4.4; the exact signed message is the kernel's consensus-visible fields
// excluding the signature itself).
func VerifyKernelSignatures(facade crypto.Facade, kernels []model.Kernel) error {
	for i := range kernels {
		k := &kernels[i]
		msg := k.HashSerialize()
		msg = msg[:len(msg)-len(k.Signature)]
		if !facade.VerifySignature(k.Signature, msg, k.Excess) {
			return errors.NewInvalidTransaction("kernel %d has an invalid signature", i)
		}
	}
	return nil
}

// VerifyRangeproofs checks every output's rangeproof against its paired
// commitment (§4.4).
func VerifyRangeproofs(facade crypto.Facade, outputs []model.Output, proofs []model.Rangeproof) error {
	if len(outputs) != len(proofs) {
		return errors.NewInvalidBlock("output/rangeproof count mismatch: %d vs %d", len(outputs), len(proofs))
	}
	for i := range outputs {
		if !facade.Verify(proofs[i], outputs[i].Commitment) {
			return errors.NewInvalidTransaction("output %d has an invalid rangeproof", i)
		}
	}
	return nil
}
