package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/model"
)

func blinding(b byte) model.Scalar {
	var s model.Scalar
	s[31] = b
	return s
}

func TestVerifyKernelSumsAcceptsBalancedSingleOutput(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)

	r := blinding(7)
	output, err := facade.PedersenCommit(r, 1000)
	require.NoError(t, err)

	err = VerifyKernelSums(facade, KernelSumInputs{
		Outputs:           []model.Output{{Commitment: output}},
		Kernels:           []model.Kernel{{Excess: output}},
		FeesOrRewardTotal: 0,
		KernelOffset:      model.Scalar{},
	})
	require.NoError(t, err)
}

func TestVerifyKernelSumsRejectsWhenFeeDoesNotMatch(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)

	r := blinding(7)
	output, err := facade.PedersenCommit(r, 1000)
	require.NoError(t, err)

	err = VerifyKernelSums(facade, KernelSumInputs{
		Outputs:           []model.Output{{Commitment: output}},
		Kernels:           []model.Kernel{{Excess: output}},
		FeesOrRewardTotal: 5, // nonzero fee with no corresponding input/kernel change
		KernelOffset:      model.Scalar{},
	})
	require.Error(t, err)
}

func TestVerifyKernelSumsAcceptsInputOutputWithOffset(t *testing.T) {
	facade := crypto.NewDefaultFacade(nil, nil)

	rIn := blinding(3)
	rOut := blinding(11)
	input, err := facade.PedersenCommit(rIn, 500)
	require.NoError(t, err)
	output, err := facade.PedersenCommit(rOut, 500)
	require.NoError(t, err)

	// excess carries the blinding difference rOut - rIn as its own private
	// key; its commitment form is commit(rOut - rIn, 0).
	offsetScalar, err := facade.ScalarSum([]model.Scalar{rOut}, []model.Scalar{rIn})
	require.NoError(t, err)
	excess, err := facade.PedersenCommit(offsetScalar, 0)
	require.NoError(t, err)

	err = VerifyKernelSums(facade, KernelSumInputs{
		Outputs:           []model.Output{{Commitment: output}},
		Inputs:            []model.Input{{Commitment: input}},
		Kernels:           []model.Kernel{{Excess: excess}},
		FeesOrRewardTotal: 0,
		KernelOffset:      model.Scalar{},
	})
	require.NoError(t, err)
}

// fakeFacade lets the signature/rangeproof tests control verifier outcomes
// directly without touching real curve arithmetic.
type fakeFacade struct {
	crypto.Facade
	verifySig   bool
	verifyProof bool
}

func (f fakeFacade) VerifySignature(model.Signature, []byte, model.Commitment) bool { return f.verifySig }
func (f fakeFacade) Verify(model.Rangeproof, model.Commitment) bool                 { return f.verifyProof }

func TestVerifyKernelSignaturesRejectsInvalidSignature(t *testing.T) {
	f := fakeFacade{verifySig: false}
	kernels := []model.Kernel{{Excess: model.Commitment{1}}}
	err := VerifyKernelSignatures(f, kernels)
	require.Error(t, err)
}

func TestVerifyKernelSignaturesAcceptsValidSignature(t *testing.T) {
	f := fakeFacade{verifySig: true}
	kernels := []model.Kernel{{Excess: model.Commitment{1}}}
	require.NoError(t, VerifyKernelSignatures(f, kernels))
}

func TestVerifyRangeproofsRejectsCountMismatch(t *testing.T) {
	f := fakeFacade{verifyProof: true}
	err := VerifyRangeproofs(f, []model.Output{{}}, nil)
	require.Error(t, err)
}

func TestVerifyRangeproofsRejectsInvalidProof(t *testing.T) {
	f := fakeFacade{verifyProof: false}
	err := VerifyRangeproofs(f, []model.Output{{}}, []model.Rangeproof{{}})
	require.Error(t, err)
}

func TestVerifyRangeproofsAcceptsValidProof(t *testing.T) {
	f := fakeFacade{verifyProof: true}
	require.NoError(t, VerifyRangeproofs(f, []model.Output{{}}, []model.Rangeproof{{}}))
}
