package serialize

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/model"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &model.Header{
		Version:           3,
		Height:             42,
		Timestamp:          1_700_000_000,
		PreviousBlockHash:  model.Hash{1},
		PreviousHeaderRoot: model.Hash{2},
		OutputRoot:         model.Hash{3},
		RangeproofRoot:     model.Hash{4},
		KernelRoot:         model.Hash{5},
		TotalKernelOffset:  model.Scalar{6},
		OutputMMRSize:      100,
		KernelMMRSize:      50,
		TotalDifficulty:    123456,
		SecondaryScaling:   1,
		Nonce:              7,
		EdgeBits:           29,
	}
	for i := range h.ProofNonces {
		h.ProofNonces[i] = uint64(i)
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeHeader(&buf, h))
	require.Equal(t, HeaderLength(h.EdgeBits), buf.Len())

	got, err := DecodeHeader(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, h, got)
}
