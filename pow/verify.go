package pow

import (
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/model"
)

// VerifyHeader checks a header's proof of work against the network's C29
// and C31+ edge-bit boundaries (§4.5/§4.6). Genesis headers are exempt by
// convention and should not be passed here.
func VerifyHeader(facade crypto.Facade, h *model.Header, c29EdgeBits, c31EdgeBits, maximumEdgeBits uint8) error {
	if h.EdgeBits > maximumEdgeBits {
		return errInvalidCycle
	}
	digest := facade.Blake2b256(h.PowPreimage())
	keys := DeriveKeys(digest)
	return VerifyCycle(keys, h.EdgeBits, c29EdgeBits, c31EdgeBits, h.ProofNonces)
}
