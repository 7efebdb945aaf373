package consensus

import "github.com/mwc-validation-node/go-node/model"

// GenesisBlock holds a network's genesis header, kernel, output and
// rangeproof (§4.5). This package defines no fixed genesis values for any
// network: the caller builds the block and passes it to node.NewChain.
// cmd/node passes a zero-valued block for every network and reads none
// from configuration.
type GenesisBlock struct {
	Header     model.Header
	Kernel     model.Kernel
	Output     model.Output
	Rangeproof model.Rangeproof
}

// NewGenesisBlock builds a genesis block around a pre-agreed header and
// coinbase reward output; it performs no validation since by definition
// nothing precedes it to validate against (§8 "Empty genesis").
func NewGenesisBlock(header model.Header, kernel model.Kernel, output model.Output, proof model.Rangeproof) GenesisBlock {
	return GenesisBlock{Header: header, Kernel: kernel, Output: output, Rangeproof: proof}
}
