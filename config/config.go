// Package config resolves node configuration from gocore's key/value
// store (the same environment-and-settings-file layered config the
// teranode services use), falling back to defaults from consensus.Params
// where a key is unset (§6).
package config

import (
	"github.com/ordishs/gocore"

	"github.com/mwc-validation-node/go-node/consensus"
)

// DefaultBaseFee is §6's DEFAULT_BASE_FEE.
const DefaultBaseFee = 1000

// NodeConfig is the explicit configuration surface of §6.
type NodeConfig struct {
	Network consensus.Network

	BaseFee uint64

	TorProxyAddress string
	TorProxyPort    int

	CustomDNSSeed []string

	ListeningAddress string
	ListeningPort    int

	DesiredPeerCapabilities uint32
	DesiredPeers            int
}

// Load resolves a NodeConfig from gocore.Config(), falling back to the
// documented defaults for any unset key.
func Load() *NodeConfig {
	cfg := gocore.Config()

	network := consensus.Mainnet
	if networkName, _ := cfg.Get("node_network", "mainnet"); networkName == "floonet" {
		network = consensus.Floonet
	}

	baseFee, _ := cfg.GetInt("node_baseFee", DefaultBaseFee)
	torAddr, _ := cfg.Get("node_torProxyAddress", "")
	torPort, _ := cfg.GetInt("node_torProxyPort", 0)
	listenAddr, _ := cfg.Get("node_listeningAddress", "")
	listenPort, _ := cfg.GetInt("node_listeningPort", 0)
	desiredPeers, _ := cfg.GetInt("node_desiredPeers", 8)
	capabilities, _ := cfg.GetInt("node_desiredPeerCapabilities", 2) // CapabilityFullNode

	var dnsSeed []string
	if seeds, ok := cfg.Get("node_customDnsSeed", ""); ok && seeds != "" {
		dnsSeed = splitCommaList(seeds)
	}

	return &NodeConfig{
		Network:                 network,
		BaseFee:                 uint64(baseFee),
		TorProxyAddress:         torAddr,
		TorProxyPort:            torPort,
		CustomDNSSeed:           dnsSeed,
		ListeningAddress:        listenAddr,
		ListeningPort:           listenPort,
		DesiredPeerCapabilities: uint32(capabilities),
		DesiredPeers:            desiredPeers,
	}
}

func splitCommaList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// Params resolves the consensus parameter set for this config's network.
func (c *NodeConfig) Params() *consensus.Params {
	if c.Network == consensus.Floonet {
		return consensus.FloonetParams()
	}
	return consensus.MainnetParams()
}
