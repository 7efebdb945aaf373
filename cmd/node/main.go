// Command node runs a standalone validating node: it loads configuration,
// wires the crypto facade and chain state, and drives the peer-to-peer
// supervisor loop of §4.10 until interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mwc-validation-node/go-node/config"
	"github.com/mwc-validation-node/go-node/consensus"
	"github.com/mwc-validation-node/go-node/crypto"
	"github.com/mwc-validation-node/go-node/dialer"
	"github.com/mwc-validation-node/go-node/model"
	"github.com/mwc-validation-node/go-node/node"
	"github.com/mwc-validation-node/go-node/peer"
	"github.com/mwc-validation-node/go-node/telemetry"
)

// mainnetMagic and floonetMagic are the wire protocol magic bytes that
// distinguish peers on the two networks from each other (§4.9).
var (
	mainnetMagic = peer.Magic{0x4d, 0x57}
	floonetMagic = peer.Magic{0x4d, 0x46}
)

func main() {
	gocoreLogLevel, _ := gocore.Config().Get("node_logLevel", "INFO")
	pretty := gocore.Config().GetBool("node_logPretty", false)
	log := telemetry.NewLogger("node", os.Stdout, pretty, gocoreLogLevel)

	cfg := config.Load()
	params := cfg.Params()

	facade := crypto.NewDefaultFacade(crypto.AcceptAllVerifier{}, crypto.AcceptAllVerifier{})

	genesis := loadGenesis(cfg.Network)

	chain, err := node.NewChain(facade, params, log, genesis)
	if err != nil {
		log.Error().Err(err).Msg("building chain state from genesis")
		os.Exit(1)
	}

	magic := mainnetMagic
	if cfg.Network == consensus.Floonet {
		magic = floonetMagic
	}

	var d node.Dialer
	if cfg.TorProxyAddress != "" {
		d = node.WrapDialer(dialer.SOCKS5Dialer{ProxyAddress: cfg.TorProxyAddress})
	} else {
		d = node.WrapDialer(dialer.TCPDialer{})
	}

	callbacks := node.Callbacks{
		OnStartSyncing: func() { log.Info().Msg("starting sync") },
		OnSynced:       func(height uint64) { log.Info().Uint64("height", height).Msg("synced") },
		OnBlock: func(height uint64, block *model.Block) {
			log.Info().Uint64("height", height).Msg("block applied")
		},
		OnError: func(err error) { log.Error().Err(err).Msg("node error") },
		OnPeerEvent: func(address, event string) {
			log.Debug().Str("address", address).Str("event", event).Msg("peer event")
		},
		OnTxHashSet: func(height uint64) {
			log.Info().Uint64("height", height).Msg("tx hash set installed")
		},
		OnMempoolEvent: func(accepted *model.Transaction, replaced []*model.Transaction) {
			log.Debug().Int("replaced", len(replaced)).Msg("mempool event")
		},
	}

	n := node.New(cfg, facade, log, magic, d, chain, genesis, callbacks)
	n.RegisterDNSSeeds(cfg.CustomDNSSeed)
	n.SetMetrics(telemetry.NewMetrics(prometheus.DefaultRegisterer))

	metricsAddr, _ := gocore.Config().Get("node_metricsAddress", "")
	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	if err := n.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("node supervisor exited")
		os.Exit(1)
	}
}

// loadGenesis resolves the fixed genesis block for the given network. A
// production deployment pins this to the network's published founding
// block bytes; here the zero-valued header/kernel/output/rangeproof act as
// the configuration seam (consensus.NewGenesisBlock performs no validation
// of its own, by definition, per §8's "Empty genesis").
func loadGenesis(network consensus.Network) consensus.GenesisBlock {
	return consensus.NewGenesisBlock(model.Header{}, model.Kernel{}, model.Output{}, model.Rangeproof{})
}
