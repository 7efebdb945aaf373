package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the node's small set of prometheus gauges/counters. The
// supervisor loop sets the three gauges once per tick (§4.10); no code path
// increments the three counters. A real deployment registers these
// against prometheus.DefaultRegisterer and scrapes them over /metrics;
// tests can pass a throwaway prometheus.NewRegistry() instead.
type Metrics struct {
	PeerCount       prometheus.Gauge
	MempoolSize     prometheus.Gauge
	ChainHeight     prometheus.Gauge
	BlocksApplied   prometheus.Counter
	TxsAccepted     prometheus.Counter
	PeersBanned     prometheus.Counter
}

// NewMetrics registers the node's metrics against reg and returns the
// handles the supervisor loop writes to.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PeerCount:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "node_peer_count", Help: "Number of connected peers."}),
		MempoolSize:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "node_mempool_size", Help: "Number of transactions held in the mempool."}),
		ChainHeight:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "node_chain_height", Help: "Height of the synced chain tip."}),
		BlocksApplied: prometheus.NewCounter(prometheus.CounterOpts{Name: "node_blocks_applied_total", Help: "Blocks successfully applied to the chain."}),
		TxsAccepted:   prometheus.NewCounter(prometheus.CounterOpts{Name: "node_txs_accepted_total", Help: "Transactions accepted into the mempool."}),
		PeersBanned:   prometheus.NewCounter(prometheus.CounterOpts{Name: "node_peers_banned_total", Help: "Peers banned for protocol violations."}),
	}
	if reg != nil {
		reg.MustRegister(m.PeerCount, m.MempoolSize, m.ChainHeight, m.BlocksApplied, m.TxsAccepted, m.PeersBanned)
	}
	return m
}
