package node

import (
	"context"

	"github.com/mwc-validation-node/go-node/dialer"
)

// dialerAdapter adapts a dialer.Dialer to this package's narrower Dialer
// interface, so supervisor.go doesn't need to import the dialer package's
// SOCKS5/TCP selection logic directly.
type dialerAdapter struct {
	d dialer.Dialer
}

// WrapDialer builds a node.Dialer around any dialer.Dialer (TCPDialer or
// SOCKS5Dialer, chosen by cmd/node from config.NodeConfig's Tor settings).
func WrapDialer(d dialer.Dialer) Dialer {
	return dialerAdapter{d: d}
}

func (a dialerAdapter) Dial(ctx context.Context, address string) (PeerConn, error) {
	return a.d.Dial(ctx, address)
}
