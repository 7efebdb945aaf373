// Package dialer abstracts outbound connection establishment (§1: "SOCKS5
// proxy dialer and any hidden-service routing" are named external
// collaborators). A Dialer yields a connected byte stream given an address
// string; the node never constructs a net.Conn or SOCKS5 handshake itself.
package dialer

import (
	"context"
	"net"
	"time"

	socks "github.com/btcsuite/go-socks/socks"
)

// Conn is the minimal connected-stream surface dialer hands back,
// satisfying node.PeerConn.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Dialer connects to a peer address (host:port, or a .onion name when
// routed through a Tor SOCKS5 proxy).
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// DialTimeout bounds a single connection attempt.
const DialTimeout = 10 * time.Second

// TCPDialer connects directly over TCP, for clearnet addresses.
type TCPDialer struct{}

func (TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SOCKS5Dialer routes connections through a SOCKS5 proxy (a local Tor
// daemon, per config.NodeConfig's TorProxyAddress/TorProxyPort), grounded
// on github.com/btcsuite/go-socks the same way the teacher pack reaches
// for it.
type SOCKS5Dialer struct {
	ProxyAddress string
	Username     string
	Password     string
}

func (d SOCKS5Dialer) Dial(_ context.Context, address string) (Conn, error) {
	proxy := &socks.Proxy{
		Addr:     d.ProxyAddress,
		Username: d.Username,
		Password: d.Password,
	}
	conn, err := proxy.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

var (
	_ Dialer = TCPDialer{}
	_ Dialer = SOCKS5Dialer{}
)
