package dialer

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTCPDialerConnectsToListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	d := TCPDialer{}
	conn, err := d.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

func TestTCPDialerFailsAgainstUnreachableAddress(t *testing.T) {
	d := TCPDialer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Dial(ctx, "127.0.0.1:1")
	require.Error(t, err)
}

func TestSOCKS5DialerFailsWithNoProxyListening(t *testing.T) {
	d := SOCKS5Dialer{ProxyAddress: "127.0.0.1:1"}
	_, err := d.Dial(context.Background(), "example.onion:3414")
	require.Error(t, err)
}
