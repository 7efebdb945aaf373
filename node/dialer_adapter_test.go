package node

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/dialer"
)

type stubPlainDialer struct {
	conn dialer.Conn
	err  error
	got  string
}

func (s *stubPlainDialer) Dial(ctx context.Context, address string) (dialer.Conn, error) {
	s.got = address
	return s.conn, s.err
}

func TestWrapDialerForwardsAddressAndReturnsConn(t *testing.T) {
	local, remote := net.Pipe()
	t.Cleanup(func() { _ = remote.Close() })
	stub := &stubPlainDialer{conn: local}

	d := WrapDialer(stub)
	conn, err := d.Dial(context.Background(), "10.0.0.1:3414")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:3414", stub.got)
	require.NotNil(t, conn)
	require.NoError(t, conn.Close())
}

func TestWrapDialerPropagatesDialError(t *testing.T) {
	wantErr := errors.New("connection refused")
	stub := &stubPlainDialer{err: wantErr}

	d := WrapDialer(stub)
	conn, err := d.Dial(context.Background(), "10.0.0.1:3414")
	require.ErrorIs(t, err, wantErr)
	require.Nil(t, conn)
}
