package peer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwc-validation-node/go-node/model"
)

func TestNetworkAddressIPv4RoundTrips(t *testing.T) {
	a := NetworkAddress{Family: AddressIPv4, Port: 3414}
	copy(a.IP[:4], []byte{127, 0, 0, 1})

	var buf bytes.Buffer
	require.NoError(t, EncodeNetworkAddress(&buf, a))
	got, err := DecodeNetworkAddress(&buf)
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestNetworkAddressOnionRoundTrips(t *testing.T) {
	a := NetworkAddress{Family: AddressOnionService, Onion: "abcdefghijklmnop.onion"}

	var buf bytes.Buffer
	require.NoError(t, EncodeNetworkAddress(&buf, a))
	got, err := DecodeNetworkAddress(&buf)
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestNetworkAddressOnionRejectsMissingSuffix(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeString(&buf, "not-an-onion-address"))
	full := bytes.NewBuffer(append([]byte{byte(AddressOnionService)}, buf.Bytes()...))

	_, err := DecodeNetworkAddress(full)
	require.Error(t, err)
}

func TestHandRoundTrips(t *testing.T) {
	h := &Hand{
		Version:         1,
		Capabilities:    CapabilityFullNode,
		Nonce:           42,
		TotalDifficulty: 1000,
		ClientAddress:   NetworkAddress{Family: AddressIPv4, Port: 1},
		ServerAddress:   NetworkAddress{Family: AddressIPv4, Port: 2},
		UserAgent:       "test-agent/1.0",
		GenesisHash:     [32]byte{1, 2, 3},
		BaseFee:         500,
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeHand(&buf, h))
	got, err := DecodeHand(&buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestShakeRoundTrips(t *testing.T) {
	s := &Shake{
		Version:         1,
		Capabilities:    CapabilityFullHist | CapabilityTxHashSetHist,
		TotalDifficulty: 9999,
		UserAgent:       "peer/2",
		GenesisHash:     [32]byte{9, 9, 9},
		BaseFee:         10,
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeShake(&buf, s))
	got, err := DecodeShake(&buf)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestPingPongRoundTrip(t *testing.T) {
	p := &Ping{TotalDifficulty: 7, Height: 8}
	var buf bytes.Buffer
	require.NoError(t, EncodePing(&buf, p))
	got, err := DecodePing(&buf)
	require.NoError(t, err)
	require.Equal(t, p, got)

	pg := &Pong{TotalDifficulty: 7, Height: 8}
	var buf2 bytes.Buffer
	require.NoError(t, EncodePong(&buf2, pg))
	got2, err := DecodePong(&buf2)
	require.NoError(t, err)
	require.Equal(t, pg, got2)
}

func TestBanReasonRoundTrips(t *testing.T) {
	b := &BanReason{Code: BanReasonSyncStuck, Reason: "no difficulty progress"}
	var buf bytes.Buffer
	require.NoError(t, EncodeBanReason(&buf, b))
	got, err := DecodeBanReason(&buf)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestTxHashSetRequestRoundTrips(t *testing.T) {
	req := &TxHashSetRequest{Hash: [32]byte{4, 5, 6}, Height: 123}
	var buf bytes.Buffer
	require.NoError(t, EncodeTxHashSetRequest(&buf, req))
	got, err := DecodeTxHashSetRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestTxHashSetArchiveRoundTrips(t *testing.T) {
	a := &TxHashSetArchive{Hash: [32]byte{7, 8, 9}, Height: 55, AttachmentLength: 1 << 20}
	var buf bytes.Buffer
	require.NoError(t, EncodeTxHashSetArchive(&buf, a))
	got, err := DecodeTxHashSetArchive(&buf)
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestGetTransactionAndTransactionKernelCarryOnlyA32ByteKernelHash(t *testing.T) {
	hash := model.Hash{1, 2, 3, 4}

	g := &GetTransaction{KernelHash: hash}
	var gbuf bytes.Buffer
	require.NoError(t, EncodeGetTransaction(&gbuf, g))
	require.Equal(t, int(MaxPayload(TypeGetTransaction)), gbuf.Len())
	gotG, err := DecodeGetTransaction(&gbuf)
	require.NoError(t, err)
	require.Equal(t, g, gotG)

	k := &TransactionKernel{KernelHash: hash}
	var kbuf bytes.Buffer
	require.NoError(t, EncodeTransactionKernel(&kbuf, k))
	require.Equal(t, int(MaxPayload(TypeTransactionKernel)), kbuf.Len())
	gotK, err := DecodeTransactionKernel(&kbuf)
	require.NoError(t, err)
	require.Equal(t, k, gotK)
}

func TestGetPeerAddressesRoundTrips(t *testing.T) {
	g := &GetPeerAddresses{Capabilities: CapabilityFullNode}
	var buf bytes.Buffer
	require.NoError(t, EncodeGetPeerAddresses(&buf, g))
	got, err := DecodeGetPeerAddresses(&buf)
	require.NoError(t, err)
	require.Equal(t, g, got)
}

func TestPeerAddressesRoundTrips(t *testing.T) {
	a := &PeerAddresses{Addresses: []NetworkAddress{
		{Family: AddressIPv4, Port: 1},
		{Family: AddressOnionService, Onion: "qrstuvwxyz123456.onion"},
	}}
	var buf bytes.Buffer
	require.NoError(t, EncodePeerAddresses(&buf, a))
	got, err := DecodePeerAddresses(&buf)
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestGetHeadersRoundTripsBareLocator(t *testing.T) {
	g := &GetHeaders{Locator: [][32]byte{{1}, {2}, {3}}}
	var buf bytes.Buffer
	require.NoError(t, EncodeGetHeaders(&buf, g))
	got, err := DecodeGetHeaders(&buf)
	require.NoError(t, err)
	require.Equal(t, g, got)
}

func TestGetHeadersEmptyLocatorRoundTrips(t *testing.T) {
	g := &GetHeaders{}
	var buf bytes.Buffer
	require.NoError(t, EncodeGetHeaders(&buf, g))
	got, err := DecodeGetHeaders(&buf)
	require.NoError(t, err)
	require.Nil(t, got.Locator)
}
