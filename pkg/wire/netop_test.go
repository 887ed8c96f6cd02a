package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkOperation_RoundTrip(t *testing.T) {
	cases := []NetworkOperation{
		{Kind: NetOpListen, LocalPort: 10000, Status: StatusSuccess},
		{Kind: NetOpAccept, LocalPort: 10000, Status: StatusWaiting},
		{Kind: NetOpConnect, RemoteHost: "127.0.0.1", RemotePort: 8080, Status: StatusSuccess, NewPort: 10001},
		{Kind: NetOpSend, LocalPort: 10001, Data: []byte("GET / HTTP/1.0\r\n\r\n"), Status: StatusSuccess},
		{Kind: NetOpRecv, LocalPort: 10001, Status: StatusSuccess, RecvData: []byte("HTTP/1.0 200 OK")},
		{Kind: NetOpClose, LocalPort: 10001, Status: StatusSuccess},
	}

	for _, want := range cases {
		payload, err := EncodeNetworkOperation(want)
		require.NoError(t, err)

		got, err := DecodeNetworkOperation(payload)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestNetworkOperation_AsRecordPayload(t *testing.T) {
	op := NetworkOperation{Kind: NetOpConnect, RemoteHost: "example.com", RemotePort: 443, Status: StatusWaiting}
	payload, err := EncodeNetworkOperation(op)
	require.NoError(t, err)

	rec := Record{Tag: TagNetworkIn, PID: 4, Payload: payload}
	buf := rec.Encode(nil)

	decoded, _, err := DecodeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, TagNetworkIn, decoded.Tag)

	gotOp, err := DecodeNetworkOperation(decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, op, gotOp)
}

func TestDecodeNetworkOperation_Malformed(t *testing.T) {
	_, err := DecodeNetworkOperation([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrDecodeNetOp)
}
