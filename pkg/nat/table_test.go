package nat

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicode/replicode/pkg/wire"
)

func TestTable_ListenAllocatesPort(t *testing.T) {
	tbl := NewTable()
	reply := tbl.HandleOperation(1, wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: 0})
	require.Equal(t, wire.StatusSuccess, reply.Status)
	assert.GreaterOrEqual(t, reply.NewPort, uint16(firstVirtualPort))
	closeReply := tbl.HandleOperation(1, wire.NetworkOperation{Kind: wire.NetOpClose, LocalPort: reply.NewPort})
	assert.Equal(t, wire.StatusSuccess, closeReply.Status)
}

func TestTable_ConnectAndSendRecv(t *testing.T) {
	// stand up a host echo server
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		_, _ = conn.Write(buf[:n])
	}()

	tbl := NewTable()
	addr := ln.Addr().(*net.TCPAddr)
	connectReply := tbl.HandleOperation(7, wire.NetworkOperation{
		Kind: wire.NetOpConnect, RemoteHost: "127.0.0.1", RemotePort: uint16(addr.Port),
	})
	require.Equal(t, wire.StatusSuccess, connectReply.Status)
	vport := connectReply.NewPort

	sendReply := tbl.HandleOperation(7, wire.NetworkOperation{
		Kind: wire.NetOpSend, LocalPort: vport, Data: []byte("ping"),
	})
	require.Equal(t, wire.StatusSuccess, sendReply.Status)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recvReply := tbl.HandleOperation(7, wire.NetworkOperation{Kind: wire.NetOpRecv, LocalPort: vport})
		if recvReply.Status == wire.StatusSuccess {
			assert.Equal(t, []byte("ping"), recvReply.RecvData)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("never received echoed data")
}

func TestTable_OperationOnUnknownPortFails(t *testing.T) {
	tbl := NewTable()
	reply := tbl.HandleOperation(1, wire.NetworkOperation{Kind: wire.NetOpSend, LocalPort: 9999})
	assert.Equal(t, wire.StatusFailure, reply.Status)
}

func TestTable_DuplicateListenOnSamePortRejected(t *testing.T) {
	tbl := NewTable()
	first := tbl.HandleOperation(1, wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: 8080})
	require.Equal(t, wire.StatusSuccess, first.Status)
	assert.Equal(t, uint16(8080), first.NewPort)

	second := tbl.HandleOperation(1, wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: 8080})
	assert.Equal(t, wire.StatusFailure, second.Status)
}

func TestTable_DifferentPidsMayListenOnSameVirtualPort(t *testing.T) {
	tbl := NewTable()
	first := tbl.HandleOperation(1, wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: 8080})
	require.Equal(t, wire.StatusSuccess, first.Status)

	second := tbl.HandleOperation(2, wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: 8080})
	require.Equal(t, wire.StatusSuccess, second.Status)
	assert.Equal(t, uint16(8080), second.NewPort)

	assert.Equal(t, 2, tbl.Len())
}

func TestTable_AcceptAddressedByOriginalVirtualPort(t *testing.T) {
	tbl := NewTable()
	listenReply := tbl.HandleOperation(3, wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: 4242})
	require.Equal(t, wire.StatusSuccess, listenReply.Status)
	require.Equal(t, uint16(4242), listenReply.NewPort)

	acceptReply := tbl.HandleOperation(3, wire.NetworkOperation{Kind: wire.NetOpAccept, LocalPort: 4242})
	assert.Equal(t, wire.StatusWaiting, acceptReply.Status)
}

func TestTable_CloseProcessReleasesPorts(t *testing.T) {
	tbl := NewTable()
	reply := tbl.HandleOperation(1, wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: 0})
	require.Equal(t, wire.StatusSuccess, reply.Status)
	assert.Equal(t, 1, tbl.Len())

	tbl.CloseProcess(1)
	assert.Equal(t, 0, tbl.Len())
}
