package coordinator

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicode/replicode/pkg/sessionlog"
	"github.com/replicode/replicode/pkg/wire"
)

func TestConnManager_ReplaysHistoryToNewReplica(t *testing.T) {
	log, err := sessionlog.Open(filepath.Join(t.TempDir(), "session.log"))
	require.NoError(t, err)
	defer log.Close()
	require.NoError(t, log.Append(wire.Batch{Number: 0, Direction: wire.Incoming, Data: []byte("seed")}))

	var gotOutgoing []wire.Batch
	cm := NewConnManager(log, nil, func(runtimeID uint64, b wire.Batch) {
		gotOutgoing = append(gotOutgoing, b)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		cm.handleConn(conn)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	b, err := readFramedBatch(client)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), b.Number)

	require.NoError(t, writeFramedBatch(client, wire.Batch{
		Direction: wire.Outgoing, Data: []byte("reply"), TriggeredBy: 0,
	}))

	require.Eventually(t, func() bool {
		return len(gotOutgoing) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestConnManager_BroadcastDropsOnFullOutbox(t *testing.T) {
	log, err := sessionlog.Open(filepath.Join(t.TempDir(), "session.log"))
	require.NoError(t, err)
	defer log.Close()

	cm := NewConnManager(log, nil, nil)
	rc := &replicaConn{id: 1, outbox: make(chan wire.Batch, 1)}
	cm.replicas[1] = rc

	cm.Broadcast(wire.Batch{Number: 1})
	cm.Broadcast(wire.Batch{Number: 2}) // outbox full, dropped silently

	assert.Len(t, rc.outbox, 1)
}
