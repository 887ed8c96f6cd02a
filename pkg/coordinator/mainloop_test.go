package coordinator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicode/replicode/pkg/clock"
	"github.com/replicode/replicode/pkg/nat"
	"github.com/replicode/replicode/pkg/sessionlog"
	"github.com/replicode/replicode/pkg/wire"
)

func TestMainLoop_SealsEnqueuedRecords(t *testing.T) {
	log, err := sessionlog.Open(filepath.Join(t.TempDir(), "session.log"))
	require.NoError(t, err)
	defer log.Close()

	conns := NewConnManager(log, nil, nil)
	loop := NewMainLoop(log, nat.NewTable(), clock.New(), conns, nil, 20*time.Millisecond, time.Hour)

	loop.Enqueue(wire.NewFDMsgRecord(1, 0, []byte("hi")))

	go loop.Run()
	defer loop.Stop()

	require.Eventually(t, func() bool {
		return log.Len() >= 1
	}, time.Second, 5*time.Millisecond)

	b, ok := log.CurrentBatch()
	require.True(t, ok)
	records, err := wire.DecodeRecords(b.Data)
	require.NoError(t, err)

	var sawFDMsg, sawClock bool
	for _, rec := range records {
		switch rec.Tag {
		case wire.TagFDMsg:
			sawFDMsg = true
		case wire.TagClock:
			sawClock = true
		}
	}
	assert.True(t, sawFDMsg)
	assert.True(t, sawClock, "every sealed batch must end with a clock record")
}

func TestMainLoop_SealAdvancesClockByManualClockRecords(t *testing.T) {
	log, err := sessionlog.Open(filepath.Join(t.TempDir(), "session.log"))
	require.NoError(t, err)
	defer log.Close()

	clk := clock.New()
	conns := NewConnManager(log, nil, nil)
	loop := NewMainLoop(log, nat.NewTable(), clk, conns, nil, time.Hour, time.Hour)

	loop.Enqueue(wire.NewClockRecordWithNanos(0, 5_000))
	loop.seal()

	assert.Equal(t, wire.ClockAdvanceNanos+5_000, clk.Now())
}

func TestMainLoop_AllocatePIDIsMonotonic(t *testing.T) {
	log, err := sessionlog.Open(filepath.Join(t.TempDir(), "session.log"))
	require.NoError(t, err)
	defer log.Close()

	conns := NewConnManager(log, nil, nil)
	loop := NewMainLoop(log, nat.NewTable(), clock.New(), conns, nil, time.Hour, time.Hour)

	assert.Equal(t, uint64(1), loop.AllocatePID())
	assert.Equal(t, uint64(2), loop.AllocatePID())
	assert.Equal(t, uint64(3), loop.AllocatePID())
}

func TestMainLoop_HandleOutgoingBatch_FeedsNAT(t *testing.T) {
	log, err := sessionlog.Open(filepath.Join(t.TempDir(), "session.log"))
	require.NoError(t, err)
	defer log.Close()

	natTable := nat.NewTable()
	conns := NewConnManager(log, nil, nil)
	loop := NewMainLoop(log, natTable, clock.New(), conns, nil, time.Hour, time.Hour)

	op := wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: 0}
	payload, err := wire.EncodeNetworkOperation(op)
	require.NoError(t, err)
	rec := wire.Record{Tag: wire.TagNetworkOut, PID: 9, Payload: payload}

	loop.HandleOutgoingBatch(1, wire.Batch{Direction: wire.Outgoing, Data: rec.Encode(nil)})

	assert.Len(t, loop.pending, 1)
	assert.Equal(t, wire.TagNetworkIn, loop.pending[0].Tag)
}
