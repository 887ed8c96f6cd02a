package testutil

import (
	"net"
	"sync"

	"github.com/replicode/replicode/pkg/wire"
)

// FakeRuntime is a scripted replica: it dials a real coordinator,
// records every Incoming batch it receives, and can upload arbitrary
// Outgoing batches on command. It stands in for pkg/runtime.Client in
// coordinator-side tests, the way test_client.rs stood in for a real
// guest replica during manual NAT smoke testing.
type FakeRuntime struct {
	conn net.Conn

	mu       sync.Mutex
	received []wire.Batch
	readErr  error
}

// DialFakeRuntime connects to addr and starts recording every Incoming
// batch the coordinator sends.
func DialFakeRuntime(addr string) (*FakeRuntime, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	fr := &FakeRuntime{conn: conn}
	go fr.readLoop()
	return fr, nil
}

func (fr *FakeRuntime) readLoop() {
	for {
		b, err := readFramedBatch(fr.conn)
		if err != nil {
			fr.mu.Lock()
			fr.readErr = err
			fr.mu.Unlock()
			return
		}
		fr.mu.Lock()
		fr.received = append(fr.received, b)
		fr.mu.Unlock()
	}
}

// Received returns every batch received so far, in arrival order.
func (fr *FakeRuntime) Received() []wire.Batch {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	out := make([]wire.Batch, len(fr.received))
	copy(out, fr.received)
	return out
}

// Send uploads an Outgoing batch to the coordinator.
func (fr *FakeRuntime) Send(b wire.Batch) error {
	b.Direction = wire.Outgoing
	return writeFramedBatch(fr.conn, b)
}

// Close closes the connection.
func (fr *FakeRuntime) Close() error {
	return fr.conn.Close()
}
