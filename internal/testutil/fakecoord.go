package testutil

import (
	"net"
	"sync"

	"github.com/replicode/replicode/pkg/wire"
)

// FakeCoordinator accepts a single replica connection, replays a fixed
// script of Incoming batches to it, and records every Outgoing batch
// the replica uploads in response. It stands in for a real coordinator
// in runtime-side tests, the way test_server.rs stood in for it during
// manual NAT smoke testing.
type FakeCoordinator struct {
	ln net.Listener

	mu       sync.Mutex
	received []wire.Batch
}

// StartFakeCoordinator listens on an ephemeral loopback port and, for
// every accepted connection, sends script in order before switching to
// read-only mode, recording whatever the peer sends back.
func StartFakeCoordinator(script []wire.Batch) (*FakeCoordinator, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	fc := &FakeCoordinator{ln: ln}
	go fc.acceptLoop(script)
	return fc, nil
}

// Addr returns the address a Client should Dial.
func (fc *FakeCoordinator) Addr() string {
	return fc.ln.Addr().String()
}

func (fc *FakeCoordinator) acceptLoop(script []wire.Batch) {
	for {
		conn, err := fc.ln.Accept()
		if err != nil {
			return
		}
		go fc.serve(conn, script)
	}
}

func (fc *FakeCoordinator) serve(conn net.Conn, script []wire.Batch) {
	defer conn.Close()
	for _, b := range script {
		if err := writeFramedBatch(conn, b); err != nil {
			return
		}
	}
	for {
		b, err := readFramedBatch(conn)
		if err != nil {
			return
		}
		fc.mu.Lock()
		fc.received = append(fc.received, b)
		fc.mu.Unlock()
	}
}

// Received returns every Outgoing batch uploaded so far.
func (fc *FakeCoordinator) Received() []wire.Batch {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]wire.Batch, len(fc.received))
	copy(out, fc.received)
	return out
}

// Close stops accepting and closes the listener.
func (fc *FakeCoordinator) Close() error {
	return fc.ln.Close()
}
