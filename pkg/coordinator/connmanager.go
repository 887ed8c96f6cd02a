// Package coordinator implements the consensus side: accepting replica
// connections, sealing batches of nondeterministic input on a fixed
// interval, routing guest network requests through the NAT table, and
// replaying session history to newly joined or reconnected replicas.
package coordinator

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/replicode/replicode/internal/errx"
	"github.com/replicode/replicode/pkg/logevt"
	"github.com/replicode/replicode/pkg/sessionlog"
	"github.com/replicode/replicode/pkg/wire"
)

// OutgoingHandler processes an Outgoing batch a replica has uploaded —
// typically decoding its NetworkOut records and feeding them to the NAT
// table.
type OutgoingHandler func(runtimeID uint64, b wire.Batch)

// replicaConn is one connected runtime replica.
type replicaConn struct {
	id      uint64
	conn    net.Conn
	outbox  chan wire.Batch
	lastAck uint64
}

// ConnManager accepts and tracks replica connections, replays session
// history to newcomers, and broadcasts newly sealed batches to
// everyone. Broadcast is best-effort at-most-once: a replica that
// cannot keep up has its outbox batch dropped rather than stalling the
// coordinator, matching the system's tolerance for any replica falling
// behind and recovering from the session log on reconnect.
type ConnManager struct {
	log     *sessionlog.Log
	emitter *logevt.Emitter
	onOut   OutgoingHandler

	mu        sync.Mutex
	replicas  map[uint64]*replicaConn
	nextID    uint64
	listener  net.Listener
}

// NewConnManager builds a ConnManager backed by log, invoking onOut for
// every Outgoing batch a replica uploads.
func NewConnManager(log *sessionlog.Log, emitter *logevt.Emitter, onOut OutgoingHandler) *ConnManager {
	return &ConnManager{
		log:      log,
		emitter:  emitter,
		onOut:    onOut,
		replicas: make(map[uint64]*replicaConn),
	}
}

// StartAccepting listens on addr and accepts replica connections until
// the listener is closed. It blocks; callers run it in its own
// goroutine.
func (m *ConnManager) StartAccepting(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errx.Wrap(ErrListen, err)
	}
	m.mu.Lock()
	m.listener = ln
	m.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return errx.Wrap(ErrAccept, err)
		}
		go m.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (m *ConnManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Close()
}

func (m *ConnManager) handleConn(conn net.Conn) {
	id := atomic.AddUint64(&m.nextID, 1)
	rc := &replicaConn{id: id, conn: conn, outbox: make(chan wire.Batch, 256)}

	// Snapshot history and register rc in the replica map under the
	// same lock: registering first and snapshotting after would let a
	// batch sealed in between arrive on rc.outbox while the exact same
	// batch is also present in the snapshot, double-delivering it.
	m.mu.Lock()
	batches := m.log.GetAllBatches()
	m.replicas[id] = rc
	m.mu.Unlock()

	_ = m.emitter.Emit(logevt.EventReplicaConnected, "replica connected", nil,
		&logevt.ReplicaEventData{RuntimeID: id, RemoteAddr: conn.RemoteAddr().String()})

	if err := m.sendHistorySnapshot(rc, batches); err != nil {
		m.disconnect(rc)
		return
	}

	go m.writeLoop(rc)
	m.readLoop(rc)
	m.disconnect(rc)
}

func (m *ConnManager) sendHistorySnapshot(rc *replicaConn, batches []wire.Batch) error {
	for _, b := range batches {
		if err := writeFramedBatch(rc.conn, b); err != nil {
			return errx.Wrap(ErrSendHistory, err)
		}
	}
	_ = m.emitter.Emit(logevt.EventReplicaReplayed, "replayed session history", nil,
		&logevt.ReplicaEventData{RuntimeID: rc.id, BatchesSent: len(batches)})
	return nil
}

func (m *ConnManager) writeLoop(rc *replicaConn) {
	for b := range rc.outbox {
		if err := writeFramedBatch(rc.conn, b); err != nil {
			return
		}
	}
}

func (m *ConnManager) readLoop(rc *replicaConn) {
	for {
		b, err := readFramedBatch(rc.conn)
		if err != nil {
			return
		}
		if b.Direction != wire.Outgoing {
			continue
		}
		rc.lastAck = b.TriggeredBy
		if m.onOut != nil {
			m.onOut(rc.id, b)
		}
	}
}

func (m *ConnManager) disconnect(rc *replicaConn) {
	m.mu.Lock()
	delete(m.replicas, rc.id)
	m.mu.Unlock()
	close(rc.outbox)
	rc.conn.Close()
	_ = m.emitter.Emit(logevt.EventReplicaDisconnect, "replica disconnected", nil,
		&logevt.ReplicaEventData{RuntimeID: rc.id, LastProcessed: rc.lastAck})
}

// Broadcast pushes b to every connected replica's outbox, dropping it
// for any replica whose outbox is full instead of blocking.
func (m *ConnManager) Broadcast(b wire.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rc := range m.replicas {
		select {
		case rc.outbox <- b:
		default:
		}
	}
	_ = m.emitter.Emit(logevt.EventBatchBroadcast, "batch broadcast", nil,
		&logevt.BatchSealedData{Number: b.Number, Bytes: len(b.Data)})
}

// ReplicaCount reports how many replicas are currently connected.
func (m *ConnManager) ReplicaCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replicas)
}

func writeFramedBatch(w io.Writer, b wire.Batch) error {
	frame := b.Encode(nil)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

func readFramedBatch(r io.Reader) (wire.Batch, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return wire.Batch{}, err
	}
	frame := make([]byte, binary.LittleEndian.Uint64(lenBuf[:]))
	if _, err := io.ReadFull(r, frame); err != nil {
		return wire.Batch{}, err
	}
	b, _, err := wire.DecodeBatch(frame)
	return b, err
}
