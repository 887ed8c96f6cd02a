// Package nat implements the coordinator's virtual socket table: the
// single, deterministic owner of real host network I/O on behalf of
// every guest process across every replica. Guests never open a host
// socket themselves — they submit NetworkOperation requests as
// NetworkOut records, and the table's real-world results come back as
// NetworkIn records replayed identically to every replica.
package nat

import (
	"net"
	"sync"

	"github.com/replicode/replicode/pkg/wire"
)

const firstVirtualPort = 10000

// portKey identifies one guest-visible virtual socket: a process and
// the virtual port number it (or the table, on its behalf) assigned
// that socket. Two different guests may use the same virtual port
// number without conflict — only the pair must be unique.
type portKey struct {
	pid  uint64
	port uint16
}

// mapping is the table's record of one virtual socket: whether it is a
// listener or an established connection, and the real host resource
// backing it. consensusPort is the literal host port a listener is
// bound to; it is never visible to the guest, which only ever sees the
// virtual port.
type mapping struct {
	pid           uint64
	listener      net.Listener
	conn          net.Conn
	listening     bool
	consensusPort uint16
}

// pendingAccept is an Accept call blocked on mapping's listener.
type pendingAccept struct {
	pid uint64
	src uint16 // listening virtual port
}

// pendingRecv is a Recv call blocked on a connected mapping.
type pendingRecv struct {
	pid uint64
	src uint16
}

// Event is an asynchronously resolved operation the table wants
// delivered to a guest as a NetworkIn record.
type Event struct {
	PID uint64
	Op  wire.NetworkOperation
}

// Table is the NAT table described above. All exported methods are
// safe for concurrent use.
type Table struct {
	mu sync.Mutex

	mappings     map[portKey]*mapping
	processPorts map[uint64][]uint16

	waitingAccepts []pendingAccept
	waitingRecvs   []pendingRecv

	nextVirtualPort   uint16
	nextConsensusPort uint16
	usedConsensusPort map[uint16]bool
}

// NewTable returns an empty Table. Virtual and consensus ports are both
// allocated starting at 10000, out of independent spaces.
func NewTable() *Table {
	return &Table{
		mappings:          make(map[portKey]*mapping),
		processPorts:      make(map[uint64][]uint16),
		nextVirtualPort:   firstVirtualPort,
		nextConsensusPort: firstVirtualPort,
		usedConsensusPort: make(map[uint16]bool),
	}
}

// allocateVirtualPort assigns pid a virtual port. If want is non-zero
// the caller is requesting that exact number (e.g. a guest's Listen
// call); it fails if pid already owns that port. If want is zero, the
// table picks the next free virtual port for pid.
func (t *Table) allocateVirtualPort(pid uint64, want uint16) (uint16, error) {
	if want != 0 {
		key := portKey{pid, want}
		if _, used := t.mappings[key]; used {
			return 0, ErrPortInUse
		}
		t.mappings[key] = &mapping{pid: pid}
		t.processPorts[pid] = append(t.processPorts[pid], want)
		return want, nil
	}

	for i := 0; i < 1<<16; i++ {
		port := t.nextVirtualPort
		t.nextVirtualPort++
		if t.nextVirtualPort < firstVirtualPort {
			t.nextVirtualPort = firstVirtualPort
		}
		key := portKey{pid, port}
		if _, used := t.mappings[key]; !used {
			t.mappings[key] = &mapping{pid: pid}
			t.processPorts[pid] = append(t.processPorts[pid], port)
			return port, nil
		}
	}
	return 0, ErrPortsExhausted
}

// allocateConsensusPort picks an unused literal host port to bind a new
// listener on. This space is entirely separate from the virtual port
// space so two guests listening on the same virtual port never collide
// on the host.
func (t *Table) allocateConsensusPort() (uint16, error) {
	for i := 0; i < 1<<16; i++ {
		port := t.nextConsensusPort
		t.nextConsensusPort++
		if t.nextConsensusPort < firstVirtualPort {
			t.nextConsensusPort = firstVirtualPort
		}
		if !t.usedConsensusPort[port] {
			t.usedConsensusPort[port] = true
			return port, nil
		}
	}
	return 0, ErrPortsExhausted
}

func (t *Table) releaseVirtualPort(pid uint64, port uint16) {
	delete(t.mappings, portKey{pid, port})
	ports := t.processPorts[pid]
	for i, p := range ports {
		if p == port {
			t.processPorts[pid] = append(ports[:i], ports[i+1:]...)
			break
		}
	}
}

func (t *Table) releaseConsensusPort(port uint16) {
	delete(t.usedConsensusPort, port)
}

// HandleOperation applies op on behalf of pid and returns the immediate
// reply. Listen/Connect/Send/Close resolve synchronously (from the
// guest's point of view); Accept/Recv may return StatusWaiting, in
// which case the real result arrives later through Poll.
func (t *Table) HandleOperation(pid uint64, op wire.NetworkOperation) wire.NetworkOperation {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch op.Kind {
	case wire.NetOpListen:
		return t.handleListen(pid, op)
	case wire.NetOpAccept:
		return t.handleAccept(pid, op)
	case wire.NetOpConnect:
		return t.handleConnect(pid, op)
	case wire.NetOpSend:
		return t.handleSend(pid, op)
	case wire.NetOpRecv:
		return t.handleRecv(pid, op)
	case wire.NetOpClose:
		return t.handleClose(pid, op)
	default:
		return wire.NetworkOperation{Kind: op.Kind, Status: wire.StatusFailure}
	}
}

// handleListen binds a host listener on a freshly allocated consensus
// port and records it under the guest's requested virtual port (or an
// auto-assigned one if op.LocalPort is zero). A duplicate Listen on a
// virtual port pid already owns fails rather than silently replacing
// the existing listener.
func (t *Table) handleListen(pid uint64, op wire.NetworkOperation) wire.NetworkOperation {
	vport, err := t.allocateVirtualPort(pid, op.LocalPort)
	if err != nil {
		return wire.NetworkOperation{Kind: wire.NetOpListen, Status: wire.StatusFailure}
	}

	consensusPort, err := t.allocateConsensusPort()
	if err != nil {
		t.releaseVirtualPort(pid, vport)
		return wire.NetworkOperation{Kind: wire.NetOpListen, Status: wire.StatusFailure}
	}

	ln, err := listenHost(int(consensusPort))
	if err != nil {
		t.releaseConsensusPort(consensusPort)
		t.releaseVirtualPort(pid, vport)
		return wire.NetworkOperation{Kind: wire.NetOpListen, Status: wire.StatusFailure}
	}

	m := t.mappings[portKey{pid, vport}]
	m.listener = ln
	m.listening = true
	m.consensusPort = consensusPort
	return wire.NetworkOperation{Kind: wire.NetOpListen, Status: wire.StatusSuccess, NewPort: vport}
}

func (t *Table) handleAccept(pid uint64, op wire.NetworkOperation) wire.NetworkOperation {
	m, ok := t.mappings[portKey{pid, op.LocalPort}]
	if !ok || !m.listening {
		return wire.NetworkOperation{Kind: wire.NetOpAccept, Status: wire.StatusFailure}
	}

	conn, err := acceptNonBlocking(m.listener)
	if err != nil {
		return wire.NetworkOperation{Kind: wire.NetOpAccept, Status: wire.StatusFailure}
	}
	if conn == nil {
		t.waitingAccepts = append(t.waitingAccepts, pendingAccept{pid: pid, src: op.LocalPort})
		return wire.NetworkOperation{Kind: wire.NetOpAccept, Status: wire.StatusWaiting}
	}

	newPort, err := t.allocateVirtualPort(pid, 0)
	if err != nil {
		conn.Close()
		return wire.NetworkOperation{Kind: wire.NetOpAccept, Status: wire.StatusFailure}
	}
	t.mappings[portKey{pid, newPort}].conn = conn
	return wire.NetworkOperation{Kind: wire.NetOpAccept, Status: wire.StatusSuccess, NewPort: newPort}
}

func (t *Table) handleConnect(pid uint64, op wire.NetworkOperation) wire.NetworkOperation {
	port, err := t.allocateVirtualPort(pid, 0)
	if err != nil {
		return wire.NetworkOperation{Kind: wire.NetOpConnect, Status: wire.StatusFailure}
	}

	conn, err := dialHost(op.RemoteHost, int(op.RemotePort))
	if err != nil {
		t.releaseVirtualPort(pid, port)
		return wire.NetworkOperation{Kind: wire.NetOpConnect, Status: wire.StatusFailure}
	}

	t.mappings[portKey{pid, port}].conn = conn
	return wire.NetworkOperation{Kind: wire.NetOpConnect, Status: wire.StatusSuccess, NewPort: port}
}

func (t *Table) handleSend(pid uint64, op wire.NetworkOperation) wire.NetworkOperation {
	m, ok := t.mappings[portKey{pid, op.LocalPort}]
	if !ok || m.conn == nil {
		return wire.NetworkOperation{Kind: wire.NetOpSend, Status: wire.StatusFailure}
	}
	if _, err := m.conn.Write(op.Data); err != nil {
		return wire.NetworkOperation{Kind: wire.NetOpSend, Status: wire.StatusFailure}
	}
	return wire.NetworkOperation{Kind: wire.NetOpSend, Status: wire.StatusSuccess}
}

func (t *Table) handleRecv(pid uint64, op wire.NetworkOperation) wire.NetworkOperation {
	m, ok := t.mappings[portKey{pid, op.LocalPort}]
	if !ok || m.conn == nil {
		return wire.NetworkOperation{Kind: wire.NetOpRecv, Status: wire.StatusFailure}
	}

	data, err := recvNonBlocking(m.conn)
	if err != nil {
		return wire.NetworkOperation{Kind: wire.NetOpRecv, Status: wire.StatusFailure}
	}
	if data == nil {
		t.waitingRecvs = append(t.waitingRecvs, pendingRecv{pid: pid, src: op.LocalPort})
		return wire.NetworkOperation{Kind: wire.NetOpRecv, Status: wire.StatusWaiting}
	}
	return wire.NetworkOperation{Kind: wire.NetOpRecv, Status: wire.StatusSuccess, RecvData: data}
}

func (t *Table) handleClose(pid uint64, op wire.NetworkOperation) wire.NetworkOperation {
	m, ok := t.mappings[portKey{pid, op.LocalPort}]
	if !ok {
		return wire.NetworkOperation{Kind: wire.NetOpClose, Status: wire.StatusFailure}
	}
	if m.listener != nil {
		m.listener.Close()
		t.releaseConsensusPort(m.consensusPort)
	}
	if m.conn != nil {
		m.conn.Close()
	}
	t.releaseVirtualPort(pid, op.LocalPort)
	return wire.NetworkOperation{Kind: wire.NetOpClose, Status: wire.StatusSuccess}
}

// Poll is called on the fixed 100ms tick to resolve waiting Accept and
// Recv calls whose host socket has since become ready. It returns one
// Event per resolved operation, which the caller (the coordinator main
// loop) turns into a NetworkIn record for the owning pid.
func (t *Table) Poll() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []Event

	remainingAccepts := t.waitingAccepts[:0]
	for _, pa := range t.waitingAccepts {
		m, ok := t.mappings[portKey{pa.pid, pa.src}]
		if !ok {
			continue
		}
		conn, err := acceptNonBlocking(m.listener)
		if err != nil || conn == nil {
			if err == nil {
				remainingAccepts = append(remainingAccepts, pa)
			}
			continue
		}
		newPort, err := t.allocateVirtualPort(pa.pid, 0)
		if err != nil {
			conn.Close()
			continue
		}
		t.mappings[portKey{pa.pid, newPort}].conn = conn
		events = append(events, Event{PID: pa.pid, Op: wire.NetworkOperation{
			Kind: wire.NetOpAccept, Status: wire.StatusSuccess, NewPort: newPort,
		}})
	}
	t.waitingAccepts = remainingAccepts

	remainingRecvs := t.waitingRecvs[:0]
	for _, pr := range t.waitingRecvs {
		m, ok := t.mappings[portKey{pr.pid, pr.src}]
		if !ok || m.conn == nil {
			continue
		}
		data, err := recvNonBlocking(m.conn)
		if err != nil {
			continue
		}
		if data == nil {
			remainingRecvs = append(remainingRecvs, pr)
			continue
		}
		events = append(events, Event{PID: pr.pid, Op: wire.NetworkOperation{
			Kind: wire.NetOpRecv, Status: wire.StatusSuccess, RecvData: data,
		}})
	}
	t.waitingRecvs = remainingRecvs

	return events
}

// CloseProcess releases every virtual port owned by pid, used when a
// guest terminates.
func (t *Table) CloseProcess(pid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, port := range append([]uint16(nil), t.processPorts[pid]...) {
		m := t.mappings[portKey{pid, port}]
		if m == nil {
			continue
		}
		if m.listener != nil {
			m.listener.Close()
			t.releaseConsensusPort(m.consensusPort)
		}
		if m.conn != nil {
			m.conn.Close()
		}
		t.releaseVirtualPort(pid, port)
	}
}

// Len reports the number of live virtual port mappings, for status
// reporting.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.mappings)
}
