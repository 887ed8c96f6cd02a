package coordinator

import (
	"sync"
	"time"

	"github.com/replicode/replicode/pkg/clock"
	"github.com/replicode/replicode/pkg/logevt"
	"github.com/replicode/replicode/pkg/nat"
	"github.com/replicode/replicode/pkg/sessionlog"
	"github.com/replicode/replicode/pkg/wire"
)

// DefaultSealInterval is how often the main loop seals a new Incoming
// batch when not overridden by configuration.
const DefaultSealInterval = 10 * time.Second

// DefaultNATPollInterval is the fixed tick on which the NAT table is
// polled for host sockets that have become ready.
const DefaultNATPollInterval = 100 * time.Millisecond

// MainLoop is the coordinator's central scheduling loop: on a fixed
// interval it gathers every nondeterministic input accumulated since
// the last tick, appends the terminating Clock record, seals the
// result as a Batch, persists it to the session log, and broadcasts it
// to every connected replica.
type MainLoop struct {
	log     *sessionlog.Log
	nat     *nat.Table
	clock   *clock.Clock
	conns   *ConnManager
	emitter *logevt.Emitter

	sealInterval    time.Duration
	natPollInterval time.Duration

	mu      sync.Mutex
	pending []wire.Record
	nextPID uint64

	stop chan struct{}
}

// NewMainLoop builds a MainLoop over the given components. A zero
// interval falls back to its package default.
func NewMainLoop(log *sessionlog.Log, natTable *nat.Table, clk *clock.Clock, conns *ConnManager, emitter *logevt.Emitter, sealInterval, natPollInterval time.Duration) *MainLoop {
	if sealInterval == 0 {
		sealInterval = DefaultSealInterval
	}
	if natPollInterval == 0 {
		natPollInterval = DefaultNATPollInterval
	}
	return &MainLoop{
		log:             log,
		nat:             natTable,
		clock:           clk,
		conns:           conns,
		emitter:         emitter,
		sealInterval:    sealInterval,
		natPollInterval: natPollInterval,
		nextPID:         1, // pid 0 is reserved for coordinator-origin records (clock, network replies)
		stop:            make(chan struct{}),
	}
}

// AllocatePID returns the next unused guest pid, for console "init"
// commands that load a module file without naming a pid themselves.
func (l *MainLoop) AllocatePID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	pid := l.nextPID
	l.nextPID++
	return pid
}

// Enqueue appends a record to be included in the next sealed batch —
// operator stdin, a scripted Init, or anything else originating outside
// the NAT table's own poll loop.
func (l *MainLoop) Enqueue(rec wire.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, rec)
}

// Pending returns a snapshot of the records queued for the next sealed
// batch. It is intended for tests and operator tooling; callers must
// not mutate the returned slice.
func (l *MainLoop) Pending() []wire.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]wire.Record, len(l.pending))
	copy(out, l.pending)
	return out
}

// HandleOutgoingBatch decodes b's NetworkOut records and applies them
// against the NAT table; it is the ConnManager's OutgoingHandler.
func (l *MainLoop) HandleOutgoingBatch(runtimeID uint64, b wire.Batch) {
	records, err := wire.DecodeRecords(b.Data)
	if err != nil {
		_ = l.emitter.Emit(logevt.EventRecordDecodeError, "bad outgoing batch", nil, nil)
		return
	}
	for _, rec := range records {
		if rec.Tag != wire.TagNetworkOut {
			continue
		}
		op, err := wire.DecodeNetworkOperation(rec.Payload)
		if err != nil {
			continue
		}
		reply := l.nat.HandleOperation(rec.PID, op)
		l.enqueueNetworkReply(rec.PID, reply)
	}
}

func (l *MainLoop) enqueueNetworkReply(pid uint64, reply wire.NetworkOperation) {
	payload, err := wire.EncodeNetworkOperation(reply)
	if err != nil {
		return
	}
	l.Enqueue(wire.Record{Tag: wire.TagNetworkIn, PID: pid, Payload: payload})
}

// Run drives the seal-interval and NAT-poll-interval tickers until
// Stop is called.
func (l *MainLoop) Run() {
	sealTicker := time.NewTicker(l.sealInterval)
	defer sealTicker.Stop()
	natTicker := time.NewTicker(l.natPollInterval)
	defer natTicker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-natTicker.C:
			for _, ev := range l.nat.Poll() {
				l.enqueueNetworkReply(ev.PID, ev.Op)
				_ = l.emitter.Emit(logevt.EventNATPollEvent, "nat event resolved", nil,
					&logevt.NATOperationData{PID: ev.PID, Op: string(ev.Op.Kind), Accepted: ev.Op.Status == wire.StatusSuccess})
			}
		case <-sealTicker.C:
			l.seal()
		}
	}
}

func (l *MainLoop) seal() {
	l.mu.Lock()
	records := l.pending
	l.pending = nil
	l.mu.Unlock()

	records = append(records, wire.NewClockRecord(0))
	var advance uint64
	for _, rec := range records {
		if nanos, ok := wire.ClockAdvance(rec); ok {
			advance += nanos
		}
	}
	l.clock.Advance(advance)

	var data []byte
	for _, rec := range records {
		data = rec.Encode(data)
	}

	b := wire.Batch{
		Number:    l.log.NextBatchNumber(),
		Direction: wire.Incoming,
		Data:      data,
	}
	if err := l.log.Append(b); err != nil {
		return
	}
	l.conns.Broadcast(b)

	_ = l.emitter.Emit(logevt.EventBatchSealed, "batch sealed", nil,
		&logevt.BatchSealedData{Number: b.Number, Records: len(records), Bytes: len(data), ClockNano: l.clock.Now()})
}

// Stop halts Run.
func (l *MainLoop) Stop() {
	close(l.stop)
}

// CurrentBatchNumber returns the highest batch number appended to the
// session log so far.
func (l *MainLoop) CurrentBatchNumber() uint64 {
	b, ok := l.log.CurrentBatch()
	if !ok {
		return 0
	}
	return b.Number
}

// ReplicaCount returns the number of replicas currently connected.
func (l *MainLoop) ReplicaCount() int {
	return l.conns.ReplicaCount()
}

// NATEntryCount returns the number of live NAT table mappings.
func (l *MainLoop) NATEntryCount() int {
	return l.nat.Len()
}
