// Package runtime hosts the cooperative scheduler that drives guest
// bytecode machines, the syscall surface it services traps through, and
// the replica client that keeps a runtime's simulated world in lockstep
// with the coordinator.
package runtime

import (
	"sync"

	"github.com/replicode/replicode/pkg/clock"
	"github.com/replicode/replicode/pkg/engine"
	"github.com/replicode/replicode/pkg/logevt"
	"github.com/replicode/replicode/pkg/process"
	"github.com/replicode/replicode/pkg/wire"
)

// DefaultFuelPerTick is how many fuel units a guest receives each time
// the scheduler hands it control, refilled on every trap.
const DefaultFuelPerTick = 2_000_000

// guest pairs a scheduled process with the machine executing it.
type guest struct {
	proc    *process.Process
	machine engine.Machine
}

// Scheduler runs every guest on its own dedicated goroutine — the Go
// analogue of one OS thread per guest — fuel-metering each run and
// routing syscall traps through Syscalls.
type Scheduler struct {
	mu          sync.Mutex
	guests      map[uint64]*guest
	fuelPerTick uint64
	syscalls    *Syscalls
	emitter     *logevt.Emitter

	wg sync.WaitGroup
}

// NewScheduler builds a Scheduler that services syscalls with sc and
// grants fuelPerTick fuel units per run.
func NewScheduler(sc *Syscalls, fuelPerTick uint64, emitter *logevt.Emitter) *Scheduler {
	if fuelPerTick == 0 {
		fuelPerTick = DefaultFuelPerTick
	}
	return &Scheduler{
		guests:      make(map[uint64]*guest),
		fuelPerTick: fuelPerTick,
		syscalls:    sc,
		emitter:     emitter,
	}
}

// Spawn instantiates module on backend as pid's machine and starts its
// dedicated goroutine. The guest begins executing immediately.
func (s *Scheduler) Spawn(pid uint64, backend engine.Backend, module []byte, p *process.Process) error {
	m, err := backend.Instantiate(module)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.guests[pid] = &guest{proc: p, machine: m}
	s.mu.Unlock()

	_ = s.emitter.Emit(logevt.EventGuestSpawned, "guest spawned", nil,
		&logevt.GuestLifecycleData{PID: pid})

	s.wg.Add(1)
	go s.run(pid)
	return nil
}

func (s *Scheduler) run(pid uint64) {
	defer s.wg.Done()

	s.mu.Lock()
	g := s.guests[pid]
	s.mu.Unlock()
	if g == nil {
		return
	}

	for {
		trap, err := g.machine.Run(s.fuelPerTick)
		if err != nil {
			_ = s.emitter.Emit(logevt.EventGuestFinished, "guest faulted", nil,
				&logevt.GuestLifecycleData{PID: pid})
			g.proc.Finish()
			return
		}

		switch trap {
		case engine.TrapFuelExhausted:
			_ = s.emitter.Emit(logevt.EventFuelExhausted, "fuel exhausted, rescheduling", nil,
				&logevt.GuestLifecycleData{PID: pid})
			continue

		case engine.TrapSyscall:
			req := g.machine.Syscall()
			if !s.resolveSyscall(g, pid, req) {
				return
			}
			continue

		case engine.TrapFinished:
			_ = s.emitter.Emit(logevt.EventGuestFinished, "guest finished", nil,
				&logevt.GuestLifecycleData{PID: pid})
			g.proc.Finish()
			return
		}
	}
}

// resolveSyscall services req against g.proc, blocking and re-servicing
// it as many times as the syscall's BlockReason requires, and finally
// delivers a result to the machine. It returns false if the guest
// finished while blocked, signaling the caller to stop running it.
func (s *Scheduler) resolveSyscall(g *guest, pid uint64, req engine.SyscallRequest) bool {
	results, reason := s.syscalls.Handle(g.proc, req)
	for reason != process.BlockNone {
		_ = s.emitter.Emit(logevt.EventGuestBlocked, "guest blocked", nil,
			&logevt.GuestLifecycleData{PID: pid, BlockReason: reason.String()})
		g.proc.Block(reason)
		if st, _ := g.proc.Snapshot(); st == process.StateFinished {
			return false
		}
		if pending, ok := g.proc.TakeResult(); ok {
			results, reason = pending, process.BlockNone
			break
		}
		// Plain Wake (stdin data arrived): the data that unblocked us
		// lives in FD/NAT state now, so re-run the syscall to pick it up.
		results, reason = s.syscalls.Handle(g.proc, req)
	}
	g.machine.SetSyscallResult(results)
	return true
}

// DeliverInput appends data to pid's fd and wakes it if it was blocked
// waiting for input on that descriptor.
func (s *Scheduler) DeliverInput(pid uint64, fd int, data []byte) {
	s.mu.Lock()
	g := s.guests[pid]
	s.mu.Unlock()
	if g == nil {
		return
	}
	_ = g.proc.FDs.AppendInput(fd, data)
	g.proc.Wake()
}

// DeliverNetworkResult wakes pid with the NAT table's resolved op after
// a network syscall's result has arrived from the coordinator via a
// NetworkIn record. A Waiting status leaves the guest blocked — the
// coordinator will deliver a later NetworkIn once the operation
// actually resolves.
func (s *Scheduler) DeliverNetworkResult(pid uint64, op wire.NetworkOperation) {
	s.mu.Lock()
	g := s.guests[pid]
	s.mu.Unlock()
	if g == nil || op.Status == wire.StatusWaiting {
		return
	}
	g.proc.WakeWithResult(NetworkResultWords(op))
}

// Wait blocks until every spawned guest's goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
