// Package process models one guest's state machine: its scheduling
// state, why it is blocked when it is, its file descriptor table, and
// the host-side disk quota it has consumed.
package process

import "sync"

// State is where a guest sits in the scheduler's lifecycle.
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// BlockReason records why a Blocked process is waiting, so the
// scheduler knows which event can wake it.
type BlockReason uint8

const (
	BlockNone BlockReason = iota
	BlockStdinRead
	BlockFileIO
	BlockNetworkIO
	BlockTimeout
)

func (r BlockReason) String() string {
	switch r {
	case BlockStdinRead:
		return "stdin_read"
	case BlockFileIO:
		return "file_io"
	case BlockNetworkIO:
		return "network_io"
	case BlockTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Process is one guest: its pid, scheduling state, FD table, disk
// quota usage, and the condition variable the scheduler parks it on
// while Blocked.
type Process struct {
	mu sync.Mutex

	PID   uint64
	State State

	BlockReason  BlockReason
	WakeAtNanos  uint64 // valid when BlockReason == BlockTimeout
	WaitingPort  uint16 // valid when BlockReason == BlockNetworkIO

	FDs *FDTable

	SandboxRoot string
	QuotaBytes  int64
	UsedBytes   int64

	cond             *sync.Cond
	pendingResult    []uint64
	hasPendingResult bool
}

// New creates a Ready process with a fresh FD table rooted at
// sandboxRoot and a disk quota of quotaBytes.
func New(pid uint64, sandboxRoot string, quotaBytes int64) *Process {
	p := &Process{
		PID:         pid,
		State:       StateReady,
		FDs:         NewFDTable(sandboxRoot),
		SandboxRoot: sandboxRoot,
		QuotaBytes:  quotaBytes,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Block transitions the process to Blocked for the given reason and
// parks the calling goroutine on its condition variable until Wake is
// called. The caller must not hold p's lock.
func (p *Process) Block(reason BlockReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = StateBlocked
	p.BlockReason = reason
	for p.State == StateBlocked {
		p.cond.Wait()
	}
}

// Wake transitions a Blocked process back to Ready and releases it
// from Block. The scheduler retries the syscall that blocked it rather
// than resuming with a precomputed result; use WakeWithResult when the
// result is already known (e.g. a NAT reply).
func (p *Process) Wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State != StateBlocked {
		return
	}
	p.State = StateReady
	p.BlockReason = BlockNone
	p.cond.Broadcast()
}

// WakeWithResult transitions a Blocked process back to Ready, stashing
// results for the scheduler to inject directly into the guest's syscall
// return via TakeResult instead of retrying the syscall handler.
func (p *Process) WakeWithResult(results []uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State != StateBlocked {
		return
	}
	p.pendingResult = results
	p.hasPendingResult = true
	p.State = StateReady
	p.BlockReason = BlockNone
	p.cond.Broadcast()
}

// TakeResult returns and clears a result stashed by WakeWithResult. ok
// is false when the process was woken by plain Wake, meaning the
// scheduler should retry the syscall instead of injecting a result.
func (p *Process) TakeResult() (results []uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasPendingResult {
		return nil, false
	}
	results, p.pendingResult = p.pendingResult, nil
	p.hasPendingResult = false
	return results, true
}

// PulseBlock records a momentary Blocked/reason transition and
// immediately returns the process to Running, for blocking reasons that
// emulate latency rather than wait on an external event (large file
// reads). The Blocked state is visible to a Snapshot taken between the
// two lock sections; no block-reason event is emitted for it.
func (p *Process) PulseBlock(reason BlockReason) {
	p.mu.Lock()
	p.State = StateBlocked
	p.BlockReason = reason
	p.mu.Unlock()

	p.mu.Lock()
	p.State = StateRunning
	p.BlockReason = BlockNone
	p.mu.Unlock()
}

// Finish marks the process Finished and wakes it if blocked, so a
// scheduler thread parked in Block returns promptly on shutdown.
func (p *Process) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = StateFinished
	p.cond.Broadcast()
}

// UsageAdd accounts bytesWritten against the process's disk quota. It
// returns ErrQuotaExceeded once UsedBytes would exceed QuotaBytes; the
// caller is expected to kill the guest in that case.
func (p *Process) UsageAdd(n int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.UsedBytes+n > p.QuotaBytes {
		return ErrQuotaExceeded
	}
	p.UsedBytes += n
	return nil
}

// UsageSub releases bytes previously accounted by UsageAdd, e.g. on
// file truncation or deletion.
func (p *Process) UsageSub(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UsedBytes -= n
	if p.UsedBytes < 0 {
		p.UsedBytes = 0
	}
}

// Snapshot returns the process's state and block reason atomically,
// for status reporting.
func (p *Process) Snapshot() (State, BlockReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State, p.BlockReason
}
