// Package engine defines the black-box contract a bytecode interpreter
// must satisfy to be driven by the scheduler. The interpreter itself
// (compiling and executing guest bytecode) is out of scope here; this
// package only describes the boundary the scheduler calls across.
package engine

import "errors"

// Trap is why a call to Run returned control to the scheduler.
type Trap uint8

const (
	// TrapFuelExhausted means the guest used its entire fuel budget for
	// the tick without blocking or finishing; the scheduler should
	// refill fuel and reschedule it.
	TrapFuelExhausted Trap = iota
	// TrapSyscall means the guest invoked a syscall the host must
	// service; Syscall() describes which one.
	TrapSyscall
	// TrapFinished means the guest returned from its entry point.
	TrapFinished
	// TrapFaulted means the guest hit an unrecoverable runtime error
	// (e.g. out-of-bounds memory access, illegal instruction).
	TrapFaulted
)

// SyscallRequest is the decoded syscall a guest is blocked on after a
// TrapSyscall.
type SyscallRequest struct {
	Number int
	Args   []uint64
}

// Machine is one instantiated, runnable guest. Implementations are not
// required to be safe for concurrent use; the scheduler only ever
// drives a Machine from its own dedicated OS thread.
type Machine interface {
	// Run executes up to fuel units of work and returns why it
	// stopped. The fuel unit is engine-defined (e.g. instructions,
	// gas); the scheduler only treats it as an opaque budget.
	Run(fuel uint64) (Trap, error)

	// Syscall returns the pending syscall request after a TrapSyscall.
	Syscall() SyscallRequest

	// SetSyscallResult delivers a syscall's result and resumes
	// execution from the trap point on the next Run call.
	SetSyscallResult(results []uint64)

	// ExitCode returns the guest's exit code after TrapFinished.
	ExitCode() int32

	// Memory exposes the guest's linear memory for syscalls that read
	// or write guest-addressable buffers (e.g. stdio, filesystem).
	Memory() []byte

	// Close releases any resources (compiled code, memory) held by
	// the machine.
	Close() error
}

// Backend compiles a guest module image into a runnable Machine.
type Backend interface {
	// Instantiate compiles module and returns a fresh Machine ready to
	// run from its entry point.
	Instantiate(module []byte) (Machine, error)

	// Name identifies the backend for logging (e.g. "mock", "wasmtime").
	Name() string
}

var ErrNotFinished = errors.New("engine: machine has not finished")
