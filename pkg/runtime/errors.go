package runtime

import "errors"

var (
	ErrUnknownSyscall = errors.New("runtime: unknown syscall number")
	ErrGuestFaulted   = errors.New("runtime: guest faulted")
	ErrDial           = errors.New("runtime: dial coordinator")
	ErrHandshake      = errors.New("runtime: coordinator handshake")
	ErrStreamClosed   = errors.New("runtime: batch stream closed")
)
