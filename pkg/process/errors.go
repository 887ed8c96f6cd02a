package process

import "errors"

var (
	ErrNoFreeFD       = errors.New("process: fd table full")
	ErrBadFD          = errors.New("process: invalid file descriptor")
	ErrFDReserved     = errors.New("process: file descriptor is reserved")
	ErrSandboxEscape  = errors.New("process: path escapes sandbox root")
	ErrQuotaExceeded  = errors.New("process: disk quota exceeded")
)
