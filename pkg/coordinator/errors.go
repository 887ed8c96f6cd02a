package coordinator

import "errors"

var (
	ErrListen      = errors.New("coordinator: listen failed")
	ErrAccept      = errors.New("coordinator: accept failed")
	ErrSendHistory = errors.New("coordinator: send session history to replica")
	ErrBadCommand  = errors.New("coordinator: malformed operator command")
)
