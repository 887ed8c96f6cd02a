package sessionlog

import "errors"

var (
	ErrOpenLog   = errors.New("sessionlog: open session log")
	ErrAppendLog = errors.New("sessionlog: append batch")
	ErrSyncLog   = errors.New("sessionlog: sync session log")
	ErrReadLog   = errors.New("sessionlog: read session log")
	ErrCloseLog  = errors.New("sessionlog: close session log")
)
