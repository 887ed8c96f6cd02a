package logevt

import "errors"

var (
	ErrCreateLogFile = errors.New("logevt: create log file")
	ErrWriteEvent    = errors.New("logevt: write event")
	ErrMarshalData   = errors.New("logevt: marshal event data")
	ErrCloseWriter   = errors.New("logevt: close writer")
)
