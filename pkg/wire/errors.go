package wire

import "errors"

var (
	ErrShortRecord    = errors.New("wire: record shorter than header")
	ErrShortPayload   = errors.New("wire: payload shorter than declared length")
	ErrUnknownTag     = errors.New("wire: unknown record tag")
	ErrShortBatch     = errors.New("wire: batch shorter than header")
	ErrUnknownDirection = errors.New("wire: unknown batch direction")
	ErrEncodeNetOp    = errors.New("wire: encode network operation")
	ErrDecodeNetOp    = errors.New("wire: decode network operation")
)
