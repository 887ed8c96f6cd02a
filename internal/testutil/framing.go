// Package testutil provides scripted stand-ins for the coordinator and
// a runtime replica, for tests that exercise the wire protocol end to
// end without a real bytecode guest or a real host NAT mapping.
package testutil

import (
	"encoding/binary"
	"io"

	"github.com/replicode/replicode/pkg/wire"
)

func writeFramedBatch(w io.Writer, b wire.Batch) error {
	frame := b.Encode(nil)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

func readFramedBatch(r io.Reader) (wire.Batch, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return wire.Batch{}, err
	}
	frame := make([]byte, binary.LittleEndian.Uint64(lenBuf[:]))
	if _, err := io.ReadFull(r, frame); err != nil {
		return wire.Batch{}, err
	}
	b, _, err := wire.DecodeBatch(frame)
	return b, err
}
