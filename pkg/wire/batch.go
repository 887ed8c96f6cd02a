package wire

import "encoding/binary"

// Direction identifies which way a Batch travels relative to the
// coordinator.
type Direction uint8

const (
	// Incoming batches flow from coordinator to runtime: the totally
	// ordered nondeterministic inputs for one scheduling round.
	Incoming Direction = 0
	// Outgoing batches flow from runtime to coordinator: the network
	// output produced while processing one Incoming batch.
	Outgoing Direction = 1
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// Batch is one sealed, totally ordered unit of records. Data holds zero
// or more wire-encoded Records packed back-to-back (see DecodeRecords).
//
// Wire layout: [number:8 LE][direction:1][len:8 LE][data:len]. An
// Outgoing batch additionally carries, past the core layout, the
// Incoming batch Number that triggered it: [triggered_by:8 LE]. This
// trailer is metadata for replica progress correlation; it does not
// change the meaning of the core layout above, and Incoming batches
// never carry it.
type Batch struct {
	Number      uint64
	Direction   Direction
	Data        []byte
	TriggeredBy uint64 // valid only when Direction == Outgoing
}

const batchHeaderLen = 8 + 1 + 8

// Encode appends the wire encoding of b to dst and returns the result.
func (b Batch) Encode(dst []byte) []byte {
	var hdr [batchHeaderLen]byte
	binary.LittleEndian.PutUint64(hdr[0:8], b.Number)
	hdr[8] = byte(b.Direction)
	binary.LittleEndian.PutUint64(hdr[9:17], uint64(len(b.Data)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, b.Data...)
	if b.Direction == Outgoing {
		var trailer [8]byte
		binary.LittleEndian.PutUint64(trailer[:], b.TriggeredBy)
		dst = append(dst, trailer[:]...)
	}
	return dst
}

// DecodeBatch parses a single batch from the front of buf and returns it
// along with the number of bytes consumed.
func DecodeBatch(buf []byte) (Batch, int, error) {
	if len(buf) < batchHeaderLen {
		return Batch{}, 0, ErrShortBatch
	}
	number := binary.LittleEndian.Uint64(buf[0:8])
	dir := Direction(buf[8])
	if dir != Incoming && dir != Outgoing {
		return Batch{}, 0, ErrUnknownDirection
	}
	n := binary.LittleEndian.Uint64(buf[9:17])
	total := batchHeaderLen + int(n)
	if len(buf) < total {
		return Batch{}, 0, ErrShortPayload
	}
	data := make([]byte, n)
	copy(data, buf[batchHeaderLen:total])

	b := Batch{Number: number, Direction: dir, Data: data}
	if dir == Outgoing {
		if len(buf) < total+8 {
			return Batch{}, 0, ErrShortPayload
		}
		b.TriggeredBy = binary.LittleEndian.Uint64(buf[total : total+8])
		total += 8
	}
	return b, total, nil
}
