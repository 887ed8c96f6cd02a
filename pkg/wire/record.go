// Package wire implements the canonical binary codecs for records,
// batches, and network operations exchanged between the coordinator and
// its runtimes. There is exactly one encoder per wire type; callers never
// hand-roll the layout themselves.
package wire

import (
	"encoding/binary"

	"github.com/replicode/replicode/internal/errx"
)

// Tag identifies the kind of Record carried in a batch.
type Tag uint8

const (
	TagClock      Tag = 0
	TagFDMsg      Tag = 1
	TagInit       Tag = 2
	TagNetworkIn  Tag = 3
	TagNetworkOut Tag = 4
)

func (t Tag) String() string {
	switch t {
	case TagClock:
		return "clock"
	case TagFDMsg:
		return "fdmsg"
	case TagInit:
		return "init"
	case TagNetworkIn:
		return "network_in"
	case TagNetworkOut:
		return "network_out"
	default:
		return "unknown"
	}
}

// Record is one nondeterministic event delivered to, or produced by, a
// guest process: a clock tick, a chunk of data destined for a file
// descriptor, the process's init payload, or a network operation.
//
// Wire layout: [tag:1][pid:8 LE][len:4 LE][payload:len].
type Record struct {
	Tag     Tag
	PID     uint64
	Payload []byte
}

const recordHeaderLen = 1 + 8 + 4

// Encode appends the wire encoding of r to dst and returns the result.
func (r Record) Encode(dst []byte) []byte {
	var hdr [recordHeaderLen]byte
	hdr[0] = byte(r.Tag)
	binary.LittleEndian.PutUint64(hdr[1:9], r.PID)
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(len(r.Payload)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, r.Payload...)
	return dst
}

// DecodeRecord parses a single record from the front of buf and returns
// it along with the number of bytes consumed.
func DecodeRecord(buf []byte) (Record, int, error) {
	if len(buf) < recordHeaderLen {
		return Record{}, 0, ErrShortRecord
	}
	tag := Tag(buf[0])
	pid := binary.LittleEndian.Uint64(buf[1:9])
	n := binary.LittleEndian.Uint32(buf[9:13])
	total := recordHeaderLen + int(n)
	if len(buf) < total {
		return Record{}, 0, ErrShortPayload
	}
	payload := make([]byte, n)
	copy(payload, buf[recordHeaderLen:total])
	return Record{Tag: tag, PID: pid, Payload: payload}, total, nil
}

// DecodeRecords parses every record packed back-to-back in buf. It is
// used to unpack a Batch's Data field.
func DecodeRecords(buf []byte) ([]Record, error) {
	var records []Record
	for len(buf) > 0 {
		rec, n, err := DecodeRecord(buf)
		if err != nil {
			return nil, errx.With(ErrShortRecord, " at record %d: %v", len(records), err)
		}
		records = append(records, rec)
		buf = buf[n:]
	}
	return records, nil
}

// ClockAdvanceNanos is the fixed simulated-time advance carried by the
// trailing Clock record of every Incoming batch.
const ClockAdvanceNanos uint64 = 10_000_000_000

// NewClockRecord builds the Clock record that terminates every Incoming
// batch, advancing the simulated clock by ClockAdvanceNanos.
func NewClockRecord(pid uint64) Record {
	return NewClockRecordWithNanos(pid, ClockAdvanceNanos)
}

// NewClockRecordWithNanos builds a Clock record advancing the simulated
// clock by an operator-chosen amount, for the console's "clock" verb.
func NewClockRecordWithNanos(pid, nanos uint64) Record {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, nanos)
	return Record{Tag: TagClock, PID: pid, Payload: payload}
}

// ClockAdvance extracts the nanosecond advance carried by a Clock record.
func ClockAdvance(r Record) (uint64, bool) {
	if r.Tag != TagClock || len(r.Payload) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(r.Payload[:8]), true
}

// NewFDMsgRecord builds a record delivering data bytes to file
// descriptor fd inside the guest identified by pid.
func NewFDMsgRecord(pid uint64, fd uint8, data []byte) Record {
	payload := make([]byte, 1+len(data))
	payload[0] = fd
	copy(payload[1:], data)
	return Record{Tag: TagFDMsg, PID: pid, Payload: payload}
}

// FDMsg splits an FDMsg record's payload into its target fd and data.
func FDMsg(r Record) (fd uint8, data []byte, ok bool) {
	if r.Tag != TagFDMsg || len(r.Payload) < 1 {
		return 0, nil, false
	}
	return r.Payload[0], r.Payload[1:], true
}

// dirModulePrefix marks an Init record payload as a host directory to
// copy into the guest's sandbox root rather than an inline module image.
const dirModulePrefix = "dir:"

// NewInitRecord builds the Init record that seeds a guest's module
// image or, when sourceDir is non-empty, its sandbox directory tree.
func NewInitRecord(pid uint64, module []byte, sourceDir string) Record {
	if sourceDir != "" {
		payload := append([]byte(dirModulePrefix+sourceDir), 0)
		return Record{Tag: TagInit, PID: pid, Payload: payload}
	}
	return Record{Tag: TagInit, PID: pid, Payload: module}
}

// InitDir reports whether an Init record carries a directory-copy
// source instead of an inline module image, returning the path.
func InitDir(r Record) (dir string, ok bool) {
	if r.Tag != TagInit {
		return "", false
	}
	p := r.Payload
	if len(p) > len(dirModulePrefix) && string(p[:len(dirModulePrefix)]) == dirModulePrefix && p[len(p)-1] == 0 {
		return string(p[len(dirModulePrefix) : len(p)-1]), true
	}
	return "", false
}
