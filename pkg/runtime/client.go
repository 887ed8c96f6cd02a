package runtime

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/replicode/replicode/internal/errx"
	"github.com/replicode/replicode/pkg/clock"
	"github.com/replicode/replicode/pkg/engine"
	"github.com/replicode/replicode/pkg/logevt"
	"github.com/replicode/replicode/pkg/modulestore"
	"github.com/replicode/replicode/pkg/process"
	"github.com/replicode/replicode/pkg/wire"
)

// Client is a runtime replica's connection to the coordinator. It
// reads the Incoming batch stream, replays each batch's records against
// the scheduler and the shared clock, and best-effort uploads whatever
// Outgoing batches the scheduler produces in response.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	clock   *clock.Clock
	sched   *Scheduler
	netOut  <-chan wire.NetworkOperation
	emitter *logevt.Emitter

	backend     engine.Backend
	sandboxBase string
	quotaBytes  int64

	mu                 sync.Mutex
	lastProcessedBatch uint64
}

// Dial connects to the coordinator at addr and returns a Client ready
// to Run. backend instantiates guest modules carried by Init records;
// each guest's sandbox directory is created under sandboxBase, named by
// pid, and capped at quotaBytes of writable disk usage.
func Dial(addr string, clk *clock.Clock, sched *Scheduler, netOut <-chan wire.NetworkOperation, emitter *logevt.Emitter, backend engine.Backend, sandboxBase string, quotaBytes int64) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errx.Wrap(ErrDial, err)
	}
	return &Client{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		clock:       clk,
		sched:       sched,
		netOut:      netOut,
		emitter:     emitter,
		backend:     backend,
		sandboxBase: sandboxBase,
		quotaBytes:  quotaBytes,
	}, nil
}

// Run blocks replaying Incoming batches as they arrive and forwarding
// scheduler-produced network operations as Outgoing batches, until the
// connection closes or an unrecoverable decode error occurs.
func (c *Client) Run() error {
	go c.pumpOutgoing()

	for {
		b, err := c.readBatch()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if b.Direction != wire.Incoming {
			continue // a misbehaving or legacy peer; replicas only consume Incoming
		}
		c.replay(b)
	}
}

func (c *Client) readBatch() (wire.Batch, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(c.reader, lenBuf[:]); err != nil {
		return wire.Batch{}, err
	}
	frameLen := binary.LittleEndian.Uint64(lenBuf[:])
	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(c.reader, frame); err != nil {
		return wire.Batch{}, err
	}
	b, _, err := wire.DecodeBatch(frame)
	if err != nil {
		_ = c.emitter.Emit(logevt.EventRecordDecodeError, "failed to decode batch", nil, nil)
		return wire.Batch{}, err
	}
	return b, nil
}

func (c *Client) replay(b wire.Batch) {
	records, err := wire.DecodeRecords(b.Data)
	if err != nil {
		_ = c.emitter.Emit(logevt.EventRecordDecodeError, "failed to decode records", nil, nil)
		return
	}

	for _, rec := range records {
		switch rec.Tag {
		case wire.TagClock:
			if nanos, ok := wire.ClockAdvance(rec); ok {
				c.clock.Advance(nanos)
			}
		case wire.TagFDMsg:
			if fd, data, ok := wire.FDMsg(rec); ok {
				c.sched.DeliverInput(rec.PID, int(fd), data)
			}
		case wire.TagNetworkIn:
			if op, err := wire.DecodeNetworkOperation(rec.Payload); err == nil {
				c.sched.DeliverNetworkResult(rec.PID, op)
			}

		case wire.TagInit:
			c.handleInit(rec)
		}
	}

	c.mu.Lock()
	c.lastProcessedBatch = b.Number
	c.mu.Unlock()
}

// handleInit seeds a guest's sandbox directory from a dir: Init record,
// or spawns it on the scheduler from an inline module image.
func (c *Client) handleInit(rec wire.Record) {
	sandboxDir := filepath.Join(c.sandboxBase, strconv.FormatUint(rec.PID, 10))
	if err := os.MkdirAll(sandboxDir, 0755); err != nil {
		return
	}

	if srcDir, ok := wire.InitDir(rec); ok {
		if err := modulestore.CopyDir(srcDir, sandboxDir); err != nil {
			_ = c.emitter.Emit(logevt.EventCodecError, "failed to seed sandbox directory", nil, nil)
		}
		return
	}

	if len(rec.Payload) == 0 {
		return
	}
	proc := process.New(rec.PID, sandboxDir, c.quotaBytes)
	if err := c.sched.Spawn(rec.PID, c.backend, rec.Payload, proc); err != nil {
		_ = c.emitter.Emit(logevt.EventCodecError, "failed to spawn guest", nil, nil)
	}
}

// pumpOutgoing drains the scheduler's network-operation channel and
// uploads each as a one-record Outgoing batch, tagged with the
// Incoming batch that was most recently fully processed.
func (c *Client) pumpOutgoing() {
	for op := range c.netOut {
		payload, err := wire.EncodeNetworkOperation(op)
		if err != nil {
			continue
		}
		rec := wire.Record{Tag: wire.TagNetworkOut, Payload: payload}
		batch := wire.Batch{
			Direction:   wire.Outgoing,
			Data:        rec.Encode(nil),
			TriggeredBy: c.LastProcessedBatch(),
		}
		_ = c.sendBatch(batch) // best-effort: a failed upload is dropped, not resent
	}
}

func (c *Client) sendBatch(b wire.Batch) error {
	frame := b.Encode(nil)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(frame)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(frame)
	return err
}

// LastProcessedBatch returns the highest Incoming batch number fully
// replayed so far.
func (c *Client) LastProcessedBatch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProcessedBatch
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
