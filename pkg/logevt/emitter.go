package logevt

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/replicode/replicode/internal/errx"
)

// EmitterConfig holds the static metadata stamped onto every event an
// Emitter produces.
type EmitterConfig struct {
	RunID string // caller-supplied; the binaries leave it empty
	Node  string // "coordinator" or "runtime"
}

// Emitter dispatches typed events to one or more sinks, stamping each
// with a monotonic sequence number and the emitter's static metadata.
//
// A nil *Emitter is safe to hold and to call: Emit and Close on a nil
// receiver do nothing, so callers need no nil check.
type Emitter struct {
	config EmitterConfig
	sinks  []Sink
	seq    uint64
}

// NewEmitter creates an emitter with the given configuration and sinks.
func NewEmitter(cfg EmitterConfig, sinks ...Sink) *Emitter {
	return &Emitter{
		config: cfg,
		sinks:  sinks,
	}
}

// Emit constructs an event with the emitter's static metadata and writes
// it to all registered sinks.
//
//   - eventType: one of the Event* constants (e.g., EventBatchSealed)
//   - summary: human-readable one-line summary
//   - tags: optional tags for filtering (nil is fine)
//   - data: the typed payload struct (e.g., *BatchSealedData); nil for none
//
// A nil Emitter is a no-op. Returns the first error encountered.
func (e *Emitter) Emit(eventType, summary string, tags []string, data interface{}) error {
	if e == nil {
		return nil
	}

	var rawData json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return errx.Wrap(ErrMarshalData, err)
		}
		rawData = b
	}

	event := &Event{
		Seq:       atomic.AddUint64(&e.seq, 1),
		Timestamp: time.Now().UTC(),
		RunID:     e.config.RunID,
		Node:      e.config.Node,
		EventType: eventType,
		Summary:   summary,
		Tags:      tags,
		Data:      rawData,
	}

	for _, sink := range e.sinks {
		if err := sink.Write(event); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all sinks. Returns the first error encountered. A nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	var firstErr error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
