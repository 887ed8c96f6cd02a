package logevt

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/replicode/replicode/internal/errx"
)

// StdoutSink writes events as JSON-L to an arbitrary writer, typically
// os.Stdout. It implements Sink and is safe for concurrent use.
type StdoutSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdoutSink wraps w as a Sink. w is never closed by Close.
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{enc: json.NewEncoder(w)}
}

func (s *StdoutSink) Write(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event); err != nil {
		return errx.Wrap(ErrWriteEvent, err)
	}
	return nil
}

func (s *StdoutSink) Close() error { return nil }
