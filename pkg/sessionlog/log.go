// Package sessionlog is the append-only, fsync-on-append record of every
// sealed Batch a coordinator has produced. It is the ground truth a
// reconnecting or freshly joined replica replays to catch up.
package sessionlog

import (
	"os"
	"sync"

	"github.com/replicode/replicode/internal/errx"
	"github.com/replicode/replicode/pkg/wire"
)

// Log is an append-only file of sealed batches. It is safe for
// concurrent use: Append serializes writers, GetBatchesSince takes a
// read snapshot of the in-memory index.
type Log struct {
	mu      sync.Mutex
	file    *os.File
	index   []indexEntry // parallel to batches, offset into file
	batches []wire.Batch
	current uint64 // number of the next batch to be sealed
}

type indexEntry struct {
	offset int64
	length int
}

// Open opens or creates the session log at path and replays its existing
// contents into memory so GetBatchesSince and CurrentBatch work
// immediately.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errx.Wrap(ErrOpenLog, err)
	}

	l := &Log{file: f}
	if err := l.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) replay() error {
	info, err := l.file.Stat()
	if err != nil {
		return errx.Wrap(ErrReadLog, err)
	}
	buf := make([]byte, info.Size())
	if _, err := l.file.ReadAt(buf, 0); err != nil && info.Size() > 0 {
		return errx.Wrap(ErrReadLog, err)
	}

	var offset int64
	for len(buf) > 0 {
		b, n, err := wire.DecodeBatch(buf)
		if err != nil {
			return errx.Wrap(ErrReadLog, err)
		}
		l.index = append(l.index, indexEntry{offset: offset, length: n})
		l.batches = append(l.batches, b)
		offset += int64(n)
		buf = buf[n:]
	}
	if len(l.batches) > 0 {
		l.current = l.batches[len(l.batches)-1].Number + 1
	}
	return nil
}

// NextBatchNumber returns the number the next sealed batch should carry.
func (l *Log) NextBatchNumber() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Append seals b into the log: it is written to disk and fsynced before
// Append returns, so a crash immediately after Append never loses it.
func (l *Log) Append(b wire.Batch) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.file.Stat()
	if err != nil {
		return errx.Wrap(ErrAppendLog, err)
	}
	offset := info.Size()

	buf := b.Encode(nil)
	if _, err := l.file.WriteAt(buf, offset); err != nil {
		return errx.Wrap(ErrAppendLog, err)
	}
	if err := l.file.Sync(); err != nil {
		return errx.Wrap(ErrSyncLog, err)
	}

	l.index = append(l.index, indexEntry{offset: offset, length: len(buf)})
	l.batches = append(l.batches, b)
	if b.Number+1 > l.current {
		l.current = b.Number + 1
	}
	return nil
}

// GetAllBatches returns every sealed batch, in order. It is used to
// replay full history to a replica joining with nothing yet.
func (l *Log) GetAllBatches() []wire.Batch {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]wire.Batch, len(l.batches))
	copy(out, l.batches)
	return out
}

// GetBatchesSince returns every sealed batch with Number > since, in
// order. It is used to resume replaying history to a replica that has
// already processed batches up to and including since.
func (l *Log) GetBatchesSince(since uint64) []wire.Batch {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []wire.Batch
	for _, b := range l.batches {
		if b.Number > since {
			out = append(out, b)
		}
	}
	return out
}

// CurrentBatch returns the most recently sealed batch, if any.
func (l *Log) CurrentBatch() (wire.Batch, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.batches) == 0 {
		return wire.Batch{}, false
	}
	return l.batches[len(l.batches)-1], true
}

// Len reports how many batches have been sealed.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.batches)
}

// Close closes the underlying file.
func (l *Log) Close() error {
	if err := l.file.Close(); err != nil {
		return errx.Wrap(ErrCloseLog, err)
	}
	return nil
}
