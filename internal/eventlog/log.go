package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	pebblestore "github.com/pulsegrid/pulsegrid/internal/storage/pebble"
)

// ErrNotFound is returned when a requested entry does not exist.
var ErrNotFound = errors.New("eventlog: entry not found")

// Log provides append-only operations for one named stream.
type Log struct {
	db     *pebblestore.DB
	stream string

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
}

// Open initializes a Log and restores the last sequence from metadata.
func Open(db *pebblestore.DB, stream string) (*Log, error) {
	l := &Log{db: db, stream: stream, notifyCh: make(chan struct{})}
	meta, err := db.Get(keyMeta(stream))
	if err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return l, nil
}

// Stream returns the stream name.
func (l *Log) Stream() string { return l.stream }

// Append persists one entry atomically and wakes blocked pollers. The ingest
// timestamp is stored in the record header for retention trimming. Returns
// the assigned sequence.
func (l *Log) Append(ctx context.Context, ingestMs int64, payload []byte) (uint64, error) {
	if ingestMs <= 0 {
		ingestMs = time.Now().UnixMilli()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	l.lastSeq++
	seq := l.lastSeq
	val := EncodeRecord(EncodeHeader(ingestMs), payload)
	if err := b.Set(keyEntry(l.stream, seq), val, nil); err != nil {
		return 0, err
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], l.lastSeq)
	if err := b.Set(keyMeta(l.stream), meta[:], nil); err != nil {
		return 0, err
	}

	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	// wake waiters
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return seq, nil
}

// LastSeq returns the highest assigned sequence.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// WaitForAppend blocks until a new append occurs or timeout elapses. It
// returns true if woken by an append, false on timeout. A non-positive
// timeout blocks indefinitely.
func (l *Log) WaitForAppend(timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
