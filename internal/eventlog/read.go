package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// Token encodes a starting position as a big-endian sequence.
type Token [8]byte

// TokenFromSeq builds a Token positioned at seq.
func TokenFromSeq(seq uint64) Token {
	var t Token
	binary.BigEndian.PutUint64(t[:], seq)
	return t
}

// Seq returns the sequence the token points at.
func (t Token) Seq() uint64 { return binary.BigEndian.Uint64(t[:]) }

// ReadOptions control a forward scan.
type ReadOptions struct {
	Start Token // zero value starts from the first entry
	Limit int   // 0 means unbounded
}

// Item is one decoded log entry.
type Item struct {
	Seq      uint64
	IngestMs int64
	Payload  []byte
}

// Read returns up to Limit items starting at Start (inclusive), plus a token
// positioned after the last returned item for resumption. Corrupt records
// are skipped.
func (l *Log) Read(opts ReadOptions) ([]Item, Token) {
	low, hi := entryBounds(l.stream)
	items := make([]Item, 0, maxInt(1, opts.Limit))
	next := opts.Start

	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return items, next
	}
	defer iter.Close()

	startSeq := opts.Start.Seq()
	var ok bool
	if startSeq == 0 {
		ok = iter.First()
	} else {
		ok = iter.SeekGE(keyEntry(l.stream, startSeq))
	}
	for ; ok && (opts.Limit == 0 || len(items) < opts.Limit); ok = iter.Next() {
		seq := seqFromEntryKey(iter.Key())
		dec, okDec := DecodeRecord(iter.Value())
		if okDec {
			ms, _ := HeaderTimestamp(dec.Header)
			items = append(items, Item{Seq: seq, IngestMs: ms, Payload: dec.Payload})
		}
		next = TokenFromSeq(seq + 1)
	}
	return items, next
}

// Get loads a single entry by sequence.
func (l *Log) Get(seq uint64) (Item, error) {
	val, err := l.db.Get(keyEntry(l.stream, seq))
	if err != nil {
		return Item{}, ErrNotFound
	}
	dec, ok := DecodeRecord(val)
	if !ok {
		return Item{}, ErrNotFound
	}
	ms, _ := HeaderTimestamp(dec.Header)
	return Item{Seq: seq, IngestMs: ms, Payload: dec.Payload}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
