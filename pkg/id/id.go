// Package id provides compact, time-ordered identifiers for connections and
// consumers. An ID is 16 bytes big-endian, [8 bytes ms_timestamp][8 bytes
// sequence], so the hex form sorts chronologically and IDs minted within the
// same millisecond stay strictly increasing.
package id

import (
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"
)

// ID is a 128-bit time-ordered identifier.
type ID [16]byte

// String returns the 32-character hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Generator mints per-process monotonic IDs. Safe for concurrent use.
type Generator struct {
	mu   sync.Mutex
	ms   int64
	seq  uint64
	nowMs func() int64
}

// NewGenerator creates a Generator on the wall clock.
func NewGenerator() *Generator {
	return &Generator{nowMs: func() int64 { return time.Now().UnixMilli() }}
}

// Next returns a new ID. A clock that stands still or regresses bumps the
// sequence instead of going backwards.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.nowMs()
	if ms <= g.ms {
		ms = g.ms
		g.seq++
	} else {
		g.ms = ms
		g.seq = 0
	}

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:16], g.seq)
	return out
}
