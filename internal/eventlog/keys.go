package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers. Layout (byte-wise, lexicographically sortable):
// - pg/log/{stream}/m
// - pg/log/{stream}/e/{seq_be8}

var (
	logPrefix  = []byte("pg/log/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyMeta builds the stream metadata key.
func keyMeta(stream string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(metaSuffix))
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, metaSuffix...)
	return k
}

// keyEntry builds the entry key with a big-endian sequence for ordering.
func keyEntry(stream string, seq uint64) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(entrySeg)+8)
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

// entryBounds returns the [low, hi) iterator bounds covering every entry of
// the stream.
func entryBounds(stream string) (low, hi []byte) {
	low = keyEntry(stream, 0)
	hi = append(keyEntry(stream, ^uint64(0)), 0x00)
	return low, hi
}

// seqFromEntryKey extracts the sequence from an entry key.
func seqFromEntryKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
