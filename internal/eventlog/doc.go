// Package eventlog implements the append-only durable log backing the
// durable-queue pipeline.
//
// # Overview
//
// The log is a named stream persisted in Pebble. Keys are lexicographically
// ordered for efficient range scans:
//   - pg/log/{stream}/m           (stream metadata: lastSeq)
//   - pg/log/{stream}/e/{seq_be8} (entries)
//
// Records are framed as: varint headerLen | header | payload |
// crc32c(header|payload). The header carries the ingest timestamp as 8
// big-endian bytes of epoch-milliseconds, which the retention trimmer uses as
// its age signal.
//
// API surface (internal)
//
//	l, _ := Open(db, "metrics")
//	seq, _ := l.Append(ctx, ingestMs, payload)
//	items, next := l.Read(ReadOptions{Start: TokenFromSeq(seq), Limit: 100})
//	woke := l.WaitForAppend(5 * time.Second) // blocking-poll backpressure
//	_, _, _ = l.TrimOlderThan(ctx, cutoffMs, 1024, 0)
//	_, _ = l.TrimToMaxBytes(ctx, maxBytes, 1024, 0)
package eventlog
