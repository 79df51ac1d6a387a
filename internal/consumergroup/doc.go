// Package consumergroup implements grouped, acknowledgement-based
// consumption over the event log.
//
// # Overview
//
// A group shares a durable cursor into the log. Poll claims entries past the
// cursor for one consumer under a lease; Ack releases the claim. A claim
// whose lease expires (worker death, stuck handler) is reclaimed by the next
// Poll from any group member, so each entry is delivered to exactly one live
// consumer at a time and redelivered at-least-once on failure.
//
// Keys (lexicographically sortable, Pebble):
//   - pg/grp/{group}/cursor                    (last delivered seq)
//   - pg/grp/{group}/claim/{seq_be8}           (lease: expiry | deliveries | consumer)
//   - pg/grp/{group}/claim_idx/{exp_be8}{seq_be8} (expiry scan index)
//
// Poll blocks on the log's append notification up to blockTimeout when no
// entries are available; consumers never busy-spin.
package consumergroup
