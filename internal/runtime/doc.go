// Package runtime wires the durable pipeline's storage-backed facades for a
// single-node instance: one Pebble store carrying the event log, the
// consumer groups, and the latest-state cache.
package runtime
