// Package ws hosts the two WebSocket surfaces that share the fan-out hub:
// the durable pipeline's dashboard server (read-only subscribers over the
// bus and latest-state cache) and the direct pipeline's router (producers
// and dashboards on one endpoint, aggregated in-process).
//
// Both speak the same JSON envelope: every frame is an object with a "type"
// field. Malformed or unknown frames get an "error" reply, never a
// disconnect.
package ws
