// Package client contains Cobra CLI commands for talking to a running
// PulseGrid instance: publishing metric events through the durable gateway,
// watching live dashboard updates, and requesting snapshots over WebSocket.
package client
