// Package serverrun boots a PulseGrid pipeline from configuration and blocks
// until shutdown: signal handling, logger construction, component wiring,
// and ordered teardown (servers, then workers, then bus, then store).
package serverrun
