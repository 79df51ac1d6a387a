package ws

import (
	"encoding/json"

	"github.com/pulsegrid/pulsegrid/internal/metric"
)

// Message types understood by the servers.
const (
	TypeConnectionAck   = "connection.ack"
	TypeRegister        = "register"
	TypeSubscribe       = "subscribe" // legacy alias for register on the dashboard server
	TypeRegisterAck     = "register.ack"
	TypeMetric          = "metric"
	TypeMetricAck       = "metric.ack"
	TypeMetricUpdate    = "metric.update"
	TypeSnapshotRequest = "snapshot.request"
	TypeSnapshot        = "snapshot"
	TypeError           = "error"
)

// inbound is the superset of fields a client frame may carry.
type inbound struct {
	Type     string `json:"type"`
	Role     string `json:"role,omitempty"`
	SourceID string `json:"sourceId,omitempty"`
	Filter   string `json:"filter,omitempty"`

	// metric submission fields (direct router)
	Timestamp int64          `json:"timestamp,omitempty"`
	Metrics   metric.Metrics `json:"metrics,omitempty"`
}

func (m inbound) event() metric.Event {
	return metric.Event{SourceID: m.SourceID, Timestamp: m.Timestamp, Metrics: m.Metrics}
}

func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func errorFrame(msg string, details any) []byte {
	out := map[string]any{"type": TypeError, "error": msg}
	if details != nil {
		out["details"] = details
	}
	return marshal(out)
}
