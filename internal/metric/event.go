// Package metric defines the telemetry sample shared by both pipelines and
// its boundary validation.
package metric

import (
	"encoding/json"
	"fmt"
)

// Network carries optional ingress/egress throughput readings.
type Network struct {
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

// Metrics is one utilization reading. CPU, memory and disk are percentages;
// network is optional and unbounded above zero.
type Metrics struct {
	CPU     float64  `json:"cpu"`
	Memory  float64  `json:"memory"`
	Disk    float64  `json:"disk"`
	Network *Network `json:"network,omitempty"`
}

// NetworkIn returns the inbound throughput, treating a missing network
// section as zero.
func (m Metrics) NetworkIn() float64 {
	if m.Network == nil {
		return 0
	}
	return m.Network.In
}

// NetworkOut returns the outbound throughput, treating a missing network
// section as zero.
func (m Metrics) NetworkOut() float64 {
	if m.Network == nil {
		return 0
	}
	return m.Network.Out
}

// Event is one timestamped telemetry sample from one source. Immutable once
// created; consumed by exactly one pipeline instance.
type Event struct {
	SourceID  string  `json:"sourceId"`
	Timestamp int64   `json:"timestamp"`
	Metrics   Metrics `json:"metrics"`
}

// FieldError describes a single validation failure, surfaced verbatim in
// gateway rejections and router error replies.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// Validate checks the event against the ingestion schema. A nil return means
// the event may enter a log or buffer; any error means it must be rejected at
// the boundary.
func (e *Event) Validate() []FieldError {
	var errs []FieldError
	if e.SourceID == "" {
		errs = append(errs, FieldError{Field: "sourceId", Message: "must be a non-empty string"})
	}
	if e.Timestamp <= 0 {
		errs = append(errs, FieldError{Field: "timestamp", Message: "must be a positive epoch-milliseconds value"})
	}
	errs = appendRangeError(errs, "metrics.cpu", e.Metrics.CPU)
	errs = appendRangeError(errs, "metrics.memory", e.Metrics.Memory)
	errs = appendRangeError(errs, "metrics.disk", e.Metrics.Disk)
	if n := e.Metrics.Network; n != nil {
		if n.In < 0 {
			errs = append(errs, FieldError{Field: "metrics.network.in", Message: "must be >= 0"})
		}
		if n.Out < 0 {
			errs = append(errs, FieldError{Field: "metrics.network.out", Message: "must be >= 0"})
		}
	}
	return errs
}

func appendRangeError(errs []FieldError, field string, v float64) []FieldError {
	if v < 0 || v > 100 {
		errs = append(errs, FieldError{Field: field, Message: "must be in [0,100]"})
	}
	return errs
}

// Encode serializes the event for log/bus payloads.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an event previously produced by Encode.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode metric event: %w", err)
	}
	return e, nil
}
