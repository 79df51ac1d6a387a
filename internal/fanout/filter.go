package fanout

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/pulsegrid/pulsegrid/internal/metric"
)

// Filter wraps a compiled CEL expression evaluated against each event before
// delivery to a dashboard. When disabled, Match always returns true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. An empty expression yields a disabled filter.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("source_id", cel.StringType),
		cel.Variable("cpu", cel.DoubleType),
		cel.Variable("memory", cel.DoubleType),
		cel.Variable("disk", cel.DoubleType),
		cel.Variable("network_in", cel.DoubleType),
		cel.Variable("network_out", cel.DoubleType),
		cel.Variable("ts_ms", cel.IntType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression against ev. Evaluation errors and non-bool
// results exclude the event.
func (f Filter) Match(ev metric.Event, nowMs int64) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"source_id":   ev.SourceID,
		"cpu":         ev.Metrics.CPU,
		"memory":      ev.Metrics.Memory,
		"disk":        ev.Metrics.Disk,
		"network_in":  ev.Metrics.NetworkIn(),
		"network_out": ev.Metrics.NetworkOut(),
		"ts_ms":       ev.Timestamp,
		"now_ms":      nowMs,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
