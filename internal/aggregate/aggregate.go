// Package aggregate keeps a bounded in-memory history per source and computes
// rolling averages over configurable windows. State lives entirely in memory;
// the durable pipeline covers persistence.
package aggregate

import (
	"sync"
	"time"

	"github.com/pulsegrid/pulsegrid/internal/metric"
)

// Defaults matching the dashboard's windows: 1s, 5s and 10s over the last
// 500 samples per source.
const (
	DefaultCapacity   = 500
	DefaultBaseWindow = time.Second
)

// DefaultMultipliers scale the base window into the window set.
var DefaultMultipliers = []int{1, 5, 10}

// Averages holds per-field means over one window.
type Averages struct {
	CPU        float64 `json:"cpu"`
	Memory     float64 `json:"memory"`
	Disk       float64 `json:"disk"`
	NetworkIn  float64 `json:"networkIn"`
	NetworkOut float64 `json:"networkOut"`
}

// WindowStats is the aggregate for one window. Averages is nil when the
// window holds no samples.
type WindowStats struct {
	Samples  int       `json:"samples"`
	Averages *Averages `json:"averages"`
}

// Result is the aggregate view of one source at one reference time. Windows
// is keyed by window length in milliseconds and is non-nil even when no
// windows are configured.
type Result struct {
	SourceID  string                `json:"sourceId"`
	Timestamp int64                 `json:"timestamp"`
	Windows   map[int64]WindowStats `json:"windows"`
}

type bucket struct {
	mu   sync.Mutex
	ring *ring
}

// Aggregator maintains per-source sample history. Safe for concurrent use.
type Aggregator struct {
	windows  []time.Duration
	capacity int
	buckets  sync.Map // sourceId -> *bucket
}

// Options configure an Aggregator; zero values take the defaults above.
type Options struct {
	BaseWindow  time.Duration
	Multipliers []int
	Capacity    int
}

// New builds an aggregator from opts.
func New(opts Options) *Aggregator {
	base := opts.BaseWindow
	if base <= 0 {
		base = DefaultBaseWindow
	}
	mults := opts.Multipliers
	if mults == nil {
		mults = DefaultMultipliers
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	windows := make([]time.Duration, 0, len(mults))
	for _, m := range mults {
		if m > 0 {
			windows = append(windows, base*time.Duration(m))
		}
	}
	return &Aggregator{windows: windows, capacity: capacity}
}

func (a *Aggregator) bucketFor(sourceID string) *bucket {
	if b, ok := a.buckets.Load(sourceID); ok {
		return b.(*bucket)
	}
	b, _ := a.buckets.LoadOrStore(sourceID, &bucket{ring: newRing(a.capacity)})
	return b.(*bucket)
}

// Add records ev and returns the updated aggregate for its source.
func (a *Aggregator) Add(ev metric.Event) *Result {
	b := a.bucketFor(ev.SourceID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring.push(ev)
	return a.compute(ev.SourceID, b.ring)
}

// Snapshot returns the current aggregate for a source, or nil when the
// source has no buffered samples.
func (a *Aggregator) Snapshot(sourceID string) *Result {
	v, ok := a.buckets.Load(sourceID)
	if !ok {
		return nil
	}
	b := v.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	return a.compute(sourceID, b.ring)
}

// AllSnapshots returns the aggregate for every source with buffered samples.
func (a *Aggregator) AllSnapshots() []Result {
	var out []Result
	a.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		r := a.compute(key.(string), b.ring)
		b.mu.Unlock()
		if r != nil {
			out = append(out, *r)
		}
		return true
	})
	return out
}

// SampleCount reports how many samples a source currently buffers.
func (a *Aggregator) SampleCount(sourceID string) int {
	v, ok := a.buckets.Load(sourceID)
	if !ok {
		return 0
	}
	b := v.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.len()
}

// compute builds the Result against the newest buffered timestamp. Callers
// hold the bucket mutex.
func (a *Aggregator) compute(sourceID string, r *ring) *Result {
	newest, ok := r.newest()
	if !ok {
		return nil
	}
	res := &Result{SourceID: sourceID, Timestamp: newest.Timestamp, Windows: make(map[int64]WindowStats, len(a.windows))}
	for _, w := range a.windows {
		cutoff := newest.Timestamp - w.Milliseconds()
		var sum Averages
		n := 0
		r.newestFirst(func(ev metric.Event) bool {
			if ev.Timestamp >= cutoff {
				sum.CPU += ev.Metrics.CPU
				sum.Memory += ev.Metrics.Memory
				sum.Disk += ev.Metrics.Disk
				sum.NetworkIn += ev.Metrics.NetworkIn()
				sum.NetworkOut += ev.Metrics.NetworkOut()
				n++
			}
			return true
		})
		stats := WindowStats{Samples: n}
		if n > 0 {
			f := float64(n)
			stats.Averages = &Averages{
				CPU:        sum.CPU / f,
				Memory:     sum.Memory / f,
				Disk:       sum.Disk / f,
				NetworkIn:  sum.NetworkIn / f,
				NetworkOut: sum.NetworkOut / f,
			}
		}
		res.Windows[w.Milliseconds()] = stats
	}
	return res
}
