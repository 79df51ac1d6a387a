package aggregate

import "github.com/pulsegrid/pulsegrid/internal/metric"

// ring is a fixed-capacity circular buffer of samples for one source.
// Once full, each insert evicts the oldest sample.
type ring struct {
	buf  []metric.Event
	head int // next write position
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]metric.Event, capacity)}
}

func (r *ring) push(ev metric.Event) {
	r.buf[r.head] = ev
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring) len() int { return r.size }

// newestFirst visits samples from most recent to oldest, stopping early when
// fn returns false.
func (r *ring) newestFirst(fn func(metric.Event) bool) {
	for i := 0; i < r.size; i++ {
		idx := (r.head - 1 - i + len(r.buf)) % len(r.buf)
		if !fn(r.buf[idx]) {
			return
		}
	}
}

// newest returns the most recently pushed sample.
func (r *ring) newest() (metric.Event, bool) {
	if r.size == 0 {
		return metric.Event{}, false
	}
	return r.buf[(r.head-1+len(r.buf))%len(r.buf)], true
}
