package metrics

import "sync/atomic"

// Counter is a monotonic 64-bit integer, per spec.md §4.1.
type Counter struct {
	value int64
	name  string
	sink  *StatsDSink
}

// Increment adds delta to the counter. delta may be negative only in the
// degenerate sense that the spec calls this monotonic; callers are
// expected to pass non-negative deltas. Every increment is also mirrored
// to the registry's statsd sink, if one is attached, the same way the
// teacher's pkg/metrics forwards every update to DataDog.
func (c *Counter) Increment(delta int64) {
	atomic.AddInt64(&c.value, delta)
	if c.sink != nil {
		c.sink.Count(c.name, delta, nil)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

func (c *Counter) reset() {
	atomic.StoreInt64(&c.value, 0)
}

func (c *Counter) kind() metricKind { return kindCounter }
