package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// meterTickInterval is the EWMA update cadence spec.md §4.1 requires
// ("exponentially-weighted moving averages updated on a 5-second tick").
const meterTickInterval = 5 * time.Second

// Meter counts events and exposes rolling 1/5/15-minute rates computed
// with the classic Unix-load-average EWMA formula (the same algorithm
// Coda Hale style metrics libraries use, and the one the original
// Clipper C++ metrics.hpp exposes as clipper::metrics::Meter).
type Meter struct {
	count       int64
	uncounted   int64 // events since the last tick, not yet folded into the EWMAs
	m1, m5, m15 ewma
	initialized bool
	mu          sync.Mutex

	name string
	sink *StatsDSink
}

func newMeter(name string, sink *StatsDSink) *Meter {
	return &Meter{
		m1:   newEWMA(1 * time.Minute),
		m5:   newEWMA(5 * time.Minute),
		m15:  newEWMA(15 * time.Minute),
		name: name,
		sink: sink,
	}
}

// Mark records n events, mirroring the count to the registry's statsd
// sink, if attached.
func (m *Meter) Mark(n int64) {
	atomic.AddInt64(&m.count, n)
	atomic.AddInt64(&m.uncounted, n)
	if m.sink != nil {
		m.sink.Count(m.name, n, nil)
	}
}

// Count returns the total number of events marked since creation (or
// the last reset).
func (m *Meter) Count() int64 {
	return atomic.LoadInt64(&m.count)
}

// tick folds the events accumulated since the previous tick into each
// EWMA. Called by the registry's background ticker goroutine.
func (m *Meter) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := atomic.SwapInt64(&m.uncounted, 0)
	m.m1.update(n)
	m.m5.update(n)
	m.m15.update(n)
	if !m.initialized {
		m.initialized = true
	}
}

// Rates returns the 1, 5, and 15 minute event rates, in events/second.
func (m *Meter) Rates() (r1, r5, r15 float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m1.rate(), m.m5.rate(), m.m15.rate()
}

func (m *Meter) reset() {
	atomic.StoreInt64(&m.count, 0)
	atomic.StoreInt64(&m.uncounted, 0)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m1 = newEWMA(1 * time.Minute)
	m.m5 = newEWMA(5 * time.Minute)
	m.m15 = newEWMA(15 * time.Minute)
	m.initialized = false
}

func (m *Meter) kind() metricKind { return kindMeter }

// ewma implements a single exponentially-weighted moving average over a
// fixed window, ticked every meterTickInterval.
type ewma struct {
	alpha   float64
	rateSet bool
	value   float64
}

func newEWMA(window time.Duration) ewma {
	alpha := 1 - math.Exp(-float64(meterTickInterval)/float64(window))
	return ewma{alpha: alpha}
}

func (e *ewma) update(n int64) {
	instantRate := float64(n) / meterTickInterval.Seconds()
	if e.rateSet {
		e.value += e.alpha * (instantRate - e.value)
	} else {
		e.value = instantRate
		e.rateSet = true
	}
}

func (e *ewma) rate() float64 {
	return e.value
}
