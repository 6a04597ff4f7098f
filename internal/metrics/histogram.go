package metrics

import (
	"math"
	"math/rand"
	"sort"
	"sync"
)

// DefaultHistogramReservoirSize is the fixed reservoir capacity from
// spec.md §4.1.
const DefaultHistogramReservoirSize = 32768

// Histogram is a fixed-capacity reservoir sample used to estimate the
// distribution of an observed value without retaining every sample.
// Sampling uses Algorithm R (reservoir sampling), the same approach the
// original Clipper metrics.hpp Histogram takes over an unbounded stream.
type Histogram struct {
	mu        sync.Mutex
	capacity  int
	values    []float64
	count     int64 // total number of observations, including ones dropped by sampling
	min, max  float64
	sum       float64
	sumSquare float64
	rng       *rand.Rand

	name string
	sink *StatsDSink
}

func newHistogram(capacity int, name string, sink *StatsDSink) *Histogram {
	if capacity <= 0 {
		capacity = DefaultHistogramReservoirSize
	}
	return &Histogram{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
		rng:      rand.New(rand.NewSource(1)),
		name:     name,
		sink:     sink,
	}
}

// Update records one observation, mirroring it to the registry's statsd
// sink, if attached, as a DataDog histogram metric.
func (h *Histogram) Update(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		h.min, h.max = value, value
	} else {
		if value < h.min {
			h.min = value
		}
		if value > h.max {
			h.max = value
		}
	}
	h.sum += value
	h.sumSquare += value * value
	h.count++

	if len(h.values) < h.capacity {
		h.values = append(h.values, value)
	} else {
		// Algorithm R: replace a uniformly random prior sample with
		// probability capacity/count.
		j := h.rng.Int63n(h.count)
		if j < int64(h.capacity) {
			h.values[j] = value
		}
	}
	if h.sink != nil {
		h.sink.Histogram(h.name, value, nil)
	}
}

// HistogramSnapshot is the reported view of a Histogram.
type HistogramSnapshot struct {
	Count  int64   `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	P999   float64 `json:"p999"`
}

// Snapshot computes min/max/mean/std-dev/percentiles over the current
// reservoir. Percentiles are estimated by sorting the reservoir, so this
// is O(reservoir size log reservoir size); acceptable for an on-demand
// /metrics report, not for the hot path.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return HistogramSnapshot{}
	}
	mean := h.sum / float64(h.count)
	variance := h.sumSquare/float64(h.count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	sorted := make([]float64, len(h.values))
	copy(sorted, h.values)
	sort.Float64s(sorted)

	return HistogramSnapshot{
		Count:  h.count,
		Min:    h.min,
		Max:    h.max,
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		P50:    percentile(sorted, 0.50),
		P90:    percentile(sorted, 0.90),
		P95:    percentile(sorted, 0.95),
		P99:    percentile(sorted, 0.99),
		P999:   percentile(sorted, 0.999),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func (h *Histogram) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = h.values[:0]
	h.count = 0
	h.min, h.max, h.sum, h.sumSquare = 0, 0, 0, 0
}

func (h *Histogram) kind() metricKind { return kindHistogram }
