// Package metrics is the process-wide metrics registry from spec.md
// §4.1: a thread-safe registry of named Counters, Meters, Histograms and
// DataLists that renders a JSON snapshot on demand. It is grounded on the
// teacher's pkg/metrics package (a package-level statsd-forwarding
// singleton), generalized to also hold local state so GET /metrics can
// return a read-back report — something a fire-and-forget statsd client
// cannot do. Every counter, meter and histogram update is still mirrored
// to statsd (see statsd.go; DataLists are not) so
// the DataDog dependency keeps doing its ambient job.
package metrics

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/clipper-go/predictserve/internal/logging"
)

type metricKind int

const (
	kindCounter metricKind = iota
	kindMeter
	kindHistogram
	kindDataList
)

type entry interface {
	kind() metricKind
	reset()
}

// Registry is a single process-wide store of named metrics. The zero
// value is not usable; construct with New.
type Registry struct {
	// registerMu guards insertion into entries (spec.md: "insertion is
	// guarded by a single writer lock").
	registerMu sync.RWMutex
	entries    map[string]entry

	// reportMu serializes report_metrics calls against each other so a
	// clearing reporter sees a consistent snapshot relative to other
	// reporters (spec.md §4.1).
	reportMu sync.Mutex

	reservoirSize int

	// sink is the registry's statsd forwarder, attached once via SetSink
	// before any metric is created; every Counter/Meter/Histogram this
	// registry creates afterward mirrors its updates to it.
	sink *StatsDSink

	tickerStop chan struct{}
	tickerOnce sync.Once
}

// SetSink attaches the statsd sink new metrics will forward updates to.
// Call this once, immediately after New, before any Create* call —
// metrics already created before SetSink runs keep forwarding to no
// sink, matching the teacher's single package-level Init() ordering.
func (r *Registry) SetSink(sink *StatsDSink) {
	r.sink = sink
}

var component = logging.Component("METRICS")

// New creates an empty registry and starts its background meter-tick
// goroutine.
func New(reservoirSize int) *Registry {
	if reservoirSize <= 0 {
		reservoirSize = DefaultHistogramReservoirSize
	}
	r := &Registry{
		entries:       make(map[string]entry),
		reservoirSize: reservoirSize,
		tickerStop:    make(chan struct{}),
	}
	go r.runMeterTicker()
	return r
}

// Stop halts the background EWMA ticker. Safe to call multiple times.
func (r *Registry) Stop() {
	r.tickerOnce.Do(func() { close(r.tickerStop) })
}

func (r *Registry) runMeterTicker() {
	ticker := time.NewTicker(meterTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.tickerStop:
			return
		case <-ticker.C:
			r.registerMu.RLock()
			for _, e := range r.entries {
				if m, ok := e.(*Meter); ok {
					m.tick()
				}
			}
			r.registerMu.RUnlock()
		}
	}
}

// CreateCounter returns the named Counter, creating it if it does not
// already exist. Re-creating a name of a different kind panics with a
// type-check failure, per spec.md ("re-creating returns the existing
// handle with a type check that fails if kinds differ").
func (r *Registry) CreateCounter(name string) *Counter {
	e := r.getOrCreate(name, kindCounter, func() entry { return &Counter{name: name, sink: r.sink} })
	return e.(*Counter)
}

// CreateMeter returns the named Meter, creating it if needed.
func (r *Registry) CreateMeter(name string) *Meter {
	e := r.getOrCreate(name, kindMeter, func() entry { return newMeter(name, r.sink) })
	return e.(*Meter)
}

// CreateHistogram returns the named Histogram, creating it if needed.
func (r *Registry) CreateHistogram(name string) *Histogram {
	e := r.getOrCreate(name, kindHistogram, func() entry { return newHistogram(r.reservoirSize, name, r.sink) })
	return e.(*Histogram)
}

// CreateDataList returns the named DataList, creating it if needed.
func (r *Registry) CreateDataList(name string) *DataList {
	e := r.getOrCreate(name, kindDataList, func() entry { return newDataList() })
	return e.(*DataList)
}

func (r *Registry) getOrCreate(name string, want metricKind, ctor func() entry) entry {
	r.registerMu.RLock()
	if e, ok := r.entries[name]; ok {
		r.registerMu.RUnlock()
		if e.kind() != want {
			logging.Panic(fmt.Sprintf("metric %q re-created with a different kind", name), nil)
		}
		return e
	}
	r.registerMu.RUnlock()

	r.registerMu.Lock()
	defer r.registerMu.Unlock()
	if e, ok := r.entries[name]; ok {
		if e.kind() != want {
			logging.Panic(fmt.Sprintf("metric %q re-created with a different kind", name), nil)
		}
		return e
	}
	e := ctor()
	r.entries[name] = e
	return e
}

// Report is the JSON-serializable snapshot of the whole registry.
type Report struct {
	Counters   map[string]int64             `json:"counters"`
	Meters     map[string]MeterSnapshot     `json:"meters"`
	Histograms map[string]HistogramSnapshot `json:"histograms"`
	DataLists  map[string][]interface{}     `json:"data_lists"`
}

// MeterSnapshot is the reported view of a Meter.
type MeterSnapshot struct {
	Count       int64   `json:"count"`
	Rate1Min    float64 `json:"m1_rate"`
	Rate5Min    float64 `json:"m5_rate"`
	Rate15Min   float64 `json:"m15_rate"`
}

// ReportMetrics renders a JSON snapshot of every registered metric. When
// clear is true, every counter, meter, histogram and data list is reset
// to its initial state atomically relative to other reporters (spec.md
// §4.1). Histogram reservoirs may still be observed mid-update by
// concurrent Update calls that are not themselves guarded by reportMu —
// sampling is probabilistic and tolerant, per spec.md §5.
func (r *Registry) ReportMetrics(clear bool) (string, error) {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()

	r.registerMu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	snapshotEntries := make(map[string]entry, len(r.entries))
	for _, name := range names {
		snapshotEntries[name] = r.entries[name]
	}
	r.registerMu.RUnlock()

	report := Report{
		Counters:   make(map[string]int64),
		Meters:     make(map[string]MeterSnapshot),
		Histograms: make(map[string]HistogramSnapshot),
		DataLists:  make(map[string][]interface{}),
	}

	for name, e := range snapshotEntries {
		switch m := e.(type) {
		case *Counter:
			report.Counters[name] = m.Value()
		case *Meter:
			r1, r5, r15 := m.Rates()
			report.Meters[name] = MeterSnapshot{Count: m.Count(), Rate1Min: r1, Rate5Min: r5, Rate15Min: r15}
		case *Histogram:
			report.Histograms[name] = m.Snapshot()
		case *DataList:
			report.DataLists[name] = m.Snapshot()
		}
		if clear {
			e.reset()
		}
	}

	buf, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
