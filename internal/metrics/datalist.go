package metrics

import "sync"

// DataList is an append-only list of observations, reported in full
// (spec.md §4.1). It intentionally stores interface{} rather than a type
// parameter: the registry keeps every metric kind in one map keyed by
// name, and Go's type system does not let a map hold heterogeneously
// instantiated generic types without erasing to interface{} anyway, so
// DataList erases explicitly and reports its elements as-is. This is for
// low-volume structured events (e.g. per-connection last-seen
// timestamps), not high-frequency samples, which belong in a Histogram.
type DataList struct {
	mu     sync.Mutex
	values []interface{}
}

func newDataList() *DataList {
	return &DataList{}
}

// Append adds one observation.
func (d *DataList) Append(v interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values = append(d.values, v)
}

// Snapshot returns a copy of every observation recorded so far.
func (d *DataList) Snapshot() []interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]interface{}, len(d.values))
	copy(out, d.values)
	return out
}

func (d *DataList) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values = nil
}

func (d *DataList) kind() metricKind { return kindDataList }
