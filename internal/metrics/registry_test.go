package metrics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCounterIdempotent(t *testing.T) {
	r := New(0)
	defer r.Stop()

	c1 := r.CreateCounter("requests.total")
	c1.Increment(5)
	c2 := r.CreateCounter("requests.total")

	assert.Same(t, c1, c2)
	assert.Equal(t, int64(5), c2.Value())
}

func TestCreateCounterTypeMismatchPanics(t *testing.T) {
	r := New(0)
	defer r.Stop()

	r.CreateMeter("dup.name")
	assert.Panics(t, func() {
		r.CreateCounter("dup.name")
	})
}

func TestReportMetricsClearResetsCounters(t *testing.T) {
	r := New(0)
	defer r.Stop()

	r.CreateCounter("a").Increment(3)
	r.CreateCounter("b").Increment(7)

	body, err := r.ReportMetrics(true)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal([]byte(body), &report))
	assert.Equal(t, int64(3), report.Counters["a"])
	assert.Equal(t, int64(7), report.Counters["b"])

	body2, err := r.ReportMetrics(false)
	require.NoError(t, err)
	var report2 Report
	require.NoError(t, json.Unmarshal([]byte(body2), &report2))
	assert.Equal(t, int64(0), report2.Counters["a"])
	assert.Equal(t, int64(0), report2.Counters["b"])
}

func TestHistogramSnapshotPercentiles(t *testing.T) {
	h := newHistogram(1000, "test.histogram", nil)
	for i := 1; i <= 100; i++ {
		h.Update(float64(i))
	}
	snap := h.Snapshot()
	assert.Equal(t, int64(100), snap.Count)
	assert.Equal(t, 1.0, snap.Min)
	assert.Equal(t, 100.0, snap.Max)
	assert.InDelta(t, 50.5, snap.P50, 1.5)
	assert.InDelta(t, 99.0, snap.P99, 2)
}

func TestDataListAppendAndSnapshot(t *testing.T) {
	d := newDataList()
	d.Append("first")
	d.Append("second")
	snap := d.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "first", snap[0])
	assert.Equal(t, "second", snap[1])
}

func TestMeterTickComputesRate(t *testing.T) {
	m := newMeter("test.meter", nil)
	m.Mark(300) // 300 events over the assumed 5s tick == 60/s instant rate
	m.tick()
	r1, r5, r15 := m.Rates()
	assert.InDelta(t, 60.0, r1, 0.01)
	assert.InDelta(t, 60.0, r5, 0.01)
	assert.InDelta(t, 60.0, r15, 0.01)
	assert.Equal(t, int64(300), m.Count())
}
