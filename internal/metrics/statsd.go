package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/clipper-go/predictserve/internal/logging"
)

// StatsDSink mirrors every Counter increment and Histogram observation to
// a DataDog/telegraf statsd endpoint, exactly as the teacher's
// pkg/metrics package does for the whole application — kept here as the
// registry's secondary sink so the ambient stack's telegraf/DataDog
// pipeline still receives every metric this process produces, even
// though the primary read path is now the registry's own JSON report.
type StatsDSink struct {
	client       *statsd.Client
	samplingRate float64
}

// NewStatsDSink dials the telegraf/DataDog agent. On failure it falls
// back to a local no-op-safe client rather than making metrics fatal to
// the process, matching the teacher's getDefaultClient() fallback.
func NewStatsDSink(telegrafHost, telegrafPort string, samplingRate float64, globalTags []string) *StatsDSink {
	addr := fmt.Sprintf("%s:%s", telegrafHost, telegrafPort)
	client, err := statsd.New(addr, statsd.WithTags(globalTags))
	if err != nil {
		logging.Error("statsd client initialization failed, metrics will be unavailable", err)
		client, _ = statsd.New("localhost:8125", statsd.WithoutTelemetry())
	}
	return &StatsDSink{client: client, samplingRate: samplingRate}
}

func (s *StatsDSink) Count(name string, value int64, tags []string) {
	if err := s.client.Count(name, value, tags, s.samplingRate); err != nil {
		logging.PercentError("statsd count failed", err, 5)
	}
}

func (s *StatsDSink) Timing(name string, value time.Duration, tags []string) {
	if err := s.client.Timing(name, value, tags, s.samplingRate); err != nil {
		logging.PercentError("statsd timing failed", err, 5)
	}
}

func (s *StatsDSink) Gauge(name string, value float64, tags []string) {
	if err := s.client.Gauge(name, value, tags, s.samplingRate); err != nil {
		logging.PercentError("statsd gauge failed", err, 5)
	}
}

func (s *StatsDSink) Histogram(name string, value float64, tags []string) {
	if err := s.client.Histogram(name, value, tags, s.samplingRate); err != nil {
		logging.PercentError("statsd histogram failed", err, 5)
	}
}
