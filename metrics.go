package media

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report ingestion activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ingestions        *prometheus.CounterVec
	ingestDuration    prometheus.Histogram
	normalizeFailures prometheus.Counter
	leakedBlobs       prometheus.Counter
	deletions         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Tests
// should pass a fresh prometheus.NewRegistry() to avoid duplicate
// registration errors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ingestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media",
				Name:      "ingestions_total",
				Help:      "Image uploads by outcome.",
			},
			[]string{"result"},
		),
		ingestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "media",
				Name:      "ingest_duration_seconds",
				Help:      "Time spent ingesting one image, normalization included.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		normalizeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "media",
				Name:      "normalize_failures_total",
				Help:      "Uploads stored unoptimized because decoding or encoding failed.",
			},
		),
		leakedBlobs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "media",
				Name:      "leaked_blobs_total",
				Help:      "Blobs left without metadata after a failed compensation; need out-of-band cleanup.",
			},
		),
		deletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media",
				Name:      "deletions_total",
				Help:      "Image deletions by outcome.",
			},
			[]string{"result"},
		),
	}
	collectors := []prometheus.Collector{m.ingestions, m.ingestDuration, m.normalizeFailures, m.leakedBlobs, m.deletions}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ingested(result string, started time.Time) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(result).Inc()
	m.ingestDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) normalizeFailed() {
	if m == nil {
		return
	}
	m.normalizeFailures.Inc()
}

func (m *Metrics) blobLeaked() {
	if m == nil {
		return
	}
	m.leakedBlobs.Inc()
}

func (m *Metrics) deleted(result string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(result).Inc()
}
