package jsongraph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cybergodev/jsongraph/internal"
)

// Stats is a snapshot of a codec's counters and the shared type caches
type Stats struct {
	Serializations   int64
	Deserializations int64
	FailedOps        int64
	BytesWritten     int64
	BytesRead        int64
	Batches          int64

	AvgProcessingTime time.Duration
	MaxProcessingTime time.Duration
	MinProcessingTime time.Duration
	MaxActiveOps      int64
	ErrorsByType      map[string]int64

	// Process-wide member table cache
	TypeCacheHits   int64
	TypeCacheMisses int64
	TypeCacheBuilds int64
	TypeCacheRatio  float64 // percent

	IsClosed bool
}

func hitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total) * 100.0
}

// Stats returns the codec's statistics
func (c *Codec) Stats() Stats {
	m := c.metrics.GetMetrics()
	hits, misses, builds := typeInfos.Stats()

	return Stats{
		Serializations:    m.Serializations,
		Deserializations:  m.Deserializations,
		FailedOps:         m.FailedOps,
		BytesWritten:      m.BytesWritten,
		BytesRead:         m.BytesRead,
		Batches:           m.Batches,
		AvgProcessingTime: m.AvgProcessingTime,
		MaxProcessingTime: m.MaxProcessingTime,
		MinProcessingTime: m.MinProcessingTime,
		MaxActiveOps:      m.MaxActiveOps,
		ErrorsByType:      m.ErrorsByType,
		TypeCacheHits:     hits,
		TypeCacheMisses:   misses,
		TypeCacheBuilds:   builds,
		TypeCacheRatio:    hitRatio(hits, misses),
		IsClosed:          c.IsClosed(),
	}
}

// Collector exposes the codec's counters to prometheus. Register it with
// a prometheus.Registerer; labels identify the codec when several are
// registered.
func (c *Codec) Collector(constLabels ...prometheus.Labels) prometheus.Collector {
	var labels prometheus.Labels
	if len(constLabels) > 0 {
		labels = constLabels[0]
	}
	return newStatsCollector(c.metrics, labels)
}

type statsCollector struct {
	metrics *internal.MetricsCollector

	operations *prometheus.Desc
	failed     *prometheus.Desc
	bytes      *prometheus.Desc
	batches    *prometheus.Desc
	seconds    *prometheus.Desc
	errors     *prometheus.Desc
	typeCache  *prometheus.Desc
}

func newStatsCollector(m *internal.MetricsCollector, labels prometheus.Labels) *statsCollector {
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("jsongraph", "", name), help, variable, labels)
	}
	return &statsCollector{
		metrics:    m,
		operations: desc("operations_total", "Conversions by direction.", "op"),
		failed:     desc("failed_operations_total", "Conversions that returned an error."),
		bytes:      desc("bytes_total", "JSON bytes written and read.", "direction"),
		batches:    desc("batches_total", "Batch calls."),
		seconds:    desc("processing_seconds_total", "Time spent converting."),
		errors:     desc("errors_total", "Errors by kind.", "error_type"),
		typeCache:  desc("type_cache_lookups_total", "Member table cache lookups.", "result"),
	}
}

func (s *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.operations
	ch <- s.failed
	ch <- s.bytes
	ch <- s.batches
	ch <- s.seconds
	ch <- s.errors
	ch <- s.typeCache
}

func (s *statsCollector) Collect(ch chan<- prometheus.Metric) {
	m := s.metrics.GetMetrics()
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(s.operations, m.Serializations, internal.OpSerialize)
	counter(s.operations, m.Deserializations, internal.OpDeserialize)
	counter(s.failed, m.FailedOps)
	counter(s.bytes, m.BytesWritten, "out")
	counter(s.bytes, m.BytesRead, "in")
	counter(s.batches, m.Batches)
	ch <- prometheus.MustNewConstMetric(s.seconds, prometheus.CounterValue, m.TotalProcessingTime.Seconds())
	for kind, n := range m.ErrorsByType {
		counter(s.errors, n, kind)
	}

	hits, misses, _ := typeInfos.Stats()
	counter(s.typeCache, hits, "hit")
	counter(s.typeCache, misses, "miss")
}
