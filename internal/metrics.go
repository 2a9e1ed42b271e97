package internal

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Operation kinds tracked by the collector
const (
	OpSerialize   = "serialize"
	OpDeserialize = "deserialize"
)

// MetricsCollector counts codec operations with atomic counters
type MetricsCollector struct {
	serializations   int64
	deserializations int64
	failedOps        int64
	bytesWritten     int64
	bytesRead        int64
	batches          int64

	totalProcessingTime int64
	maxProcessingTime   int64
	minProcessingTime   int64

	activeOps int64
	maxActive int64

	errorsByType sync.Map
	startTime    time.Time
}

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:         time.Now(),
		minProcessingTime: 1<<63 - 1,
	}
}

// Begin marks the start of an operation and returns its start time
func (mc *MetricsCollector) Begin() time.Time {
	updateMax(&mc.maxActive, atomic.AddInt64(&mc.activeOps, 1))
	return time.Now()
}

// RecordOperation records a finished operation of the given kind
func (mc *MetricsCollector) RecordOperation(kind string, duration time.Duration, success bool, size int) {
	atomic.AddInt64(&mc.activeOps, -1)

	switch kind {
	case OpSerialize:
		atomic.AddInt64(&mc.serializations, 1)
		if success {
			atomic.AddInt64(&mc.bytesWritten, int64(size))
		}
	case OpDeserialize:
		atomic.AddInt64(&mc.deserializations, 1)
		atomic.AddInt64(&mc.bytesRead, int64(size))
	}
	if !success {
		atomic.AddInt64(&mc.failedOps, 1)
	}

	if ns := duration.Nanoseconds(); ns > 0 {
		atomic.AddInt64(&mc.totalProcessingTime, ns)
		updateMax(&mc.maxProcessingTime, ns)
		updateMin(&mc.minProcessingTime, ns)
	}
}

// RecordBatch counts one batch call
func (mc *MetricsCollector) RecordBatch() {
	atomic.AddInt64(&mc.batches, 1)
}

// RecordError counts an error by its type label
func (mc *MetricsCollector) RecordError(errorType string) {
	actual, _ := mc.errorsByType.LoadOrStore(errorType, new(int64))
	atomic.AddInt64(actual.(*int64), 1)
}

// GetMetrics returns a consistent-enough snapshot of the counters
func (mc *MetricsCollector) GetMetrics() Metrics {
	ser := atomic.LoadInt64(&mc.serializations)
	de := atomic.LoadInt64(&mc.deserializations)
	total := atomic.LoadInt64(&mc.totalProcessingTime)

	var avg time.Duration
	if n := ser + de; n > 0 {
		avg = time.Duration(total / n)
	}
	minTime := atomic.LoadInt64(&mc.minProcessingTime)
	if minTime == 1<<63-1 {
		minTime = 0
	}

	errorsByType := make(map[string]int64)
	mc.errorsByType.Range(func(key, value any) bool {
		errorsByType[key.(string)] = atomic.LoadInt64(value.(*int64))
		return true
	})

	return Metrics{
		Serializations:      ser,
		Deserializations:    de,
		FailedOps:           atomic.LoadInt64(&mc.failedOps),
		BytesWritten:        atomic.LoadInt64(&mc.bytesWritten),
		BytesRead:           atomic.LoadInt64(&mc.bytesRead),
		Batches:             atomic.LoadInt64(&mc.batches),
		TotalProcessingTime: time.Duration(total),
		AvgProcessingTime:   avg,
		MaxProcessingTime:   time.Duration(atomic.LoadInt64(&mc.maxProcessingTime)),
		MinProcessingTime:   time.Duration(minTime),
		ActiveOps:           atomic.LoadInt64(&mc.activeOps),
		MaxActiveOps:        atomic.LoadInt64(&mc.maxActive),
		Uptime:              time.Since(mc.startTime),
		ErrorsByType:        errorsByType,
	}
}

// Summary formats the counters for humans
func (mc *MetricsCollector) Summary() string {
	m := mc.GetMetrics()
	return fmt.Sprintf("operations: %d serialize, %d deserialize, %d failed; bytes: %d out, %d in; avg %v, max %v",
		m.Serializations, m.Deserializations, m.FailedOps, m.BytesWritten, m.BytesRead,
		m.AvgProcessingTime, m.MaxProcessingTime)
}

// Metrics is a snapshot of MetricsCollector
type Metrics struct {
	Serializations   int64
	Deserializations int64
	FailedOps        int64
	BytesWritten     int64
	BytesRead        int64
	Batches          int64

	TotalProcessingTime time.Duration
	AvgProcessingTime   time.Duration
	MaxProcessingTime   time.Duration
	MinProcessingTime   time.Duration

	ActiveOps    int64
	MaxActiveOps int64
	Uptime       time.Duration
	ErrorsByType map[string]int64
}

func updateMax(target *int64, value int64) {
	for {
		current := atomic.LoadInt64(target)
		if value <= current || atomic.CompareAndSwapInt64(target, current, value) {
			return
		}
	}
}

func updateMin(target *int64, value int64) {
	for {
		current := atomic.LoadInt64(target)
		if value >= current || atomic.CompareAndSwapInt64(target, current, value) {
			return
		}
	}
}
