package internal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector(t *testing.T) {
	t.Run("Creation", func(t *testing.T) {
		mc := NewMetricsCollector()
		require.NotNil(t, mc)
		assert.False(t, mc.startTime.IsZero())

		m := mc.GetMetrics()
		assert.Zero(t, m.MinProcessingTime, "unset minimum should read as zero")
	})

	t.Run("RecordOperation", func(t *testing.T) {
		mc := NewMetricsCollector()

		mc.Begin()
		mc.RecordOperation(OpSerialize, 10*time.Millisecond, true, 128)
		mc.Begin()
		mc.RecordOperation(OpDeserialize, 30*time.Millisecond, false, 64)

		m := mc.GetMetrics()
		assert.Equal(t, int64(1), m.Serializations)
		assert.Equal(t, int64(1), m.Deserializations)
		assert.Equal(t, int64(1), m.FailedOps)
		assert.Equal(t, int64(128), m.BytesWritten)
		assert.Equal(t, int64(64), m.BytesRead)
		assert.Equal(t, 30*time.Millisecond, m.MaxProcessingTime)
		assert.Equal(t, 10*time.Millisecond, m.MinProcessingTime)
		assert.Equal(t, 20*time.Millisecond, m.AvgProcessingTime)
		assert.Zero(t, m.ActiveOps)
	})

	t.Run("FailedSerializeWritesNoBytes", func(t *testing.T) {
		mc := NewMetricsCollector()
		mc.Begin()
		mc.RecordOperation(OpSerialize, time.Millisecond, false, 999)
		assert.Zero(t, mc.GetMetrics().BytesWritten)
	})

	t.Run("ErrorsByType", func(t *testing.T) {
		mc := NewMetricsCollector()
		mc.RecordError("depth limit exceeded")
		mc.RecordError("depth limit exceeded")
		mc.RecordError("circular reference detected")

		m := mc.GetMetrics()
		assert.Equal(t, int64(2), m.ErrorsByType["depth limit exceeded"])
		assert.Equal(t, int64(1), m.ErrorsByType["circular reference detected"])
	})

	t.Run("ConcurrentRecording", func(t *testing.T) {
		mc := NewMetricsCollector()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					mc.Begin()
					mc.RecordOperation(OpSerialize, time.Microsecond, true, 1)
				}
			}()
		}
		wg.Wait()

		m := mc.GetMetrics()
		assert.Equal(t, int64(1000), m.Serializations)
		assert.Equal(t, int64(1000), m.BytesWritten)
		assert.GreaterOrEqual(t, m.MaxActiveOps, int64(1))
		assert.Zero(t, m.ActiveOps)
	})

	t.Run("Summary", func(t *testing.T) {
		mc := NewMetricsCollector()
		mc.RecordBatch()
		assert.Contains(t, mc.Summary(), "operations: 0 serialize")
		assert.Equal(t, int64(1), mc.GetMetrics().Batches)
	})
}
