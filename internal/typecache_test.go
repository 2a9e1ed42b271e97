package internal

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type cachedSample struct{ A int }

func TestTypeCache(t *testing.T) {
	t.Run("BuildsOnce", func(t *testing.T) {
		var c TypeCache[string]
		var calls int32
		build := func(t reflect.Type) string {
			atomic.AddInt32(&calls, 1)
			return t.String()
		}

		typ := reflect.TypeOf(cachedSample{})
		var wg sync.WaitGroup
		results := make([]string, 32)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.Load(typ, build)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		for _, r := range results {
			assert.Equal(t, "internal.cachedSample", r)
		}
		_, _, builds := c.Stats()
		assert.Equal(t, int64(1), builds)
	})

	t.Run("DistinctTypes", func(t *testing.T) {
		var c TypeCache[reflect.Kind]
		kind := func(t reflect.Type) reflect.Kind { return t.Kind() }
		assert.Equal(t, reflect.Int, c.Load(reflect.TypeOf(0), kind))
		assert.Equal(t, reflect.String, c.Load(reflect.TypeOf(""), kind))

		v, ok := c.Peek(reflect.TypeOf(0))
		assert.True(t, ok)
		assert.Equal(t, reflect.Int, v)
	})

	t.Run("Invalidate", func(t *testing.T) {
		var c TypeCache[int]
		n := 0
		build := func(reflect.Type) int { n++; return n }
		typ := reflect.TypeOf(cachedSample{})

		assert.Equal(t, 1, c.Load(typ, build))
		assert.Equal(t, 1, c.Load(typ, build))
		c.Invalidate(typ)
		assert.Equal(t, 2, c.Load(typ, build))
		c.Clear()
		_, ok := c.Peek(typ)
		assert.False(t, ok)
	})
}
