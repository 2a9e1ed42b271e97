package jsongraph

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/panjf2000/ants/v2"
	pkgerrors "github.com/pkg/errors"
)

// BatchResult is the outcome of one element of a batch call
type BatchResult struct {
	Index int
	Text  string // SerializeBatch
	Value any    // DeserializeBatch
	Err   error
}

// workers returns the codec's worker pool, creating it on first use
func (c *Codec) workers() (*ants.Pool, error) {
	c.poolOnce.Do(func() {
		c.pool, c.poolErr = ants.NewPool(c.settings.BatchWorkers,
			ants.WithPanicHandler(func(p any) {
				c.logger.Error("Batch task panicked", "panic", fmt.Sprint(p), "codec_id", c.id())
			}))
		if c.poolErr != nil {
			c.poolErr = pkgerrors.Wrap(c.poolErr, "create batch worker pool")
		}
	})
	return c.pool, c.poolErr
}

// SerializeBatch serializes values concurrently. Each element's error is
// reported in its result; the returned error is for the batch as a whole,
// such as a cancelled context.
func (c *Codec) SerializeBatch(ctx context.Context, values []any) ([]BatchResult, error) {
	return c.runBatch(ctx, len(values), func(i int, r *BatchResult) {
		r.Text, r.Err = c.SerializeContext(ctx, values[i])
	})
}

// DeserializeBatch decodes each text into a new value of type t concurrently
func (c *Codec) DeserializeBatch(ctx context.Context, texts []string, t reflect.Type) ([]BatchResult, error) {
	return c.runBatch(ctx, len(texts), func(i int, r *BatchResult) {
		r.Value, r.Err = c.DeserializeType(texts[i], t)
	})
}

func (c *Codec) runBatch(ctx context.Context, n int, task func(i int, r *BatchResult)) ([]BatchResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	pool, err := c.workers()
	if err != nil {
		return nil, err
	}
	c.metrics.RecordBatch()

	results := make([]BatchResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		results[i].Index = i
		r := &results[i]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			task(r.Index, r)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, pkgerrors.Wrapf(err, "submit batch element %d", i)
		}
	}
	wg.Wait()
	return results, nil
}
