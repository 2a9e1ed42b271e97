package jsongraph

import (
	"bytes"
	"context"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCodecLifecycle(t *testing.T) {
	t.Run("closed codecs refuse work", func(t *testing.T) {
		helper := NewTestHelper(t)
		c := New()
		helper.AssertFalse(c.IsClosed())
		helper.AssertNoError(c.Close())
		helper.AssertNoError(c.Close(), "closing twice is harmless")
		helper.AssertTrue(c.IsClosed())
		helper.AssertTrue(c.Stats().IsClosed)

		_, err := c.Serialize(1)
		helper.AssertErrorIs(err, ErrCodecClosed)
		var n int
		helper.AssertErrorIs(c.Deserialize("1", &n), ErrCodecClosed)
		_, err = c.Parse("1")
		helper.AssertErrorIs(err, ErrCodecClosed)
		_, err = c.SerializeBatch(context.Background(), []any{1})
		helper.AssertErrorIs(err, ErrCodecClosed)
	})

	t.Run("invalid settings", func(t *testing.T) {
		helper := NewTestHelper(t)
		helper.AssertPanic(func() { New(&Settings{Indent: "x"}) })

		_, err := Serialize(1, &Settings{FloatPrecision: -1})
		helper.AssertErrorIs(err, ErrInvalidSettings)
		helper.AssertErrorContains(err, "FloatPrecision")
	})

	t.Run("settings are copied", func(t *testing.T) {
		helper := NewTestHelper(t)
		s := IndentedSettings()
		c := New(s)
		s.Indented = false
		c.Settings().SortMembers = false

		helper.AssertTrue(c.Settings().Indented)
		helper.AssertTrue(c.Settings().SortMembers)
	})

	t.Run("zero settings take defaults", func(t *testing.T) {
		helper := NewTestHelper(t)
		c := New(&Settings{OmitNull: true})
		got := c.Settings()
		helper.AssertEqual(DefaultIndent, got.Indent)
		helper.AssertTrue(got.BatchWorkers > 0)
		helper.AssertTrue(got.OmitNull)
	})
}

func TestDeserializeTargets(t *testing.T) {
	helper := NewTestHelper(t)
	c := New()

	helper.AssertErrorIs(c.Deserialize("1", 1), ErrInvalidTarget)
	helper.AssertErrorIs(c.Deserialize("1", (*int)(nil)), ErrInvalidTarget)
	helper.AssertErrorIs(c.Deserialize("1", nil), ErrInvalidTarget)

	v, err := c.DeserializeType(`{"name":"a"}`, reflect.TypeOf((*person)(nil)).Elem())
	helper.AssertNoError(err)
	helper.AssertEqual(person{Name: "a"}, v)

	v, err = c.DeserializeType(`[1,"x"]`, nil)
	helper.AssertNoError(err)
	helper.AssertEqual([]any{1, "x"}, v)

	p, err := DeserializeAs[*person](`{"name":"b","home":{"city":"c"}}`)
	helper.AssertNoError(err)
	helper.AssertEqual("c", p.Home.City)

	_, err = DeserializeAs[person](`{"name":`)
	helper.AssertErrorIs(err, ErrInvalidJSON)
}

func TestMarshalCompat(t *testing.T) {
	helper := NewTestHelper(t)
	data, err := Marshal(person{Name: "a", Age: 1})
	helper.AssertNoError(err)
	assertText(t, `{"name":"a","age":1,"home":null}`, string(data))

	var back person
	helper.AssertNoError(Unmarshal(data, &back))
	helper.AssertEqual(person{Name: "a", Age: 1}, back)

	helper.AssertErrorIs(Unmarshal([]byte("{"), &back), ErrUnexpectedEnd)
}

func TestSetDefaultCodec(t *testing.T) {
	helper := NewTestHelper(t)
	prev := getDefaultCodec()
	t.Cleanup(func() { SetDefaultCodec(prev) })

	compact := New(CompactSettings())
	SetDefaultCodec(compact)
	SetDefaultCodec(nil)

	data, err := Marshal(person{Name: "a"})
	helper.AssertNoError(err)
	assertText(t, `{"name":"a","age":0}`, string(data))

	// a closed default is replaced on next use
	helper.AssertNoError(compact.Close())
	data, err = Marshal(person{Name: "a"})
	helper.AssertNoError(err)
	assertText(t, `{"name":"a","age":0,"home":null}`, string(data))
	helper.AssertFalse(getDefaultCodec() == compact)
}

func TestBatch(t *testing.T) {
	c := New(&Settings{BatchWorkers: 2})
	t.Cleanup(func() { c.Close() })

	t.Run("serialize", func(t *testing.T) {
		helper := NewTestHelper(t)
		values := []any{1, "a", cyclicPair(), []int{1, 2}}
		results, err := c.SerializeBatch(context.Background(), values)
		helper.AssertNoError(err)
		helper.AssertEqual(len(values), len(results))

		helper.AssertEqual(`1`, results[0].Text)
		helper.AssertEqual(`"a"`, results[1].Text)
		helper.AssertErrorIs(results[2].Err, ErrCircularReference)
		helper.AssertEqual(`[1,2]`, results[3].Text)
		for i, r := range results {
			helper.AssertEqual(i, r.Index)
		}
	})

	t.Run("deserialize", func(t *testing.T) {
		helper := NewTestHelper(t)
		texts := []string{`{"name":"a"}`, `{"name":`, `{"name":"c","age":3}`}
		results, err := c.DeserializeBatch(context.Background(), texts, reflect.TypeOf((*person)(nil)).Elem())
		helper.AssertNoError(err)

		helper.AssertEqual(person{Name: "a"}, results[0].Value)
		helper.AssertErrorIs(results[1].Err, ErrInvalidJSON)
		helper.AssertNil(results[1].Value)
		helper.AssertEqual(person{Name: "c", Age: 3}, results[2].Value)
	})

	t.Run("many elements", func(t *testing.T) {
		helper := NewTestHelper(t)
		values := make([]any, 200)
		for i := range values {
			values[i] = i
		}
		results, err := c.SerializeBatch(context.Background(), values)
		helper.AssertNoError(err)
		helper.AssertEqual("199", results[199].Text)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.SerializeBatch(ctx, []any{1, 2})
		NewTestHelper(t).AssertErrorIs(err, context.Canceled)
	})

	t.Run("empty batch", func(t *testing.T) {
		helper := NewTestHelper(t)
		results, err := c.DeserializeBatch(context.Background(), nil, reflect.TypeOf((*int)(nil)).Elem())
		helper.AssertNoError(err)
		helper.AssertEqual(0, len(results))
	})
}

func TestStats(t *testing.T) {
	helper := NewTestHelper(t)
	c := New()

	_, err := c.Serialize([]int{1, 2})
	helper.AssertNoError(err)
	var p person
	helper.AssertNoError(c.Deserialize(`{"name":"a"}`, &p))
	helper.AssertError(c.Deserialize(`{"name":1}`, &p))
	_, err = c.SerializeBatch(context.Background(), []any{true})
	helper.AssertNoError(err)

	stats := c.Stats()
	helper.AssertEqual(int64(2), stats.Serializations)
	helper.AssertEqual(int64(2), stats.Deserializations)
	helper.AssertEqual(int64(1), stats.FailedOps)
	helper.AssertEqual(int64(len("[1,2]")+len("true")), stats.BytesWritten)
	helper.AssertEqual(int64(len(`{"name":"a"}`)+len(`{"name":1}`)), stats.BytesRead)
	helper.AssertEqual(int64(1), stats.Batches)
	helper.AssertEqual(int64(1), stats.ErrorsByType[ErrTypeMismatch.Error()])
	helper.AssertTrue(stats.TypeCacheHits+stats.TypeCacheMisses > 0)
	helper.AssertTrue(stats.MaxProcessingTime >= stats.MinProcessingTime)

	helper.AssertEqual(0.0, hitRatio(0, 0))
	helper.AssertEqual(75.0, hitRatio(3, 1))
}

func TestCollector(t *testing.T) {
	helper := NewTestHelper(t)
	c := New()
	_, err := c.Serialize("x")
	helper.AssertNoError(err)
	_, err = c.Parse("[")
	helper.AssertError(err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(c.Collector(prometheus.Labels{"codec": "test"}))
	families, err := reg.Gather()
	helper.AssertNoError(err)

	counters := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := f.GetName()
			for _, l := range m.GetLabel() {
				if l.GetName() != "codec" {
					key += "/" + l.GetValue()
				} else {
					helper.AssertEqual("test", l.GetValue())
				}
			}
			counters[key] = m.GetCounter().GetValue()
		}
	}

	helper.AssertEqual(1.0, counters["jsongraph_operations_total/serialize"])
	helper.AssertEqual(1.0, counters["jsongraph_operations_total/deserialize"])
	helper.AssertEqual(1.0, counters["jsongraph_failed_operations_total"])
	helper.AssertEqual(3.0, counters["jsongraph_bytes_total/out"])
	helper.AssertEqual(1.0, counters["jsongraph_bytes_total/in"])
	helper.AssertEqual(1.0, counters["jsongraph_errors_total/"+ErrUnexpectedEnd.Error()])

	// several codecs can be registered side by side
	reg.MustRegister(New().Collector(prometheus.Labels{"codec": "other"}))
}

func TestCodecLogging(t *testing.T) {
	helper := NewTestHelper(t)
	var buf bytes.Buffer
	s := DefaultSettings()
	s.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(s)

	_, err := c.Serialize(1)
	helper.AssertNoError(err)
	helper.AssertTrue(strings.Contains(buf.String(), `"msg":"Conversion completed"`), buf.String())
	helper.AssertTrue(strings.Contains(buf.String(), `"operation":"serialize"`))

	buf.Reset()
	helper.AssertError(c.Deserialize(`[1,]`, new([]int)))
	helper.AssertTrue(strings.Contains(buf.String(), `"level":"ERROR"`), buf.String())
	helper.AssertTrue(strings.Contains(buf.String(), `"error_type"`))

	helper.AssertEqual("abc", truncateString("abc", 5))
	helper.AssertEqual("ab...", truncateString("abcdefgh", 5))
	helper.AssertEqual("ab", truncateString("abcdefgh", 2))
}
