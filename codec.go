package jsongraph

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/cybergodev/jsongraph/internal"
)

// Codec converts between Go values and JSON text with fixed settings.
// A Codec is safe for concurrent use.
type Codec struct {
	settings *Settings
	logger   *slog.Logger
	metrics  *internal.MetricsCollector

	pool     *ants.Pool
	poolOnce sync.Once
	poolErr  error

	state     int32 // 0=active, 1=closing, 2=closed
	closeOnce sync.Once
}

// New creates a Codec. It panics when the settings are invalid; use
// Settings.Validate to check them first.
func New(settings ...*Settings) *Codec {
	var s *Settings
	if len(settings) > 0 {
		s = settings[0]
	}
	n, err := normalize(s)
	if err != nil {
		panic(fmt.Sprintf("invalid settings: %v", err))
	}
	return newCodec(n)
}

// newCodec builds a Codec around settings that are already normalized
func newCodec(n *Settings) *Codec {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default().With("component", "jsongraph-codec")
	}
	return &Codec{
		settings: n,
		logger:   logger,
		metrics:  internal.NewMetricsCollector(),
	}
}

// Settings returns a copy of the codec's settings
func (c *Codec) Settings() *Settings {
	return c.settings.Clone()
}

// Serialize writes v as JSON text
func (c *Codec) Serialize(v any) (string, error) {
	return c.SerializeContext(context.Background(), v)
}

// SerializeContext is Serialize with a context for logging
func (c *Codec) SerializeContext(ctx context.Context, v any) (string, error) {
	if err := c.checkClosed(); err != nil {
		return "", err
	}
	start := c.metrics.Begin()

	text, err := serialize(v, c.settings)

	duration := time.Since(start)
	c.metrics.RecordOperation(internal.OpSerialize, duration, err == nil, len(text))
	if err != nil {
		c.logError(ctx, internal.OpSerialize, err)
		return "", err
	}
	c.logOperation(ctx, internal.OpSerialize, len(text), duration)
	return text, nil
}

// Deserialize decodes text into target, which must be a non-nil pointer.
// target is left unchanged when decoding fails.
func (c *Codec) Deserialize(text string, target any) error {
	return c.DeserializeContext(context.Background(), text, target)
}

// DeserializeContext is Deserialize with a context for logging
func (c *Codec) DeserializeContext(ctx context.Context, text string, target any) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &CodecError{
			Op:      "deserialize",
			Offset:  -1,
			Message: fmt.Sprintf("target must be a non-nil pointer, got %T", target),
			Err:     ErrInvalidTarget,
		}
	}

	return c.observeRead(ctx, text, func() error {
		return deserializeInto(text, rv.Elem(), c.settings)
	})
}

// DeserializeType decodes text into a new value of type t
func (c *Codec) DeserializeType(text string, t reflect.Type) (any, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if t == nil {
		return c.Parse(text)
	}
	var out any
	err := c.observeRead(context.Background(), text, func() error {
		v, err := deserializeType(text, t, c.settings)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Parse decodes text into generic values: nil, bool, string, numbers,
// []any or typed slices, map[string]any or *OrderedMap, time.Time.
func (c *Codec) Parse(text string) (any, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	var out any
	err := c.observeRead(context.Background(), text, func() error {
		v, err := parse(text, c.settings)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Codec) observeRead(ctx context.Context, text string, decode func() error) error {
	start := c.metrics.Begin()
	err := decode()
	duration := time.Since(start)
	c.metrics.RecordOperation(internal.OpDeserialize, duration, err == nil, len(text))
	if err != nil {
		c.logError(ctx, internal.OpDeserialize, err)
		return err
	}
	c.logOperation(ctx, internal.OpDeserialize, len(text), duration)
	return nil
}

// Close releases the batch worker pool. Later calls fail with ErrCodecClosed.
func (c *Codec) Close() error {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.state, 1)
		if c.pool != nil {
			c.pool.Release()
		}
		atomic.StoreInt32(&c.state, 2)
		c.logger.Debug("Codec closed", "codec_id", c.id())
	})
	return nil
}

// IsClosed reports whether Close has been called
func (c *Codec) IsClosed() bool {
	return atomic.LoadInt32(&c.state) != 0
}

func (c *Codec) checkClosed() error {
	switch atomic.LoadInt32(&c.state) {
	case 0:
		return nil
	case 1:
		return &CodecError{Op: "check_closed", Offset: -1, Message: "codec is closing", Err: ErrCodecClosed}
	}
	return &CodecError{Op: "check_closed", Offset: -1, Message: "codec is closed", Err: ErrCodecClosed}
}

// serialize runs one write with normalized settings
func serialize(v any, s *Settings) (string, error) {
	w := newWriter(s)
	defer w.release()
	if err := w.writeRoot(v); err != nil {
		return "", err
	}
	return w.buf.String(), nil
}

// deserializeInto decodes into a copy of target and stores it on success
func deserializeInto(text string, target reflect.Value, s *Settings) error {
	tmp := reflect.New(target.Type())
	tmp.Elem().Set(target)

	p := newParseState(text, s)
	defer p.release()
	if err := p.decodeValue(tmp.Elem()); err != nil {
		return err
	}
	if err := p.finish(); err != nil {
		return err
	}
	target.Set(tmp.Elem())
	return nil
}

func deserializeType(text string, t reflect.Type, s *Settings) (any, error) {
	v := reflect.New(t).Elem()
	if err := deserializeInto(text, v, s); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func parse(text string, s *Settings) (any, error) {
	p := newParseState(text, s)
	defer p.release()
	v, err := p.parseAny()
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return v, nil
}
