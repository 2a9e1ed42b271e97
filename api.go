package jsongraph

import (
	"reflect"
	"sync"
	"sync/atomic"
)

var (
	defaultCodec   atomic.Pointer[Codec]
	defaultCodecMu sync.Mutex
)

func getDefaultCodec() *Codec {
	if c := defaultCodec.Load(); c != nil && !c.IsClosed() {
		return c
	}

	defaultCodecMu.Lock()
	defer defaultCodecMu.Unlock()
	if c := defaultCodec.Load(); c != nil && !c.IsClosed() {
		return c
	}
	c := New()
	defaultCodec.Store(c)
	return c
}

// SetDefaultCodec replaces the codec behind the package-level functions.
// nil is ignored.
func SetDefaultCodec(c *Codec) {
	if c == nil {
		return
	}
	defaultCodecMu.Lock()
	defaultCodec.Store(c)
	defaultCodecMu.Unlock()
}

// codecFor returns the default codec, or a codec for the given settings.
// Unlike New it reports invalid settings as an error.
func codecFor(settings []*Settings) (*Codec, error) {
	if len(settings) == 0 || settings[0] == nil {
		return getDefaultCodec(), nil
	}
	n, err := normalize(settings[0])
	if err != nil {
		return nil, err
	}
	return newCodec(n), nil
}

// Serialize writes v as JSON text
func Serialize(v any, settings ...*Settings) (string, error) {
	c, err := codecFor(settings)
	if err != nil {
		return "", err
	}
	return c.Serialize(v)
}

// Marshal writes v as JSON with the default settings
func Marshal(v any) ([]byte, error) {
	text, err := getDefaultCodec().Serialize(v)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// MarshalIndent writes v as indented JSON, one level per indent
func MarshalIndent(v any, indent string) ([]byte, error) {
	s := DefaultSettings()
	s.Indented = true
	s.Indent = indent
	text, err := Serialize(v, s)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// Deserialize decodes text into target, which must be a non-nil pointer
func Deserialize(text string, target any, settings ...*Settings) error {
	c, err := codecFor(settings)
	if err != nil {
		return err
	}
	return c.Deserialize(text, target)
}

// DeserializeType decodes text into a new value of type t. A nil t decodes
// generic values like Parse.
func DeserializeType(text string, t reflect.Type, settings ...*Settings) (any, error) {
	c, err := codecFor(settings)
	if err != nil {
		return nil, err
	}
	return c.DeserializeType(text, t)
}

// DeserializeAs decodes text into a new T
func DeserializeAs[T any](text string, settings ...*Settings) (T, error) {
	var out T
	if err := Deserialize(text, &out, settings...); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Unmarshal decodes data into v with the default settings
func Unmarshal(data []byte, v any) error {
	return getDefaultCodec().Deserialize(string(data), v)
}

// Parse decodes text into generic values
func Parse(text string, settings ...*Settings) (any, error) {
	c, err := codecFor(settings)
	if err != nil {
		return nil, err
	}
	return c.Parse(text)
}

// Valid reports whether text is exactly one JSON value
func Valid(text string) bool {
	return validText(text)
}
