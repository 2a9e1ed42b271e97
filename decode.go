package jsongraph

import (
	"encoding"
	"encoding/base64"
	"math"
	"reflect"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/inf.v0"
)

// Unmarshaler is implemented by types that decode their own JSON. The
// method set matches encoding/json, so existing implementations apply.
type Unmarshaler interface {
	UnmarshalJSON([]byte) error
}

var (
	unmarshalerType     = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	decType             = reflect.TypeOf((*inf.Dec)(nil)).Elem()
	numberType          = reflect.TypeOf((*Number)(nil)).Elem()
	anyType             = reflect.TypeOf((*any)(nil)).Elem()
)

// decodeValue decodes the next value into v, which must be settable
func (p *parseState) decodeValue(v reflect.Value) error {
	c, err := p.peek()
	if err != nil {
		return err
	}

	if c == 'n' && hasPrefixAt(p.data, p.pos, nullLiteral) {
		p.pos += len(nullLiteral)
		switch v.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
			v.SetZero()
		}
		return nil
	}

	if u, ok := unmarshalerFor(v); ok {
		return p.callUnmarshaler(u, v.Type())
	}
	if c == '{' {
		return p.decodeObject(v)
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			ptr, err := instantiate(v.Type().Elem(), p.settings)
			if err != nil {
				return p.locate(err, p.pos)
			}
			v.Set(ptr)
		}
		return p.decodeValue(v.Elem())
	case reflect.Interface:
		return p.decodeInterface(v)
	}

	start := p.pos
	switch {
	case c == '[':
		return p.decodeArray(v)
	case c == '"':
		s, err := p.parseStringToken()
		if err != nil {
			return err
		}
		return p.locate(p.assignString(v, s), start)
	case c == 't' || c == 'f':
		word := trueLiteral
		if c == 'f' {
			word = falseLiteral
		}
		if err := p.literal(word); err != nil {
			return err
		}
		if v.Kind() != reflect.Bool {
			return p.locate(mismatch(v.Type(), "a boolean"), start)
		}
		v.SetBool(c == 't')
		return nil
	case c == 'n' && hasPrefixAt(p.data, p.pos, dateCtor):
		t, err := p.parseDateCtor()
		if err != nil {
			return err
		}
		if v.Type() != timeType {
			return p.locate(mismatch(v.Type(), "a date"), start)
		}
		v.Set(reflect.ValueOf(t))
		return nil
	case isNumberStart(c):
		lit, err := p.parseNumberToken()
		if err != nil {
			return err
		}
		return p.locate(assignNumber(v, lit, p.settings), start)
	}
	return p.fail(ErrUnexpectedCharacter, "unexpected character %q", c)
}

func mismatch(t reflect.Type, what string) error {
	return newTypeError("deserialize", t, "cannot decode "+what, ErrTypeMismatch)
}

// unmarshalerFor returns the Unmarshaler of v, allocating a nil pointer.
// time.Time and inf.Dec are decoded natively.
func unmarshalerFor(v reflect.Value) (Unmarshaler, bool) {
	t := v.Type()
	switch t.Kind() {
	case reflect.Interface:
		return nil, false
	case reflect.Pointer:
		if t.Elem() == timeType || t.Elem() == decType || !t.Implements(unmarshalerType) {
			return nil, false
		}
		if v.IsNil() {
			v.Set(reflect.New(t.Elem()))
		}
		return v.Interface().(Unmarshaler), true
	}
	if t == timeType || t == decType || !v.CanAddr() || !reflect.PointerTo(t).Implements(unmarshalerType) {
		return nil, false
	}
	return v.Addr().Interface().(Unmarshaler), true
}

// callUnmarshaler hands the raw text of the next value to u
func (p *parseState) callUnmarshaler(u Unmarshaler, t reflect.Type) error {
	start := p.pos
	if err := p.skipValue(); err != nil {
		return err
	}
	if err := u.UnmarshalJSON([]byte(p.data[start:p.pos])); err != nil {
		return p.locate(newTypeError("deserialize", t, "UnmarshalJSON failed",
			pkgerrors.WithStack(err)), start)
	}
	return nil
}

// decodeInterface decodes a non-object value into an interface
func (p *parseState) decodeInterface(v reflect.Value) error {
	if v.NumMethod() == 0 {
		x, err := p.parseAny()
		if err != nil {
			return err
		}
		if x == nil {
			v.SetZero()
		} else {
			v.Set(reflect.ValueOf(x))
		}
		return nil
	}

	if o := resolveOverride(p.settings, v.Type()); o != nil && o.ConstructAs != nil {
		ptr, err := instantiate(o.ConstructAs, p.settings)
		if err != nil {
			return p.locate(err, p.pos)
		}
		if err := p.decodeValue(ptr.Elem()); err != nil {
			return err
		}
		return p.locate(assignReference(v, ptr), p.pos)
	}
	return p.fail(ErrUnsupportedType, "%s needs a type hint", v.Type())
}

func (p *parseState) decodeArray(v reflect.Value) error {
	t := v.Type()
	switch v.Kind() {
	case reflect.Slice:
		if err := p.enter(); err != nil {
			return err
		}
		defer p.leave()
		p.pos++

		et := t.Elem()
		inline := et.Kind() != reflect.Pointer && et.Kind() != reflect.Map && et.Kind() != reflect.Interface
		start, mark, moved := p.pos, p.refs.mark(), false
		s := reflect.MakeSlice(t, 0, 4)
		err := p.elements(func(i int) error {
			before := s.Pointer()
			s = reflect.Append(s, reflect.Zero(et))
			if inline && s.Pointer() != before && p.refs.mark() > mark {
				moved = true
			}
			return p.decodeValue(s.Index(i))
		})
		if err != nil {
			return err
		}
		if moved {
			// ids were bound to elements of a backing array append has
			// since replaced; decode again into a slice of the final length
			p.refs.rollback(mark)
			p.pos = start
			s = reflect.MakeSlice(t, s.Len(), s.Len())
			if err := p.elements(func(i int) error { return p.decodeValue(s.Index(i)) }); err != nil {
				return err
			}
		}
		v.Set(s)
		return nil

	case reflect.Array:
		if err := p.enter(); err != nil {
			return err
		}
		defer p.leave()
		p.pos++

		n, count := v.Len(), 0
		err := p.elements(func(i int) error {
			count++
			if i < n {
				return p.decodeValue(v.Index(i))
			}
			return p.skipValue()
		})
		if err != nil {
			return err
		}
		for i := count; i < n; i++ {
			v.Index(i).SetZero()
		}
		return nil
	}
	return p.locate(mismatch(t, "an array"), p.pos)
}

// decodeQuoted decodes a scalar written inside a string
func (p *parseState) decodeQuoted(v reflect.Value) error {
	c, err := p.peek()
	if err != nil {
		return err
	}
	if c != '"' {
		return p.decodeValue(v)
	}
	start := p.pos
	s, err := p.parseStringToken()
	if err != nil {
		return err
	}
	inner := &parseState{data: s, settings: p.settings, limit: p.limit}
	if err := inner.decodeValue(v); err != nil {
		return p.failAt(start, ErrTypeMismatch, "invalid quoted value %q", s)
	}
	if err := inner.finish(); err != nil {
		return p.failAt(start, ErrTypeMismatch, "invalid quoted value %q", s)
	}
	return nil
}

func (p *parseState) assignString(v reflect.Value, s string) error {
	t := v.Type()
	switch t {
	case timeType:
		tm, err := parseDate(s, p.settings)
		if err != nil {
			return newTypeError("deserialize", t, "invalid date "+strconv.Quote(s), ErrTypeMismatch)
		}
		v.Set(reflect.ValueOf(tm))
		return nil
	case decType:
		d, ok := new(inf.Dec).SetString(s)
		if !ok {
			return mismatch(t, strconv.Quote(s))
		}
		v.Set(reflect.ValueOf(d).Elem())
		return nil
	case numberType:
		if _, err := LexNumber(s); err != nil {
			return mismatch(t, strconv.Quote(s))
		}
		v.SetString(s)
		return nil
	}

	if v.CanAddr() && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		if err := v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return newTypeError("deserialize", t, "UnmarshalText failed", pkgerrors.WithStack(err))
		}
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
		return nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return mismatch(t, "invalid base64")
			}
			v.SetBytes(b)
			return nil
		}
	}
	return mismatch(t, "a string")
}

func assignNumber(v reflect.Value, lit NumberLiteral, s *Settings) error {
	t := v.Type()
	switch t {
	case timeType:
		ms, err := integerOf(lit)
		if err != nil {
			return mismatch(t, "number "+lit.Text)
		}
		v.Set(reflect.ValueOf(applyZone(time.UnixMilli(ms).UTC(), s.DateZone)))
		return nil
	case decType:
		d, err := lit.Decimal()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(d).Elem())
		return nil
	case numberType:
		v.SetString(lit.Text)
		return nil
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := integerOf(lit)
		if err != nil || v.OverflowInt(n) {
			return mismatch(t, "number "+lit.Text)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := unsignedOf(lit)
		if err != nil || v.OverflowUint(n) {
			return mismatch(t, "number "+lit.Text)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := lit.Float64()
		if err != nil {
			return err
		}
		if v.OverflowFloat(f) {
			return mismatch(t, "number "+lit.Text)
		}
		v.SetFloat(f)
	default:
		return mismatch(t, "a number")
	}
	return nil
}

// integerOf accepts integer literals and integral floating literals
func integerOf(lit NumberLiteral) (int64, error) {
	if lit.Symbol {
		return 0, ErrTypeMismatch
	}
	if lit.IsInteger() {
		return strconv.ParseInt(lit.Text, 10, 64)
	}
	f, err := lit.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, ErrTypeMismatch
	}
	return int64(f), nil
}

func unsignedOf(lit NumberLiteral) (uint64, error) {
	if lit.Symbol || lit.Negative {
		return 0, ErrTypeMismatch
	}
	if lit.IsInteger() {
		return strconv.ParseUint(lit.Text, 10, 64)
	}
	f, err := lit.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f >= math.MaxUint64 {
		return 0, ErrTypeMismatch
	}
	return uint64(f), nil
}
