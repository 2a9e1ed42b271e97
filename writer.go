package jsongraph

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/inf.v0"

	"github.com/cybergodev/jsongraph/internal"
)

// Marshaler is implemented by types that encode themselves. The method set
// matches encoding/json.
type Marshaler interface {
	MarshalJSON() ([]byte, error)
}

var (
	marshalerType     = reflect.TypeOf((*Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// encodeKind is how values of one type are written, decided once per type
type encodeKind uint8

const (
	encodeByKind encodeKind = iota
	encodeTime
	encodeDecimal
	encodeNumber
	encodeMarshaler
	encodeMarshalerAddr // *T implements Marshaler
	encodeText
	encodeTextAddr // *T implements encoding.TextMarshaler
)

var encodeKinds internal.TypeCache[encodeKind]

func encodeKindOf(t reflect.Type) encodeKind {
	return encodeKinds.Load(t, classifyEncoding)
}

func classifyEncoding(t reflect.Type) encodeKind {
	isPtr := t.Kind() == reflect.Pointer
	switch {
	case t == timeType:
		return encodeTime
	case t == decType || (isPtr && t.Elem() == decType):
		return encodeDecimal
	case t == numberType:
		return encodeNumber
	case isPtr && t.Elem() == timeType:
		return encodeByKind
	case t.Implements(marshalerType):
		return encodeMarshaler
	case !isPtr && reflect.PointerTo(t).Implements(marshalerType):
		return encodeMarshalerAddr
	case t.Implements(textMarshalerType):
		return encodeText
	case !isPtr && reflect.PointerTo(t).Implements(textMarshalerType):
		return encodeTextAddr
	}
	return encodeByKind
}

// writer emits the text of one serialization call
type writer struct {
	buf      *bytes.Buffer
	settings *Settings
	limit    int
	depth    int
	refs     *writeRefs
	names    *TypeNameTable // TypeNamesTable mode only
}

func newWriter(s *Settings) *writer {
	w := &writer{
		buf:      internal.GetBuffer(internal.MediumBufferSize),
		settings: s,
		limit:    s.depthLimit(),
		refs:     newWriteRefs(s),
	}
	if s.TypeNames == TypeNamesTable {
		w.names = s.TypeTable.Clone()
	}
	return w
}

func (w *writer) release() {
	w.refs.release()
	internal.PutBuffer(w.buf)
	w.buf = nil
}

func (w *writer) writeRoot(v any) error {
	if v == nil {
		w.buf.WriteString(nullLiteral)
		return nil
	}
	rv := reflect.ValueOf(v)
	return w.writeValue(rv, rv.Type())
}

func (w *writer) enter() error {
	w.depth++
	if w.limit > 0 && w.depth > w.limit {
		return newDepthLimitError("serialize", w.depth, w.limit)
	}
	return nil
}

func (w *writer) newline() {
	if !w.settings.Indented {
		return
	}
	w.buf.WriteByte('\n')
	for i := 0; i < w.depth; i++ {
		w.buf.WriteString(w.settings.Indent)
	}
}

// member writes the separator and name of the next object member
func (w *writer) member(n *int, name string) {
	if *n > 0 {
		w.buf.WriteByte(',')
	}
	*n++
	w.newline()
	w.writeString(name)
	w.buf.WriteByte(':')
	if w.settings.Indented {
		w.buf.WriteByte(' ')
	}
}

func (w *writer) close(n int, closing byte) {
	w.depth--
	if n > 0 {
		w.newline()
	}
	w.buf.WriteByte(closing)
}

func (w *writer) writeString(s string) {
	writeString(w.buf, s, w.settings.EscapeHTML, w.settings.EscapeNonASCII)
}

func (w *writer) writeInt(n int64) {
	w.buf.Write(strconv.AppendInt(w.buf.AvailableBuffer(), n, 10))
}

// writeValue writes v whose static type is declared
func (w *writer) writeValue(v reflect.Value, declared reflect.Type) error {
	if !v.IsValid() {
		w.buf.WriteString(nullLiteral)
		return nil
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			w.buf.WriteString(nullLiteral)
			return nil
		}
		v = v.Elem()
	}

	if w.wantsHint(v, declared) {
		if objectShaped(v) {
			return w.writeObject(v, true)
		}
		return w.writeWrapped(v)
	}
	return w.writePlain(v)
}

// wantsHint decides whether v carries a $type member
func (w *writer) wantsHint(v reflect.Value, declared reflect.Type) bool {
	polymorphic := declared.Kind() == reflect.Interface && !naturalValue(v)
	switch w.settings.TypeNames {
	case TypeNamesNone:
		return false
	case TypeNamesAuto:
		return polymorphic
	}
	return polymorphic || objectShaped(v)
}

// naturalValue reports whether decoding v's text without a target type
// yields a value of v's type again.
func naturalValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String, reflect.Bool:
		return v.Type().PkgPath() == "" && v.Type().Name() != ""
	case reflect.Int:
		n := v.Int()
		return v.Type().Name() == "int" && v.Type().PkgPath() == "" && n >= math.MinInt32 && n <= math.MaxInt32
	case reflect.Int64:
		n := v.Int()
		return v.Type().Name() == "int64" && v.Type().PkgPath() == "" && (n < math.MinInt32 || n > math.MaxInt32)
	case reflect.Float64:
		f := v.Float()
		return v.Type().Name() == "float64" && v.Type().PkgPath() == "" && f != math.Trunc(f)
	case reflect.Slice:
		return v.Type() == reflect.TypeOf((*[]any)(nil)).Elem()
	case reflect.Map:
		return v.Type() == reflect.TypeOf((*map[string]any)(nil)).Elem()
	}
	return false
}

// objectShaped reports whether v is written as a JSON object that can carry
// reserved members: structs, maps and pointers to them without custom encoding.
func objectShaped(v reflect.Value) bool {
	t := v.Type()
	if t.Kind() == reflect.Pointer {
		if v.IsNil() || encodeKindOf(t) != encodeByKind {
			return false
		}
		t = t.Elem()
	}
	if encodeKindOf(t) != encodeByKind {
		return false
	}
	return t.Kind() == reflect.Struct || t.Kind() == reflect.Map
}

func (w *writer) writePlain(v reflect.Value) error {
	t := v.Type()
	switch encodeKindOf(t) {
	case encodeTime:
		w.writeTime(v.Interface().(time.Time))
		return nil
	case encodeDecimal:
		if t.Kind() == reflect.Pointer {
			if v.IsNil() {
				w.buf.WriteString(nullLiteral)
				return nil
			}
			v = v.Elem()
		}
		d := v.Interface().(inf.Dec)
		w.buf.WriteString(d.String())
		return nil
	case encodeNumber:
		if v.String() == "" {
			w.buf.WriteByte('0')
		} else {
			w.buf.WriteString(v.String())
		}
		return nil
	case encodeMarshaler:
		if t.Kind() == reflect.Pointer && v.IsNil() {
			w.buf.WriteString(nullLiteral)
			return nil
		}
		return w.writeMarshaler(v.Interface().(Marshaler), t)
	case encodeMarshalerAddr:
		if v.CanAddr() {
			return w.writeMarshaler(v.Addr().Interface().(Marshaler), t)
		}
	case encodeText:
		if t.Kind() == reflect.Pointer && v.IsNil() {
			w.buf.WriteString(nullLiteral)
			return nil
		}
		return w.writeText(v.Interface().(encoding.TextMarshaler), t)
	case encodeTextAddr:
		if v.CanAddr() {
			return w.writeText(v.Addr().Interface().(encoding.TextMarshaler), t)
		}
	}

	switch v.Kind() {
	case reflect.Bool:
		w.buf.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.writeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		w.buf.Write(strconv.AppendUint(w.buf.AvailableBuffer(), v.Uint(), 10))
	case reflect.Float32:
		return w.writeFloat(v.Float(), 32)
	case reflect.Float64:
		return w.writeFloat(v.Float(), 64)
	case reflect.String:
		w.writeString(v.String())
	case reflect.Struct, reflect.Map:
		return w.writeObject(v, false)
	case reflect.Pointer:
		if v.IsNil() {
			w.buf.WriteString(nullLiteral)
			return nil
		}
		if objectShaped(v) {
			return w.writeObject(v, false)
		}
		key, _ := refKeyOf(v)
		if _, _, err := w.refs.visit(key, false); err != nil {
			return err
		}
		defer w.refs.leave()
		return w.writeValue(v.Elem(), t.Elem())
	case reflect.Slice:
		if v.IsNil() {
			w.buf.WriteString(nullLiteral)
			return nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			w.writeBytes(v.Bytes())
			return nil
		}
		if key, ok := refKeyOf(v); ok {
			if _, _, err := w.refs.visit(key, false); err != nil {
				return err
			}
			defer w.refs.leave()
		}
		return w.writeArray(v)
	case reflect.Array:
		return w.writeArray(v)
	case reflect.Interface:
		return w.writeValue(v, t)
	default:
		return newTypeError("serialize", t, "values of this kind cannot be written", ErrUnsupportedType)
	}
	return nil
}

// writeObject writes a struct, map, or pointer to one, with its reserved members
func (w *writer) writeObject(v reflect.Value, hint bool) error {
	hintType := v.Type()
	id := 0
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Map {
		if v.IsNil() {
			w.buf.WriteString(nullLiteral)
			return nil
		}
		key, _ := refKeyOf(v)
		assigned, ref, err := w.refs.visit(key, true)
		if err != nil {
			return err
		}
		if ref > 0 {
			return w.writeRef(ref)
		}
		defer w.refs.leave()
		id = assigned
	}
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
		if v.Kind() == reflect.Map && v.IsNil() {
			w.buf.WriteString(nullLiteral)
			return nil
		}
	}

	if err := w.enter(); err != nil {
		return err
	}
	w.buf.WriteByte('{')
	n := 0
	if id > 0 {
		w.member(&n, IDKey)
		w.writeInt(int64(id))
	}
	if hint {
		w.member(&n, TypeKey)
		w.writeTypeName(hintType)
	}

	var err error
	if v.Kind() == reflect.Map {
		err = w.writeMapMembers(v, &n)
	} else {
		err = w.writeStructMembers(v, &n)
	}
	if err != nil {
		return err
	}
	w.close(n, '}')
	return nil
}

func (w *writer) writeRef(id int) error {
	if err := w.enter(); err != nil {
		return err
	}
	w.buf.WriteByte('{')
	n := 0
	w.member(&n, RefKey)
	w.writeInt(int64(id))
	w.close(n, '}')
	return nil
}

// writeWrapped writes a hinted non-object value as {"$type":..., "$values":...}
func (w *writer) writeWrapped(v reflect.Value) error {
	if err := w.enter(); err != nil {
		return err
	}
	w.buf.WriteByte('{')
	n := 0
	w.member(&n, TypeKey)
	w.writeTypeName(v.Type())
	w.member(&n, ValuesKey)
	if err := w.writePlain(v); err != nil {
		return err
	}
	w.close(n, '}')
	return nil
}

func (w *writer) writeTypeName(t reflect.Type) {
	name := nameForType(w.settings, t)
	if w.names != nil {
		if idx, ok := w.names.Index(name); ok {
			w.writeInt(int64(idx))
			return
		}
		w.names.Add(name, t)
	}
	w.writeString(name)
}

func (w *writer) writeStructMembers(v reflect.Value, n *int) error {
	t := v.Type()
	info := typeInfoFor(t)
	if w.settings.RejectAmbiguousMembers && len(info.Conflicts) > 0 {
		return newTypeError("serialize", t, info.Conflicts[0], ErrAmbiguousMember)
	}
	override := resolveOverride(w.settings, t)

	members := info.Members
	if w.settings.SortMembers {
		members = info.Sorted
	}
	var written map[string]bool
	if info.Dynamic {
		written = make(map[string]bool, len(members))
	}

	for _, m := range members {
		if !m.CanRead || override.skipWrite(m, v) {
			continue
		}
		fv, ok := m.Get(v)
		if !ok || w.omit(m, fv) {
			continue
		}
		w.member(n, m.Name)
		if written != nil {
			written[m.Name] = true
		}
		var err error
		if m.Quoted {
			err = w.writeQuoted(fv)
		} else {
			err = w.writeValue(fv, m.Type)
		}
		if err != nil {
			return err
		}
	}

	if info.Dynamic {
		return w.writeDynamicMembers(v, n, written)
	}
	return nil
}

// writeDynamicMembers writes the late-bound members not already written
func (w *writer) writeDynamicMembers(v reflect.Value, n *int, written map[string]bool) error {
	if !v.CanAddr() {
		tmp := reflect.New(v.Type()).Elem()
		tmp.Set(v)
		v = tmp
	}
	dyn := v.Addr().Interface().(DynamicObject)
	names := dyn.MemberNames()
	if w.settings.SortMembers {
		names = append([]string(nil), names...)
		sort.Strings(names)
	}
	for _, name := range names {
		if written[name] {
			continue
		}
		x, ok := dyn.GetMember(name)
		if !ok || (x == nil && w.settings.OmitNull) {
			continue
		}
		w.member(n, name)
		if err := w.writeValue(reflect.ValueOf(x), anyType); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) omit(m *Member, v reflect.Value) bool {
	s := w.settings
	switch {
	case s.OmitNull && isNilValue(v):
		return true
	case (m.OmitEmpty || s.OmitEmpty) && isEmptyValue(v):
		return true
	case s.OmitDefault && m.IsDefault(v):
		return true
	}
	return false
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}

func (w *writer) writeMapMembers(v reflect.Value, n *int) error {
	type entry struct {
		name string
		key  reflect.Value
	}
	t := v.Type()
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		name, err := mapKeyName(iter.Key())
		if err != nil {
			return err
		}
		entries = append(entries, entry{name: name, key: iter.Key()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	for _, e := range entries {
		ev := v.MapIndex(e.key)
		w.member(n, e.name)
		if err := w.writeValue(ev, t.Elem()); err != nil {
			return err
		}
	}
	return nil
}

func mapKeyName(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		if k.Kind() == reflect.Pointer && k.IsNil() {
			return "", nil
		}
		b, err := tm.MarshalText()
		if err != nil {
			return "", newTypeError("serialize", k.Type(), "MarshalText failed", pkgerrors.WithStack(err))
		}
		return string(b), nil
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", newTypeError("serialize", k.Type(), "unsupported map key type", ErrUnsupportedType)
}

func (w *writer) writeArray(v reflect.Value) error {
	if err := w.enter(); err != nil {
		return err
	}
	w.buf.WriteByte('[')
	et := v.Type().Elem()
	n := v.Len()
	for i := 0; i < n; i++ {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.newline()
		if err := w.writeValue(v.Index(i), et); err != nil {
			return err
		}
	}
	w.close(n, ']')
	return nil
}

func (w *writer) writeBytes(b []byte) {
	enc := base64.StdEncoding
	w.buf.WriteByte('"')
	w.buf.WriteString(enc.EncodeToString(b))
	w.buf.WriteByte('"')
}

func (w *writer) writeFloat(f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		symbol := "NaN"
		switch {
		case math.IsInf(f, 1):
			symbol = "Infinity"
		case math.IsInf(f, -1):
			symbol = "-Infinity"
		}
		switch w.settings.NonFinite {
		case NonFiniteSymbol:
			w.buf.WriteString(symbol)
		case NonFiniteString:
			w.buf.WriteString(`"` + symbol + `"`)
		case NonFiniteDefault:
			w.buf.WriteByte('0')
		default:
			return &CodecError{
				Op:      "serialize",
				Offset:  -1,
				Message: symbol + " is not a valid JSON number",
				Err:     ErrUnsupportedValue,
			}
		}
		return nil
	}
	w.buf.Write(appendFloat(w.buf.AvailableBuffer(), f, bits, w.settings.FloatPrecision))
	return nil
}

// appendFloat formats like encoding/json: the shortest representation that
// round-trips, switching to exponent form outside [1e-6, 1e21). A positive
// precision selects that many significant digits instead.
func appendFloat(b []byte, f float64, bits, precision int) []byte {
	if precision > 0 {
		return strconv.AppendFloat(b, f, 'g', precision, bits)
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) || bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	b = strconv.AppendFloat(b, f, format, -1, bits)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b
}

// writeQuoted writes a scalar member inside a string
func (w *writer) writeQuoted(v reflect.Value) error {
	var text string
	switch v.Kind() {
	case reflect.Bool:
		text = strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		text = strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		text = strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return w.writeFloat(f, 64)
		}
		bits := 64
		if v.Kind() == reflect.Float32 {
			bits = 32
		}
		text = string(appendFloat(nil, f, bits, w.settings.FloatPrecision))
	default:
		return w.writeValue(v, v.Type())
	}
	w.writeString(text)
	return nil
}

func (w *writer) writeTime(t time.Time) {
	t = applyZone(t, w.settings.DateZone)
	switch w.settings.DateFormat {
	case DateEpoch:
		writeEpochDate(w.buf, t)
	case DateJavaScript:
		w.buf.WriteString(dateCtor)
		w.writeInt(t.UnixMilli())
		w.buf.WriteByte(')')
	default:
		w.writeString(t.Format(w.settings.DateLayout))
	}
}

func (w *writer) writeMarshaler(m Marshaler, t reflect.Type) error {
	b, err := m.MarshalJSON()
	if err != nil {
		return newTypeError("serialize", t, "MarshalJSON failed", pkgerrors.WithStack(err))
	}
	if !validText(string(b)) {
		return newTypeError("serialize", t, "MarshalJSON returned invalid JSON", ErrUnsupportedValue)
	}
	w.buf.Write(bytes.TrimSpace(b))
	return nil
}

func (w *writer) writeText(tm encoding.TextMarshaler, t reflect.Type) error {
	b, err := tm.MarshalText()
	if err != nil {
		return newTypeError("serialize", t, "MarshalText failed", pkgerrors.WithStack(err))
	}
	w.writeString(string(b))
	return nil
}

// validText reports whether s is one complete JSON value
func validText(s string) bool {
	p := newParseState(s, strictSettings)
	defer p.release()
	return p.skipValue() == nil && p.finish() == nil
}

var strictSettings = DefaultSettings()
