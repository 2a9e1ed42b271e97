package jsongraph

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"gopkg.in/inf.v0"

	"github.com/cybergodev/jsongraph/internal"
)

// TypeIdentity is the full identity of a named type
type TypeIdentity struct {
	PkgPath string
	Name    string   // without type arguments
	Args    []string // type arguments of an instantiated generic type
}

// IdentityOf splits a type into package, name and type arguments
func IdentityOf(t reflect.Type) TypeIdentity {
	id := TypeIdentity{PkgPath: t.PkgPath(), Name: t.Name()}
	if id.Name == "" {
		id.Name = canonicalName(t)
		return id
	}
	if open := strings.IndexByte(id.Name, '['); open > 0 && strings.HasSuffix(id.Name, "]") {
		id.Args = splitTopLevel(id.Name[open+1:len(id.Name)-1], ',')
		id.Name = id.Name[:open]
	}
	return id
}

func (id TypeIdentity) String() string {
	var sb strings.Builder
	if id.PkgPath != "" {
		sb.WriteString(id.PkgPath)
		sb.WriteByte('.')
	}
	sb.WriteString(id.Name)
	if len(id.Args) > 0 {
		sb.WriteByte('[')
		sb.WriteString(strings.Join(id.Args, ","))
		sb.WriteByte(']')
	}
	return sb.String()
}

// TypeNameBinder replaces the registry when naming types in either direction.
// BindToName returning false, or BindToType returning a nil type and nil
// error, falls back to the registry.
type TypeNameBinder interface {
	BindToName(t reflect.Type) (string, bool)
	BindToType(name string) (reflect.Type, error)
}

// TypeRegistry maps type names to types for the whole process.
//
// Named types are known by package path and name. Composite names such as
// "*T", "[]T", "[4]T" and "map[K]V" are derived from their components on
// first use and cached.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string

	composites *internal.ShardedLRU[reflect.Type]
	group      singleflight.Group
}

// DefaultTypes is the registry used unless a binder is configured
var DefaultTypes = NewTypeRegistry()

// NewTypeRegistry creates a registry holding the builtin types
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		byName:     make(map[string]reflect.Type),
		byType:     make(map[reflect.Type]string),
		composites: internal.NewShardedLRU[reflect.Type](DefaultTypeNameCacheSize),
	}
	for _, t := range []reflect.Type{
		reflect.TypeOf((*bool)(nil)).Elem(), reflect.TypeOf((*string)(nil)).Elem(),
		reflect.TypeOf((*int)(nil)).Elem(), reflect.TypeOf((*int8)(nil)).Elem(), reflect.TypeOf((*int16)(nil)).Elem(),
		reflect.TypeOf((*int32)(nil)).Elem(), reflect.TypeOf((*int64)(nil)).Elem(),
		reflect.TypeOf((*uint)(nil)).Elem(), reflect.TypeOf((*uint8)(nil)).Elem(), reflect.TypeOf((*uint16)(nil)).Elem(),
		reflect.TypeOf((*uint32)(nil)).Elem(), reflect.TypeOf((*uint64)(nil)).Elem(), reflect.TypeOf((*uintptr)(nil)).Elem(),
		reflect.TypeOf((*float32)(nil)).Elem(), reflect.TypeOf((*float64)(nil)).Elem(),
		reflect.TypeOf((*any)(nil)).Elem(),
		timeType,
		reflect.TypeOf((*time.Duration)(nil)).Elem(),
		reflect.TypeOf((*inf.Dec)(nil)).Elem(),
		reflect.TypeOf((*Number)(nil)).Elem(),
		reflect.TypeOf((*OrderedMap)(nil)).Elem(),
	} {
		name := canonicalName(t)
		r.byName[name] = t
		r.byType[t] = name
	}
	return r
}

// Register binds name to t. A name already bound to another type is an error.
func (r *TypeRegistry) Register(t reflect.Type, name string) error {
	if t == nil || name == "" {
		return newTypeError("register_type", t, "type and name are required", ErrInvalidTarget)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byName[name]; ok && prev != t {
		return newTypeError("register_type", t,
			fmt.Sprintf("name %q is already bound to %s", name, prev), ErrTypeMismatch)
	}
	r.byName[name] = t
	r.byType[t] = name
	r.composites.Remove(name)
	return nil
}

// NameOf returns the name written for t, registering it on first use so the
// same process can read it back. Composite names are built from the names
// of their components.
func (r *TypeRegistry) NameOf(t reflect.Type) string {
	r.mu.RLock()
	name, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return name
	}

	if t.Name() == "" {
		switch t.Kind() {
		case reflect.Pointer:
			return "*" + r.NameOf(t.Elem())
		case reflect.Slice:
			return "[]" + r.NameOf(t.Elem())
		case reflect.Array:
			return "[" + strconv.Itoa(t.Len()) + "]" + r.NameOf(t.Elem())
		case reflect.Map:
			return "map[" + r.NameOf(t.Key()) + "]" + r.NameOf(t.Elem())
		}
	}

	name = canonicalName(t)
	r.mu.Lock()
	if _, taken := r.byName[name]; !taken {
		r.byName[name] = t
	}
	r.byType[t] = name
	r.mu.Unlock()
	return name
}

// Resolve returns the type bound to name
func (r *TypeRegistry) Resolve(name string) (reflect.Type, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}
	if t, ok := r.composites.Get(name); ok {
		return t, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		t, err := r.resolveComposite(name)
		if err != nil {
			return nil, err
		}
		r.composites.Add(name, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(reflect.Type), nil
}

func (r *TypeRegistry) resolveComposite(name string) (t reflect.Type, err error) {
	defer func() {
		// reflect.MapOf and ArrayOf panic on invalid components
		if rec := recover(); rec != nil {
			t, err = nil, unknownType(name, fmt.Sprint(rec))
		}
	}()

	switch {
	case strings.HasPrefix(name, "*"):
		elem, err := r.Resolve(name[1:])
		if err != nil {
			return nil, err
		}
		return reflect.PointerTo(elem), nil

	case strings.HasPrefix(name, "[]"):
		elem, err := r.Resolve(name[2:])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil

	case strings.HasPrefix(name, "["):
		end := strings.IndexByte(name, ']')
		if end < 0 {
			return nil, unknownType(name, "unbalanced brackets")
		}
		n, convErr := strconv.Atoi(name[1:end])
		if convErr != nil || n < 0 {
			return nil, unknownType(name, "invalid array length")
		}
		if n > MaxHintedArrayLength {
			return nil, unknownType(name, fmt.Sprintf("array length exceeds %d", MaxHintedArrayLength))
		}
		elem, err := r.Resolve(name[end+1:])
		if err != nil {
			return nil, err
		}
		if size := elem.Size(); size > 0 && uintptr(n) > MaxHintedArrayBytes/size {
			return nil, unknownType(name, fmt.Sprintf("array exceeds %d bytes", MaxHintedArrayBytes))
		}
		return reflect.ArrayOf(n, elem), nil

	case strings.HasPrefix(name, "map["):
		end := matchingBracket(name, 3)
		if end < 0 {
			return nil, unknownType(name, "unbalanced brackets")
		}
		key, err := r.Resolve(name[4:end])
		if err != nil {
			return nil, err
		}
		elem, err := r.Resolve(name[end+1:])
		if err != nil {
			return nil, err
		}
		return reflect.MapOf(key, elem), nil
	}
	return nil, unknownType(name, "not registered")
}

func unknownType(name, reason string) error {
	return &CodecError{
		Op:      "resolve_type",
		Offset:  -1,
		Message: fmt.Sprintf("type %q: %s", name, reason),
		Err:     ErrUnknownType,
	}
}

// canonicalName is the registry name of t: package path and name for named
// types, Go syntax built from canonical component names otherwise.
func canonicalName(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + canonicalName(t.Elem())
	case reflect.Slice:
		return "[]" + canonicalName(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + canonicalName(t.Elem())
	case reflect.Map:
		return "map[" + canonicalName(t.Key()) + "]" + canonicalName(t.Elem())
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "any"
		}
	}
	return t.String()
}

// matchingBracket returns the index of the ']' closing the '[' at open
func matchingBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// RegisterType binds name to t in DefaultTypes
func RegisterType(t reflect.Type, name string) error {
	return DefaultTypes.Register(t, name)
}

// RegisterName binds name to T in DefaultTypes
func RegisterName[T any](name string) error {
	return DefaultTypes.Register(reflect.TypeOf((*T)(nil)).Elem(), name)
}

// TypeNameTable numbers the type names of one conversion. The first
// occurrence of a name is written in full and later ones by index.
// Entries are only ever appended.
type TypeNameTable struct {
	names []string
	types []reflect.Type
	index map[string]int
}

// NewTypeNameTable creates an empty table
func NewTypeNameTable() *TypeNameTable {
	return &TypeNameTable{index: make(map[string]int)}
}

// Clone copies the table; conversions work on a clone of a supplied table
func (t *TypeNameTable) Clone() *TypeNameTable {
	if t == nil {
		return NewTypeNameTable()
	}
	c := &TypeNameTable{
		names: append([]string(nil), t.names...),
		types: append([]reflect.Type(nil), t.types...),
		index: make(map[string]int, len(t.index)),
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	return c
}

// Add appends name unless present and returns its index
func (t *TypeNameTable) Add(name string, typ reflect.Type) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	t.names = append(t.names, name)
	t.types = append(t.types, typ)
	t.index[name] = len(t.names) - 1
	return len(t.names) - 1
}

// AddType appends the registry name of typ
func (t *TypeNameTable) AddType(typ reflect.Type) int {
	return t.Add(DefaultTypes.NameOf(typ), typ)
}

// Index returns the index of name
func (t *TypeNameTable) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// At returns the entry at index i
func (t *TypeNameTable) At(i int) (string, reflect.Type, bool) {
	if i < 0 || i >= len(t.names) {
		return "", nil, false
	}
	return t.names[i], t.types[i], true
}

// Names returns the names in index order
func (t *TypeNameTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Len returns the number of entries
func (t *TypeNameTable) Len() int {
	return len(t.names)
}

func nameForType(s *Settings, t reflect.Type) string {
	if s.Binder != nil {
		if name, ok := s.Binder.BindToName(t); ok {
			return name
		}
	}
	return DefaultTypes.NameOf(t)
}

func typeForName(s *Settings, name string) (reflect.Type, error) {
	if s.Binder != nil {
		t, err := s.Binder.BindToType(name)
		if err != nil {
			return nil, &CodecError{
				Op:      "resolve_type",
				Offset:  -1,
				Message: fmt.Sprintf("binder rejected %q: %v", name, err),
				Err:     pkgerrors.Wrap(ErrUnknownType, err.Error()),
			}
		}
		if t != nil {
			return t, nil
		}
	}
	return DefaultTypes.Resolve(name)
}
