package jsongraph

import (
	"reflect"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set"

	"github.com/cybergodev/jsongraph/internal"
)

// TypeOverride adjusts how one type, or every type that resolves to it, is
// converted.
type TypeOverride struct {
	// ConstructAs is instantiated instead of the declared type when reading.
	// It must be assignable to the declared type.
	ConstructAs reflect.Type

	// Exclude holds JSON or Go field names skipped in both directions
	Exclude mapset.Set

	ShouldSerialize   func(member string, owner any) bool
	ShouldDeserialize func(member string) bool
}

// ExcludeMembers builds an exclusion set from member names
func ExcludeMembers(names ...string) mapset.Set {
	set := mapset.NewSet()
	for _, n := range names {
		set.Add(n)
	}
	return set
}

func (o *TypeOverride) excludes(m *Member) bool {
	if o == nil || o.Exclude == nil {
		return false
	}
	return o.Exclude.Contains(m.Name) || o.Exclude.Contains(m.FieldName)
}

func (o *TypeOverride) skipWrite(m *Member, owner reflect.Value) bool {
	if o == nil {
		return false
	}
	if o.excludes(m) {
		return true
	}
	if o.ShouldSerialize == nil {
		return false
	}
	var x any
	if owner.CanInterface() {
		x = owner.Interface()
	}
	return !o.ShouldSerialize(m.Name, x)
}

func (o *TypeOverride) skipRead(m *Member) bool {
	if o == nil {
		return false
	}
	if o.excludes(m) {
		return true
	}
	return o.ShouldDeserialize != nil && !o.ShouldDeserialize(m.Name)
}

// OverrideRegistry resolves the override that applies to a type.
//
// Resolution stops at the first match among: the type itself, the pointer
// element, embedded field types depth-first, registered interfaces the type
// implements in registration order, and finally the registry default.
type OverrideRegistry struct {
	mu         sync.RWMutex
	exact      map[reflect.Type]*TypeOverride
	interfaces []reflect.Type
	fallback   *TypeOverride

	generation uint64
	resolved   internal.TypeCache[resolvedOverride]
}

type resolvedOverride struct {
	generation uint64
	override   *TypeOverride
}

// DefaultOverrides is consulted after any per-call registry
var DefaultOverrides = NewOverrideRegistry()

// NewOverrideRegistry creates an empty registry
func NewOverrideRegistry() *OverrideRegistry {
	return &OverrideRegistry{exact: make(map[reflect.Type]*TypeOverride)}
}

// Register sets the override for t; interface types apply to implementers
func (r *OverrideRegistry) Register(t reflect.Type, o *TypeOverride) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.exact[t]; !exists && t.Kind() == reflect.Interface {
		r.interfaces = append(r.interfaces, t)
	}
	r.exact[t] = o
	r.invalidateLocked()
}

// Remove deletes the override registered for t
func (r *OverrideRegistry) Remove(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exact, t)
	for i, it := range r.interfaces {
		if it == t {
			r.interfaces = append(r.interfaces[:i], r.interfaces[i+1:]...)
			break
		}
	}
	r.invalidateLocked()
}

// SetDefault sets the override used when nothing more specific matches
func (r *OverrideRegistry) SetDefault(o *TypeOverride) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = o
	r.invalidateLocked()
}

func (r *OverrideRegistry) invalidateLocked() {
	atomic.AddUint64(&r.generation, 1)
	r.resolved.Clear()
}

// Resolve returns the override for t, or nil
func (r *OverrideRegistry) Resolve(t reflect.Type) *TypeOverride {
	gen := atomic.LoadUint64(&r.generation)
	res := r.resolved.Load(t, r.resolve)
	if res.generation != gen {
		r.resolved.Invalidate(t)
		res = r.resolved.Load(t, r.resolve)
	}
	return res.override
}

func (r *OverrideRegistry) resolve(t reflect.Type) resolvedOverride {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := resolvedOverride{generation: atomic.LoadUint64(&r.generation)}
	if o := r.walk(t, make(map[reflect.Type]bool)); o != nil {
		res.override = o
		return res
	}
	for _, it := range r.interfaces {
		if t.Implements(it) || (t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface && reflect.PointerTo(t).Implements(it)) {
			res.override = r.exact[it]
			return res
		}
	}
	res.override = r.fallback
	return res
}

func (r *OverrideRegistry) walk(t reflect.Type, visited map[reflect.Type]bool) *TypeOverride {
	if visited[t] {
		return nil
	}
	visited[t] = true

	if o, ok := r.exact[t]; ok {
		return o
	}
	switch t.Kind() {
	case reflect.Pointer:
		return r.walk(t.Elem(), visited)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.Anonymous {
				if o := r.walk(f.Type, visited); o != nil {
					return o
				}
			}
		}
	}
	return nil
}

// resolveOverride consults the per-call registry before the global one
func resolveOverride(s *Settings, t reflect.Type) *TypeOverride {
	if s.Overrides != nil {
		if o := s.Overrides.Resolve(t); o != nil {
			return o
		}
	}
	return DefaultOverrides.Resolve(t)
}

// RegisterOverride registers o for t in DefaultOverrides
func RegisterOverride(t reflect.Type, o *TypeOverride) {
	DefaultOverrides.Register(t, o)
}
