package jsongraph

import (
	"reflect"
	"strconv"

	"github.com/cybergodev/jsongraph/internal"
)

// refKey identifies one reference value. The type keeps a struct and its
// first field apart; the length keeps sub-slices of one array apart.
type refKey struct {
	ptr uintptr
	typ reflect.Type
	len int
}

var refStacks = internal.NewStackPool[refKey](StackPoolLimit, StackPoolCapHint, StackPoolMaxCap)

// refKeyOf returns the identity of pointers, maps and non-empty slices
func refKeyOf(v reflect.Value) (refKey, bool) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		if v.IsNil() {
			return refKey{}, false
		}
		return refKey{ptr: v.Pointer(), typ: v.Type()}, true
	case reflect.Slice:
		if v.Len() == 0 {
			return refKey{}, false
		}
		return refKey{ptr: v.Pointer(), typ: v.Type(), len: v.Len()}, true
	}
	return refKey{}, false
}

// writeRefs tracks identities during one serialization
type writeRefs struct {
	preserve     bool
	errorOnCycle bool
	ids          map[refKey]int
	next         int
	stack        []refKey
}

func newWriteRefs(s *Settings) *writeRefs {
	r := &writeRefs{
		preserve:     s.PreserveReferences,
		errorOnCycle: s.ErrorOnCycle,
		stack:        refStacks.Get(),
	}
	if r.preserve {
		r.ids = make(map[refKey]int)
	}
	return r
}

func (r *writeRefs) release() {
	refStacks.Put(r.stack)
	r.stack = nil
	r.ids = nil
}

// visit is called before the contents of a reference value are written.
// It returns the id to write as $id, 0 for none, or ref > 0 when the value
// was written before and a $ref marker replaces it. On success the value is
// pushed and the caller must call leave.
func (r *writeRefs) visit(key refKey, identifiable bool) (id, ref int, err error) {
	active := r.onStack(key)
	if r.preserve && identifiable {
		if seen, ok := r.ids[key]; ok {
			if active && r.errorOnCycle {
				return 0, 0, r.cycleError(key)
			}
			return 0, seen, nil
		}
	}
	if active {
		return 0, 0, r.cycleError(key)
	}

	r.stack = append(r.stack, key)
	if r.preserve && identifiable {
		r.next++
		r.ids[key] = r.next
		id = r.next
	}
	return id, 0, nil
}

func (r *writeRefs) leave() {
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *writeRefs) onStack(key refKey) bool {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i] == key {
			return true
		}
	}
	return false
}

func (r *writeRefs) cycleError(key refKey) error {
	return newTypeError("serialize", key.typ, "value refers back to itself", ErrCircularReference)
}

// readRefs maps ids to the values materialized during one deserialization
type readRefs struct {
	values map[int]reflect.Value
	order  []int
}

func (r *readRefs) register(id int, v reflect.Value) error {
	if r.values == nil {
		r.values = make(map[int]reflect.Value)
	}
	if _, dup := r.values[id]; dup {
		return newReferenceError("deserialize", id, "id is defined twice", ErrDuplicateReference)
	}
	r.values[id] = v
	r.order = append(r.order, id)
	return nil
}

// mark returns the number of ids registered so far
func (r *readRefs) mark() int {
	return len(r.order)
}

// rollback forgets the ids registered after mark
func (r *readRefs) rollback(mark int) {
	for _, id := range r.order[mark:] {
		delete(r.values, id)
	}
	r.order = r.order[:mark]
}

func (r *readRefs) resolve(id int) (reflect.Value, error) {
	v, ok := r.values[id]
	if !ok {
		return reflect.Value{}, newReferenceError("deserialize", id, "reference to an unknown id", ErrUnresolvedReference)
	}
	return v, nil
}

func (r *readRefs) release() {
	r.values = nil
	r.order = r.order[:0]
}

// assignReference stores a resolved value into target, dereferencing or
// taking the address as the target type requires.
func assignReference(target, v reflect.Value) error {
	tt := target.Type()
	switch {
	case v.Type().AssignableTo(tt):
		target.Set(v)
	case v.Kind() == reflect.Pointer && v.Elem().Type().AssignableTo(tt):
		target.Set(v.Elem())
	default:
		return newTypeError("deserialize", tt, "cannot hold a reference to "+v.Type().String(), ErrTypeMismatch)
	}
	return nil
}

// parseRefID accepts ids written as numbers or as strings
func parseRefID(raw any) (int, bool) {
	switch x := raw.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	}
	return 0, false
}
