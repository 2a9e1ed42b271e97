package jsongraph

import (
	"encoding"
	"reflect"
	"strconv"

	pkgerrors "github.com/pkg/errors"
)

// decodeObject decodes an object into v, routing reserved members through
// the reference table, the type name table and the activator.
func (p *parseState) decodeObject(v reflect.Value) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()
	start := p.pos
	p.pos++

	h, err := p.parseHeader()
	if err != nil {
		return err
	}
	if h.hasRef {
		target, err := p.refs.resolve(h.ref)
		if err == nil {
			err = assignReference(v, target)
		}
		return p.locate(err, start)
	}
	return p.objectInto(v, &h, start)
}

// objectInto continues after the header has been read
func (p *parseState) objectInto(v reflect.Value, h *objectHeader, start int) error {
	switch v.Kind() {
	case reflect.Interface:
		return p.objectIntoInterface(v, h, start)
	case reflect.Pointer:
		return p.objectIntoPointer(v, h, start)
	}

	t := v.Type()
	if h.typ != nil && h.typ != t && h.typ != reflect.PointerTo(t) {
		return p.failAt(start, ErrTypeMismatch, "type hint %s does not match %s", h.typ, t)
	}
	if v.Kind() == reflect.Map && v.IsNil() {
		v.Set(reflect.MakeMap(t))
	}
	if h.hasID {
		target := v
		if v.Kind() != reflect.Map && v.CanAddr() {
			target = v.Addr()
		}
		if err := p.registerID(h, target); err != nil {
			return err
		}
	}
	if h.values {
		if err := p.decodeValue(v); err != nil {
			return err
		}
		return p.closeValues()
	}

	switch v.Kind() {
	case reflect.Struct:
		return p.fillStruct(v, h, start)
	case reflect.Map:
		return p.fillMap(v, h)
	}
	return p.failAt(start, ErrTypeMismatch, "cannot decode an object into %s", t)
}

func (p *parseState) objectIntoInterface(v reflect.Value, h *objectHeader, start int) error {
	t := h.typ
	if t == nil {
		if o := resolveOverride(p.settings, v.Type()); o != nil && o.ConstructAs != nil {
			t = o.ConstructAs
		} else if v.NumMethod() == 0 {
			x, err := p.objectFromHeader(h)
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(x))
			return nil
		} else {
			return p.failAt(start, ErrUnsupportedType, "%s needs a type hint", v.Type())
		}
	}

	if !t.AssignableTo(v.Type()) {
		return p.failAt(start, ErrTypeMismatch, "%s does not implement %s", t, v.Type())
	}
	nv, err := p.newObject(t, h, start)
	if err != nil {
		return err
	}
	v.Set(nv)
	return nil
}

func (p *parseState) objectIntoPointer(v reflect.Value, h *objectHeader, start int) error {
	t := v.Type()
	if h.typ != nil && h.typ != t && h.typ != t.Elem() {
		return p.failAt(start, ErrTypeMismatch, "type hint %s does not match %s", h.typ, t)
	}
	if v.IsNil() {
		nv, err := p.newObject(t, h, start)
		if err != nil {
			return err
		}
		v.Set(nv)
		return nil
	}

	if err := p.registerID(h, v); err != nil {
		return err
	}
	inner := *h
	inner.hasID, inner.typ = false, nil
	return p.objectInto(v.Elem(), &inner, start)
}

// newObject creates a value of type t through the activator, registers its
// id before any member is read, and fills it.
func (p *parseState) newObject(t reflect.Type, h *objectHeader, start int) (reflect.Value, error) {
	inner := *h
	inner.typ = nil

	if t.Kind() == reflect.Pointer {
		ptr, err := instantiate(t.Elem(), p.settings)
		if err != nil {
			return reflect.Value{}, p.locate(err, start)
		}
		if err := p.registerID(h, ptr); err != nil {
			return reflect.Value{}, err
		}
		inner.hasID = false
		return ptr, p.objectInto(ptr.Elem(), &inner, start)
	}

	ptr, err := instantiate(t, p.settings)
	if err != nil {
		return reflect.Value{}, p.locate(err, start)
	}
	if err := p.objectInto(ptr.Elem(), &inner, start); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

func (p *parseState) fillStruct(v reflect.Value, h *objectHeader, start int) error {
	t := v.Type()
	info := typeInfoFor(t)
	if p.settings.RejectAmbiguousMembers && len(info.Conflicts) > 0 {
		return p.failAt(start, ErrAmbiguousMember, "%s: %s", t, info.Conflicts[0])
	}
	if v.CanAddr() && activatorFor(t).strategy == ActivateMembers {
		return p.constructMembers(v, h, start)
	}

	override := resolveOverride(p.settings, t)
	var dyn DynamicObject
	if info.Dynamic && v.CanAddr() {
		dyn = v.Addr().Interface().(DynamicObject)
	}
	var seen map[*Member]bool
	if info.trackMissing {
		seen = make(map[*Member]bool, len(info.Members))
	}

	err := p.members(h, func(key string) error {
		keyPos := p.pos
		if m := info.Lookup(key, p.settings.CaseSensitive); m != nil {
			if !m.CanWrite || override.skipRead(m) {
				return p.skipValue()
			}
			if seen != nil {
				seen[m] = true
			}
			if m.Quoted {
				return p.decodeQuoted(m.field(v))
			}
			return p.decodeValue(m.field(v))
		}

		switch {
		case dyn != nil:
			x, err := p.parseAny()
			if err != nil {
				return err
			}
			if err := dyn.SetMember(key, x); err != nil {
				return p.locate(newTypeError("deserialize", t, "member "+strconv.Quote(key)+" rejected",
					pkgerrors.Wrapf(err, "set member %q", key)), keyPos)
			}
			return nil
		case p.settings.MissingMembers == MissingError:
			return p.failAt(keyPos, ErrMissingMember, "%s has no member %q", t, key)
		}
		return p.skipValue()
	})
	if err != nil {
		return err
	}

	if seen == nil {
		return nil
	}
	for _, m := range info.Members {
		if seen[m] || !m.CanWrite {
			continue
		}
		if m.Required {
			return p.failAt(start, ErrMissingMember, "%s: required member %q is missing", t, m.Name)
		}
		if m.HasDefault {
			if f := m.field(v); f.IsZero() {
				f.Set(m.Default)
			}
		}
	}
	return nil
}

// constructMembers collects members generically for a MemberConstructor
func (p *parseState) constructMembers(v reflect.Value, h *objectHeader, start int) error {
	members := make(map[string]any)
	err := p.members(h, func(key string) error {
		x, err := p.parseAny()
		if err != nil {
			return err
		}
		members[key] = x
		return nil
	})
	if err != nil {
		return err
	}
	return p.locate(constructFromMembers(v.Addr(), members, p.settings), start)
}

func (p *parseState) fillMap(v reflect.Value, h *objectHeader) error {
	t := v.Type()
	kt, et := t.Key(), t.Elem()
	return p.members(h, func(key string) error {
		keyPos := p.pos
		k, err := mapKey(kt, key)
		if err != nil {
			return p.locate(err, keyPos)
		}
		elem := reflect.New(et).Elem()
		if err := p.decodeValue(elem); err != nil {
			return err
		}
		v.SetMapIndex(k, elem)
		return nil
	})
}

// mapKey converts an object key to a map key of type kt
func mapKey(kt reflect.Type, key string) (reflect.Value, error) {
	k := reflect.New(kt).Elem()
	switch kt.Kind() {
	case reflect.String:
		k.SetString(key)
		return k, nil
	}

	if reflect.PointerTo(kt).Implements(textUnmarshalerType) {
		if err := k.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(key)); err != nil {
			return k, newTypeError("deserialize", kt, "invalid map key "+strconv.Quote(key), pkgerrors.WithStack(err))
		}
		return k, nil
	}

	switch kt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil || k.OverflowInt(n) {
			return k, mismatch(kt, "map key "+strconv.Quote(key))
		}
		k.SetInt(n)
		return k, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil || k.OverflowUint(n) {
			return k, mismatch(kt, "map key "+strconv.Quote(key))
		}
		k.SetUint(n)
		return k, nil
	}
	return k, newTypeError("deserialize", kt, "unsupported map key type", ErrUnsupportedType)
}
