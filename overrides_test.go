package jsongraph

import (
	"reflect"
	"testing"
)

type labeled struct {
	address
	Label string `json:"label"`
}

type audited struct {
	User     string
	Password string
}

func withOverrides(r *OverrideRegistry) *Settings {
	s := DefaultSettings()
	s.Overrides = r
	return s
}

func TestOverrideExclude(t *testing.T) {
	helper := NewTestHelper(t)
	r := NewOverrideRegistry()
	r.Register(reflect.TypeOf((*person)(nil)).Elem(), &TypeOverride{Exclude: ExcludeMembers("age", "Home")})
	s := withOverrides(r)

	p := person{Name: "Ann", Age: 30, Home: &address{"s", "c"}}
	assertText(t, `{"name":"Ann"}`, mustSerialize(t, p, s))

	var back person
	helper.AssertNoError(Deserialize(`{"name":"x","age":5,"home":{"city":"c"}}`, &back, s))
	helper.AssertEqual(person{Name: "x"}, back)
}

func TestOverrideCallbacks(t *testing.T) {
	r := NewOverrideRegistry()
	r.Register(reflect.TypeOf((*person)(nil)).Elem(), &TypeOverride{
		ShouldSerialize: func(member string, owner any) bool {
			return member != "age" || owner.(person).Age > 0
		},
		ShouldDeserialize: func(member string) bool {
			return member != "name"
		},
	})
	s := withOverrides(r)

	t.Run("serialize", func(t *testing.T) {
		assertText(t, `{"name":"a","home":null}`, mustSerialize(t, person{Name: "a"}, s))
		assertText(t, `{"name":"a","age":2,"home":null}`, mustSerialize(t, person{Name: "a", Age: 2}, s))
	})

	t.Run("deserialize", func(t *testing.T) {
		helper := NewTestHelper(t)
		var p person
		helper.AssertNoError(Deserialize(`{"name":"a","age":2}`, &p, s))
		helper.AssertEqual(person{Age: 2}, p)
	})
}

func TestOverrideResolution(t *testing.T) {
	t.Run("embedded types", func(t *testing.T) {
		r := NewOverrideRegistry()
		r.Register(reflect.TypeOf((*address)(nil)).Elem(), &TypeOverride{Exclude: ExcludeMembers("city")})
		s := withOverrides(r)
		assertText(t, `{"street":"s","label":"l"}`, mustSerialize(t, labeled{address{"s", "c"}, "l"}, s))
		assertText(t, `{"street":"s"}`, mustSerialize(t, &address{"s", "c"}, s))
	})

	t.Run("implemented interfaces", func(t *testing.T) {
		r := NewOverrideRegistry()
		r.Register(reflect.TypeOf((*shape)(nil)).Elem(), &TypeOverride{Exclude: ExcludeMembers("w", "side")})
		s := withOverrides(r)
		assertText(t, `{"h":2}`, mustSerialize(t, rect{W: 1, H: 2}, s))
		assertText(t, `{}`, mustSerialize(t, &square{Side: 3}, s))
		assertText(t, `{"street":"s","city":"c"}`, mustSerialize(t, address{"s", "c"}, s))
	})

	t.Run("exact match before interfaces", func(t *testing.T) {
		helper := NewTestHelper(t)
		r := NewOverrideRegistry()
		byInterface := &TypeOverride{}
		exact := &TypeOverride{}
		r.Register(reflect.TypeOf((*shape)(nil)).Elem(), byInterface)
		r.Register(reflect.TypeOf((*rect)(nil)).Elem(), exact)
		helper.AssertTrue(r.Resolve(reflect.TypeOf((*rect)(nil)).Elem()) == exact)
		helper.AssertTrue(r.Resolve(reflect.TypeOf((**square)(nil)).Elem()) == byInterface)
	})

	t.Run("registry default", func(t *testing.T) {
		helper := NewTestHelper(t)
		r := NewOverrideRegistry()
		helper.AssertNil(r.Resolve(reflect.TypeOf((*address)(nil)).Elem()))
		r.SetDefault(&TypeOverride{ShouldSerialize: func(member string, _ any) bool { return member != "street" }})
		assertText(t, `{"city":"c"}`, mustSerialize(t, address{"s", "c"}, withOverrides(r)))
	})

	t.Run("changes invalidate cached resolutions", func(t *testing.T) {
		helper := NewTestHelper(t)
		r := NewOverrideRegistry()
		first := &TypeOverride{}
		second := &TypeOverride{}
		typ := reflect.TypeOf((*address)(nil)).Elem()

		r.Register(typ, first)
		helper.AssertTrue(r.Resolve(typ) == first)
		r.Register(typ, second)
		helper.AssertTrue(r.Resolve(typ) == second)
		r.Remove(typ)
		helper.AssertNil(r.Resolve(typ))
	})
}

func TestConstructAs(t *testing.T) {
	helper := NewTestHelper(t)
	r := NewOverrideRegistry()
	r.Register(reflect.TypeOf((*shape)(nil)).Elem(), &TypeOverride{ConstructAs: reflect.TypeOf((**square)(nil)).Elem()})
	s := withOverrides(r)

	var d drawing
	helper.AssertNoError(Deserialize(`{"title":"x","shapes":[{"side":3},null]}`, &d, s))
	helper.AssertEqual(drawing{Title: "x", Shapes: []shape{&square{Side: 3}, nil}}, d)

	t.Run("hints take precedence", func(t *testing.T) {
		helper := NewTestHelper(t)
		DefaultTypes.NameOf(reflect.TypeOf((*rect)(nil)).Elem())
		hinted := s.Clone()
		hinted.TypeNames = TypeNamesAuto
		var d drawing
		helper.AssertNoError(Deserialize(`{"shapes":[{"$type":"github.com/cybergodev/jsongraph.rect","w":1,"h":1}]}`, &d, hinted))
		helper.AssertEqual(rect{W: 1, H: 1}, d.Shapes[0])
	})
}

func TestGlobalOverrides(t *testing.T) {
	typ := reflect.TypeOf((*audited)(nil)).Elem()
	RegisterOverride(typ, &TypeOverride{Exclude: ExcludeMembers("Password")})
	t.Cleanup(func() { DefaultOverrides.Remove(typ) })

	a := audited{User: "u", Password: "p"}
	assertText(t, `{"User":"u"}`, mustSerialize(t, a))

	r := NewOverrideRegistry()
	r.Register(typ, &TypeOverride{Exclude: ExcludeMembers("User")})
	assertText(t, `{"Password":"p"}`, mustSerialize(t, a, withOverrides(r)))
}
