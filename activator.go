package jsongraph

import (
	"reflect"
	"sync"

	"github.com/modern-go/reflect2"
	pkgerrors "github.com/pkg/errors"

	"github.com/cybergodev/jsongraph/internal"
)

// MemberConstructor is implemented by types that build themselves from
// their raw members instead of having each member assigned.
type MemberConstructor interface {
	ConstructFromMembers(members map[string]any, ctx ActivationContext) error
}

// ActivationContext is handed to MemberConstructor
type ActivationContext struct {
	Type     reflect.Type
	Settings *Settings
}

// Defaulter initializes a freshly allocated instance before members are read
type Defaulter interface {
	SetDefaults()
}

// ActivationStrategy is how new instances of a type are produced
type ActivationStrategy uint8

const (
	ActivateRaw         ActivationStrategy = iota // allocation without a constructor
	ActivateFactory                               // registered factory function
	ActivateDefaulter                             // allocation followed by SetDefaults
	ActivateMembers                               // MemberConstructor
	ActivateEnum                                  // integer kinds, built from their number
	ActivateEmptyString                           // string kinds, from the empty singleton
)

func (s ActivationStrategy) String() string {
	switch s {
	case ActivateRaw:
		return "raw"
	case ActivateFactory:
		return "factory"
	case ActivateDefaulter:
		return "defaulter"
	case ActivateMembers:
		return "members"
	case ActivateEnum:
		return "enum"
	case ActivateEmptyString:
		return "empty-string"
	}
	return "unknown"
}

type activator struct {
	strategy ActivationStrategy
	newPtr   func() reflect.Value // returns *T
}

var (
	activators internal.TypeCache[*activator]

	factoriesMu sync.RWMutex
	factories   = make(map[reflect.Type]func() any)

	memberConstructorType = reflect.TypeOf((*MemberConstructor)(nil)).Elem()
	defaulterType         = reflect.TypeOf((*Defaulter)(nil)).Elem()
	emptyString           = reflect.ValueOf("")
)

// RegisterFactory makes fn the constructor for T during deserialization
func RegisterFactory[T any](fn func() *T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	factoriesMu.Lock()
	if fn == nil {
		delete(factories, t)
	} else {
		factories[t] = func() any { return fn() }
	}
	factoriesMu.Unlock()
	activators.Invalidate(t)
}

// StrategyFor reports the cached activation strategy for t
func StrategyFor(t reflect.Type) ActivationStrategy {
	return activatorFor(t).strategy
}

func activatorFor(t reflect.Type) *activator {
	return activators.Load(t, buildActivator)
}

func buildActivator(t reflect.Type) *activator {
	raw := func() reflect.Value {
		return reflect.NewAt(t, reflect2.Type2(t).UnsafeNew())
	}
	pt := reflect.PointerTo(t)

	if pt.Implements(memberConstructorType) {
		return &activator{strategy: ActivateMembers, newPtr: raw}
	}

	factoriesMu.RLock()
	factory, ok := factories[t]
	factoriesMu.RUnlock()
	if ok {
		return &activator{strategy: ActivateFactory, newPtr: func() reflect.Value {
			p := reflect.ValueOf(factory())
			if p.IsNil() {
				return raw()
			}
			return p
		}}
	}

	if pt.Implements(defaulterType) {
		return &activator{strategy: ActivateDefaulter, newPtr: func() reflect.Value {
			p := raw()
			p.Interface().(Defaulter).SetDefaults()
			return p
		}}
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &activator{strategy: ActivateEnum, newPtr: raw}
	case reflect.String:
		return &activator{strategy: ActivateEmptyString, newPtr: func() reflect.Value {
			p := reflect.New(t)
			p.Elem().SetString(emptyString.String())
			return p
		}}
	}
	return &activator{strategy: ActivateRaw, newPtr: raw}
}

// instantiate returns a pointer to a new instance of t
func instantiate(t reflect.Type, s *Settings) (reflect.Value, error) {
	if s.Activator != nil {
		x, err := s.Activator(t)
		if err != nil {
			return reflect.Value{}, newTypeError("activate", t, "activator hook failed",
				pkgerrors.Wrapf(err, "activate %s", t))
		}
		if x != nil {
			p := reflect.ValueOf(x)
			if p.Type() != reflect.PointerTo(t) || p.IsNil() {
				return reflect.Value{}, newTypeError("activate", t,
					"activator hook returned "+p.Type().String(), ErrTypeMismatch)
			}
			return p, nil
		}
	}
	return activatorFor(t).newPtr(), nil
}

// constructFromMembers hands collected members to a MemberConstructor
func constructFromMembers(p reflect.Value, members map[string]any, s *Settings) error {
	mc := p.Interface().(MemberConstructor)
	ctx := ActivationContext{Type: p.Type().Elem(), Settings: s}
	if err := mc.ConstructFromMembers(members, ctx); err != nil {
		return newTypeError("activate", ctx.Type, "member constructor failed",
			pkgerrors.Wrapf(err, "construct %s from members", ctx.Type))
	}
	return nil
}
