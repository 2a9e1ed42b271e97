package jsongraph

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type gadget struct {
	Source string `json:"source"`
	Size   int    `json:"size"`
}

type limits struct {
	Max int `json:"max"`
	Min int `json:"min"`
}

func (l *limits) SetDefaults() { l.Max = 100 }

type money struct {
	Amount   int64
	Currency string
}

var moneyContexts []ActivationContext

func (m *money) ConstructFromMembers(members map[string]any, ctx ActivationContext) error {
	moneyContexts = append(moneyContexts, ctx)
	currency, ok := members["currency"].(string)
	if !ok {
		return errors.New("currency is required")
	}
	switch a := members["amount"].(type) {
	case int:
		m.Amount = int64(a)
	case int64:
		m.Amount = a
	default:
		return errors.New("amount must be an integer")
	}
	m.Currency = strings.ToUpper(currency)
	return nil
}

func TestActivationStrategies(t *testing.T) {
	tests := []struct {
		typ      reflect.Type
		strategy ActivationStrategy
		name     string
	}{
		{reflect.TypeOf((*address)(nil)).Elem(), ActivateRaw, "raw"},
		{reflect.TypeOf((*limits)(nil)).Elem(), ActivateDefaulter, "defaulter"},
		{reflect.TypeOf((*money)(nil)).Elem(), ActivateMembers, "members"},
		{reflect.TypeOf((*level)(nil)).Elem(), ActivateEnum, "enum"},
		{reflect.TypeOf((*widgetID)(nil)).Elem(), ActivateEmptyString, "empty-string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			helper := NewTestHelper(t)
			helper.AssertEqual(tt.strategy, StrategyFor(tt.typ))
			helper.AssertEqual(tt.name, tt.strategy.String())
		})
	}
}

func TestFactory(t *testing.T) {
	helper := NewTestHelper(t)
	RegisterFactory(func() *gadget { return &gadget{Source: "factory"} })
	t.Cleanup(func() { RegisterFactory[gadget](nil) })

	helper.AssertEqual(ActivateFactory, StrategyFor(reflect.TypeOf((*gadget)(nil)).Elem()))

	var g *gadget
	helper.AssertNoError(Deserialize(`{"size":2}`, &g))
	helper.AssertEqual(gadget{Source: "factory", Size: 2}, *g)

	var list []*gadget
	helper.AssertNoError(Deserialize(`[{"size":1},null,{"source":"json"}]`, &list))
	helper.AssertEqual("factory", list[0].Source)
	helper.AssertNil(list[1])
	helper.AssertEqual("json", list[2].Source)

	RegisterFactory[gadget](nil)
	helper.AssertEqual(ActivateRaw, StrategyFor(reflect.TypeOf((*gadget)(nil)).Elem()))
}

func TestDefaulter(t *testing.T) {
	helper := NewTestHelper(t)

	var l *limits
	helper.AssertNoError(Deserialize(`{"min":1}`, &l))
	helper.AssertEqual(limits{Max: 100, Min: 1}, *l)

	helper.AssertNoError(Deserialize(`{"max":5}`, &l))
	helper.AssertEqual(5, l.Max)

	// existing targets are filled, not re-created
	existing := limits{Max: 7}
	helper.AssertNoError(Deserialize(`{"min":2}`, &existing))
	helper.AssertEqual(limits{Max: 7, Min: 2}, existing)
}

func TestMemberConstructor(t *testing.T) {
	helper := NewTestHelper(t)
	moneyContexts = nil

	var m money
	helper.AssertNoError(Deserialize(`{"amount":5,"currency":"eur"}`, &m))
	helper.AssertEqual(money{Amount: 5, Currency: "EUR"}, m)
	helper.AssertEqual(reflect.TypeOf((*money)(nil)).Elem(), moneyContexts[0].Type)
	helper.AssertTrue(moneyContexts[0].Settings != nil)

	var prices map[string]*money
	helper.AssertNoError(Deserialize(`{"a":{"amount":3000000000,"currency":"usd"}}`, &prices))
	helper.AssertEqual(money{Amount: 3000000000, Currency: "USD"}, *prices["a"])

	err := Deserialize(`{"amount":"x","currency":"eur"}`, &m)
	helper.AssertErrorContains(err, "member constructor failed")
	helper.AssertEqual(money{Amount: 5, Currency: "EUR"}, m)
}

func TestActivatorHook(t *testing.T) {
	errBoom := errors.New("boom")
	s := DefaultSettings()
	s.Activator = func(t reflect.Type) (any, error) {
		switch t {
		case reflect.TypeOf((*gadget)(nil)).Elem():
			return &gadget{Source: "hook"}, nil
		case reflect.TypeOf((*limits)(nil)).Elem():
			return &address{}, nil
		case reflect.TypeOf((*money)(nil)).Elem():
			return nil, errBoom
		}
		return nil, nil
	}

	t.Run("hook instance", func(t *testing.T) {
		helper := NewTestHelper(t)
		var g *gadget
		helper.AssertNoError(Deserialize(`{"size":1}`, &g, s))
		helper.AssertEqual(gadget{Source: "hook", Size: 1}, *g)
	})

	t.Run("nil falls through", func(t *testing.T) {
		helper := NewTestHelper(t)
		var a *address
		helper.AssertNoError(Deserialize(`{"city":"c"}`, &a, s))
		helper.AssertEqual("c", a.City)
	})

	t.Run("wrong type", func(t *testing.T) {
		var l *limits
		NewTestHelper(t).AssertErrorIs(Deserialize(`{}`, &l, s), ErrTypeMismatch)
	})

	t.Run("hook error", func(t *testing.T) {
		var m *money
		NewTestHelper(t).AssertErrorIs(Deserialize(`{"amount":1,"currency":"x"}`, &m, s), errBoom)
	})
}
