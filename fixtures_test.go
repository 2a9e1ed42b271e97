package jsongraph

import (
	"errors"
	"strings"
)

type address struct {
	Street string `json:"street"`
	City   string `json:"city"`
}

type person struct {
	Name string   `json:"name"`
	Age  int      `json:"age"`
	Tags []string `json:"tags,omitempty"`
	Home *address `json:"home"`
}

type node struct {
	Name string `json:"name"`
	Next *node  `json:"next"`
}

type shape interface {
	Area() float64
}

type square struct {
	Side float64 `json:"side"`
}

func (s *square) Area() float64 { return s.Side * s.Side }

type rect struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r rect) Area() float64 { return r.W * r.H }

type drawing struct {
	Title  string  `json:"title"`
	Shapes []shape `json:"shapes"`
}

type envelope struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// temperature marshals itself as a string with a unit
type temperature float64

func (t temperature) MarshalJSON() ([]byte, error) {
	return []byte(`"` + formatFloat(float64(t)) + `C"`), nil
}

func (t *temperature) UnmarshalJSON(b []byte) error {
	s, err := LexString(string(b))
	if err != nil {
		return err
	}
	if !strings.HasSuffix(s, "C") {
		return errors.New("missing unit")
	}
	v, err := ParseNumber(strings.TrimSuffix(s, "C"), FloatParseFloat64)
	if err != nil {
		return err
	}
	switch n := v.(type) {
	case int:
		*t = temperature(n)
	case float64:
		*t = temperature(n)
	}
	return nil
}

func formatFloat(f float64) string {
	return string(appendFloat(nil, f, 64, 0))
}

type brokenMarshaler struct{}

func (brokenMarshaler) MarshalJSON() ([]byte, error) {
	return []byte(`{"open":`), nil
}

// level is a text marshaler used as a value and as a map key
type level int

func (l level) MarshalText() ([]byte, error) {
	switch l {
	case 0:
		return []byte("low"), nil
	case 1:
		return []byte("high"), nil
	}
	return nil, errors.New("unknown level")
}

func (l *level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low":
		*l = 0
	case "high":
		*l = 1
	default:
		return errors.New("unknown level " + string(b))
	}
	return nil
}
