package jsongraph

import (
	"testing"

	gojson "github.com/goccy/go-json"
	jsoniter "github.com/json-iterator/go"
)

// stdCompatible matches the default settings: no HTML escaping
var stdCompatible = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

type catalog struct {
	Name   string            `json:"name"`
	Owner  *person           `json:"owner"`
	Items  []address         `json:"items"`
	Prices map[string]int    `json:"prices"`
	Rating float64           `json:"rating"`
	Temp   temperature       `json:"temp"`
	Level  level             `json:"level"`
	Notes  []any             `json:"notes"`
	Shelf  [2]bool           `json:"shelf"`
	Labels map[string]string `json:"labels,omitempty"`
}

func sampleCatalog() catalog {
	return catalog{
		Name:   "Spring \"sale\"\t日本",
		Owner:  &person{Name: "Ann", Age: 30, Tags: []string{"a", "b"}},
		Items:  []address{{"1 Main", "X"}, {"2 Side", "Y"}},
		Prices: map[string]int{"apple": 3},
		Rating: 4.25,
		Temp:   21.5,
		Level:  1,
		Notes:  []any{nil, true, "x", 1.5, map[string]any{"k": "v"}},
		Shelf:  [2]bool{true, false},
	}
}

func TestStandardLibraryCompat(t *testing.T) {
	t.Run("same output", func(t *testing.T) {
		values := map[string]any{
			"catalog": sampleCatalog(),
			"pointer": &address{"s", "c"},
			"slice":   []int{1, -2, 3},
			"nil":     (*person)(nil),
			"drawing": drawing{Title: "d", Shapes: []shape{rect{W: 1, H: 2}, &square{Side: 3}}},
			"empty":   struct{}{},
		}
		for name, v := range values {
			t.Run(name, func(t *testing.T) {
				want, err := stdCompatible.MarshalToString(v)
				if err != nil {
					t.Fatal(err)
				}
				assertText(t, want, mustSerialize(t, v))
			})
		}
	})

	t.Run("reads their output", func(t *testing.T) {
		helper := NewTestHelper(t)
		in := sampleCatalog()
		text, err := stdCompatible.MarshalToString(in)
		helper.AssertNoError(err)

		var out catalog
		helper.AssertNoError(Deserialize(text, &out))
		helper.AssertEqual(in, out)
	})

	t.Run("they read ours", func(t *testing.T) {
		helper := NewTestHelper(t)
		in := sampleCatalog()
		in.Notes = nil

		var viaIter, viaGoJSON catalog
		text := mustSerialize(t, in, IndentedSettings())
		helper.AssertNoError(stdCompatible.UnmarshalFromString(text, &viaIter))
		helper.AssertEqual(in, viaIter)
		helper.AssertNoError(gojson.Unmarshal([]byte(text), &viaGoJSON))
		helper.AssertEqual(in, viaGoJSON)
	})
}

func BenchmarkSerialize(b *testing.B) {
	v := sampleCatalog()
	b.Run("jsongraph", func(b *testing.B) {
		c := New()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = c.Serialize(v)
		}
	})
	b.Run("graph-settings", func(b *testing.B) {
		c := New(GraphSettings())
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = c.Serialize(v)
		}
	})
	b.Run("jsoniter", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = stdCompatible.Marshal(v)
		}
	})
	b.Run("go-json", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = gojson.Marshal(v)
		}
	})
}

func BenchmarkDeserialize(b *testing.B) {
	text, err := stdCompatible.MarshalToString(sampleCatalog())
	if err != nil {
		b.Fatal(err)
	}
	data := []byte(text)

	b.Run("jsongraph", func(b *testing.B) {
		c := New()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			var out catalog
			_ = c.Deserialize(text, &out)
		}
	})
	b.Run("parse", func(b *testing.B) {
		c := New()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = c.Parse(text)
		}
	})
	b.Run("jsoniter", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			var out catalog
			_ = stdCompatible.Unmarshal(data, &out)
		}
	})
	b.Run("go-json", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			var out catalog
			_ = gojson.Unmarshal(data, &out)
		}
	})
}
