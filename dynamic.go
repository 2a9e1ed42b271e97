package jsongraph

// DynamicObject is implemented by values whose members are not known from
// their type. The writer emits these members after any typed ones, and the
// reader hands it every member the type itself has no place for.
type DynamicObject interface {
	MemberNames() []string
	GetMember(name string) (any, bool)
	SetMember(name string, value any) error
}

// OrderedMap is a string-keyed map that remembers insertion order
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap creates an empty map
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]any)}
}

// Set stores a value; an existing key keeps its position
func (m *OrderedMap) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key and reports whether it was present
func (m *OrderedMap) Delete(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order
func (m *OrderedMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// ToMap copies the entries into a plain map
func (m *OrderedMap) ToMap() map[string]any {
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func (m *OrderedMap) MemberNames() []string             { return m.Keys() }
func (m *OrderedMap) GetMember(name string) (any, bool) { return m.Get(name) }

func (m *OrderedMap) SetMember(name string, value any) error {
	m.Set(name, value)
	return nil
}
