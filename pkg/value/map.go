package value

// Map is a mapping that remembers insertion order. The generator's
// documents are ordered, and several consumers (chmod tags, $shars keys,
// files) must act in document order.
type Map struct {
	keys  []string
	items map[string]Value
}

// NewMap creates an empty mapping.
func NewMap() *Map {
	return &Map{items: make(map[string]Value)}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.items[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. An existing key keeps its position.
func (m *Map) Set(key string, v Value) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = v
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Pop removes key and returns the value it held.
func (m *Map) Pop(key string) (Value, bool) {
	v, ok := m.Get(key)
	if ok {
		m.Delete(key)
	}
	return v, ok
}

// Clone returns a shallow copy of m.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, k := range m.Keys() {
		out.Set(k, m.items[k])
	}
	return out
}
