// Package ordered provides a small insertion-ordered string-keyed map.
// Property declaration order is significant for flat projection, so the
// schema and tree layers cannot use plain Go maps for their children.
package ordered

// Map preserves insertion order of keys. Zero value is ready to use.
type Map[V any] struct {
	keys []string
	vals map[string]V
}

// NewMap returns an empty ordered map.
func NewMap[V any]() *Map[V] { return &Map[V]{} }

// Get returns the value stored under key.
func (m *Map[V]) Get(key string) (V, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Set stores val under key, appending the key on first insertion and
// keeping its original position on overwrite.
func (m *Map[V]) Set(key string, val V) {
	if m.vals == nil {
		m.vals = make(map[string]V)
	}
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = val
}

// Delete removes key, preserving the order of the remaining keys.
func (m *Map[V]) Delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *Map[V]) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order. The returned slice is shared;
// callers must not mutate it.
func (m *Map[V]) Keys() []string { return m.keys }

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map[V]) Range(fn func(key string, val V) bool) {
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Clone returns a shallow copy (keys and value slots copied, values shared).
func (m *Map[V]) Clone() *Map[V] {
	out := &Map[V]{}
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, m.vals[k])
	}
	return out
}
