package models

import (
	"encoding/json"
	"fmt"
	"iter"
)

// OrderedMap is a string-keyed mapping that iterates in insertion order.
// Consumers index positionally into that order, so it is part of the value.
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

// NewOrderedMap returns an empty map.
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{values: make(map[string]V)}
}

// Set inserts or replaces a value. Replacing keeps the original position.
func (m *OrderedMap[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *OrderedMap[V]) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns a copy of the keys in order.
func (m *OrderedMap[V]) Keys() []string {
	return append([]string{}, m.keys...)
}

// Len returns the number of entries.
func (m *OrderedMap[V]) Len() int {
	return len(m.keys)
}

// All iterates entries in order.
func (m *OrderedMap[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// MarshalJSON encodes the map as [orderedKeys, keyToValue]. The object half
// carries no order of its own.
func (m *OrderedMap[V]) MarshalJSON() ([]byte, error) {
	keys := m.keys
	if keys == nil {
		keys = []string{}
	}
	values := m.values
	if values == nil {
		values = map[string]V{}
	}
	return json.Marshal([2]any{keys, values})
}

// UnmarshalJSON rebuilds order strictly from the key sequence. Every key must
// have a value and every value must be named by a key.
func (m *OrderedMap[V]) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("ordered map must be a two-element array, got %d elements", len(pair))
	}

	var keys []string
	if err := json.Unmarshal(pair[0], &keys); err != nil {
		return fmt.Errorf("ordered map keys: %w", err)
	}
	var values map[string]V
	if err := json.Unmarshal(pair[1], &values); err != nil {
		return fmt.Errorf("ordered map values: %w", err)
	}
	if len(values) != len(keys) {
		return fmt.Errorf("ordered map has %d keys but %d values", len(keys), len(values))
	}

	out := NewOrderedMap[V]()
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			return fmt.Errorf("ordered map key %q has no value", k)
		}
		if out.Has(k) {
			return fmt.Errorf("ordered map key %q is repeated", k)
		}
		out.Set(k, v)
	}
	*m = *out
	return nil
}
