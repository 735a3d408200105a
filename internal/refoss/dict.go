package refoss

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Dict is a device config or status snapshot keyed by component.
//
// Top-level keys preserve the order they were inserted or decoded in.
// Component bodies are plain maps as decoded by encoding/json. A nil *Dict
// behaves as an empty snapshot for every read method.
type Dict struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{m: orderedmap.New[string, any]()}
}

// DictOf builds a Dict from alternating key/value pairs. Odd trailing
// arguments and non-string keys are ignored.
func DictOf(pairs ...any) *Dict {
	d := NewDict()
	for i := 0; i+1 < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			continue
		}
		d.Set(k, pairs[i+1])
	}
	return d
}

// Set stores v under key, keeping the original position if key exists.
func (d *Dict) Set(key string, v any) {
	d.m.Set(key, v)
}

// Get returns the raw value stored under key.
func (d *Dict) Get(key string) (any, bool) {
	if d == nil || d.m == nil {
		return nil, false
	}
	return d.m.Get(key)
}

// Has reports whether key is present.
func (d *Dict) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Component returns the object stored under key, or nil if the key is
// missing or does not hold an object.
func (d *Dict) Component(key string) map[string]any {
	v, ok := d.Get(key)
	if !ok {
		return nil
	}
	obj, _ := v.(map[string]any)
	return obj
}

// Keys returns the top-level keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil || d.m == nil {
		return nil
	}
	keys := make([]string, 0, d.m.Len())
	for p := d.m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Len returns the number of top-level keys.
func (d *Dict) Len() int {
	if d == nil || d.m == nil {
		return 0
	}
	return d.m.Len()
}

// Clone returns a copy whose top-level map and component objects can be
// modified without affecting d. Deeper values are shared.
func (d *Dict) Clone() *Dict {
	out := NewDict()
	if d == nil || d.m == nil {
		return out
	}
	for p := d.m.Oldest(); p != nil; p = p.Next() {
		out.Set(p.Key, shallowCopy(p.Value))
	}
	return out
}

// Merge returns a new Dict with the components of patch merged into d.
// Object components are merged field by field; anything else replaces the
// existing value. New keys are appended in patch order.
func (d *Dict) Merge(patch *Dict) *Dict {
	out := d.Clone()
	if patch == nil || patch.m == nil {
		return out
	}
	for p := patch.m.Oldest(); p != nil; p = p.Next() {
		incoming, isObj := p.Value.(map[string]any)
		existing := out.Component(p.Key)
		if !isObj || existing == nil {
			out.Set(p.Key, shallowCopy(p.Value))
			continue
		}
		for k, v := range incoming {
			existing[k] = v
		}
	}
	return out
}

// MarshalJSON encodes the snapshot as an object in key order.
func (d *Dict) MarshalJSON() ([]byte, error) {
	if d == nil || d.m == nil {
		return []byte("{}"), nil
	}
	return d.m.MarshalJSON()
}

// UnmarshalJSON decodes an object, preserving key order.
func (d *Dict) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, any]()
	if err := m.UnmarshalJSON(data); err != nil {
		return err
	}
	d.m = m
	return nil
}

func shallowCopy(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(obj))
	for k, val := range obj {
		out[k] = val
	}
	return out
}

var (
	_ json.Marshaler   = (*Dict)(nil)
	_ json.Unmarshaler = (*Dict)(nil)
)
