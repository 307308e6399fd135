package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// MetaKind discriminates the variants of a MetaValue.
type MetaKind int

const (
	MetaNull MetaKind = iota
	MetaString
	MetaNumber
	MetaBool
	MetaList
	MetaObject
)

// MetaValue is a tagged metadata value: string, number, bool, null, a list
// of values, or a nested object. It replaces untyped map[string]any bags so
// that serialization is explicit and round-trips deterministically.
type MetaValue struct {
	kind MetaKind
	str  string
	num  float64
	b    bool
	list []MetaValue
	obj  map[string]MetaValue
}

// Metadata is a set of named metadata values.
type Metadata map[string]MetaValue

func Null() MetaValue                       { return MetaValue{kind: MetaNull} }
func String(s string) MetaValue             { return MetaValue{kind: MetaString, str: s} }
func Number(n float64) MetaValue            { return MetaValue{kind: MetaNumber, num: n} }
func Bool(b bool) MetaValue                 { return MetaValue{kind: MetaBool, b: b} }
func List(vs ...MetaValue) MetaValue        { return MetaValue{kind: MetaList, list: vs} }
func Object(m map[string]MetaValue) MetaValue {
	return MetaValue{kind: MetaObject, obj: m}
}

func (v MetaValue) Kind() MetaKind { return v.kind }

// AsString returns the string variant; ok is false for other kinds.
func (v MetaValue) AsString() (string, bool) { return v.str, v.kind == MetaString }

// AsNumber returns the numeric variant; ok is false for other kinds.
func (v MetaValue) AsNumber() (float64, bool) { return v.num, v.kind == MetaNumber }

// AsBool returns the bool variant; ok is false for other kinds.
func (v MetaValue) AsBool() (bool, bool) { return v.b, v.kind == MetaBool }

// AsList returns the list variant; ok is false for other kinds.
func (v MetaValue) AsList() ([]MetaValue, bool) { return v.list, v.kind == MetaList }

// AsObject returns the object variant; ok is false for other kinds.
func (v MetaValue) AsObject() (map[string]MetaValue, bool) { return v.obj, v.kind == MetaObject }

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case MetaNull:
		return []byte("null"), nil
	case MetaString:
		return json.Marshal(v.str)
	case MetaNumber:
		return json.Marshal(v.num)
	case MetaBool:
		return json.Marshal(v.b)
	case MetaList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case MetaObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	}
	return nil, fmt.Errorf("metadata: unknown kind %d", v.kind)
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	mv, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = mv
	return nil
}

// FromAny converts a decoded JSON value into a MetaValue. Unsupported types
// are rejected rather than silently coerced.
func FromAny(raw any) (MetaValue, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return MetaValue{}, err
		}
		return Number(f), nil
	case []any:
		list := make([]MetaValue, 0, len(t))
		for _, item := range t {
			mv, err := FromAny(item)
			if err != nil {
				return MetaValue{}, err
			}
			list = append(list, mv)
		}
		return List(list...), nil
	case map[string]any:
		obj := make(map[string]MetaValue, len(t))
		for k, item := range t {
			mv, err := FromAny(item)
			if err != nil {
				return MetaValue{}, err
			}
			obj[k] = mv
		}
		return Object(obj), nil
	}
	return MetaValue{}, fmt.Errorf("metadata: unsupported type %T", raw)
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the metadata set.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

func (v MetaValue) clone() MetaValue {
	switch v.kind {
	case MetaList:
		list := make([]MetaValue, len(v.list))
		for i, item := range v.list {
			list[i] = item.clone()
		}
		return MetaValue{kind: MetaList, list: list}
	case MetaObject:
		obj := make(map[string]MetaValue, len(v.obj))
		for k, item := range v.obj {
			obj[k] = item.clone()
		}
		return MetaValue{kind: MetaObject, obj: obj}
	}
	return v
}
