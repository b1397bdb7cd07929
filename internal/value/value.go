// Package value provides a tagged variant over the JSON value space, used
// everywhere a record field is inspected: parsers produce it, the field
// resolver walks it, the indexer stringifies its terminals.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

// Value is a closed sum type over the record data model: string, number,
// bool, null, array, and object. It is built from the output of
// encoding/json's decode-into-any (or a parser producing the same shape)
// via FromAny, or directly with the String, Number, Bool, Array and Object
// constructors.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

// Null is the zero Value.
var Null = Value{kind: KindNull}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Array(vs []Value) Value { return Value{kind: KindArray, arr: vs} }
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

// Kind reports the dynamic type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null (or the zero Value).
func (v Value) IsNull() bool { return v.kind == KindNull }

// StringValue returns the underlying string if v is a string, else "", false.
func (v Value) StringValue() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// NumberValue returns the underlying float64 if v is a number, else 0, false.
func (v Value) NumberValue() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// BoolValue returns the underlying bool if v is a bool, else false, false.
func (v Value) BoolValue() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Array returns the underlying slice if v is an array, else nil, false.
func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// Object returns the underlying map if v is an object, else nil, false.
func (v Value) Object() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Field looks up a key on an object Value. Returns Null, false for anything
// else (including non-object values and missing keys).
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null, false
	}
	val, ok := v.obj[key]
	return val, ok
}

// SetField returns a copy of v with key set to val. If v is not an object,
// an object holding only key is returned — used by the relation resolver to
// attach a join result without requiring the base record be mutable.
func SetField(v Value, key string, val Value) Value {
	m, ok := v.Object()
	out := make(map[string]Value, len(m)+1)
	if ok {
		for k, e := range m {
			out[k] = e
		}
	}
	out[key] = val
	return Object(out)
}

// FromAny converts the result of encoding/json.Unmarshal(..., &any) (or
// yaml.v3's equivalent map[string]interface{} decode) into a Value tree.
func FromAny(a any) Value {
	switch t := a.(type) {
	case nil:
		return Null
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			vs[i] = FromAny(e)
		}
		return Array(vs)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromAny(e)
		}
		return Object(m)
	// map[any]any shows up from yaml.v3's generic decode of nested maps.
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[fmt.Sprintf("%v", k)] = FromAny(e)
		}
		return Object(m)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// MarshalJSON renders v as plain JSON, letting a Value flow directly into
// an API response (the MCP tool surface, a cached query page) without a
// separate conversion step.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindArray:
		return json.Marshal(v.arr)
	case KindObject:
		return json.Marshal(v.obj)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes arbitrary JSON into a Value tree via the same
// decode-into-any path FromAny expects.
func (v *Value) UnmarshalJSON(data []byte) error {
	var a any
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*v = FromAny(a)
	return nil
}

// Stringify canonically converts a terminal Value to its index/display
// string form. Objects and arrays are not terminals; callers resolving a
// dot-path never call Stringify on them directly, but a best-effort
// rendering is returned so failures are visible rather than silent.
func Stringify(v Value) string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = Stringify(e)
		}
		return fmt.Sprintf("%v", parts)
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("%v", keys)
	default:
		return ""
	}
}
