package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ValueKind identifies which member of a Value is set
type ValueKind string

const (
	ValueKindNull   ValueKind = "null"
	ValueKindString ValueKind = "string"
	ValueKindNumber ValueKind = "number"
	ValueKindBool   ValueKind = "bool"
)

// Value is a scalar metadata value. Values never nest: a Metadata bag holds
// strings, numbers, booleans or nulls only.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// String creates a string value
func String(s string) Value {
	return Value{kind: ValueKindString, str: s}
}

// Number creates a numeric value
func Number(n float64) Value {
	return Value{kind: ValueKindNumber, num: n}
}

// Int creates a numeric value from an int
func Int(n int) Value {
	return Value{kind: ValueKindNumber, num: float64(n)}
}

// Bool creates a boolean value
func Bool(b bool) Value {
	return Value{kind: ValueKindBool, b: b}
}

// Null creates a null value
func Null() Value {
	return Value{kind: ValueKindNull}
}

// Kind returns the value kind. The zero Value is null.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return ValueKindNull
	}
	return v.kind
}

// AsString returns the string member and whether the value is a string
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == ValueKindString
}

// AsNumber returns the numeric member and whether the value is a number
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == ValueKindNumber
}

// AsBool returns the boolean member and whether the value is a boolean
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == ValueKindBool
}

// Text renders the value as plain text
func (v Value) Text() string {
	switch v.Kind() {
	case ValueKindString:
		return v.str
	case ValueKindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueKindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Native returns the value as a plain Go scalar (string, float64, bool or nil)
func (v Value) Native() any {
	switch v.Kind() {
	case ValueKindString:
		return v.str
	case ValueKindNumber:
		return v.num
	case ValueKindBool:
		return v.b
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// UnmarshalJSON implements json.Unmarshaler. Objects and arrays are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = Null()
	case string:
		*v = String(t)
	case float64:
		*v = Number(t)
	case bool:
		*v = Bool(t)
	default:
		return fmt.Errorf("metadata values must be scalar, got %T", raw)
	}
	return nil
}

// Metadata is an open key/value bag of scalar values
type Metadata map[string]Value

// Set stores a value and returns the bag for chaining
func (m Metadata) Set(key string, value Value) Metadata {
	m[key] = value
	return m
}

// GetInt returns a numeric value truncated to int
func (m Metadata) GetInt(key string) (int, bool) {
	n, ok := m[key].AsNumber()
	return int(n), ok
}

// GetBool returns a boolean value
func (m Metadata) GetBool(key string) (bool, bool) {
	return m[key].AsBool()
}

// Keys returns the keys in sorted order
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Native converts the bag to map[string]any, e.g. for graph properties
func (m Metadata) Native() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Native()
	}
	return out
}

// Clone returns a shallow copy
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer so the bag can be stored as jsonb
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch t := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = t
	case string:
		data = []byte(t)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
	out := Metadata{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
	}
	*m = out
	return nil
}
