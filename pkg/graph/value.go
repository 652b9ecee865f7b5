package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueKind identifies which scalar a Value holds.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "null"
	}
}

// Value is a scalar attribute value. The zero Value is null.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

func String(s string) Value { return Value{kind: KindString, s: s} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }
func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload; ok is false for any other kind.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt returns the integer payload; ok is false for any other kind.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the numeric payload. Ints are widened.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsBool returns the boolean payload; ok is false for any other kind.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsTime returns the time payload; ok is false for any other kind.
func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindTime }

// String renders the value for dumps and keyword matching.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	}
	return true
}

// ValueOf converts a loosely typed scalar (as produced by JSON or YAML
// decoding) into a Value.
func ValueOf(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t)), nil
		}
		return Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case time.Time:
		return Time(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported attribute value type %T", x)
	}
}

// MarshalJSON encodes the value as a plain JSON scalar. Times are RFC3339 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar. Strings stay strings; times come back
// as their RFC3339 text.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Attributes is the open attribute map carried by entities and relationships.
type Attributes map[string]Value

// AttributesOf converts a loosely typed map into Attributes.
func AttributesOf(m map[string]interface{}) (Attributes, error) {
	attrs := make(Attributes, len(m))
	for k, raw := range m {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		attrs[k] = v
	}
	return attrs, nil
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// merge applies src onto a, last write wins per key.
func (a Attributes) merge(src Attributes) {
	for k, v := range src {
		a[k] = v
	}
}
