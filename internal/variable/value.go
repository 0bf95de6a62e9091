package variable

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the type tag of a Value.
type Kind string

// Value kinds supported by the automation server.
const (
	KindInt32   Kind = "Int32"
	KindFloat   Kind = "Float"
	KindBoolean Kind = "Boolean"
	KindString  Kind = "String"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindInt32, KindFloat, KindBoolean, KindString:
		return true
	}
	return false
}

// Value is an immutable tagged process value.
// The zero Value is Float 0.
type Value struct {
	kind Kind
	i    int32
	f    float64
	b    bool
	s    string
}

// Int32Value returns an Int32 value.
func Int32Value(v int32) Value { return Value{kind: KindInt32, i: v} }

// FloatValue returns a Float value.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// BoolValue returns a Boolean value.
func BoolValue(v bool) Value { return Value{kind: KindBoolean, b: v} }

// StringValue returns a String value.
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the value's type tag.
func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindFloat
	}
	return v.kind
}

// Float64 returns the numeric view of the value.
// Booleans map to 0/1; strings have no numeric view.
func (v Value) Float64() (float64, bool) {
	switch v.Kind() {
	case KindInt32:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBoolean:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Interface returns the value as a plain Go value (int32, float64, bool or string).
func (v Value) Interface() any {
	switch v.Kind() {
	case KindInt32:
		return v.i
	case KindBoolean:
		return v.b
	case KindString:
		return v.s
	default:
		return v.f
	}
}

// String formats the payload without its type tag.
func (v Value) String() string {
	switch v.Kind() {
	case KindInt32:
		return strconv.FormatInt(int64(v.i), 10)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	default:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
}

// Equal reports whether both values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindInt32:
		return v.i == o.i
	case KindBoolean:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	default:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	}
}

type valueJSON struct {
	Type  Kind            `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"type": "...", "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.Kind(), Value: payload})
}

// UnmarshalJSON decodes the {"type", "value"} form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw valueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case KindInt32:
		var i int32
		if err := json.Unmarshal(raw.Value, &i); err != nil {
			return fmt.Errorf("decoding Int32: %w", err)
		}
		*v = Int32Value(i)
	case KindFloat:
		var f float64
		if err := json.Unmarshal(raw.Value, &f); err != nil {
			return fmt.Errorf("decoding Float: %w", err)
		}
		*v = FloatValue(f)
	case KindBoolean:
		var b bool
		if err := json.Unmarshal(raw.Value, &b); err != nil {
			return fmt.Errorf("decoding Boolean: %w", err)
		}
		*v = BoolValue(b)
	case KindString:
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return fmt.Errorf("decoding String: %w", err)
		}
		*v = StringValue(s)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, raw.Type)
	}
	return nil
}

// Parse converts operator-entered text into a value of the given kind.
// Int32 requires an integer literal; Boolean accepts strconv.ParseBool forms.
func Parse(kind Kind, text string) (Value, error) {
	text = strings.TrimSpace(text)
	switch kind {
	case KindInt32:
		i, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q as Int32", ErrConversion, text)
		}
		return Int32Value(int32(i)), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q as Float", ErrConversion, text)
		}
		return FloatValue(f), nil
	case KindBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q as Boolean", ErrConversion, text)
		}
		return BoolValue(b), nil
	case KindString:
		return StringValue(text), nil
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// FromFloat converts an interpolated number into a value of the given kind.
// Int32 truncates toward zero; Boolean is true for any non-zero input.
func FromFloat(kind Kind, f float64) (Value, error) {
	switch kind {
	case KindInt32:
		if f > math.MaxInt32 || f < math.MinInt32 || math.IsNaN(f) {
			return Value{}, fmt.Errorf("%w: %v out of Int32 range", ErrConversion, f)
		}
		return Int32Value(int32(f)), nil
	case KindFloat:
		return FloatValue(f), nil
	case KindBoolean:
		return BoolValue(f != 0), nil
	case KindString:
		return Value{}, ErrNotNumeric
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Quality is the server's confidence in a reading.
type Quality string

// Reading qualities.
const (
	QualityGood      Quality = "good"
	QualityUncertain Quality = "uncertain"
	QualityBad       Quality = "bad"
)

// DataValue is one reading of a variable.
// Value is nil when the read failed or the server reported no value.
type DataValue struct {
	Value      *Value    `json:"value"`
	Quality    Quality   `json:"quality"`
	SourceTime time.Time `json:"source_time"`
}

// KindOf infers the write type from a current reading.
// A missing reading defaults to Float.
func KindOf(dv DataValue) Kind {
	if dv.Value == nil {
		return KindFloat
	}
	return dv.Value.Kind()
}
