package variable

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueJSON(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		json  string
	}{
		{"int32", Int32Value(-7), `{"type":"Int32","value":-7}`},
		{"float", FloatValue(12.5), `{"type":"Float","value":12.5}`},
		{"boolean", BoolValue(true), `{"type":"Boolean","value":true}`},
		{"string", StringValue("auto"), `{"type":"String","value":"auto"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			var got Value
			require.NoError(t, json.Unmarshal([]byte(tt.json), &got))
			assert.True(t, got.Equal(tt.value), "decoded %v, want %v", got, tt.value)
		})
	}
}

func TestValueUnmarshalErrors(t *testing.T) {
	var v Value

	err := json.Unmarshal([]byte(`{"type":"Double","value":1}`), &v)
	assert.ErrorIs(t, err, ErrUnknownKind)

	err = json.Unmarshal([]byte(`{"type":"Int32","value":"seven"}`), &v)
	assert.Error(t, err)
}

func TestZeroValueIsFloat(t *testing.T) {
	var v Value
	assert.Equal(t, KindFloat, v.Kind())
	assert.True(t, v.Equal(FloatValue(0)))
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int32Value(1).Equal(Int32Value(1)))
	assert.False(t, Int32Value(1).Equal(FloatValue(1)), "different kinds are never equal")
	assert.False(t, StringValue("a").Equal(StringValue("b")))
	assert.True(t, FloatValue(math.NaN()).Equal(FloatValue(math.NaN())))
}

func TestFloat64View(t *testing.T) {
	f, ok := BoolValue(true).Float64()
	assert.True(t, ok)
	assert.Equal(t, 1.0, f)

	f, ok = Int32Value(42).Float64()
	assert.True(t, ok)
	assert.Equal(t, 42.0, f)

	_, ok = StringValue("42").Float64()
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	tests := []struct {
		kind    Kind
		text    string
		want    Value
		wantErr error
	}{
		{KindInt32, "12", Int32Value(12), nil},
		{KindInt32, " 12 ", Int32Value(12), nil},
		{KindInt32, "12.5", Value{}, ErrConversion},
		{KindFloat, "12.5", FloatValue(12.5), nil},
		{KindFloat, "abc", Value{}, ErrConversion},
		{KindBoolean, "true", BoolValue(true), nil},
		{KindBoolean, "0", BoolValue(false), nil},
		{KindBoolean, "maybe", Value{}, ErrConversion},
		{KindString, "on", StringValue("on"), nil},
		{Kind("Double"), "1", Value{}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.text, func(t *testing.T) {
			got, err := Parse(tt.kind, tt.text)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestFromFloat(t *testing.T) {
	v, err := FromFloat(KindInt32, 11.9)
	require.NoError(t, err)
	assert.True(t, v.Equal(Int32Value(11)), "Int32 truncates")

	v, err = FromFloat(KindInt32, -11.9)
	require.NoError(t, err)
	assert.True(t, v.Equal(Int32Value(-11)))

	v, err = FromFloat(KindBoolean, 0.1)
	require.NoError(t, err)
	assert.True(t, v.Equal(BoolValue(true)))

	_, err = FromFloat(KindInt32, 1e12)
	assert.ErrorIs(t, err, ErrConversion)

	_, err = FromFloat(KindString, 1)
	assert.True(t, errors.Is(err, ErrNotNumeric))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindFloat, KindOf(DataValue{}), "missing reading defaults to Float")

	v := Int32Value(3)
	assert.Equal(t, KindInt32, KindOf(DataValue{Value: &v}))
}

func TestFullID(t *testing.T) {
	tests := []struct {
		prefix, short, want string
	}{
		{"ns=2;s=Plant", "Tank.Level", "ns=2;s=Plant.Tank.Level"},
		{"ns=2;s=Plant", "ns=3;s=Other", "ns=3;s=Other"},
		{"", "Tank.Level", "Tank.Level"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FullID(tt.prefix, tt.short))
	}
}
