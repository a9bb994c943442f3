package schema

import (
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeOf(t *testing.T) {
	tests := []struct {
		value interface{}
		want  Type
	}{
		{nil, Null},
		{true, Boolean},
		{int64(3), Integer},
		{3.5, Number},
		{gojson.Number("10"), Integer},
		{gojson.Number("10.5"), Number},
		{"x", String},
		{time.Now(), String},
		{[]interface{}{1}, Array},
		{map[string]interface{}{}, Object},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeOf(tt.value), "%#v", tt.value)
	}
}

func TestInferString(t *testing.T) {
	trueValues := []string{"y", "true"}
	falseValues := []string{"n", "false"}

	assert.Equal(t, Boolean, InferString("y", trueValues, falseValues))
	assert.Equal(t, Integer, InferString("42", trueValues, falseValues))
	assert.Equal(t, Number, InferString("4.2", trueValues, falseValues))
	assert.Equal(t, String, InferString("TRUE", trueValues, falseValues))
	assert.Equal(t, String, InferString("", trueValues, falseValues))
}

func TestWiden(t *testing.T) {
	assert.Equal(t, Integer, Widen(Integer, Integer))
	assert.Equal(t, Integer, Widen(Null, Integer))
	assert.Equal(t, Boolean, Widen(Boolean, ""))
	assert.Equal(t, Number, Widen(Integer, Number))
	assert.Equal(t, String, Widen(Boolean, Integer))
	assert.Equal(t, String, Widen(Object, Array))
}

func TestInferrer(t *testing.T) {
	inf := NewInferrer()
	inf.Add(map[string]interface{}{"id": int64(1), "price": int64(3), "note": nil})
	inf.Add(map[string]interface{}{"id": int64(2), "price": 3.5, "tags": []interface{}{}})

	assert.Equal(t, Fields{
		"id":    Integer,
		"price": Number,
		"note":  String,
		"tags":  Array,
	}, inf.Fields())
}

func TestMerge(t *testing.T) {
	merged := Merge(Fields{"a": Integer, "b": String}, Fields{"a": Number, "c": Boolean})
	assert.Equal(t, Fields{"a": Number, "b": String, "c": Boolean}, merged)
}

func TestJSONSchemaRoundTrip(t *testing.T) {
	fields := Fields{"id": Integer, "name": String}
	doc := ToJSONSchema(fields)
	assert.Equal(t, "object", doc["type"])

	back, err := FromJSONSchema(doc)
	require.NoError(t, err)
	assert.Equal(t, fields, back)
}

func TestFromJSONSchemaNullableList(t *testing.T) {
	fields, err := FromJSONSchema(map[string]interface{}{
		"properties": map[string]interface{}{
			"id": map[string]interface{}{"type": []interface{}{"null", "integer"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Integer, fields["id"])
}

func TestParseInputSchema(t *testing.T) {
	t.Run("short form", func(t *testing.T) {
		fields, err := ParseInputSchema(`{"id": "integer", "name": "String"}`)
		require.NoError(t, err)
		assert.Equal(t, Fields{"id": Integer, "name": String}, fields)
	})

	t.Run("json schema", func(t *testing.T) {
		fields, err := ParseInputSchema(`{"type":"object","properties":{"id":{"type":"number"}}}`)
		require.NoError(t, err)
		assert.Equal(t, Fields{"id": Number}, fields)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseInputSchema(`{"id": "decimal"}`)
		require.Error(t, err)

		_, err = ParseInputSchema(`not json`)
		require.Error(t, err)
	})
}

func TestConforms(t *testing.T) {
	fields := Fields{"id": Integer, "price": Number, "name": String}

	assert.True(t, Conforms(map[string]interface{}{"id": int64(1), "price": int64(2), "name": nil}, fields))
	assert.False(t, Conforms(map[string]interface{}{"id": "one"}, fields))
	assert.False(t, Conforms(map[string]interface{}{"extra": 1}, fields))
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Fields{"b": String, "a": String}.Names())
}
