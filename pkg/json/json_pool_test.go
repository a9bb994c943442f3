package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalLine(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, MarshalLine(&out, map[string]string{"url": "s3://b/a&b<c>"}))

	assert.Equal(t, "{\"url\":\"s3://b/a&b<c>\"}\n", out.String())
}

func TestUnmarshalNumberKeepsIntegers(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, UnmarshalNumber([]byte(`{"id": 9007199254740993, "f": 1.5}`), &v))

	id, ok := v["id"].(Number)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993", id.String())

	f, ok := v["f"].(Number)
	require.True(t, ok)
	assert.Equal(t, "1.5", f.String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("leftover")
	PutBuffer(buf)

	again := GetBuffer()
	assert.Equal(t, 0, again.Len())
}
