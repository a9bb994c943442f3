package protocol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadConfiguredCatalog(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeFile(t, "catalog.json", `{"streams":[{"stream":{"name":"orders","json_schema":{},"supported_sync_modes":["full_refresh"]},"sync_mode":"incremental","destination_sync_mode":"append"}]}`)

		catalog, err := ReadConfiguredCatalog(path)
		require.NoError(t, err)
		require.Len(t, catalog.Streams, 1)
		assert.Equal(t, "orders", catalog.Streams[0].Stream.Name)
		assert.Equal(t, SyncModeIncremental, catalog.Streams[0].SyncMode)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadConfiguredCatalog(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeCatalog))
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeFile(t, "catalog.json", `{"streams":`)
		_, err := ReadConfiguredCatalog(path)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeCatalog))
	})

	t.Run("stream without name", func(t *testing.T) {
		path := writeFile(t, "catalog.json", `{"streams":[{"stream":{}}]}`)
		_, err := ReadConfiguredCatalog(path)
		require.Error(t, err)
	})
}

func TestParseState(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		msgs, err := ParseState([]byte("  "))
		require.NoError(t, err)
		assert.Nil(t, msgs)
	})

	t.Run("list of stream states", func(t *testing.T) {
		msgs, err := ParseState([]byte(`[{"type":"STREAM","stream":{"stream_descriptor":{"name":"orders"},"stream_state":{"history":{}}}}]`))
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "orders", msgs[0].Stream.StreamDescriptor.Name)
		assert.Contains(t, msgs[0].Stream.StreamState, "history")
	})

	t.Run("legacy object keyed by stream", func(t *testing.T) {
		msgs, err := ParseState([]byte(`{"b":{"_ab_source_file_last_modified":"2022-01-01T00:00:00Z"},"a":{}}`))
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "a", msgs[0].Stream.StreamDescriptor.Name)
		assert.Equal(t, "b", msgs[1].Stream.StreamDescriptor.Name)
		assert.Equal(t, StateTypeStream, msgs[1].Type)
	})

	t.Run("legacy message with data", func(t *testing.T) {
		msgs, err := ParseState([]byte(`[{"type":"LEGACY","data":{"orders":{"history":{}}}}]`))
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "orders", msgs[0].Stream.StreamDescriptor.Name)
	})

	t.Run("global state is rejected", func(t *testing.T) {
		_, err := ParseState([]byte(`[{"type":"GLOBAL"}]`))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeState))
	})

	t.Run("legacy value must be object", func(t *testing.T) {
		_, err := ParseState([]byte(`{"orders":1}`))
		require.Error(t, err)
	})
}
