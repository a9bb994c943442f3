package filebased_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-source-s3/pkg/config"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/cursor"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/parsers"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/metrics"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type fakeFile struct {
	filebased.RemoteFile
	data []byte
}

// fakeReader is an in-memory StreamReader
type fakeReader struct {
	files      []fakeFile
	configured filebased.SourceConfig
}

type handle struct{ *bytes.Reader }

func (handle) Close() error { return nil }

func (r *fakeReader) add(uri string, age time.Duration, data string) {
	r.files = append(r.files, fakeFile{
		RemoteFile: filebased.RemoteFile{URI: uri, LastModified: t0.Add(age), Size: int64(len(data))},
		data:       []byte(data),
	})
}

func (r *fakeReader) SetConfig(cfg filebased.SourceConfig) error {
	r.configured = cfg
	return nil
}

func (r *fakeReader) GetMatchingFiles(ctx context.Context, globs []string, prefix string) ([]filebased.RemoteFile, error) {
	var out []filebased.RemoteFile
	for _, f := range r.files {
		if filebased.MatchGlobs(f.URI, globs) {
			out = append(out, f.RemoteFile)
		}
	}
	return out, nil
}

func (r *fakeReader) OpenFile(ctx context.Context, file filebased.RemoteFile, mode filebased.FileReadMode) (filebased.FileHandle, error) {
	for _, f := range r.files {
		if f.URI == file.URI {
			return handle{bytes.NewReader(f.data)}, nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeFile, "no such file %s", file.URI)
}

// fakeSpec parses the shared file-based configuration
type fakeSpec struct{}

func (fakeSpec) Parse(raw map[string]interface{}) (filebased.SourceConfig, error) {
	var cfg filebased.Config
	if err := config.Decode(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (fakeSpec) Schema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (fakeSpec) DocumentationURL() string { return "https://example.com/docs" }

func newSource(t *testing.T, reader filebased.StreamReader) *filebased.Source {
	t.Helper()
	s, err := filebased.NewSource(reader, fakeSpec{}, "", cursor.Factory(cursor.WithLogger(zaptest.NewLogger(t))), "", "",
		filebased.WithParsers(parsers.Default()),
		filebased.WithLogger(zaptest.NewLogger(t)),
		filebased.WithMetrics(metrics.NewCollector("test")),
	)
	require.NoError(t, err)
	return s
}

func rawConfig(streams ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, len(streams))
	for i, s := range streams {
		list[i] = s
	}
	return map[string]interface{}{"streams": list}
}

func jsonlStream(name string, extra map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{
		"name":   name,
		"globs":  []interface{}{name + "/*.jsonl"},
		"format": map[string]interface{}{"filetype": "jsonl"},
	}
	for k, v := range extra {
		s[k] = v
	}
	return s
}

func configured(name string, mode protocol.SyncMode, jsonSchema map[string]interface{}) *protocol.ConfiguredCatalog {
	return &protocol.ConfiguredCatalog{Streams: []protocol.ConfiguredStream{{
		Stream:   protocol.Stream{Name: name, JSONSchema: jsonSchema},
		SyncMode: mode,
	}}}
}

func decodeAll(t *testing.T, out *bytes.Buffer) []*protocol.Message {
	t.Helper()
	var msgs []*protocol.Message
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		msg, err := protocol.Decode(sc.Bytes())
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

func ofType(msgs []*protocol.Message, typ protocol.Type) []*protocol.Message {
	var out []*protocol.Message
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func statuses(msgs []*protocol.Message) []protocol.StreamStatus {
	var out []protocol.StreamStatus
	for _, m := range ofType(msgs, protocol.TypeTrace) {
		if m.Trace.StreamStatus != nil {
			out = append(out, m.Trace.StreamStatus.Status)
		}
	}
	return out
}

func TestNewSourceRequiresCollaborators(t *testing.T) {
	_, err := filebased.NewSource(nil, fakeSpec{}, "", cursor.Factory(), "", "")
	require.Error(t, err)
	_, err = filebased.NewSource(&fakeReader{}, nil, "", cursor.Factory(), "", "")
	require.Error(t, err)
	_, err = filebased.NewSource(&fakeReader{}, fakeSpec{}, "", nil, "", "")
	require.Error(t, err)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewSourceLoadsFiles(t *testing.T) {
	cfgPath := writeFile(t, "config.json", `{"streams":[{"name":"orders","format":{"filetype":"jsonl"}}]}`)
	catPath := writeFile(t, "catalog.json", `{"streams":[{"stream":{"name":"orders","json_schema":{}},"sync_mode":"incremental","destination_sync_mode":"append"}]}`)
	statePath := writeFile(t, "state.json", `[{"type":"STREAM","stream":{"stream_descriptor":{"name":"orders"},"stream_state":{"history":{}}}}]`)

	s, err := filebased.NewSource(&fakeReader{}, fakeSpec{}, catPath, cursor.Factory(), cfgPath, statePath,
		filebased.WithParsers(parsers.Default()), filebased.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestNewSourceRejectsUnknownCatalogStream(t *testing.T) {
	cfgPath := writeFile(t, "config.json", `{"streams":[{"name":"orders","format":{"filetype":"jsonl"}}]}`)
	catPath := writeFile(t, "catalog.json", `{"streams":[{"stream":{"name":"users","json_schema":{}},"sync_mode":"full_refresh","destination_sync_mode":"overwrite"}]}`)

	_, err := filebased.NewSource(&fakeReader{}, fakeSpec{}, catPath, cursor.Factory(), cfgPath, "",
		filebased.WithParsers(parsers.Default()), filebased.WithLogger(zaptest.NewLogger(t)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCatalog))
	assert.Contains(t, err.Error(), filebased.ErrMsgStreamNotInCfg)
}

func TestNewSourceRejectsBadFiles(t *testing.T) {
	badCfg := writeFile(t, "config.json", `{"streams":[]}`)
	_, err := filebased.NewSource(&fakeReader{}, fakeSpec{}, "", cursor.Factory(), badCfg, "")
	require.Error(t, err)

	_, err = filebased.NewSource(&fakeReader{}, fakeSpec{}, filepath.Join(t.TempDir(), "missing.json"), cursor.Factory(), "", "")
	require.Error(t, err)

	badState := writeFile(t, "state.json", `not json`)
	_, err = filebased.NewSource(&fakeReader{}, fakeSpec{}, "", cursor.Factory(), "", badState)
	require.Error(t, err)
}

func TestSpec(t *testing.T) {
	spec, err := newSource(t, &fakeReader{}).Spec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", spec.DocumentationURL)
	assert.True(t, spec.SupportsIncremental)
}

func TestDiscover(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, `{"id": 1, "total": 2}`+"\n")
	r.add("orders/b.jsonl", time.Hour, `{"id": 2, "total": 2.5, "note": "x"}`+"\n")
	r.add("users/a.jsonl", 0, `{"name": "ann"}`+"\n")

	catalog, err := newSource(t, r).Discover(context.Background(), rawConfig(
		jsonlStream("orders", map[string]interface{}{"primary_key": "id"}),
		jsonlStream("users", map[string]interface{}{"schemaless": true}),
		jsonlStream("empty", nil),
		jsonlStream("typed", map[string]interface{}{"input_schema": `{"id": "integer"}`}),
	))
	require.NoError(t, err)
	require.Len(t, catalog.Streams, 4)
	require.NotNil(t, r.configured)

	orders := catalog.Streams[0]
	assert.Equal(t, [][]string{{"id"}}, orders.SourceDefinedPrimaryKey)
	assert.Equal(t, []string{filebased.SourceFileLastModified}, orders.DefaultCursorField)
	assert.ElementsMatch(t, []protocol.SyncMode{protocol.SyncModeFullRefresh, protocol.SyncModeIncremental}, orders.SupportedSyncModes)
	props := orders.JSONSchema["properties"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"type": "number"}, props["total"])
	assert.Contains(t, props, "note")
	assert.Contains(t, props, filebased.SourceFileURL)
	assert.Contains(t, props, filebased.SourceFileLastModified)

	users := catalog.Streams[1].JSONSchema["properties"].(map[string]interface{})
	assert.Contains(t, users, "data")
	assert.NotContains(t, users, "name")

	empty := catalog.Streams[2].JSONSchema["properties"].(map[string]interface{})
	assert.Len(t, empty, 2)

	typed := catalog.Streams[3].JSONSchema["properties"].(map[string]interface{})
	assert.Contains(t, typed, "id")
}

func TestDiscoverInferenceError(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, "{broken")

	_, err := newSource(t, r).Discover(context.Background(), rawConfig(jsonlStream("orders", nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), filebased.ErrMsgSchemaInference)
}

func TestCheck(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, `{"id": 1}`+"\n")
	s := newSource(t, r)

	status, err := s.Check(context.Background(), rawConfig(jsonlStream("orders", nil)))
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusSucceeded, status.Status)

	status, err = s.Check(context.Background(), rawConfig(jsonlStream("missing", nil)))
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFailed, status.Status)
	assert.Contains(t, status.Message, filebased.ErrMsgEmptyStream)

	status, err = s.Check(context.Background(), map[string]interface{}{"streams": []interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFailed, status.Status)
}

func TestCheckUnparseableFile(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, `[1, 2]`)

	status, err := newSource(t, r).Check(context.Background(), rawConfig(jsonlStream("orders", nil)))
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFailed, status.Status)
	assert.Contains(t, status.Message, filebased.ErrMsgRecordParsing)
}

func TestReadFullRefresh(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/b.jsonl", time.Hour, `{"id": 2}`+"\n")
	r.add("orders/a.jsonl", 0, `{"id": 1}`+"\n"+`{"id": 3}`+"\n")

	var out bytes.Buffer
	err := newSource(t, r).Read(context.Background(), rawConfig(jsonlStream("orders", nil)),
		configured("orders", protocol.SyncModeFullRefresh, nil), nil, protocol.NewEmitter(&out))
	require.NoError(t, err)

	msgs := decodeAll(t, &out)
	records := ofType(msgs, protocol.TypeRecord)
	require.Len(t, records, 3)
	assert.Equal(t, "orders/a.jsonl", records[0].Record.Data[filebased.SourceFileURL])
	assert.Equal(t, "2024-05-01T00:00:00.000000Z", records[0].Record.Data[filebased.SourceFileLastModified])
	assert.Equal(t, "orders/b.jsonl", records[2].Record.Data[filebased.SourceFileURL])
	assert.Empty(t, ofType(msgs, protocol.TypeState))
	assert.Equal(t, []protocol.StreamStatus{
		protocol.StreamStatusStarted, protocol.StreamStatusRunning, protocol.StreamStatusComplete,
	}, statuses(msgs))
}

func TestReadIncrementalCheckpointsAndResumes(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, `{"id": 1}`+"\n")
	r.add("orders/b.jsonl", time.Hour, `{"id": 2}`+"\n")
	cfg := rawConfig(jsonlStream("orders", nil))
	catalog := configured("orders", protocol.SyncModeIncremental, nil)

	var out bytes.Buffer
	require.NoError(t, newSource(t, r).Read(context.Background(), cfg, catalog, nil, protocol.NewEmitter(&out)))
	msgs := decodeAll(t, &out)
	states := ofType(msgs, protocol.TypeState)
	require.Len(t, states, 2)
	last := states[1].State
	assert.Equal(t, protocol.StateTypeStream, last.Type)
	assert.Equal(t, "orders", last.Stream.StreamDescriptor.Name)
	assert.Equal(t, "2024-05-01T01:00:00.000000Z_orders/b.jsonl", last.Stream.StreamState[cursor.CursorKey])

	// second run with the checkpoint only picks up the new file
	r.add("orders/c.jsonl", 2*time.Hour, `{"id": 3}`+"\n")
	out.Reset()
	state := core.State{*last}
	require.NoError(t, newSource(t, r).Read(context.Background(), cfg, catalog, state, protocol.NewEmitter(&out)))
	records := ofType(decodeAll(t, &out), protocol.TypeRecord)
	require.Len(t, records, 1)
	assert.Equal(t, "orders/c.jsonl", records[0].Record.Data[filebased.SourceFileURL])
}

func TestReadCollectsFileErrors(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, "{broken")
	r.add("orders/b.jsonl", time.Hour, `{"id": 2}`+"\n")
	r.add("users/a.jsonl", 0, `{"name": "ann"}`+"\n")

	catalog := configured("orders", protocol.SyncModeIncremental, nil)
	catalog.Streams = append(catalog.Streams, protocol.ConfiguredStream{
		Stream: protocol.Stream{Name: "users"}, SyncMode: protocol.SyncModeFullRefresh,
	})

	var out bytes.Buffer
	err := newSource(t, r).Read(context.Background(),
		rawConfig(jsonlStream("orders", nil), jsonlStream("users", nil)),
		catalog, nil, protocol.NewEmitter(&out))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders")
	assert.NotContains(t, err.Error(), "users")

	msgs := decodeAll(t, &out)
	assert.Len(t, ofType(msgs, protocol.TypeRecord), 2)
	// the good file is still checkpointed
	assert.Len(t, ofType(msgs, protocol.TypeState), 1)

	var errorTrace *protocol.ErrorTraceMessage
	for _, m := range ofType(msgs, protocol.TypeTrace) {
		if m.Trace.Error != nil {
			errorTrace = m.Trace.Error
		}
	}
	require.NotNil(t, errorTrace)
	require.NotNil(t, errorTrace.StreamDescriptor)
	assert.Equal(t, "orders", errorTrace.StreamDescriptor.Name)
	assert.Equal(t, []protocol.StreamStatus{
		protocol.StreamStatusStarted, protocol.StreamStatusRunning, protocol.StreamStatusIncomplete,
		protocol.StreamStatusStarted, protocol.StreamStatusRunning, protocol.StreamStatusComplete,
	}, statuses(msgs))
}

func TestReadValidationPolicies(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, `{"id": 1}`+"\n"+`{"id": "x"}`+"\n"+`{"id": 3}`+"\n")
	jsonSchema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"id": map[string]interface{}{"type": "integer"}},
	}

	read := func(policy filebased.ValidationPolicy) []*protocol.Message {
		var out bytes.Buffer
		err := newSource(t, r).Read(context.Background(),
			rawConfig(jsonlStream("orders", map[string]interface{}{"validation_policy": string(policy)})),
			configured("orders", protocol.SyncModeFullRefresh, jsonSchema), nil, protocol.NewEmitter(&out))
		require.NoError(t, err)
		return ofType(decodeAll(t, &out), protocol.TypeRecord)
	}

	assert.Len(t, read(filebased.PolicyEmitRecord), 3)
	assert.Len(t, read(filebased.PolicySkipRecord), 2)
	assert.Len(t, read(filebased.PolicyWaitForDiscover), 1)
}

func TestReadSchemalessWrapsData(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, `{"id": 1}`+"\n")

	var out bytes.Buffer
	err := newSource(t, r).Read(context.Background(),
		rawConfig(jsonlStream("orders", map[string]interface{}{"schemaless": true})),
		configured("orders", protocol.SyncModeFullRefresh, nil), nil, protocol.NewEmitter(&out))
	require.NoError(t, err)

	records := ofType(decodeAll(t, &out), protocol.TypeRecord)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Record.Data, "data")
	assert.NotContains(t, records[0].Record.Data, "id")
}

func TestReadRequiresCatalog(t *testing.T) {
	err := newSource(t, &fakeReader{}).Read(context.Background(), rawConfig(jsonlStream("orders", nil)), nil, nil, protocol.NewEmitter(io.Discard))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCatalog))
}

func TestReadRejectsInvalidState(t *testing.T) {
	r := &fakeReader{}
	r.add("orders/a.jsonl", 0, `{"id": 1}`+"\n")
	state := core.State{{
		Type: protocol.StateTypeStream,
		Stream: &protocol.StreamState{
			StreamDescriptor: protocol.StreamDescriptor{Name: "orders"},
			StreamState:      map[string]interface{}{"history": map[string]interface{}{"a": "bad"}},
		},
	}}

	var out bytes.Buffer
	err := newSource(t, r).Read(context.Background(), rawConfig(jsonlStream("orders", nil)),
		configured("orders", protocol.SyncModeIncremental, nil), state, protocol.NewEmitter(&out))
	require.Error(t, err)
	assert.True(t, strings.Contains(out.String(), `"INCOMPLETE"`))
}
