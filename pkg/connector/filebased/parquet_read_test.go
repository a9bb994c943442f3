package filebased_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/cursor"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

func parquetFile(t *testing.T, ids ...int64) string {
	t.Helper()
	arrowSchema := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), arrowSchema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w, err := pqarrow.NewFileWriter(arrowSchema, &buf, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return buf.String()
}

func TestReadParquetStream(t *testing.T) {
	r := &fakeReader{}
	r.add("events/a.parquet", 0, parquetFile(t, 1, 2))
	r.add("events/b.parquet", time.Hour, parquetFile(t, 3))

	stream := map[string]interface{}{
		"name":   "events",
		"globs":  []interface{}{"events/*.parquet"},
		"format": map[string]interface{}{"filetype": "parquet"},
	}

	var out bytes.Buffer
	err := newSource(t, r).Read(context.Background(), rawConfig(stream),
		configured("events", protocol.SyncModeIncremental, nil), nil, protocol.NewEmitter(&out))
	require.NoError(t, err)

	msgs := decodeAll(t, &out)
	records := ofType(msgs, protocol.TypeRecord)
	require.Len(t, records, 3)
	assert.Equal(t, "events/b.parquet", records[2].Record.Data[filebased.SourceFileURL])

	// every file is checkpointed once fully read
	states := ofType(msgs, protocol.TypeState)
	require.Len(t, states, 2)
	assert.Equal(t, "2024-05-01T01:00:00.000000Z_events/b.parquet", states[1].State.Stream.StreamState[cursor.CursorKey])
	assert.Equal(t, []protocol.StreamStatus{
		protocol.StreamStatusStarted, protocol.StreamStatusRunning, protocol.StreamStatusComplete,
	}, statuses(msgs))
}
