package protocol

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestEmitRecord(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, WithClock(fixedClock(1700000000123)))

	require.NoError(t, e.EmitRecord("orders", map[string]interface{}{"id": 1}))

	assert.Equal(t,
		`{"type":"RECORD","record":{"stream":"orders","data":{"id":1},"emitted_at":1700000000123}}`+"\n",
		out.String())
}

func TestEmitStreamStatus(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, WithClock(fixedClock(5)))

	require.NoError(t, e.EmitStreamStatus("orders", StreamStatusStarted))

	msg, err := Decode(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, TypeTrace, msg.Type)
	require.NotNil(t, msg.Trace.StreamStatus)
	assert.Equal(t, "orders", msg.Trace.StreamStatus.StreamDescriptor.Name)
	assert.Equal(t, StreamStatusStarted, msg.Trace.StreamStatus.Status)
}

func TestEmitterConcurrentWritesStayOnSeparateLines(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = e.EmitLog(LogLevelInfo, fmt.Sprintf("line %d", i))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		msg, err := Decode([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, TypeLog, msg.Type)
	}
}

func TestErrorTraceFromError(t *testing.T) {
	t.Run("config error is shown verbatim", func(t *testing.T) {
		err := errors.New(errors.ErrorTypeConfig, "bucket is required")
		msg := ErrorTraceFromError(err, 10)

		require.NotNil(t, msg.Trace.Error)
		assert.Equal(t, TraceTypeError, msg.Trace.Type)
		assert.Equal(t, int64(10), msg.Trace.EmittedAt)
		assert.Equal(t, "config: bucket is required", msg.Trace.Error.Message)
		assert.Equal(t, FailureTypeConfig, msg.Trace.Error.FailureType)
		assert.Contains(t, msg.Trace.Error.StackTrace, "TestErrorTraceFromError")
	})

	t.Run("system error gets generic summary", func(t *testing.T) {
		msg := ErrorTraceFromError(fmt.Errorf("nil pointer"), 10)

		assert.Equal(t, GenericErrorMessage, msg.Trace.Error.Message)
		assert.Equal(t, "nil pointer", msg.Trace.Error.InternalMessage)
		assert.Equal(t, FailureTypeSystem, msg.Trace.Error.FailureType)
	})

	t.Run("retryable error is transient", func(t *testing.T) {
		msg := ErrorTraceFromError(errors.New(errors.ErrorTypeRateLimit, "SlowDown"), 10)
		assert.Equal(t, FailureTypeTransient, msg.Trace.Error.FailureType)
	})
}

func TestNewErrorTraceOmitsUnsetFields(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out)

	require.NoError(t, e.Emit(NewErrorTrace(42, "boom", "trace")))

	assert.Equal(t,
		`{"type":"TRACE","trace":{"type":"ERROR","emitted_at":42,"error":{"message":"boom","stack_trace":"trace"}}}`+"\n",
		out.String())
}

func TestConfiguredCatalogFind(t *testing.T) {
	catalog := &ConfiguredCatalog{Streams: []ConfiguredStream{
		{Stream: Stream{Name: "a"}},
		{Stream: Stream{Name: "b"}},
	}}

	s, ok := catalog.Find("b")
	require.True(t, ok)
	assert.Equal(t, "b", s.Stream.Name)

	_, ok = catalog.Find("c")
	assert.False(t, ok)

	var nilCatalog *ConfiguredCatalog
	_, ok = nilCatalog.Find("a")
	assert.False(t, ok)
}
