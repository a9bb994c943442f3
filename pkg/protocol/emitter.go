package protocol

import (
	"io"
	"sync"
	"time"

	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// Emitter writes protocol messages as JSON lines. It is safe for concurrent
// use; each message is written with a single Write call.
type Emitter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// EmitterOption configures an Emitter
type EmitterOption func(*Emitter)

// WithClock overrides the time source used for emitted_at
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		e.now = now
	}
}

// NewEmitter creates an emitter writing to w
func NewEmitter(w io.Writer, opts ...EmitterOption) *Emitter {
	e := &Emitter{w: w, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NowMillis returns the current emitter time in epoch milliseconds
func (e *Emitter) NowMillis() int64 {
	return Millis(e.now())
}

// Emit writes one message
func (e *Emitter) Emit(msg *Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return jsonpool.MarshalLine(e.w, msg)
}

// EmitRecord writes a RECORD message for stream
func (e *Emitter) EmitRecord(stream string, data map[string]interface{}) error {
	return e.Emit(&Message{
		Type: TypeRecord,
		Record: &RecordMessage{
			Stream:    stream,
			Data:      data,
			EmittedAt: e.NowMillis(),
		},
	})
}

// EmitState writes a STATE message
func (e *Emitter) EmitState(state *StateMessage) error {
	return e.Emit(&Message{Type: TypeState, State: state})
}

// EmitLog writes a LOG message
func (e *Emitter) EmitLog(level LogLevel, message string) error {
	return e.Emit(&Message{
		Type: TypeLog,
		Log:  &LogMessage{Level: level, Message: message},
	})
}

// EmitStreamStatus writes a STREAM_STATUS trace for stream
func (e *Emitter) EmitStreamStatus(stream string, status StreamStatus) error {
	return e.Emit(&Message{
		Type: TypeTrace,
		Trace: &TraceMessage{
			Type:      TraceTypeStreamStatus,
			EmittedAt: e.NowMillis(),
			StreamStatus: &StreamStatusTraceMessage{
				StreamDescriptor: StreamDescriptor{Name: stream},
				Status:           status,
			},
		},
	})
}

// EmitError writes an ERROR trace describing err
func (e *Emitter) EmitError(err error) error {
	return e.Emit(ErrorTraceFromError(err, e.NowMillis()))
}

// Millis converts t to epoch milliseconds
func Millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
