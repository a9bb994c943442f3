package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"

	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

// protocolCore is a zapcore.Core that writes each entry as a LOG message.
// Structured fields are appended to the message text as a JSON object.
type protocolCore struct {
	zapcore.LevelEnabler
	emitter *protocol.Emitter
	fields  []zapcore.Field
}

// NewProtocolCore creates a core emitting LOG messages through emitter
func NewProtocolCore(emitter *protocol.Emitter, enab zapcore.LevelEnabler) zapcore.Core {
	return &protocolCore{LevelEnabler: enab, emitter: emitter}
}

func (c *protocolCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *protocolCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *protocolCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	var b strings.Builder
	b.WriteString(ent.Message)
	if len(enc.Fields) > 0 {
		if data, err := jsonpool.Marshal(enc.Fields); err == nil {
			b.WriteByte(' ')
			b.Write(data)
		}
	}

	return c.emitter.Emit(&protocol.Message{
		Type: protocol.TypeLog,
		Log: &protocol.LogMessage{
			Level:      protocolLevel(ent.Level),
			Message:    b.String(),
			StackTrace: ent.Stack,
		},
	})
}

func (c *protocolCore) Sync() error {
	return nil
}

func protocolLevel(l zapcore.Level) protocol.LogLevel {
	switch {
	case l >= zapcore.DPanicLevel:
		return protocol.LogLevelFatal
	case l >= zapcore.ErrorLevel:
		return protocol.LogLevelError
	case l == zapcore.WarnLevel:
		return protocol.LogLevelWarn
	case l == zapcore.InfoLevel:
		return protocol.LogLevelInfo
	default:
		return protocol.LogLevelDebug
	}
}
