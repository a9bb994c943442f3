// Package logger provides structured logging for the S3 source connector.
//
// Standard output belongs to the connector protocol, so the default sink is
// stderr. With the "protocol" encoding every entry is wrapped in a LOG
// message and written through a protocol.Emitter instead.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

var (
	globalLogger *zap.Logger
	globalLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	// configured is set once Init succeeds; until then Get hands out a
	// default logger that Init replaces
	configured bool
	mu         sync.RWMutex
)

// contextKey is the type for context keys
type contextKey string

const (
	// CommandKey is the context key for the protocol command being run
	CommandKey contextKey = "command"
	// StreamKey is the context key for the stream being synced
	StreamKey contextKey = "stream"
	// FileKey is the context key for the remote file being read
	FileKey contextKey = "file"
)

// EncodingProtocol routes log entries into LOG messages
const EncodingProtocol = "protocol"

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // json, console or protocol
	OutputPaths []string
	// Writer receives protocol-encoded entries; defaults to stdout
	Writer io.Writer
}

// Init initializes the global logger. Only the first successful call takes
// effect; a default logger installed earlier by Get is replaced.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if configured {
		return nil
	}

	l, err := New(cfg, globalLevel)
	if err != nil {
		return err
	}
	globalLogger = l
	configured = true
	return nil
}

// New creates a zap logger from cfg. The level is applied to atom so it can
// be changed after construction.
func New(cfg Config, atom zap.AtomicLevel) (*zap.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	atom.SetLevel(level)

	if cfg.Encoding == EncodingProtocol {
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return zap.New(NewProtocolCore(protocol.NewEmitter(w), atom)), nil
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            atom,
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// Get returns the global logger
func Get() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		l, err := New(Config{Level: "info", Encoding: "json"}, globalLevel)
		if err != nil {
			// Fallback to basic logger
			l, _ = zap.NewProduction()
		}
		globalLogger = l
	}
	return globalLogger
}

// SetLevel changes the level of the global logger
func SetLevel(level zapcore.Level) {
	globalLevel.SetLevel(level)
}

// WithContext returns a logger with context values
func WithContext(ctx context.Context) *zap.Logger {
	logger := Get()

	if command, ok := ctx.Value(CommandKey).(string); ok {
		logger = logger.With(zap.String("command", command))
	}

	if stream, ok := ctx.Value(StreamKey).(string); ok {
		logger = logger.With(zap.String("stream", stream))
	}

	if file, ok := ctx.Value(FileKey).(string); ok {
		logger = logger.With(zap.String("file", file))
	}

	return logger
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
