// Package protocol defines the connector message envelope exchanged with the
// orchestrator over standard output, one JSON object per line.
package protocol

import (
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// Type is the kind of a Message
type Type string

const (
	TypeRecord           Type = "RECORD"
	TypeState            Type = "STATE"
	TypeLog              Type = "LOG"
	TypeSpec             Type = "SPEC"
	TypeConnectionStatus Type = "CONNECTION_STATUS"
	TypeCatalog          Type = "CATALOG"
	TypeTrace            Type = "TRACE"
)

// Message is the envelope for everything a connector writes to stdout.
// Exactly one of the payload fields is set, matching Type.
type Message struct {
	Type             Type                    `json:"type"`
	Log              *LogMessage             `json:"log,omitempty"`
	Spec             *ConnectorSpecification `json:"spec,omitempty"`
	ConnectionStatus *ConnectionStatus       `json:"connectionStatus,omitempty"`
	Catalog          *Catalog                `json:"catalog,omitempty"`
	Record           *RecordMessage          `json:"record,omitempty"`
	State            *StateMessage           `json:"state,omitempty"`
	Trace            *TraceMessage           `json:"trace,omitempty"`
}

// LogLevel of a LogMessage
type LogLevel string

const (
	LogLevelFatal LogLevel = "FATAL"
	LogLevelError LogLevel = "ERROR"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelTrace LogLevel = "TRACE"
)

// LogMessage carries a log line
type LogMessage struct {
	Level      LogLevel `json:"level"`
	Message    string   `json:"message"`
	StackTrace string   `json:"stack_trace,omitempty"`
}

// ConnectorSpecification describes the configuration a connector accepts
type ConnectorSpecification struct {
	DocumentationURL        string                 `json:"documentationUrl,omitempty"`
	ChangelogURL            string                 `json:"changelogUrl,omitempty"`
	ConnectionSpecification map[string]interface{} `json:"connectionSpecification"`
	SupportsIncremental     bool                   `json:"supportsIncremental,omitempty"`
}

// Status of a connection check
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// ConnectionStatus is the result of a check
type ConnectionStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// SyncMode is how a source reads a stream
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// DestinationSyncMode is how a destination writes a stream
type DestinationSyncMode string

const (
	DestinationSyncModeAppend      DestinationSyncMode = "append"
	DestinationSyncModeOverwrite   DestinationSyncMode = "overwrite"
	DestinationSyncModeAppendDedup DestinationSyncMode = "append_dedup"
)

// Stream describes a discovered stream
type Stream struct {
	Name                    string                 `json:"name"`
	Namespace               string                 `json:"namespace,omitempty"`
	JSONSchema              map[string]interface{} `json:"json_schema"`
	SupportedSyncModes      []SyncMode             `json:"supported_sync_modes"`
	SourceDefinedCursor     bool                   `json:"source_defined_cursor,omitempty"`
	DefaultCursorField      []string               `json:"default_cursor_field,omitempty"`
	SourceDefinedPrimaryKey [][]string             `json:"source_defined_primary_key,omitempty"`
	IsResumable             bool                   `json:"is_resumable,omitempty"`
}

// Catalog is the discover output
type Catalog struct {
	Streams []Stream `json:"streams"`
}

// ConfiguredStream is a stream selected for a sync
type ConfiguredStream struct {
	Stream              Stream              `json:"stream"`
	SyncMode            SyncMode            `json:"sync_mode"`
	DestinationSyncMode DestinationSyncMode `json:"destination_sync_mode"`
	CursorField         []string            `json:"cursor_field,omitempty"`
	PrimaryKey          [][]string          `json:"primary_key,omitempty"`
}

// ConfiguredCatalog is the read input describing which streams to sync
type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams"`
}

// Find returns the configured stream with the given name
func (c *ConfiguredCatalog) Find(name string) (*ConfiguredStream, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Streams {
		if c.Streams[i].Stream.Name == name {
			return &c.Streams[i], true
		}
	}
	return nil, false
}

// RecordMessage carries one row of a stream
type RecordMessage struct {
	Stream    string                 `json:"stream"`
	Namespace string                 `json:"namespace,omitempty"`
	Data      map[string]interface{} `json:"data"`
	EmittedAt int64                  `json:"emitted_at"`
}

// StateType discriminates state messages
type StateType string

const (
	StateTypeStream StateType = "STREAM"
	StateTypeGlobal StateType = "GLOBAL"
	StateTypeLegacy StateType = "LEGACY"
)

// StreamDescriptor identifies a stream
type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// StreamState is the checkpoint for one stream
type StreamState struct {
	StreamDescriptor StreamDescriptor       `json:"stream_descriptor"`
	StreamState      map[string]interface{} `json:"stream_state,omitempty"`
}

// StateStats carries record counts for a checkpoint
type StateStats struct {
	RecordCount float64 `json:"recordCount"`
}

// StateMessage is a checkpoint
type StateMessage struct {
	Type        StateType              `json:"type,omitempty"`
	Stream      *StreamState           `json:"stream,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	SourceStats *StateStats            `json:"sourceStats,omitempty"`
}

// TraceType discriminates trace messages
type TraceType string

const (
	TraceTypeError        TraceType = "ERROR"
	TraceTypeEstimate     TraceType = "ESTIMATE"
	TraceTypeStreamStatus TraceType = "STREAM_STATUS"
)

// FailureType classifies an error trace for the orchestrator
type FailureType string

const (
	FailureTypeConfig    FailureType = "config_error"
	FailureTypeSystem    FailureType = "system_error"
	FailureTypeTransient FailureType = "transient_error"
)

// ErrorTraceMessage describes a failure
type ErrorTraceMessage struct {
	Message          string            `json:"message"`
	InternalMessage  string            `json:"internal_message,omitempty"`
	StackTrace       string            `json:"stack_trace,omitempty"`
	FailureType      FailureType       `json:"failure_type,omitempty"`
	StreamDescriptor *StreamDescriptor `json:"stream_descriptor,omitempty"`
}

// StreamStatus values reported through STREAM_STATUS traces
type StreamStatus string

const (
	StreamStatusStarted    StreamStatus = "STARTED"
	StreamStatusRunning    StreamStatus = "RUNNING"
	StreamStatusComplete   StreamStatus = "COMPLETE"
	StreamStatusIncomplete StreamStatus = "INCOMPLETE"
)

// StreamStatusTraceMessage reports a stream lifecycle transition
type StreamStatusTraceMessage struct {
	StreamDescriptor StreamDescriptor `json:"stream_descriptor"`
	Status           StreamStatus     `json:"status"`
}

// EstimateTraceMessage reports an estimate of the rows a stream will produce
type EstimateTraceMessage struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	RowEstimate  int64  `json:"row_estimate,omitempty"`
	ByteEstimate int64  `json:"byte_estimate,omitempty"`
}

// TraceMessage is a structured diagnostic event
type TraceMessage struct {
	Type         TraceType                 `json:"type"`
	EmittedAt    int64                     `json:"emitted_at"`
	Error        *ErrorTraceMessage        `json:"error,omitempty"`
	Estimate     *EstimateTraceMessage     `json:"estimate,omitempty"`
	StreamStatus *StreamStatusTraceMessage `json:"stream_status,omitempty"`
}

// Decode parses a single protocol line
func Decode(line []byte) (*Message, error) {
	var msg Message
	if err := jsonpool.UnmarshalNumber(line, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
