package filebased

import (
	"context"
	"time"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
)

// ConfigSpec describes and parses the connector configuration
type ConfigSpec interface {
	// Parse validates raw and returns the typed configuration with defaults
	// applied
	Parse(raw map[string]interface{}) (SourceConfig, error)
	// Schema returns the JSON schema of the configuration document
	Schema() map[string]interface{}
	// DocumentationURL links to the connector documentation
	DocumentationURL() string
}

// Cursor tracks which files of a stream have been synced
type Cursor interface {
	// SetInitialState loads the checkpoint from a previous sync
	SetInitialState(state map[string]interface{}) error
	// AddFile records file as synced
	AddFile(file RemoteFile)
	// FilesToSync filters and orders files to those still needing a sync
	FilesToSync(files []RemoteFile) []RemoteFile
	// State returns the checkpoint to emit
	State() map[string]interface{}
	// StartTime is the earliest modification time that may still be synced
	StartTime() time.Time
}

// CursorFactory creates the cursor of a stream
type CursorFactory func(stream StreamConfig) Cursor

// Record is one parsed row
type Record = map[string]interface{}

// Parser reads the records of one file type
type Parser interface {
	// Mode is the read mode the parser needs from OpenFile
	Mode() FileReadMode

	// InferSchema samples file and returns its field types
	InferSchema(ctx context.Context, stream StreamConfig, file RemoteFile, reader StreamReader) (schema.Fields, error)

	// ParseRecords calls fn for every record of file. fields is the schema
	// the records are read against; it may be nil for schemaless streams.
	ParseRecords(ctx context.Context, stream StreamConfig, file RemoteFile, reader StreamReader, fields schema.Fields, fn func(Record) error) error
}

// Parsers maps a filetype to its parser
type Parsers map[string]Parser
