package filebased

import (
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
)

// Default values applied by StreamConfig.SetDefaults
const (
	DefaultDaysToSyncIfHistoryIsFull = 3
	DefaultFilesForSchemaDiscovery   = 10
)

// File types supported by the bundled parsers
const (
	FiletypeCSV     = "csv"
	FiletypeJSONL   = "jsonl"
	FiletypeParquet = "parquet"
	FiletypeAvro    = "avro"
)

// CSV header handling
const (
	HeaderFromCSV       = "From CSV"
	HeaderAutogenerated = "Autogenerated"
	HeaderUserProvided  = "User Provided"
)

// CSV type inference modes
const (
	InferenceNone           = "None"
	InferencePrimitiveTypes = "Primitive Types Only"
)

// SourceConfig is implemented by every connector configuration built on
// the file-based framework
type SourceConfig interface {
	Base() *Config
}

// Config holds the settings shared by all file-based sources
type Config struct {
	StartDate string         `json:"start_date,omitempty"`
	Streams   []StreamConfig `json:"streams"`
}

// Base implements SourceConfig
func (c *Config) Base() *Config {
	return c
}

// StartTime parses StartDate. The zero time is returned when it is unset.
func (c *Config) StartTime() (time.Time, error) {
	if c.StartDate == "" {
		return time.Time{}, nil
	}
	t, err := ParseTime(c.StartDate)
	if err != nil {
		return time.Time{}, newConfigError("start_date %q is not a valid timestamp", c.StartDate)
	}
	return t, nil
}

// Stream returns the stream configuration with the given name
func (c *Config) Stream(name string) (*StreamConfig, bool) {
	for i := range c.Streams {
		if c.Streams[i].Name == name {
			return &c.Streams[i], true
		}
	}
	return nil, false
}

// SetDefaults fills unset optional values on every stream
func (c *Config) SetDefaults() {
	for i := range c.Streams {
		c.Streams[i].SetDefaults()
	}
}

// Validate checks the shared settings and every stream
func (c *Config) Validate() error {
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if len(c.Streams) == 0 {
		return newConfigError("at least one stream must be configured")
	}
	seen := make(map[string]bool, len(c.Streams))
	for i := range c.Streams {
		s := &c.Streams[i]
		if seen[s.Name] {
			return newConfigError("stream name %q is used more than once", s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StreamConfig configures a single stream
type StreamConfig struct {
	Name                                 string           `json:"name"`
	Globs                                []string         `json:"globs,omitempty"`
	LegacyPrefix                         string           `json:"legacy_prefix,omitempty"`
	ValidationPolicy                     ValidationPolicy `json:"validation_policy,omitempty"`
	InputSchema                          string           `json:"input_schema,omitempty"`
	PrimaryKey                           string           `json:"primary_key,omitempty"`
	DaysToSyncIfHistoryIsFull            int              `json:"days_to_sync_if_history_is_full,omitempty"`
	Format                               FormatConfig     `json:"format"`
	Schemaless                           bool             `json:"schemaless,omitempty"`
	RecentNFilesToReadForSchemaDiscovery int              `json:"recent_n_files_to_read_for_schema_discovery,omitempty"`
}

// SetDefaults fills unset optional values
func (s *StreamConfig) SetDefaults() {
	if len(s.Globs) == 0 {
		s.Globs = []string{"**"}
	}
	if s.ValidationPolicy == "" {
		s.ValidationPolicy = PolicyEmitRecord
	}
	if s.DaysToSyncIfHistoryIsFull <= 0 {
		s.DaysToSyncIfHistoryIsFull = DefaultDaysToSyncIfHistoryIsFull
	}
	if s.RecentNFilesToReadForSchemaDiscovery <= 0 {
		s.RecentNFilesToReadForSchemaDiscovery = DefaultFilesForSchemaDiscovery
	}
	s.Format.SetDefaults()
}

// Validate checks the stream settings
func (s *StreamConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return newConfigError("stream name is required")
	}
	if err := ValidateGlobs(s.Globs); err != nil {
		return err
	}
	if err := s.ValidationPolicy.Validate(); err != nil {
		return err
	}
	if s.InputSchema != "" {
		if s.Schemaless {
			return newConfigError("stream %s: input_schema cannot be used with schemaless", s.Name)
		}
		fields, err := schema.ParseInputSchema(s.InputSchema)
		if err != nil {
			return newConfigError("stream %s: %v", s.Name, err)
		}
		if s.PrimaryKey != "" {
			if _, ok := fields[s.PrimaryKey]; !ok {
				return newConfigError("stream %s: primary key %s is not in input_schema", s.Name, s.PrimaryKey)
			}
		}
	}
	if err := s.Format.Validate(); err != nil {
		return newConfigError("stream %s: %v", s.Name, err)
	}
	return nil
}

// InputFields parses InputSchema. It returns nil when no schema is set.
func (s *StreamConfig) InputFields() schema.Fields {
	if s.InputSchema == "" {
		return nil
	}
	fields, err := schema.ParseInputSchema(s.InputSchema)
	if err != nil {
		return nil
	}
	return fields
}

// HeaderDefinition selects where CSV column names come from
type HeaderDefinition struct {
	HeaderDefinitionType string   `json:"header_definition_type"`
	ColumnNames          []string `json:"column_names,omitempty"`
}

// FormatConfig holds the options of every file type. Only the options of
// Filetype are read.
type FormatConfig struct {
	Filetype string `json:"filetype"`

	// csv
	Delimiter                    string            `json:"delimiter,omitempty"`
	QuoteChar                    string            `json:"quote_char,omitempty"`
	EscapeChar                   string            `json:"escape_char,omitempty"`
	Encoding                     string            `json:"encoding,omitempty"`
	DoubleQuote                  *bool             `json:"double_quote,omitempty"`
	NullValues                   []string          `json:"null_values,omitempty"`
	StringsCanBeNull             *bool             `json:"strings_can_be_null,omitempty"`
	SkipRowsBeforeHeader         int               `json:"skip_rows_before_header,omitempty"`
	SkipRowsAfterHeader          int               `json:"skip_rows_after_header,omitempty"`
	HeaderDefinition             *HeaderDefinition `json:"header_definition,omitempty"`
	TrueValues                   []string          `json:"true_values,omitempty"`
	FalseValues                  []string          `json:"false_values,omitempty"`
	InferenceType                string            `json:"inference_type,omitempty"`
	IgnoreErrorsOnFieldsMismatch bool              `json:"ignore_errors_on_fields_mismatch,omitempty"`

	// parquet
	DecimalAsFloat bool `json:"decimal_as_float,omitempty"`

	// avro
	DoubleAsString bool `json:"double_as_string,omitempty"`
}

// SetDefaults fills unset CSV options
func (f *FormatConfig) SetDefaults() {
	if f.Filetype != FiletypeCSV {
		return
	}
	if f.Delimiter == "" {
		f.Delimiter = ","
	}
	if f.QuoteChar == "" {
		f.QuoteChar = `"`
	}
	if f.Encoding == "" {
		f.Encoding = "utf8"
	}
	if f.DoubleQuote == nil {
		t := true
		f.DoubleQuote = &t
	}
	if f.StringsCanBeNull == nil {
		t := true
		f.StringsCanBeNull = &t
	}
	if f.HeaderDefinition == nil {
		f.HeaderDefinition = &HeaderDefinition{HeaderDefinitionType: HeaderFromCSV}
	}
	if f.TrueValues == nil {
		f.TrueValues = []string{"y", "yes", "t", "on", "true", "1"}
	}
	if f.FalseValues == nil {
		f.FalseValues = []string{"n", "no", "f", "off", "false", "0"}
	}
	if f.InferenceType == "" {
		f.InferenceType = InferenceNone
	}
}

// Validate checks the options of the selected file type
func (f *FormatConfig) Validate() error {
	switch f.Filetype {
	case FiletypeJSONL, FiletypeParquet, FiletypeAvro:
		return nil
	case FiletypeCSV:
	case "":
		return newConfigError("format filetype is required")
	default:
		return newConfigError("unsupported filetype %q", f.Filetype)
	}

	if len([]rune(DelimiterRune(f.Delimiter))) != 1 {
		return newConfigError("delimiter must be a single character")
	}
	if len([]rune(f.QuoteChar)) != 1 {
		return newConfigError("quote_char must be a single character")
	}
	if len([]rune(f.EscapeChar)) > 1 {
		return newConfigError("escape_char must be a single character")
	}
	if f.SkipRowsBeforeHeader < 0 || f.SkipRowsAfterHeader < 0 {
		return newConfigError("rows to skip cannot be negative")
	}
	for _, v := range f.TrueValues {
		for _, w := range f.FalseValues {
			if v == w {
				return newConfigError("value %q is both a true and a false value", v)
			}
		}
	}
	switch f.InferenceType {
	case InferenceNone, InferencePrimitiveTypes:
	default:
		return newConfigError("unknown inference_type %q", f.InferenceType)
	}
	if f.HeaderDefinition != nil {
		switch f.HeaderDefinition.HeaderDefinitionType {
		case HeaderFromCSV, HeaderAutogenerated:
		case HeaderUserProvided:
			if len(f.HeaderDefinition.ColumnNames) == 0 {
				return newConfigError("user provided headers require column_names")
			}
		default:
			return newConfigError("unknown header_definition_type %q", f.HeaderDefinition.HeaderDefinitionType)
		}
	}
	return nil
}

// DelimiterRune resolves the escaped tab accepted in the delimiter option
func DelimiterRune(delimiter string) string {
	if delimiter == `\t` {
		return "\t"
	}
	return delimiter
}

// ParseTime accepts DateTimeFormat, RFC 3339 and plain dates
func ParseTime(s string) (time.Time, error) {
	layouts := []string{DateTimeFormat, time.RFC3339Nano, "2006-01-02T15:04:05Z", "2006-01-02"}
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
