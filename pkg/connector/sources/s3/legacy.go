package s3

import (
	"strings"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// LegacyConfig is the single-stream configuration layout used before
// streams were introduced
type LegacyConfig struct {
	Dataset     string         `json:"dataset"`
	PathPattern string         `json:"path_pattern"`
	Format      LegacyFormat   `json:"format"`
	Schema      string         `json:"schema,omitempty"`
	Provider    LegacyProvider `json:"provider"`
}

// LegacyProvider holds the bucket settings of a legacy configuration
type LegacyProvider struct {
	Bucket             string `json:"bucket"`
	AWSAccessKeyID     string `json:"aws_access_key_id,omitempty"`
	AWSSecretAccessKey string `json:"aws_secret_access_key,omitempty"`
	RoleARN            string `json:"role_arn,omitempty"`
	PathPrefix         string `json:"path_prefix,omitempty"`
	Endpoint           string `json:"endpoint,omitempty"`
	RegionName         string `json:"region_name,omitempty"`
	StartDate          string `json:"start_date,omitempty"`
}

// LegacyFormat holds the format options of a legacy configuration.
// AdvancedOptions and AdditionalReaderOptions are JSON documents embedded
// as strings.
type LegacyFormat struct {
	Filetype                string `json:"filetype"`
	Delimiter               string `json:"delimiter,omitempty"`
	QuoteChar               string `json:"quote_char,omitempty"`
	EscapeChar              string `json:"escape_char,omitempty"`
	Encoding                string `json:"encoding,omitempty"`
	DoubleQuote             *bool  `json:"double_quote,omitempty"`
	InferDatatypes          *bool  `json:"infer_datatypes,omitempty"`
	AdvancedOptions         string `json:"advanced_options,omitempty"`
	AdditionalReaderOptions string `json:"additional_reader_options,omitempty"`
}

type legacyAdvancedOptions struct {
	SkipRows                int      `json:"skip_rows"`
	SkipRowsAfterNames      int      `json:"skip_rows_after_names"`
	AutogenerateColumnNames bool     `json:"autogenerate_column_names"`
	ColumnNames             []string `json:"column_names"`
}

type legacyReaderOptions struct {
	NullValues       []string `json:"null_values"`
	TrueValues       []string `json:"true_values"`
	FalseValues      []string `json:"false_values"`
	StringsCanBeNull *bool    `json:"strings_can_be_null"`
}

// IsLegacyDocument reports whether raw uses the legacy layout
func IsLegacyDocument(raw map[string]interface{}) bool {
	if _, ok := raw["streams"]; ok {
		return false
	}
	_, hasProvider := raw["provider"]
	_, hasDataset := raw["dataset"]
	return hasProvider || hasDataset
}

// TransformLegacy converts a legacy configuration into a single-stream
// Config
func TransformLegacy(legacy LegacyConfig) (*Config, error) {
	if strings.TrimSpace(legacy.Dataset) == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "dataset is required")
	}

	stream := filebased.StreamConfig{
		Name:             legacy.Dataset,
		Globs:            legacyGlobs(legacy.PathPattern),
		LegacyPrefix:     legacy.Provider.PathPrefix,
		ValidationPolicy: filebased.PolicyEmitRecord,
	}
	if s := strings.TrimSpace(legacy.Schema); s != "" && s != "{}" {
		stream.InputSchema = s
	}

	format, err := transformLegacyFormat(legacy.Format)
	if err != nil {
		return nil, err
	}
	stream.Format = format

	cfg := &Config{
		Config: filebased.Config{
			Streams: []filebased.StreamConfig{stream},
		},
		Bucket:             legacy.Provider.Bucket,
		AWSAccessKeyID:     legacy.Provider.AWSAccessKeyID,
		AWSSecretAccessKey: legacy.Provider.AWSSecretAccessKey,
		RoleARN:            legacy.Provider.RoleARN,
		Endpoint:           legacy.Provider.Endpoint,
		RegionName:         legacy.Provider.RegionName,
	}
	if legacy.Provider.StartDate != "" {
		start, err := filebased.ParseTime(legacy.Provider.StartDate)
		if err != nil {
			return nil, errors.Newf(errors.ErrorTypeConfig, "start_date %q is not a valid timestamp", legacy.Provider.StartDate)
		}
		cfg.StartDate = start.Format(filebased.DateTimeFormat)
	}
	return cfg, nil
}

// legacyGlobs splits a "|" separated path pattern. Patterns match the full
// object key; the prefix only narrows the listing.
func legacyGlobs(pattern string) []string {
	if pattern == "" {
		pattern = "**"
	}
	parts := strings.Split(pattern, "|")
	globs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		globs = append(globs, p)
	}
	return globs
}

func transformLegacyFormat(legacy LegacyFormat) (filebased.FormatConfig, error) {
	switch legacy.Filetype {
	case filebased.FiletypeJSONL, filebased.FiletypeAvro:
		return filebased.FormatConfig{Filetype: legacy.Filetype}, nil
	case filebased.FiletypeParquet:
		return filebased.FormatConfig{Filetype: filebased.FiletypeParquet, DecimalAsFloat: true}, nil
	case filebased.FiletypeCSV:
	default:
		return filebased.FormatConfig{}, errors.Newf(errors.ErrorTypeConfig, "unsupported legacy filetype %q", legacy.Filetype)
	}

	format := filebased.FormatConfig{
		Filetype:      filebased.FiletypeCSV,
		Delimiter:     legacy.Delimiter,
		QuoteChar:     legacy.QuoteChar,
		EscapeChar:    legacy.EscapeChar,
		Encoding:      legacy.Encoding,
		DoubleQuote:   legacy.DoubleQuote,
		InferenceType: filebased.InferencePrimitiveTypes,
	}
	if legacy.InferDatatypes != nil && !*legacy.InferDatatypes {
		format.InferenceType = filebased.InferenceNone
	}

	if legacy.AdvancedOptions != "" {
		var adv legacyAdvancedOptions
		if err := jsonpool.Unmarshal([]byte(legacy.AdvancedOptions), &adv); err != nil {
			return format, errors.Wrap(err, errors.ErrorTypeConfig, "advanced_options is not valid JSON")
		}
		format.SkipRowsBeforeHeader = adv.SkipRows
		format.SkipRowsAfterHeader = adv.SkipRowsAfterNames
		switch {
		case len(adv.ColumnNames) > 0:
			format.HeaderDefinition = &filebased.HeaderDefinition{
				HeaderDefinitionType: filebased.HeaderUserProvided,
				ColumnNames:          adv.ColumnNames,
			}
		case adv.AutogenerateColumnNames:
			format.HeaderDefinition = &filebased.HeaderDefinition{HeaderDefinitionType: filebased.HeaderAutogenerated}
		}
	}

	if legacy.AdditionalReaderOptions != "" {
		var opts legacyReaderOptions
		if err := jsonpool.Unmarshal([]byte(legacy.AdditionalReaderOptions), &opts); err != nil {
			return format, errors.Wrap(err, errors.ErrorTypeConfig, "additional_reader_options is not valid JSON")
		}
		format.NullValues = opts.NullValues
		format.TrueValues = opts.TrueValues
		format.FalseValues = opts.FalseValues
		format.StringsCanBeNull = opts.StringsCanBeNull
	}
	return format, nil
}
