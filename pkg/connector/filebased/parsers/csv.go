package parsers

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// inferenceRecordLimit caps the records sampled per file during discovery
const inferenceRecordLimit = 10000

const byteOrderMark = "\ufeff"

var errStopRows = errors.New(errors.ErrorTypeInternal, "enough rows read")

// CSVParser reads delimited text files
type CSVParser struct {
	logger *zap.Logger
}

// NewCSVParser creates a CSV parser logging to log
func NewCSVParser(log *zap.Logger) *CSVParser {
	if log == nil {
		log = zap.NewNop()
	}
	return &CSVParser{logger: log}
}

// Mode implements filebased.Parser
func (p *CSVParser) Mode() filebased.FileReadMode {
	return filebased.ModeText
}

// InferSchema implements filebased.Parser. Without type inference every
// column is a string.
func (p *CSVParser) InferSchema(ctx context.Context, stream filebased.StreamConfig, file filebased.RemoteFile, reader filebased.StreamReader) (schema.Fields, error) {
	format := stream.Format
	inferrer := schema.NewInferrer()
	primitive := format.InferenceType == filebased.InferencePrimitiveTypes

	rows := 0
	headers, err := p.readRows(ctx, format, file, reader, func(headers, values []string) error {
		if !primitive {
			return errStopRows
		}
		for i, h := range headers {
			v := values[i]
			if contains(format.NullValues, v) {
				inferrer.AddType(h, schema.Null)
				continue
			}
			inferrer.AddType(h, schema.InferString(v, format.TrueValues, format.FalseValues))
		}
		rows++
		if rows >= inferenceRecordLimit {
			return errStopRows
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopRows) {
		return nil, err
	}

	if !primitive {
		fields := make(schema.Fields, len(headers))
		for _, h := range headers {
			fields[h] = schema.String
		}
		return fields, nil
	}
	fields := inferrer.Fields()
	for _, h := range headers {
		if _, ok := fields[h]; !ok {
			fields[h] = schema.String
		}
	}
	return fields, nil
}

// ParseRecords implements filebased.Parser. Cells are cast to the type of
// their column in fields; cells that do not cast are kept as strings.
func (p *CSVParser) ParseRecords(ctx context.Context, stream filebased.StreamConfig, file filebased.RemoteFile, reader filebased.StreamReader, fields schema.Fields, fn func(filebased.Record) error) error {
	format := stream.Format
	_, err := p.readRows(ctx, format, file, reader, func(headers, values []string) error {
		return fn(p.cast(headers, values, fields, format, file.URI))
	})
	return err
}

func (p *CSVParser) cast(headers, values []string, fields schema.Fields, format filebased.FormatConfig, uri string) filebased.Record {
	stringsCanBeNull := format.StringsCanBeNull == nil || *format.StringsCanBeNull
	record := make(filebased.Record, len(headers))
	for i, h := range headers {
		v := values[i]
		t, known := fields[h]
		if !known {
			t = schema.String
		}

		if contains(format.NullValues, v) && (t != schema.String || stringsCanBeNull) {
			record[h] = nil
			continue
		}

		value, ok := castValue(v, t, format)
		if !ok {
			p.logger.Warn("cannot cast value, keeping it as a string",
				zap.String("file", uri), zap.String("column", h), zap.String("type", string(t)))
			value = v
		}
		record[h] = value
	}
	return record
}

func castValue(v string, t schema.Type, format filebased.FormatConfig) (interface{}, bool) {
	switch t {
	case schema.Boolean:
		if contains(format.TrueValues, v) {
			return true, true
		}
		if contains(format.FalseValues, v) {
			return false, true
		}
		return nil, false
	case schema.Integer:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case schema.Number:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case schema.Object, schema.Array:
		var decoded interface{}
		if err := jsonpool.UnmarshalNumber([]byte(v), &decoded); err != nil {
			return nil, false
		}
		return decoded, schema.TypeOf(decoded) == t
	default:
		return v, true
	}
}

// readRows calls fn for every data row with the resolved headers. The
// headers are returned even when the file holds no data rows.
func (p *CSVParser) readRows(ctx context.Context, format filebased.FormatConfig, file filebased.RemoteFile, reader filebased.StreamReader, fn func(headers, values []string) error) ([]string, error) {
	rc, err := openText(ctx, reader, file)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	text, err := decodeText(rc, format.Encoding)
	if err != nil {
		return nil, err
	}

	doubleQuote := format.DoubleQuote == nil || *format.DoubleQuote
	tok := newCSVTokenizer(text,
		firstRune(filebased.DelimiterRune(format.Delimiter), ','),
		firstRune(format.QuoteChar, '"'),
		firstRune(format.EscapeChar, 0),
		doubleQuote)

	if err := skipRows(tok, format.SkipRowsBeforeHeader); err != nil {
		return nil, err
	}

	headerType := filebased.HeaderFromCSV
	if format.HeaderDefinition != nil {
		headerType = format.HeaderDefinition.HeaderDefinitionType
	}

	var headers []string
	switch headerType {
	case filebased.HeaderUserProvided:
		headers = append([]string(nil), format.HeaderDefinition.ColumnNames...)
	case filebased.HeaderFromCSV:
		row, err := tok.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read csv header")
		}
		headers = row
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], byteOrderMark)
		if err := checkHeaders(headers); err != nil {
			return nil, err
		}
	}

	if err := skipRows(tok, format.SkipRowsAfterHeader); err != nil {
		return headers, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return headers, err
		}
		row, err := tok.Next()
		if err == io.EOF {
			return headers, nil
		}
		if err != nil {
			return headers, errors.Wrap(err, errors.ErrorTypeData, "malformed csv")
		}

		if headers == nil {
			row[0] = strings.TrimPrefix(row[0], byteOrderMark)
			headers = autogeneratedHeaders(len(row))
		}

		if len(row) != len(headers) {
			if !format.IgnoreErrorsOnFieldsMismatch {
				return headers, errors.Newf(errors.ErrorTypeData,
					"line %d has %d fields but the header has %d", tok.line-1, len(row), len(headers))
			}
			p.logger.Warn("row and header lengths differ",
				zap.String("file", file.URI), zap.Int("fields", len(row)), zap.Int("headers", len(headers)))
			row = fitRow(row, len(headers))
		}

		if err := fn(headers, row); err != nil {
			return headers, err
		}
	}
}

func skipRows(tok *csvTokenizer, n int) error {
	for i := 0; i < n; i++ {
		if _, err := tok.Next(); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, errors.ErrorTypeData, "malformed csv")
		}
	}
	return nil
}

func autogeneratedHeaders(n int) []string {
	headers := make([]string, n)
	for i := range headers {
		headers[i] = fmt.Sprintf("f%d", i)
	}
	return headers
}

func checkHeaders(headers []string) error {
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if seen[h] {
			return errors.Newf(errors.ErrorTypeData, "duplicate column name %q in csv header", h)
		}
		seen[h] = true
	}
	return nil
}

func fitRow(row []string, n int) []string {
	if len(row) > n {
		return row[:n]
	}
	for len(row) < n {
		row = append(row, "")
	}
	return row
}

// decodeText converts r from encoding to UTF-8
func decodeText(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.ReplaceAll(encoding, "-", "")) {
	case "", "utf8", "utf8sig", "ascii":
		return r, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported encoding %q", encoding)
	}
	return enc.NewDecoder().Reader(r), nil
}

func firstRune(s string, def rune) rune {
	if s == "" {
		return def
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

var _ filebased.Parser = (*CSVParser)(nil)
